package busyport

import (
	"net"
	"strconv"
	"strings"
)

// parseEndpoint parses a platform's "*" as address to mean the wildcard
// address of the stated IP version, "*" as port to mean 0, and unwraps
// bracketed IPv6 literals ("[::1]:8080").
func parseEndpoint(addr string, v6 bool) Endpoint {
	host, port := splitHostPort(addr)

	var ip net.IP
	switch host {
	case "*", "":
		if v6 {
			ip = net.IPv6zero
		} else {
			ip = net.IPv4zero
		}
	default:
		host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
		ip = net.ParseIP(host)
	}

	p := 0
	if port != "*" && port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			p = n
		}
	}

	return Endpoint{IP: ip, Port: p}
}

// splitHostPort splits "host:port" or "[host]:port" without requiring the
// host to already be a well-formed address (net.SplitHostPort rejects "*").
func splitHostPort(addr string) (host, port string) {
	if strings.HasPrefix(addr, "[") {
		if idx := strings.LastIndex(addr, "]:"); idx >= 0 {
			return addr[:idx+1], addr[idx+2:]
		}
		return addr, ""
	}
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, ""
	}
	return addr[:idx], addr[idx+1:]
}

// rebracket wraps an IPv6 literal in brackets if it contains a colon and is
// not already bracketed, the way nettop's period-separated addresses must be
// rewritten before reuse.
func rebracket(ip string) string {
	if strings.Contains(ip, ":") && !strings.HasPrefix(ip, "[") {
		return "[" + ip + "]"
	}
	return ip
}
