// Package busyport implements the busy-port inspector. It enumerates in-use
// TCP endpoints with their owning process, used by the release-time
// diagnostic check.
package busyport

import (
	"context"
	"net"
)

// TCPState is the normalized, platform-independent connection state. Each
// platform parser maps its own vocabulary onto these via the alias tables
// in its own file.
type TCPState int

const (
	StateUnknown TCPState = iota
	StateClosed
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
	StateTimeWait
	StateDeleteTCB
	StateBound
	StateClose
	StateIdle
)

func (s TCPState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynReceived:
		return "SYN_RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN_WAIT_1"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST_ACK"
	case StateTimeWait:
		return "TIME_WAIT"
	case StateDeleteTCB:
		return "DELETE_TCB"
	case StateBound:
		return "BOUND"
	case StateClose:
		return "CLOSE"
	case StateIdle:
		return "IDLE"
	default:
		return "UNKNOWN"
	}
}

// Endpoint is an IP:port pair. IP may be the wildcard ("any") address of the
// stated version; Port 0 represents "*".
type Endpoint struct {
	IP   net.IP
	Port int
}

// BusyPort describes one in-use TCP endpoint and, where discoverable, the
// process that owns it.
type BusyPort struct {
	PID            uint64
	LocalEndpoint  Endpoint
	RemoteEndpoint Endpoint
	State          TCPState
	ShortCommand   string
	CommandLine    string
}

// All lists every in-use TCP endpoint on the host.
func All(ctx context.Context) ([]BusyPort, error) {
	return busyPortsForPlatform(ctx, 0)
}

// ForPort lists in-use TCP endpoints whose local port equals port.
func ForPort(ctx context.Context, port int) ([]BusyPort, error) {
	return busyPortsForPlatform(ctx, port)
}
