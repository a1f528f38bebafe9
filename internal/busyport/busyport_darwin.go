//go:build darwin

package busyport

import (
	"context"
	"strconv"
	"strings"

	"github.com/devtoolkit/portguard/internal/executor"
)

// busyPortsForPlatform runs `nettop -L1 -m tcp -n -J state` and merges it with
// `ps` for the command string. port == 0 means
// "all ports"; nettop has no built-in port filter so filtering happens here.
func busyPortsForPlatform(ctx context.Context, port int) ([]BusyPort, error) {
	res, err := executor.Run(ctx, "nettop", []string{"-L1", "-m", "tcp", "-n", "-J", "state"}, "")
	if err != nil {
		return nil, err
	}

	entries := parseNettop(res.Stdout)

	names, _ := psNames(ctx, pidsOf(entries))
	out := make([]BusyPort, 0, len(entries))
	for _, e := range entries {
		if port != 0 && e.LocalEndpoint.Port != port {
			continue
		}
		if name, ok := names[e.PID]; ok {
			e.CommandLine = name
		}
		out = append(out, e)
	}
	return out, nil
}

// parseNettop parses nettop's grouped output: a process header line
// "<name>.<pid>,,", followed by one or more "tcp4|tcp6 <local><->,<remote>,<state>,"
// lines.
func parseNettop(lines []string) []BusyPort {
	var out []BusyPort
	var curPID uint64
	var curName string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "tcp4") || strings.HasPrefix(line, "tcp6") {
			v6 := strings.HasPrefix(line, "tcp6")
			fields := strings.Split(strings.TrimPrefix(strings.TrimPrefix(line, "tcp6"), "tcp4"), ",")
			fields = trimEmptyFields(fields)
			if len(fields) == 0 {
				continue
			}
			localRemote := strings.TrimSpace(fields[0])
			local, remote, hasRemote := strings.Cut(localRemote, "<->")
			bp := BusyPort{PID: curPID, ShortCommand: curName}
			bp.LocalEndpoint = parseNettopEndpoint(local, v6)
			if hasRemote {
				bp.RemoteEndpoint = parseNettopEndpoint(remote, v6)
			}
			if len(fields) > 1 {
				bp.State = nettopStateAlias(strings.TrimSpace(fields[1]))
			}
			out = append(out, bp)
			continue
		}

		// Process header: "<name>.<pid>,,"
		name, rest, ok := strings.Cut(line, ".")
		if !ok {
			continue
		}
		pidStr, _, _ := strings.Cut(rest, ",")
		pid, err := strconv.ParseUint(pidStr, 10, 64)
		if err != nil {
			continue
		}
		curName = name
		curPID = pid
	}
	return out
}

// parseNettopEndpoint rewrites nettop's period-separated IPv6 address:port
// form ("fe80..1.8080") into a bracketed, colon-separated one before handing
// off to the shared endpoint parser.
func parseNettopEndpoint(s string, v6 bool) Endpoint {
	s = strings.TrimSpace(s)
	if !v6 {
		return parseEndpoint(s, false)
	}
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return parseEndpoint(s, true)
	}
	addr, port := s[:idx], s[idx+1:]
	return parseEndpoint(rebracket(addr)+":"+port, true)
}

func nettopStateAlias(s string) TCPState {
	switch s {
	case "Listen":
		return StateListen
	case "SynSent":
		return StateSynSent
	case "SynReceived":
		return StateSynReceived
	case "Established":
		return StateEstablished
	case "FinWait1":
		return StateFinWait1
	case "FinWait2":
		return StateFinWait2
	case "CloseWait":
		return StateCloseWait
	case "Closing":
		return StateClosing
	case "LastAck":
		return StateLastAck
	case "TimeWait":
		return StateTimeWait
	case "Closed":
		return StateClosed
	default:
		return StateUnknown
	}
}

func trimEmptyFields(fields []string) []string {
	out := fields[:0]
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			out = append(out, f)
		}
	}
	return out
}

func psNames(ctx context.Context, pids []uint64) (map[uint64]string, error) {
	if len(pids) == 0 {
		return nil, nil
	}
	res, err := executor.Run(ctx, "ps", []string{"-ax", "-opid,user,command"}, "")
	if err != nil {
		return nil, err
	}

	want := map[uint64]struct{}{}
	for _, p := range pids {
		want[p] = struct{}{}
	}

	out := map[uint64]string{}
	for i, line := range res.Stdout {
		if i == 0 {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		if _, ok := want[pid]; ok {
			out[pid] = strings.Join(fields[2:], " ")
		}
	}
	return out, nil
}
