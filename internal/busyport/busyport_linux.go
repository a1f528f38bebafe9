//go:build linux

package busyport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/devtoolkit/portguard/internal/executor"
)

// busyPortsForPlatform runs lsof (optionally elevated via sudo) and merges its
// output with ps. port == 0 means "all ports".
func busyPortsForPlatform(ctx context.Context, port int) ([]BusyPort, error) {
	filter := "TCP"
	if port != 0 {
		filter = fmt.Sprintf(":%d", port)
	}

	res, err := runLsofWithFallback(ctx, filter)
	if err != nil {
		return nil, err
	}

	entries := parseLsofFields(res.Stdout)
	procNames, err := psCommandLines(ctx, pidsOf(entries))
	if err != nil {
		// Non-fatal: we still have PIDs and short commands from lsof itself.
		slog.Warn("failed to enrich busy ports with ps command lines", "error", err)
	}

	out := make([]BusyPort, 0, len(entries))
	for _, e := range entries {
		bp := e
		if line, ok := procNames[e.PID]; ok {
			bp.CommandLine = line
		}
		out = append(out, bp)
	}
	return out, nil
}

// runLsofWithFallback tries under sudo first (non-interactively, so it fails
// fast rather than prompting), and on any failure other than "no matches",
// retries once without sudo and warns once about missing sudoers
// configuration.
func runLsofWithFallback(ctx context.Context, filter string) (executor.Result, error) {
	sudoArgs := []string{"--non-interactive", "--", "lsof", "-nP", "-i" + filter, "-F", "0pPRgLnTftc", "+c0", "-w"}
	lsofArgs := []string{"-nP", "-i" + filter, "-F", "0pPRgLnTftc", "+c0", "-w"}

	noMatches := func(res executor.Result) bool { return res.ExitCode == 1 && len(res.Stdout) == 0 }

	// A couple of quick retries absorb transient exec failures (e.g. the
	// fork/exec racing against a busy process table) before falling back.
	var res executor.Result
	var runErr error
	attempt := func() error {
		res, runErr = executor.RunNUL(ctx, "sudo", sudoArgs, "")
		if runErr == nil || noMatches(res) {
			return nil
		}
		return runErr
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(20*time.Millisecond), 2)
	if err := backoff.Retry(attempt, b); err != nil {
		slog.Warn("lsof under sudo failed, retrying without sudo; check sudoers configuration", "error", err)
		res, runErr = executor.RunNUL(ctx, "lsof", lsofArgs, "")
		if runErr != nil && !noMatches(res) {
			return executor.Result{}, fmt.Errorf("lsof failed: %w", runErr)
		}
		return res, nil
	}
	return res, nil
}

// parseLsofFields turns lsof -F fields into one BusyPort per TCP file record,
// carrying the enclosing process's PID and command onto each.
func parseLsofFields(fields []string) []BusyPort {
	var out []BusyPort
	var curPID uint64
	var curCmd string
	var pending *BusyPort

	flush := func() {
		if pending != nil {
			out = append(out, *pending)
			pending = nil
		}
	}

	for _, field := range fields {
		if field == "" {
			continue
		}
		tag, val := field[0], field[1:]
		switch tag {
		case 'p':
			flush()
			if n, err := strconv.ParseUint(val, 10, 64); err == nil {
				curPID = n
			}
		case 'c':
			curCmd = val
		case 'f':
			// A new FD record starts a new connection; flush the previous one.
			flush()
			pending = &BusyPort{PID: curPID, ShortCommand: curCmd}
		case 'P':
			if pending != nil && !strings.EqualFold(val, "TCP") {
				// Not a TCP record; drop it on the next flush.
				pending = nil
			}
		case 'n':
			if pending == nil {
				continue
			}
			local, remote, hasRemote := strings.Cut(val, "->")
			pending.LocalEndpoint = parseEndpoint(local, strings.Contains(local, "["))
			if hasRemote {
				pending.RemoteEndpoint = parseEndpoint(remote, strings.Contains(remote, "["))
			}
		case 'T':
			if pending == nil {
				continue
			}
			if k, v, ok := strings.Cut(val, "="); ok && k == "ST" {
				pending.State = lsofStateAlias(v)
			}
		}
	}
	flush()
	return out
}

func pidsOf(entries []BusyPort) []uint64 {
	seen := map[uint64]struct{}{}
	var pids []uint64
	for _, e := range entries {
		if _, ok := seen[e.PID]; ok {
			continue
		}
		seen[e.PID] = struct{}{}
		pids = append(pids, e.PID)
	}
	return pids
}

func psCommandLines(ctx context.Context, pids []uint64) (map[uint64]string, error) {
	if len(pids) == 0 {
		return nil, nil
	}
	res, err := executor.Run(ctx, "ps", []string{"-ax", "-opid=,args="}, "")
	if err != nil {
		return nil, err
	}

	want := map[uint64]struct{}{}
	for _, p := range pids {
		want[p] = struct{}{}
	}

	out := map[uint64]string{}
	for _, line := range res.Stdout {
		line = strings.TrimSpace(line)
		pidStr, rest, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		pid, err := strconv.ParseUint(pidStr, 10, 64)
		if err != nil {
			continue
		}
		if _, ok := want[pid]; ok {
			out[pid] = strings.TrimSpace(rest)
		}
	}
	return out, nil
}

// lsofStateAlias maps lsof's TCP state strings onto the normalized set.
// lsof's own vocabulary matches Linux's /proc/net/tcp state names, so this
// lookup is case-sensitive.
func lsofStateAlias(s string) TCPState {
	switch s {
	case "LISTEN":
		return StateListen
	case "SYN_SENT":
		return StateSynSent
	case "SYN_RECV", "SYN_RECEIVED":
		return StateSynReceived
	case "ESTABLISHED":
		return StateEstablished
	case "FIN_WAIT1", "FIN_WAIT_1":
		return StateFinWait1
	case "FIN_WAIT2", "FIN_WAIT_2":
		return StateFinWait2
	case "CLOSE_WAIT":
		return StateCloseWait
	case "CLOSING":
		return StateClosing
	case "LAST_ACK":
		return StateLastAck
	case "TIME_WAIT":
		return StateTimeWait
	case "CLOSE":
		return StateClose
	case "CLOSED":
		return StateClosed
	case "IDLE":
		return StateIdle
	default:
		return StateUnknown
	}
}
