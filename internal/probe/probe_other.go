//go:build !linux && !darwin && !windows

package probe

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"strings"

	"github.com/devtoolkit/portguard/internal/executor"
)

// ephemeralRangeForPlatform covers Solaris/HP-UX (ndd) and AIX (no -a); any
// other GOOS falls straight through to the IANA default.
func ephemeralRangeForPlatform(ctx context.Context) (Range, error) {
	switch runtime.GOOS {
	case "solaris", "hp-ux":
		lo, err := nddInt(ctx, "tcp_smallest_anon_port")
		if err != nil {
			return Range{}, err
		}
		hi, err := nddInt(ctx, "tcp_largest_anon_port")
		if err != nil {
			return Range{}, err
		}
		return Range{Lo: lo, Hi: hi}, nil
	case "aix":
		lo, err := noAInt(ctx, "tcp_ephemeral_low")
		if err != nil {
			return Range{}, err
		}
		hi, err := noAInt(ctx, "tcp_ephemeral_high")
		if err != nil {
			return Range{}, err
		}
		return Range{Lo: lo, Hi: hi}, nil
	default:
		slog.Warn("no ephemeral range probe for platform", "goos", runtime.GOOS)
		return Range{}, errUnexpectedFormat("platform probe", runtime.GOOS)
	}
}

func osReservedRangesForPlatform(_ context.Context) []Range {
	return nil
}

func nddInt(ctx context.Context, key string) (int, error) {
	res, err := executor.Run(ctx, "ndd", []string{"/dev/tcp", key}, "")
	if err != nil {
		return 0, err
	}
	return parseFirstInt(res.Stdout)
}

func noAInt(ctx context.Context, key string) (int, error) {
	res, err := executor.Run(ctx, "/usr/sbin/no", []string{"-a"}, "")
	if err != nil {
		return 0, err
	}
	for _, line := range res.Stdout {
		if parsed, ok := scanKeyValue(line, key); ok {
			return parsed, nil
		}
	}
	return 0, errUnexpectedFormat("no -a", key)
}

func parseFirstInt(lines []string) (int, error) {
	for _, line := range lines {
		if n, err := strconv.Atoi(strings.TrimSpace(line)); err == nil {
			return n, nil
		}
	}
	return 0, errUnexpectedFormat("ndd", "no integer found")
}

func scanKeyValue(line, key string) (int, bool) {
	// AIX `no -a` output lines look like "tcp_ephemeral_low = 32768".
	idx := strings.Index(line, key)
	if idx < 0 {
		return 0, false
	}
	rest := line[idx+len(key):]
	eq := strings.Index(rest, "=")
	if eq < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest[eq+1:]))
	if err != nil {
		return 0, false
	}
	return n, true
}
