//go:build linux

package probe

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const (
	linuxEphemeralPath = "/proc/sys/net/ipv4/ip_local_port_range"
	linuxReservedPath  = "/proc/sys/net/ipv4/ip_local_reserved_ports"
)

func ephemeralRangeForPlatform(_ context.Context) (Range, error) {
	data, err := os.ReadFile(linuxEphemeralPath)
	if err != nil {
		return Range{}, err
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return Range{}, errUnexpectedFormat(linuxEphemeralPath, string(data))
	}
	lo, err := strconv.Atoi(fields[0])
	if err != nil {
		return Range{}, err
	}
	hi, err := strconv.Atoi(fields[1])
	if err != nil {
		return Range{}, err
	}
	return Range{Lo: lo, Hi: hi}, nil
}

func osReservedRangesForPlatform(_ context.Context) []Range {
	data, err := os.ReadFile(linuxReservedPath)
	if err != nil {
		slog.Warn("failed to read OS-reserved port ranges", "path", linuxReservedPath, "error", err)
		return nil
	}

	var ranges []Range
	for _, tok := range strings.Split(strings.TrimSpace(string(data)), ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(tok, "-"); ok {
			loN, errLo := strconv.Atoi(lo)
			hiN, errHi := strconv.Atoi(hi)
			if errLo != nil || errHi != nil {
				slog.Warn("skipping unparseable reserved port entry", "entry", tok)
				continue
			}
			ranges = append(ranges, Range{Lo: loN, Hi: hiN})
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			slog.Warn("skipping unparseable reserved port entry", "entry", tok)
			continue
		}
		ranges = append(ranges, Range{Lo: n, Hi: n})
	}
	return ranges
}
