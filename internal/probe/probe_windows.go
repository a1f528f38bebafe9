//go:build windows

package probe

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/devtoolkit/portguard/internal/executor"
)

var hexOrDecimalRe = regexp.MustCompile(`(?i)0x[0-9a-f]+|\d+`)

// ephemeralRangeForPlatform parses `netsh int ipv4 show dynamicport tcp`. The
// first two hex/decimal numerics encountered are the start port and the
// count of ports in the range.
func ephemeralRangeForPlatform(ctx context.Context) (Range, error) {
	res, err := executor.Run(ctx, "netsh", []string{"int", "ipv4", "show", "dynamicport", "tcp"}, "")
	if err != nil {
		return Range{}, err
	}

	nums := extractNumerics(res.Stdout)
	if len(nums) < 2 {
		return Range{}, errUnexpectedFormat("netsh show dynamicport", strings.Join(res.Stdout, "\n"))
	}
	start, count := nums[0], nums[1]
	return Range{Lo: start, Hi: start + count - 1}, nil
}

func osReservedRangesForPlatform(ctx context.Context) []Range {
	res, err := executor.Run(ctx, "netsh", []string{"int", "ipv4", "show", "excludedportrange", "protocol=tcp"}, "")
	if err != nil {
		slog.Warn("failed to query excluded port ranges", "error", err)
		return nil
	}

	var ranges []Range
	for _, line := range res.Stdout {
		nums := extractNumerics([]string{line})
		if len(nums) < 2 {
			continue
		}
		ranges = append(ranges, Range{Lo: nums[0], Hi: nums[1]})
	}
	return ranges
}

func extractNumerics(lines []string) []int {
	var out []int
	for _, line := range lines {
		for _, m := range hexOrDecimalRe.FindAllString(line, -1) {
			var n int64
			var err error
			if strings.HasPrefix(strings.ToLower(m), "0x") {
				n, err = strconv.ParseInt(m[2:], 16, 64)
			} else {
				n, err = strconv.ParseInt(m, 10, 64)
			}
			if err != nil {
				continue
			}
			out = append(out, int(n))
		}
	}
	return out
}
