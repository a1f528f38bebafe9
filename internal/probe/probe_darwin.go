//go:build darwin

package probe

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/devtoolkit/portguard/internal/executor"
)

func ephemeralRangeForPlatform(ctx context.Context) (Range, error) {
	res, err := executor.Run(ctx, "sysctl", []string{"net.inet.ip.portrange.hifirst", "net.inet.ip.portrange.hilast"}, "")
	if err != nil {
		return Range{}, err
	}

	values := map[string]int{}
	for _, line := range res.Stdout {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			continue
		}
		values[strings.TrimSpace(key)] = n
	}

	lo, okLo := values["net.inet.ip.portrange.hifirst"]
	hi, okHi := values["net.inet.ip.portrange.hilast"]
	if !okLo || !okHi {
		return Range{}, errUnexpectedFormat("sysctl net.inet.ip.portrange", strings.Join(res.Stdout, "\n"))
	}
	return Range{Lo: lo, Hi: hi}, nil
}

func osReservedRangesForPlatform(_ context.Context) []Range {
	slog.Debug("no OS-reserved port range source on darwin")
	return nil
}
