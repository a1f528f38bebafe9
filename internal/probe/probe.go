// Package probe implements the platform probes that discover the ephemeral
// (dynamic) port range and any OS-level reserved port ranges. Both queries
// are pure, memoized once per process.
package probe

import (
	"context"
	"log/slog"
	"sync"
)

// Range is an inclusive [Lo, Hi] port range.
type Range struct {
	Lo, Hi int
}

// Contains reports whether port lies within the range.
func (r Range) Contains(port int) bool {
	return port >= r.Lo && port <= r.Hi
}

// fallbackEphemeral is the IANA-assigned dynamic/private port range, used when
// no platform-specific probe succeeds.
var fallbackEphemeral = Range{Lo: 49152, Hi: 65535}

var (
	ephemeralOnce  sync.Once
	ephemeralValue Range

	reservedOnce  sync.Once
	reservedValue []Range
)

// EphemeralRange returns the OS's dynamic/automatic port allocation range,
// computed once per process and memoized thereafter.
func EphemeralRange(ctx context.Context) Range {
	ephemeralOnce.Do(func() {
		r, err := ephemeralRangeForPlatform(ctx)
		if err != nil {
			slog.Warn("falling back to IANA ephemeral range", "error", err, "range", fallbackEphemeral)
			r = fallbackEphemeral
		}
		ephemeralValue = r
	})
	return ephemeralValue
}

// OSReservedRanges returns the OS's explicit port reservations, computed once
// per process and memoized thereafter. An empty result means either the
// platform has none or the probe could not run; on linux and windows a probe
// that could not run has already logged a warning.
func OSReservedRanges(ctx context.Context) []Range {
	reservedOnce.Do(func() {
		reservedValue = osReservedRangesForPlatform(ctx)
	})
	return reservedValue
}

// resetForTest clears the memoization so tests can exercise each platform path
// independently. Only called from _test.go files in this package.
func resetForTest() {
	ephemeralOnce = sync.Once{}
	reservedOnce = sync.Once{}
}
