// Package levels extends log/slog with a trace level, below the standard
// debug/info/warn/error levels slog already provides.
package levels

import "log/slog"

// LevelTrace sits below slog.LevelDebug for the engine's most granular
// "vet progression, bit-scan start points" events.
const LevelTrace = slog.Level(-8)
