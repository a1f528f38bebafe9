package probe

import "testing"

func TestRangeContains(t *testing.T) {
	r := Range{Lo: 1024, Hi: 2048}
	if !r.Contains(1024) || !r.Contains(2048) || !r.Contains(1500) {
		t.Fatalf("expected 1024, 1500, 2048 to be within %+v", r)
	}
	if r.Contains(1023) || r.Contains(2049) {
		t.Fatalf("expected bounds to be exclusive outside %+v", r)
	}
}

func TestEphemeralRangeIsMemoized(t *testing.T) {
	resetForTest()
	ctx := testContext(t)
	first := EphemeralRange(ctx)
	second := EphemeralRange(ctx)
	if first != second {
		t.Fatalf("EphemeralRange should be memoized: got %+v then %+v", first, second)
	}
}

func TestEphemeralRangeIsWithinPortBounds(t *testing.T) {
	resetForTest()
	ctx := testContext(t)
	r := EphemeralRange(ctx)
	// Whatever the platform reports (or falls back to), it must be a sane,
	// non-empty range inside [0, 65535].
	if r.Lo < 0 || r.Hi > 65535 || r.Lo > r.Hi {
		t.Fatalf("ephemeral range out of bounds: %+v", r)
	}
}
