package portguard

import (
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/devtoolkit/portguard/internal/probe"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portLockFile")
	return New(path)
}

func TestReserveSimpleReserveRelease(t *testing.T) {
	e := newTestEngine(t)

	h, err := e.Reserve(20000)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if h == nil {
		t.Fatalf("Reserve() returned nil handle for a free port")
	}
	if h.Port() != 20000 {
		t.Fatalf("Port() = %d, want 20000", h.Port())
	}

	got, err := e.GetHandle(20000)
	if err != nil {
		t.Fatalf("GetHandle() error = %v", err)
	}
	if got != h {
		t.Fatalf("GetHandle() returned a different handle")
	}

	if err := h.Close(CloseOptions{SkipReleaseCheck: true}); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err = e.GetHandle(20000)
	if err != nil {
		t.Fatalf("GetHandle() after close error = %v", err)
	}
	if got != nil {
		t.Fatalf("GetHandle() after close = %v, want nil", got)
	}
}

func TestReserveDuplicateReturnsNilUntilClosed(t *testing.T) {
	e := newTestEngine(t)

	h1, err := e.Reserve(20001)
	if err != nil || h1 == nil {
		t.Fatalf("first Reserve() = %v, %v", h1, err)
	}

	h2, err := e.Reserve(20001)
	if err != nil {
		t.Fatalf("second Reserve() error = %v", err)
	}
	if h2 != nil {
		t.Fatalf("second Reserve() on already-reserved port should return nil")
	}

	h1.Close(CloseOptions{SkipReleaseCheck: true})

	h3, err := e.Reserve(20001)
	if err != nil || h3 == nil {
		t.Fatalf("Reserve() after release = %v, %v", h3, err)
	}
	h3.Close(CloseOptions{SkipReleaseCheck: true})
}

func TestReserveRestrictedPortIsInvalidArgument(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Reserve(80)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Reserve(80) should fail, system ports are never reservable")
	}
}

func TestIsReservableStaysTrueForAlreadyReservedPort(t *testing.T) {
	e := newTestEngine(t)

	h, err := e.Reserve(20003)
	if err != nil || h == nil {
		t.Fatalf("Reserve() = %v, %v", h, err)
	}
	defer h.Close(CloseOptions{SkipReleaseCheck: true})

	if !e.IsReservable(20003) {
		t.Fatalf("IsReservable(20003) = false for an in-process reservation, want true (restricted and reserved are distinct)")
	}
	if e.IsReservable(80) {
		t.Fatalf("IsReservable(80) = true, want false: system ports are restricted")
	}
}

func TestReserveAnyExhaustion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portLockFile")
	e := New(path, WithProbes(probe.Range{Lo: 0, Hi: 65532}, nil))

	seen := make(map[int]bool)
	for i := 0; i < 3; i++ {
		h, err := e.ReserveAny()
		if err != nil {
			t.Fatalf("ReserveAny() #%d error = %v", i, err)
		}
		if seen[h.Port()] {
			t.Fatalf("ReserveAny() returned duplicate port %d", h.Port())
		}
		seen[h.Port()] = true
	}

	if _, err := e.ReserveAny(); err != ErrExhausted {
		t.Fatalf("fourth ReserveAny() error = %v, want ErrExhausted", err)
	}
}

func TestReserveManyReleasesOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portLockFile")
	e := New(path, WithProbes(probe.Range{Lo: 0, Hi: 65533}, nil))

	_, err := e.ReserveMany(5)
	if err != ErrExhausted {
		t.Fatalf("ReserveMany(5) error = %v, want ErrExhausted", err)
	}

	// Everything acquired before the failure must have been released.
	h, err := e.ReserveAny()
	if err != nil {
		t.Fatalf("ReserveAny() after failed ReserveMany() error = %v", err)
	}
	h.Close(CloseOptions{SkipReleaseCheck: true})
}

func TestOrphanCleanupReclaimsDroppedHandle(t *testing.T) {
	e := newTestEngine(t)

	func() {
		h, err := e.Reserve(20002)
		if err != nil || h == nil {
			t.Fatalf("Reserve() = %v, %v", h, err)
		}
		_ = h
		// h goes out of scope here without Close.
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		if _, err := e.Reserve(20002); err == nil {
			h, err := e.GetHandle(20002)
			if err == nil && h != nil {
				h.Close(CloseOptions{SkipReleaseCheck: true})
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("port 20002 was never reclaimed after the handle was dropped")
}

func TestSetReleaseCheckDisabledSuppressesDiagnostic(t *testing.T) {
	SetReleaseCheckDisabled(true)
	defer SetReleaseCheckDisabled(false)

	e := newTestEngine(t)
	h, err := e.Reserve(20004)
	if err != nil || h == nil {
		t.Fatalf("Reserve() = %v, %v", h, err)
	}

	// With the property set, Close must not run the diagnostic even though
	// SkipReleaseCheck is left false; this is the per-call recheck the
	// property exists for.
	if err := h.Close(CloseOptions{}); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestGetHandleOutOfRangeIsInvalidArgument(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.GetHandle(70000); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("GetHandle(70000) should fail, out of [0,65535]")
	}
}
