package lockfile

import (
	"path/filepath"
	"testing"
)

func TestTryLockAndRelease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portLockFile")

	l := New(path)
	tok, err := l.TryLock(30000)
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if tok == nil {
		t.Fatalf("TryLock() returned nil token for a free port")
	}

	if err := tok.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	// Idempotent release.
	if err := tok.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
}

func TestTryLockSamePortSameLockerReturnsNil(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portLockFile")

	l := New(path)
	tok1, err := l.TryLock(40000)
	if err != nil || tok1 == nil {
		t.Fatalf("first TryLock() = %v, %v", tok1, err)
	}
	defer tok1.Release()

	tok2, err := l.TryLock(40000)
	if err != nil {
		t.Fatalf("second TryLock() error = %v", err)
	}
	if tok2 != nil {
		t.Fatalf("second TryLock() on same held port should return nil")
	}
}

func TestTryLockCrossLockerExclusion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portLockFile")

	l1 := New(path)
	l2 := New(path)

	tok1, err := l1.TryLock(50000)
	if err != nil || tok1 == nil {
		t.Fatalf("l1.TryLock() = %v, %v", tok1, err)
	}

	tok2, err := l2.TryLock(50000)
	if err != nil {
		t.Fatalf("l2.TryLock() error = %v", err)
	}
	if tok2 != nil {
		t.Fatalf("l2.TryLock() should fail while l1 holds the lock")
	}

	if err := tok1.Release(); err != nil {
		t.Fatalf("tok1.Release() error = %v", err)
	}

	tok3, err := l2.TryLock(50000)
	if err != nil {
		t.Fatalf("l2.TryLock() after release error = %v", err)
	}
	if tok3 == nil {
		t.Fatalf("l2.TryLock() should succeed after l1 releases")
	}
	tok3.Release()
}

func TestDifferentPortsLockIndependently(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portLockFile")

	l := New(path)
	tokA, err := l.TryLock(60000)
	if err != nil || tokA == nil {
		t.Fatalf("TryLock(60000) = %v, %v", tokA, err)
	}
	defer tokA.Release()

	tokB, err := l.TryLock(60001)
	if err != nil || tokB == nil {
		t.Fatalf("TryLock(60001) = %v, %v", tokB, err)
	}
	defer tokB.Release()
}
