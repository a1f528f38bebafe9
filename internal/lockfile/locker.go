// Package lockfile implements the cross-process byte-range locker and the
// shared lock-file bootstrap it rendezvouses through.
package lockfile

import (
	"fmt"
	"os"
	"sync"
)

// Token represents one held advisory byte-range lock. Release is idempotent.
type Token struct {
	locker *Locker
	port   int
	once   sync.Once
}

// Release drops the byte-range lock and, if no locks remain outstanding,
// closes the shared file.
func (t *Token) Release() error {
	var err error
	t.once.Do(func() {
		err = t.locker.release(t.port)
	})
	return err
}

// Locker serializes access to a single shared lock file and the byte-range
// locks taken within it. All bookkeeping, including the non-blocking lock
// syscall itself, happens under one mutex.
type Locker struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	held     map[int]struct{}
	outstand int
}

// New returns a Locker bound to path. The file is opened lazily on first use.
func New(path string) *Locker {
	return &Locker{path: path, held: make(map[int]struct{})}
}

// TryLock attempts a non-blocking exclusive byte-range lock at (offset=port,
// length=1). It returns (nil, nil) if the lock is held by another process or
// file, and a non-nil error only for genuine I/O failure.
func (l *Locker) TryLock(port int) (*Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, already := l.held[port]; already {
		return nil, nil
	}

	if l.file == nil {
		f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0666)
		if err != nil {
			return nil, fmt.Errorf("lockfile: open %s: %w", l.path, err)
		}
		l.file = f
	}

	ok, err := tryLockRegion(l.file, int64(port), 1)
	if err != nil {
		return nil, fmt.Errorf("lockfile: lock port %d: %w", port, err)
	}
	if !ok {
		return nil, nil
	}

	l.held[port] = struct{}{}
	l.outstand++
	return &Token{locker: l, port: port}, nil
}

func (l *Locker) release(port int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[port]; !ok {
		return nil
	}

	var err error
	if l.file != nil {
		err = unlockRegion(l.file, int64(port), 1)
	}
	delete(l.held, port)
	l.outstand--

	if l.outstand <= 0 && l.file != nil {
		closeErr := l.file.Close()
		l.file = nil
		l.outstand = 0
		if err == nil {
			err = closeErr
		}
	}
	return err
}

// Path returns the shared lock file's path.
func (l *Locker) Path() string { return l.path }
