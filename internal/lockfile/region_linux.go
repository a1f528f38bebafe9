//go:build linux

package lockfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryLockRegion attempts a non-blocking exclusive byte-range lock via Linux's
// open-file-description locks (F_OFD_SETLK). Unlike classic POSIX record
// locks, OFD locks are associated with the open file description rather than
// the (process, inode) pair, so two *os.File handles opened independently by
// the same process correctly conflict with each other, a property this
// package's cross-locker tests rely on and that two cooperating processes
// also depend on when they race on the shared lock file.
func tryLockRegion(f *os.File, offset, length int64) (bool, error) {
	lk := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: 0, // SEEK_SET
		Start:  offset,
		Len:    length,
	}
	if err := unix.FcntlFlock(f.Fd(), unix.F_OFD_SETLK, &lk); err != nil {
		if err == unix.EACCES || err == unix.EAGAIN {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func unlockRegion(f *os.File, offset, length int64) error {
	lk := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: 0,
		Start:  offset,
		Len:    length,
	}
	return unix.FcntlFlock(f.Fd(), unix.F_OFD_SETLK, &lk)
}
