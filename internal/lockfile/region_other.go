//go:build !linux && !windows

package lockfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryLockRegion attempts a non-blocking exclusive byte-range lock via
// fcntl(F_SETLK), the POSIX advisory-lock primitive. F_OFD_SETLK
// is Linux-only, so darwin and the BSDs fall back to classic record locks,
// which are associated with the (process, inode) pair rather than the open
// file description.
func tryLockRegion(f *os.File, offset, length int64) (bool, error) {
	lk := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: 0, // SEEK_SET
		Start:  offset,
		Len:    length,
	}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lk); err != nil {
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
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lk)
}
