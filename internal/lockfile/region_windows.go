//go:build windows

package lockfile

import (
	"os"

	"golang.org/x/sys/windows"
)

// tryLockRegion attempts a non-blocking exclusive byte-range lock via
// LockFileEx, the Windows advisory-lock primitive.
func tryLockRegion(f *os.File, offset, length int64) (bool, error) {
	ol := new(windows.Overlapped)
	ol.Offset = uint32(offset)
	ol.OffsetHigh = uint32(offset >> 32)

	err := windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,
		uint32(length),
		0,
		ol,
	)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION || err == windows.ERROR_IO_PENDING {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func unlockRegion(f *os.File, offset, length int64) error {
	ol := new(windows.Overlapped)
	ol.Offset = uint32(offset)
	ol.OffsetHigh = uint32(offset >> 32)

	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, uint32(length), 0, ol)
}
