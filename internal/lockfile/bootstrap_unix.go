//go:build !windows

package lockfile

import "os"

// commonDataDir is /var/tmp on every non-Windows platform.
func commonDataDir() (string, error) {
	return "/var/tmp", nil
}

// widenPermissions copies the owner's read/write/execute bits onto "other",
// so the lock file stays world-accessible for cross-process rendezvous.
func widenPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	ownerBits := (mode >> 6) & 0x7
	widened := mode | ownerBits
	if widened == mode {
		return nil
	}
	return os.Chmod(path, widened)
}
