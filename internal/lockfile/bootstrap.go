package lockfile

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var errEmptyFolderPath = errors.New("lockfile: empty CommonApplicationData path")

// Bootstrap creates or locates the shared lock file at
// <common-data-dir>/<subpath>, creating intermediate directories as needed and
// widening permissions to "other"/Authenticated Users on each directory
// segment, whether found or newly created, and on the file itself. It returns
// the final file path.
func Bootstrap(subpath string) (string, error) {
	base, err := commonDataDir()
	if err != nil {
		return "", err
	}

	full := filepath.Join(base, subpath)
	dir := filepath.Dir(full)

	segments := splitSegments(dir, base)
	cur := base
	for _, seg := range segments {
		cur = filepath.Join(cur, seg)
		existed := dirExists(cur)
		if !existed {
			if err := os.Mkdir(cur, 0777); err != nil && !os.IsExist(err) {
				return "", err
			}
		}
		if err := widenPermissions(cur); err != nil {
			slog.Warn("failed to widen lock-file directory permissions", "path", cur, "error", err)
		}
	}

	if !fileExists(full) {
		f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE, 0666)
		if err != nil {
			return "", err
		}
		f.Close()
	}
	if err := widenPermissions(full); err != nil {
		slog.Warn("failed to widen lock-file permissions", "path", full, "error", err)
	}

	slog.Info("lock file in use", "path", full)
	return full, nil
}

func splitSegments(dir, base string) []string {
	rel, err := filepath.Rel(base, dir)
	if err != nil || rel == "." {
		return nil
	}
	return strings.Split(filepath.ToSlash(rel), "/")
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
