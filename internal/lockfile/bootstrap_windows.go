//go:build windows

package lockfile

import (
	"context"
	"strings"

	"github.com/devtoolkit/portguard/internal/executor"
)

// commonDataDir resolves the CommonApplicationData special folder, creating it
// if necessary, via PowerShell.
func commonDataDir() (string, error) {
	res, err := executor.Run(context.Background(), "powershell.exe",
		[]string{"-NoProfile", "-NonInteractive", "-Command",
			"[environment]::getfolderpath('CommonApplicationData','create')"},
		"")
	if err != nil {
		return "", err
	}
	if len(res.Stdout) == 0 {
		return "", errEmptyFolderPath
	}
	return strings.TrimSpace(res.Stdout[0]), nil
}

// widenPermissions adds an ACE granting modify rights to "Authenticated
// Users", via icacls.
func widenPermissions(path string) error {
	_, err := executor.Run(context.Background(), "icacls.exe",
		[]string{path, "/grant", "*S-1-5-11:(OI)(CI)M"}, "")
	return err
}
