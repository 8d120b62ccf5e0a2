//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// checkVolumeExists is a no-op on Unix; mount state is verified by
// validateMountPoint instead.
func checkVolumeExists(path string) error {
	return nil
}

// validateMountPoint detects "ghost" mount point directories: if the path
// resides on the same device as the root filesystem, the external drive it
// is supposed to live on is not mounted.
func validateMountPoint(path string) error {
	// Backups into the home directory or the system temp dir are
	// intentional and always allowed.
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" && strings.HasPrefix(path, homeDir) {
		return nil
	}
	if strings.HasPrefix(path, os.TempDir()) {
		return nil
	}

	rootInfo, err := os.Stat("/")
	if err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}
	rootStat, ok := rootInfo.Sys().(*unix.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for unix.Stat_t")
	}

	pathInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat destination path: %w", err)
	}
	pathStat, ok := pathInfo.Sys().(*unix.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for unix.Stat_t")
	}

	// Same device as "/" means we would write to the system disk while the
	// user expects an external drive.
	if pathStat.Dev == rootStat.Dev && path != "/" {
		return fmt.Errorf("path '%s' is on the root filesystem (system disk). "+
			"Ensure your external drive is mounted", path)
	}

	return nil
}

// freeBytes reports the bytes available to an unprivileged caller on the
// filesystem holding path.
func freeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
