//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// checkVolumeExists verifies that the drive or network share root for a
// given path exists. For "Z:\backup" it checks "Z:\". This is the Windows
// analogue of the Unix ghost-directory check.
func checkVolumeExists(path string) error {
	volume := filepath.VolumeName(path)
	if volume == "" {
		return nil // Relative path; nothing to check.
	}

	checkVol := volume
	if !strings.HasSuffix(checkVol, string(filepath.Separator)) {
		checkVol += string(filepath.Separator)
	}
	checkVol = filepath.Clean(checkVol)

	if _, err := os.Stat(checkVol); os.IsNotExist(err) {
		return fmt.Errorf("volume root does not exist: %s. Ensure the drive is connected", checkVol)
	}
	return nil
}

// validateMountPoint is a no-op on Windows; checkVolumeExists already
// confirmed the volume is available.
func validateMountPoint(path string) error {
	return nil
}

// freeBytes reports the bytes available to the caller on the volume
// holding path.
func freeBytes(path string) (uint64, error) {
	var free, total, totalFree uint64
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return free, nil
}
