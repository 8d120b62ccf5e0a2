// Package preflight validates the environment before a backup or restore
// begins. The checks are designed to catch the common failure modes of
// removable and network destinations early, with friendlier errors than
// letting os.MkdirAll fail mid-run.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/plasmaworks/plasma-backup/pkg/util"
)

// writeProbeName is the temporary file used by the writability check.
const writeProbeName = ".plasma-backup-writetest.tmp"

// CheckDestinationAccessible verifies the backup destination is usable.
//
// The checks include:
//  1. On Windows, that the drive or network share (e.g. "Z:", "\\nas\share")
//     exists at all.
//  2. If the destination exists, that it is a directory.
//  3. If it does not exist, that its parent is accessible so it can be
//     created.
//  4. On Unix, that the destination is not a "ghost" directory: a leftover
//     mount point directory sitting on the root filesystem because the
//     external drive is not actually mounted.
func CheckDestinationAccessible(destPath string) error {
	if err := checkVolumeExists(destPath); err != nil {
		return err
	}

	info, err := os.Stat(destPath)
	if os.IsNotExist(err) {
		// Destination doesn't exist yet. Walk up to the deepest existing
		// ancestor and validate that instead: if /mnt/backup/plasma is
		// missing, the interesting question is whether /mnt/backup is a
		// real mount.
		ancestor := destPath
		for {
			parent := filepath.Dir(ancestor)
			if parent == ancestor {
				break
			}
			if _, err := os.Stat(parent); err == nil {
				ancestor = parent
				break
			}
			ancestor = parent
		}

		if _, err := os.Stat(ancestor); err != nil {
			return fmt.Errorf("cannot access ancestor directory %s: %w", ancestor, err)
		}
		if err := validateMountPoint(ancestor); err != nil {
			return err
		}

		parentDir := filepath.Dir(destPath)
		if _, err := os.Stat(parentDir); os.IsNotExist(err) {
			return fmt.Errorf("destination path and its parent directory do not exist: %s", parentDir)
		} else if err != nil {
			return fmt.Errorf("cannot access parent directory %s: %w", parentDir, err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access destination path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("destination path exists but is not a directory: %s", destPath)
	}

	return validateMountPoint(destPath)
}

// CheckSourceAccessible validates that the source path exists and is a
// directory.
func CheckSourceAccessible(srcPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	return nil
}

// CheckDestinationWritable ensures the destination directory can be created
// and is writable, by creating and deleting a probe file.
func CheckDestinationWritable(destPath string) error {
	if err := os.MkdirAll(destPath, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create destination directory %s: %w", destPath, err)
	}

	probe := filepath.Join(destPath, writeProbeName)
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("destination directory %s is not writable: %w", destPath, err)
	}
	f.Close()
	_ = os.Remove(probe)
	return nil
}

// CheckFreeSpace verifies the filesystem holding destPath has at least
// requiredBytes available. A zero requirement skips the comparison but
// still probes the filesystem.
func CheckFreeSpace(destPath string, requiredBytes uint64) error {
	free, err := freeBytes(destPath)
	if err != nil {
		return fmt.Errorf("failed to determine free space at %s: %w", destPath, err)
	}
	if requiredBytes > 0 && free < requiredBytes {
		return fmt.Errorf("insufficient free space at %s: need %s, have %s",
			destPath, util.ByteCountIEC(int64(requiredBytes)), util.ByteCountIEC(int64(free)))
	}
	return nil
}
