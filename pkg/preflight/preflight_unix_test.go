//go:build !windows

package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestCheckDestinationAccessible_Unix(t *testing.T) {
	t.Run("Error - No Permission on Deepest Existing Ancestor", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("running as root; permission bits are not enforced")
		}

		grandparent := t.TempDir()
		unreadableAncestor := filepath.Join(grandparent, "unreadable_ancestor")

		if err := os.Mkdir(unreadableAncestor, 0000); err != nil {
			t.Fatalf("failed to create unreadable ancestor dir: %v", err)
		}
		t.Cleanup(func() { os.Chmod(unreadableAncestor, 0755) })

		destDir := filepath.Join(unreadableAncestor, "non_existent_child", "dest")

		err := CheckDestinationAccessible(destDir)
		if err == nil {
			t.Fatal("expected an error, but got nil")
		}
		if !strings.Contains(err.Error(), "cannot access") &&
			!strings.Contains(err.Error(), "root filesystem") {
			t.Errorf("expected an access or mount error, but got: %v", err)
		}
	})

	t.Run("Ghost Directory Check", func(t *testing.T) {
		// An existing directory on the same device as "/" that is neither
		// under home nor under the temp dir must be flagged as a ghost.
		rootStat, err := os.Stat("/")
		if err != nil {
			t.Fatalf("failed to stat root: %v", err)
		}
		usrStat, err := os.Stat("/usr")
		if err != nil {
			t.Skipf("no /usr to probe: %v", err)
		}
		rootSys, ok1 := rootStat.Sys().(*unix.Stat_t)
		usrSys, ok2 := usrStat.Sys().(*unix.Stat_t)
		if !ok1 || !ok2 || rootSys.Dev != usrSys.Dev {
			t.Skip("/usr is not on the root filesystem; ghost detection does not apply")
		}

		err = validateMountPoint("/usr")
		if err == nil {
			t.Fatal("expected an error for a directory on the root filesystem, but got nil")
		}
		if !strings.Contains(err.Error(), "is on the root filesystem (system disk)") {
			t.Errorf("expected a ghost directory error, but got: %v", err)
		}
	})

	t.Run("Ghost Directory Check Skipped for Temp Dir", func(t *testing.T) {
		destDir := filepath.Join(t.TempDir(), "backup")
		if err := os.MkdirAll(destDir, 0755); err != nil {
			t.Fatalf("failed to create test directory: %v", err)
		}
		if err := CheckDestinationAccessible(destDir); err != nil {
			t.Errorf("expected no error for a temp dir destination, but got: %v", err)
		}
	})

	t.Run("Ghost Directory Check Skipped for Home Dir", func(t *testing.T) {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			t.Fatalf("could not get user home directory: %v", err)
		}

		destDir := filepath.Join(homeDir, "plasma-backup-test-dest")
		if err := os.MkdirAll(destDir, 0755); err != nil {
			t.Logf("could not create test dir in home, skipping: %v", err)
			t.SkipNow()
		}
		t.Cleanup(func() { os.RemoveAll(destDir) })

		if err := CheckDestinationAccessible(destDir); err != nil {
			t.Errorf("expected no error for a path in the home directory, but got: %v", err)
		}
	})
}

func TestCheckDestinationWritable_Unix(t *testing.T) {
	t.Run("Error - Destination not writable", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("running as root; permission bits are not enforced")
		}

		unwritableDir := filepath.Join(t.TempDir(), "unwritable")
		if err := os.Mkdir(unwritableDir, 0555); err != nil {
			t.Fatalf("failed to create unwritable dir: %v", err)
		}
		t.Cleanup(func() { os.Chmod(unwritableDir, 0755) })

		err := CheckDestinationWritable(unwritableDir)
		if err == nil {
			t.Fatal("expected an error for unwritable destination, but got nil")
		}
		if !strings.Contains(err.Error(), "not writable") {
			t.Errorf("expected error about 'not writable', but got: %v", err)
		}
	})
}
