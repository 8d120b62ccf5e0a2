package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckDestinationAccessible(t *testing.T) {
	t.Run("Happy Path - Destination Exists", func(t *testing.T) {
		destDir := t.TempDir()
		if err := CheckDestinationAccessible(destDir); err != nil {
			t.Errorf("expected no error for existing directory, but got: %v", err)
		}
	})

	t.Run("Happy Path - Destination Does Not Exist, Parent Exists", func(t *testing.T) {
		parentDir := t.TempDir()
		destDir := filepath.Join(parentDir, "new_dir")

		if err := CheckDestinationAccessible(destDir); err != nil {
			t.Errorf("expected no error when parent exists, but got: %v", err)
		}
	})

	t.Run("Error - Destination Is a File", func(t *testing.T) {
		destFile := filepath.Join(t.TempDir(), "dest.txt")
		if err := os.WriteFile(destFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		err := CheckDestinationAccessible(destFile)
		if err == nil {
			t.Fatal("expected an error when destination is a file, but got nil")
		}
		if !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected error to be about 'not a directory', but got: %v", err)
		}
	})
}

func TestCheckSourceAccessible(t *testing.T) {
	t.Run("Happy Path - Source is a directory", func(t *testing.T) {
		srcDir := t.TempDir()
		if err := CheckSourceAccessible(srcDir); err != nil {
			t.Errorf("expected no error for existing directory, but got: %v", err)
		}
	})

	t.Run("Error - Source does not exist", func(t *testing.T) {
		nonExistentPath := filepath.Join(t.TempDir(), "nonexistent")
		err := CheckSourceAccessible(nonExistentPath)
		if err == nil {
			t.Fatal("expected an error for non-existent source, but got nil")
		}
		if !strings.Contains(err.Error(), "does not exist") {
			t.Errorf("expected error about non-existent source, but got: %v", err)
		}
	})

	t.Run("Error - Source is a file", func(t *testing.T) {
		srcFile := filepath.Join(t.TempDir(), "source.txt")
		if err := os.WriteFile(srcFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		err := CheckSourceAccessible(srcFile)
		if err == nil {
			t.Fatal("expected an error when source is a file, but got nil")
		}
		if !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected error about source not being a directory, but got: %v", err)
		}
	})
}

func TestCheckDestinationWritable(t *testing.T) {
	t.Run("Happy Path - Directory is writable", func(t *testing.T) {
		destDir := t.TempDir()
		if err := CheckDestinationWritable(destDir); err != nil {
			t.Errorf("expected no error, but got: %v", err)
		}
	})

	t.Run("Happy Path - Directory is created", func(t *testing.T) {
		destDir := filepath.Join(t.TempDir(), "nested", "dest")
		if err := CheckDestinationWritable(destDir); err != nil {
			t.Errorf("expected no error, but got: %v", err)
		}
		if info, err := os.Stat(destDir); err != nil || !info.IsDir() {
			t.Errorf("expected destination to be created as a directory, got info=%v err=%v", info, err)
		}
	})

	t.Run("Probe file is cleaned up", func(t *testing.T) {
		destDir := t.TempDir()
		if err := CheckDestinationWritable(destDir); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		entries, err := os.ReadDir(destDir)
		if err != nil {
			t.Fatalf("failed to read destination: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected probe file to be removed, found %v", entries)
		}
	})
}

func TestCheckFreeSpace(t *testing.T) {
	destDir := t.TempDir()

	if err := CheckFreeSpace(destDir, 0); err != nil {
		t.Errorf("expected probe with zero requirement to pass, got: %v", err)
	}

	// No filesystem has this much space.
	err := CheckFreeSpace(destDir, 1<<62)
	if err == nil {
		t.Fatal("expected an error for an absurd space requirement, but got nil")
	}
	if !strings.Contains(err.Error(), "insufficient free space") {
		t.Errorf("expected error about insufficient free space, but got: %v", err)
	}
}
