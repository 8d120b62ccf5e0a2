package treecopy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeFile creates a file with parents as needed.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func requireSymlinks(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}
}

func TestCopyTreeRegularFilesAndDirs(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := filepath.Join(t.TempDir(), "dst")

	writeFile(t, filepath.Join(srcDir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(srcDir, "sub", "b.txt"), "beta")
	writeFile(t, filepath.Join(srcDir, "sub", "deep", "c.txt"), "gamma")
	writeFile(t, filepath.Join(srcDir, "empty.txt"), "")

	summary, err := CopyTree(context.Background(), srcDir, dstDir, Options{IgnoreErrors: true})
	if err != nil {
		t.Fatalf("CopyTree failed: %v", err)
	}

	if summary.Copied != 4 {
		t.Errorf("expected 4 copied files, got %d", summary.Copied)
	}
	if summary.Skipped() != 0 {
		t.Errorf("expected no skips, got %d", summary.Skipped())
	}
	if summary.BytesCopied != int64(len("alpha")+len("beta")+len("gamma")) {
		t.Errorf("unexpected byte count: %d", summary.BytesCopied)
	}

	for rel, want := range map[string]string{
		"a.txt":          "alpha",
		"sub/b.txt":      "beta",
		"sub/deep/c.txt": "gamma",
		"empty.txt":      "",
	} {
		if got := readFile(t, filepath.Join(dstDir, rel)); got != want {
			t.Errorf("content mismatch for %s: expected %q, got %q", rel, want, got)
		}
	}
}

func TestCopyTreeSymlinkToFileCopiesContent(t *testing.T) {
	requireSymlinks(t)
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	writeFile(t, filepath.Join(srcDir, "target.txt"), "payload")
	if err := os.Symlink(filepath.Join(srcDir, "target.txt"), filepath.Join(srcDir, "link")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	summary, err := CopyTree(context.Background(), srcDir, dstDir, Options{IgnoreErrors: true})
	if err != nil {
		t.Fatalf("CopyTree failed: %v", err)
	}

	if summary.Copied != 2 {
		t.Errorf("expected 2 copied entries (file and link content), got %d", summary.Copied)
	}

	// The link must appear at the destination as a regular file, not a link.
	linkDst := filepath.Join(dstDir, "link")
	info, err := os.Lstat(linkDst)
	if err != nil {
		t.Fatalf("failed to lstat destination entry: %v", err)
	}
	if !info.Mode().IsRegular() {
		t.Errorf("expected destination entry to be a regular file, got mode %v", info.Mode())
	}
	if got := readFile(t, linkDst); got != "payload" {
		t.Errorf("expected link content %q, got %q", "payload", got)
	}
}

func TestCopyTreeDirectorySymlinkIsSkipped(t *testing.T) {
	requireSymlinks(t)
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	writeFile(t, filepath.Join(srcDir, "real", "file.txt"), "data")
	// Link back to an ancestor to create a cycle; the walk must still terminate.
	if err := os.Symlink(srcDir, filepath.Join(srcDir, "real", "loop")); err != nil {
		t.Fatalf("failed to create cycle symlink: %v", err)
	}
	if err := os.Symlink(filepath.Join(srcDir, "real"), filepath.Join(srcDir, "dirlink")); err != nil {
		t.Fatalf("failed to create dir symlink: %v", err)
	}

	var outcomes []Outcome
	summary, err := CopyTree(context.Background(), srcDir, dstDir, Options{
		IgnoreErrors: true,
		Report:       func(o Outcome) { outcomes = append(outcomes, o) },
	})
	if err != nil {
		t.Fatalf("CopyTree failed: %v", err)
	}

	if summary.SkippedDirectorySymlinks != 2 {
		t.Errorf("expected 2 skipped directory symlinks, got %d", summary.SkippedDirectorySymlinks)
	}
	if _, err := os.Lstat(filepath.Join(dstDir, "dirlink")); !os.IsNotExist(err) {
		t.Errorf("expected no destination entry for dirlink, lstat err: %v", err)
	}

	skips := 0
	for _, o := range outcomes {
		if o.Kind == SkippedDirectorySymlink {
			skips++
		}
	}
	if skips != 2 {
		t.Errorf("expected 2 SkippedDirectorySymlink outcomes, got %d", skips)
	}
}

func TestCopyTreeBrokenSymlinkIsSkipped(t *testing.T) {
	requireSymlinks(t)
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	if err := os.Symlink(filepath.Join(srcDir, "missing"), filepath.Join(srcDir, "broken")); err != nil {
		t.Fatalf("failed to create broken symlink: %v", err)
	}

	summary, err := CopyTree(context.Background(), srcDir, dstDir, Options{IgnoreErrors: true})
	if err != nil {
		t.Fatalf("CopyTree must not fail on a broken symlink in best-effort mode: %v", err)
	}

	if summary.SkippedBrokenSymlinks != 1 {
		t.Errorf("expected 1 skipped broken symlink, got %d", summary.SkippedBrokenSymlinks)
	}
	if _, err := os.Lstat(filepath.Join(dstDir, "broken")); !os.IsNotExist(err) {
		t.Errorf("expected no destination entry for broken link, lstat err: %v", err)
	}
}

func TestCopyTreePermissionErrorsDoNotAbort(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced the same way on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("running as root; permission errors cannot be provoked")
	}

	srcDir := t.TempDir()
	dstDir := t.TempDir()

	writeFile(t, filepath.Join(srcDir, "ok1.txt"), "one")
	writeFile(t, filepath.Join(srcDir, "locked.txt"), "secret")
	writeFile(t, filepath.Join(srcDir, "ok2.txt"), "two")

	if err := os.Chmod(filepath.Join(srcDir, "locked.txt"), 0000); err != nil {
		t.Fatalf("failed to chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(filepath.Join(srcDir, "locked.txt"), 0644) })

	summary, err := CopyTree(context.Background(), srcDir, dstDir, Options{IgnoreErrors: true})
	if err != nil {
		t.Fatalf("best-effort CopyTree must not fail: %v", err)
	}

	if summary.Copied != 2 {
		t.Errorf("expected the 2 readable files to be copied, got %d", summary.Copied)
	}
	if summary.SkippedPermission != 1 {
		t.Errorf("expected 1 permission skip, got %d", summary.SkippedPermission)
	}
	if got := readFile(t, filepath.Join(dstDir, "ok1.txt")); got != "one" {
		t.Errorf("expected ok1.txt content %q, got %q", "one", got)
	}
	if got := readFile(t, filepath.Join(dstDir, "ok2.txt")); got != "two" {
		t.Errorf("expected ok2.txt content %q, got %q", "two", got)
	}
}

func TestCopyTreeFailFastPropagates(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced the same way on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("running as root; permission errors cannot be provoked")
	}

	srcDir := t.TempDir()
	dstDir := t.TempDir()

	writeFile(t, filepath.Join(srcDir, "locked.txt"), "secret")
	if err := os.Chmod(filepath.Join(srcDir, "locked.txt"), 0000); err != nil {
		t.Fatalf("failed to chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(filepath.Join(srcDir, "locked.txt"), 0644) })

	_, err := CopyTree(context.Background(), srcDir, dstDir, Options{IgnoreErrors: false})
	if err == nil {
		t.Fatal("expected fail-fast mode to return an error, got nil")
	}

	var copyErr *CopyError
	if !errors.As(err, &copyErr) {
		t.Fatalf("expected a *CopyError, got %T: %v", err, err)
	}
	if copyErr.Kind != FailureFileCopy {
		t.Errorf("expected failure kind %v, got %v", FailureFileCopy, copyErr.Kind)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("expected the cause to unwrap to a permission error, got %v", err)
	}
}

func TestCopyTreeIdempotentAndMergeOnly(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	writeFile(t, filepath.Join(srcDir, "a.txt"), "v1")
	writeFile(t, filepath.Join(srcDir, "sub", "b.txt"), "keep")

	if _, err := CopyTree(context.Background(), srcDir, dstDir, Options{IgnoreErrors: true}); err != nil {
		t.Fatalf("first CopyTree failed: %v", err)
	}

	// Mutate the source and add an unrelated destination file; the second
	// run must overwrite the changed file and leave the unrelated one alone.
	writeFile(t, filepath.Join(srcDir, "a.txt"), "v2")
	writeFile(t, filepath.Join(dstDir, "stale.txt"), "leftover")
	if err := os.Remove(filepath.Join(srcDir, "sub", "b.txt")); err != nil {
		t.Fatalf("failed to remove source file: %v", err)
	}

	summary, err := CopyTree(context.Background(), srcDir, dstDir, Options{IgnoreErrors: true})
	if err != nil {
		t.Fatalf("second CopyTree failed: %v", err)
	}
	if summary.Copied != 1 {
		t.Errorf("expected 1 copied file on re-run, got %d", summary.Copied)
	}

	if got := readFile(t, filepath.Join(dstDir, "a.txt")); got != "v2" {
		t.Errorf("expected overwritten content %q, got %q", "v2", got)
	}
	// Merge semantics: files present at the destination but gone from the
	// source are never deleted.
	if got := readFile(t, filepath.Join(dstDir, "sub", "b.txt")); got != "keep" {
		t.Errorf("expected removed source file to survive at destination, got %q", got)
	}
	if got := readFile(t, filepath.Join(dstDir, "stale.txt")); got != "leftover" {
		t.Errorf("expected unrelated destination file to survive, got %q", got)
	}
}

func TestCopyTreeEndToEndScenario(t *testing.T) {
	requireSymlinks(t)
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	writeFile(t, filepath.Join(srcDir, "a.txt"), "hi")
	writeFile(t, filepath.Join(srcDir, "sub", "b.txt"), "yo")
	if err := os.Symlink(filepath.Join(srcDir, "a.txt"), filepath.Join(srcDir, "link_to_a")); err != nil {
		t.Fatalf("failed to create link_to_a: %v", err)
	}
	if err := os.Symlink(filepath.Join(srcDir, "sub"), filepath.Join(srcDir, "link_to_sub")); err != nil {
		t.Fatalf("failed to create link_to_sub: %v", err)
	}
	if err := os.Symlink(filepath.Join(srcDir, "missing"), filepath.Join(srcDir, "broken")); err != nil {
		t.Fatalf("failed to create broken link: %v", err)
	}

	summary, err := CopyTree(context.Background(), srcDir, dstDir, Options{IgnoreErrors: true})
	if err != nil {
		t.Fatalf("CopyTree failed: %v", err)
	}

	if summary.Copied != 3 {
		t.Errorf("expected 3 copied entries, got %d", summary.Copied)
	}
	if summary.SkippedDirectorySymlinks != 1 {
		t.Errorf("expected 1 skipped directory symlink, got %d", summary.SkippedDirectorySymlinks)
	}
	if summary.SkippedBrokenSymlinks != 1 {
		t.Errorf("expected 1 skipped broken symlink, got %d", summary.SkippedBrokenSymlinks)
	}

	for rel, want := range map[string]string{
		"a.txt":     "hi",
		"sub/b.txt": "yo",
		"link_to_a": "hi",
	} {
		if got := readFile(t, filepath.Join(dstDir, rel)); got != want {
			t.Errorf("content mismatch for %s: expected %q, got %q", rel, want, got)
		}
	}
	for _, rel := range []string{"link_to_sub", "broken"} {
		if _, err := os.Lstat(filepath.Join(dstDir, rel)); !os.IsNotExist(err) {
			t.Errorf("expected no destination entry for %s, lstat err: %v", rel, err)
		}
	}
}

func TestCopyTreeCancellation(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeFile(t, filepath.Join(srcDir, name), "data")
	}

	ctx, cancel := context.WithCancel(context.Background())
	var once bool
	_, err := CopyTree(ctx, srcDir, dstDir, Options{
		IgnoreErrors: true,
		Report: func(o Outcome) {
			// Cancel after the first outcome; the walk must stop cleanly.
			if !once {
				once = true
				cancel()
			}
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCopyFile(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	src := filepath.Join(srcDir, ".bashrc")
	writeFile(t, src, "export PATH")

	dst := filepath.Join(dstDir, "configs", ".bashrc")
	summary, err := CopyFile(context.Background(), src, dst, Options{IgnoreErrors: true})
	if err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	if summary.Copied != 1 {
		t.Errorf("expected 1 copied file, got %d", summary.Copied)
	}
	if got := readFile(t, dst); got != "export PATH" {
		t.Errorf("expected content %q, got %q", "export PATH", got)
	}
}
