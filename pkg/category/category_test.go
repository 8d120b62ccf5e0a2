package category

import (
	"os"
	"path/filepath"
	"testing"
)

func mkDirs(t *testing.T, home string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		if err := os.MkdirAll(filepath.Join(home, rel), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", rel, err)
		}
	}
}

func mkFiles(t *testing.T, home string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		path := filepath.Join(home, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create parent of %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
}

func TestParse(t *testing.T) {
	c, err := Parse("KDE")
	if err != nil {
		t.Fatalf("expected KDE to parse, got: %v", err)
	}
	if c != KDESettings {
		t.Errorf("expected %q, got %q", KDESettings, c)
	}

	if _, err := Parse("bogus"); err == nil {
		t.Error("expected an error for an unknown category")
	}
}

func TestResolveKDEPatterns(t *testing.T) {
	home := t.TempDir()
	mkFiles(t, home,
		".config/plasmarc",
		".config/plasmashellrc",
		".config/kdeglobals",
		".config/unrelatedrc",
	)
	mkDirs(t, home, ".local/share/konsole")

	roots := KDESettings.Resolve(home)

	got := make(map[string]bool, len(roots))
	for _, r := range roots {
		got[r.RelDstPath] = true
	}
	for _, want := range []string{
		filepath.Join(".config", "plasmarc"),
		filepath.Join(".config", "plasmashellrc"),
		filepath.Join(".config", "kdeglobals"),
		filepath.Join(".local", "share", "konsole"),
	} {
		if !got[want] {
			t.Errorf("expected %s to be resolved, got %v", want, roots)
		}
	}
	if got[filepath.Join(".config", "unrelatedrc")] {
		t.Error("expected unrelatedrc to be excluded")
	}
}

func TestResolveAppConfigsMixesFilesAndDirs(t *testing.T) {
	home := t.TempDir()
	mkFiles(t, home, ".bashrc", ".ssh/config")
	mkDirs(t, home, ".config/Code")

	roots := AppConfigs.Resolve(home)

	if len(roots) != 3 {
		t.Fatalf("expected 3 roots, got %d: %v", len(roots), roots)
	}
	for _, r := range roots {
		wantDir := r.RelDstPath == filepath.Join(".config", "Code")
		if r.IsDir != wantDir {
			t.Errorf("unexpected IsDir=%v for %s", r.IsDir, r.RelDstPath)
		}
	}
}

func TestResolveProfileTree(t *testing.T) {
	home := t.TempDir()

	if roots := Firefox.Resolve(home); len(roots) != 0 {
		t.Errorf("expected no roots without a profile, got %v", roots)
	}

	mkDirs(t, home, ".mozilla/firefox/abc123.default")
	roots := Firefox.Resolve(home)
	if len(roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(roots))
	}
	if roots[0].AbsSrcPath != filepath.Join(home, ".mozilla", "firefox") {
		t.Errorf("unexpected source %s", roots[0].AbsSrcPath)
	}
	if roots[0].RelDstPath != "." {
		t.Errorf("expected destination %q, got %q", ".", roots[0].RelDstPath)
	}
}

func TestResolveUserDataSkipsMissingDirs(t *testing.T) {
	home := t.TempDir()
	mkDirs(t, home, "Documents", "Pictures")

	roots := UserData.Resolve(home)

	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d: %v", len(roots), roots)
	}
	if roots[0].RelDstPath != "Documents" || roots[1].RelDstPath != "Pictures" {
		t.Errorf("unexpected roots: %v", roots)
	}
}

func TestRestorePlanMergeCategories(t *testing.T) {
	home := t.TempDir()
	backupDir := t.TempDir()

	tasks, err := KDESettings.RestorePlan(home, backupDir)
	if err != nil {
		t.Fatalf("expected a restore plan, got: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].AbsDstPath != home {
		t.Errorf("expected destination %s, got %s", home, tasks[0].AbsDstPath)
	}
	if tasks[0].Replace {
		t.Error("expected kde settings to merge, not replace")
	}
}

func TestRestorePlanReplacesProfiles(t *testing.T) {
	home := t.TempDir()
	backupDir := t.TempDir()

	tasks, err := Thunderbird.RestorePlan(home, backupDir)
	if err != nil {
		t.Fatalf("expected a restore plan, got: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if !tasks[0].Replace {
		t.Error("expected thunderbird profiles to be replaced wholesale")
	}
	if want := filepath.Join(home, ".thunderbird"); tasks[0].AbsDstPath != want {
		t.Errorf("expected destination %s, got %s", want, tasks[0].AbsDstPath)
	}
}

func TestRestorePlanUserDataRemapsLabels(t *testing.T) {
	home := t.TempDir()
	backupDir := t.TempDir()
	mkDirs(t, backupDir, "Documents", "Pictures")

	if err := os.MkdirAll(filepath.Join(home, ".config"), 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	config := "XDG_DOCUMENTS_DIR=\"$HOME/Dokumente\"\n"
	if err := os.WriteFile(filepath.Join(home, ".config", "user-dirs.dirs"), []byte(config), 0644); err != nil {
		t.Fatalf("failed to write user-dirs.dirs: %v", err)
	}

	tasks, err := UserData.RestorePlan(home, backupDir)
	if err != nil {
		t.Fatalf("expected a restore plan, got: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}

	got := make(map[string]string, len(tasks))
	for _, task := range tasks {
		got[filepath.Base(task.AbsSrcPath)] = task.AbsDstPath
	}
	if want := filepath.Join(home, "Dokumente"); got["Documents"] != want {
		t.Errorf("expected Documents to restore to %s, got %s", want, got["Documents"])
	}
	if want := filepath.Join(home, "Pictures"); got["Pictures"] != want {
		t.Errorf("expected Pictures to restore to %s, got %s", want, got["Pictures"])
	}
}
