// Package category defines the backup categories (KDE settings, application
// configs, browser and mail profiles, user data) and resolves them to
// concrete source roots under a given home directory.
//
// The copier knows nothing about categories; this package owns the policy of
// what gets backed up where, and whether a category is restored by merging
// into the live tree or by replacing it wholesale.
package category

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/plasmaworks/plasma-backup/pkg/xdgdirs"
)

// Category identifies one backup category. Its string value is also the
// subdirectory name inside a backup.
type Category string

const (
	// KDESettings covers the Plasma desktop configuration: plasmoids, kwin,
	// shortcuts, color schemes.
	KDESettings Category = "kde"
	// AppConfigs covers well-known application configs and dotfiles.
	AppConfigs Category = "configs"
	// Firefox covers the Firefox profile tree.
	Firefox Category = "firefox"
	// Thunderbird covers the Thunderbird profile tree.
	Thunderbird Category = "thunderbird"
	// UserData covers the XDG user directories (Documents, Pictures, ...).
	UserData Category = "user_data"
)

// All returns every known category in a stable order.
func All() []Category {
	return []Category{KDESettings, AppConfigs, Firefox, Thunderbird, UserData}
}

// Parse maps a configuration string to a Category.
func Parse(s string) (Category, error) {
	for _, c := range All() {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown backup category: %q", s)
}

// kdePatterns are the Plasma configuration paths, relative to home. Entries
// may contain glob metacharacters.
var kdePatterns = []string{
	".config/plasma*",
	".config/kde*",
	".config/kwin*",
	".config/kglobalshortcutsrc",
	".config/khotkeysrc",
	".config/kdeglobals",
	".config/kscreenlockerrc",
	".config/systemsettingsrc",
	".local/share/plasma",
	".local/share/kwin",
	".local/share/konsole",
	".local/share/color-schemes",
	".local/share/kxmlgui5",
	".local/share/applications",
}

// appConfigPaths are well-known application configs and dotfiles, relative
// to home. Entries may be files or directories.
var appConfigPaths = []string{
	".config/Code",
	".config/discord",
	".config/Slack",
	".vscode",
	".bashrc",
	".bash_profile",
	".profile",
	".zshrc",
	".gitconfig",
	".ssh/config",
}

// Root is one source root to hand to the tree copier: an existing absolute
// source path and its destination path relative to the category directory
// inside the backup.
type Root struct {
	AbsSrcPath string
	RelDstPath string
	IsDir      bool
}

// RestoreTask maps one archived subtree back to its live location. Replace
// means the live destination is removed before copying (self-contained leaf
// subtrees like browser profiles); otherwise the copy merges in place.
type RestoreTask struct {
	AbsSrcPath string
	AbsDstPath string
	Replace    bool
}

// Resolve expands the category's path list against home and returns the
// roots that exist right now. A category with nothing to back up resolves
// to an empty slice; that is not an error.
func (c Category) Resolve(home string) []Root {
	switch c {
	case KDESettings:
		return resolvePatterns(home, kdePatterns)
	case AppConfigs:
		return resolvePatterns(home, appConfigPaths)
	case Firefox:
		return resolveTree(filepath.Join(home, ".mozilla", "firefox"))
	case Thunderbird:
		return resolveTree(filepath.Join(home, ".thunderbird"))
	case UserData:
		return resolveUserDirs(home)
	default:
		return nil
	}
}

// RestorePlan maps the contents of this category's directory inside a
// backup to restore tasks against the live home directory.
func (c Category) RestorePlan(home, backupCategoryDir string) ([]RestoreTask, error) {
	switch c {
	case KDESettings, AppConfigs:
		// Archived paths mirror home, so the whole category merges back
		// into home directly.
		return []RestoreTask{{AbsSrcPath: backupCategoryDir, AbsDstPath: home}}, nil

	case Firefox:
		return []RestoreTask{{
			AbsSrcPath: backupCategoryDir,
			AbsDstPath: filepath.Join(home, ".mozilla", "firefox"),
			Replace:    true,
		}}, nil

	case Thunderbird:
		return []RestoreTask{{
			AbsSrcPath: backupCategoryDir,
			AbsDstPath: filepath.Join(home, ".thunderbird"),
			Replace:    true,
		}}, nil

	case UserData:
		// Each archived label is restored to wherever that user directory
		// lives now; XDG resolution is re-derived at restore time.
		entries, err := os.ReadDir(backupCategoryDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read archived user data %s: %w", backupCategoryDir, err)
		}
		liveDirs := xdgdirs.UserDirs(home)
		var tasks []RestoreTask
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			label := entry.Name()
			dst, ok := liveDirs[label]
			if !ok {
				dst = filepath.Join(home, label)
			}
			tasks = append(tasks, RestoreTask{
				AbsSrcPath: filepath.Join(backupCategoryDir, label),
				AbsDstPath: dst,
			})
		}
		return tasks, nil

	default:
		return nil, fmt.Errorf("unknown backup category: %q", string(c))
	}
}

// resolvePatterns expands glob patterns relative to home. The destination
// mirrors the source's path relative to home, so a restore can merge the
// category straight back.
func resolvePatterns(home string, patterns []string) []Root {
	var roots []Root
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(home, pattern))
		if err != nil {
			continue // Invalid pattern; nothing to resolve.
		}
		for _, match := range matches {
			info, err := os.Lstat(match)
			if err != nil {
				continue
			}
			rel, err := filepath.Rel(home, match)
			if err != nil {
				continue
			}
			roots = append(roots, Root{
				AbsSrcPath: match,
				RelDstPath: rel,
				IsDir:      info.IsDir(),
			})
		}
	}
	// Glob returns sorted matches per pattern; sort the combined list so
	// the backup order is stable across runs.
	sort.Slice(roots, func(i, j int) bool { return roots[i].RelDstPath < roots[j].RelDstPath })
	return roots
}

// resolveTree returns the single root for a self-contained profile tree.
func resolveTree(path string) []Root {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil
	}
	return []Root{{AbsSrcPath: path, RelDstPath: ".", IsDir: true}}
}

// resolveUserDirs maps each existing XDG user directory to a root named by
// its canonical label.
func resolveUserDirs(home string) []Root {
	dirs := xdgdirs.UserDirs(home)

	labels := make([]string, 0, len(dirs))
	for label := range dirs {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var roots []Root
	for _, label := range labels {
		path := dirs[label]
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			continue
		}
		roots = append(roots, Root{AbsSrcPath: path, RelDstPath: label, IsDir: true})
	}
	return roots
}
