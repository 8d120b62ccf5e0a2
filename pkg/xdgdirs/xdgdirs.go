// Package xdgdirs resolves the user's XDG user directories (Documents,
// Pictures, ...) including localized names, by parsing the
// ~/.config/user-dirs.dirs file that xdg-user-dirs maintains.
package xdgdirs

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// userDirsFile is the relative location of the xdg-user-dirs configuration.
const userDirsFile = ".config/user-dirs.dirs"

// wellKnown maps the XDG key fragment to the canonical directory label used
// in backup layouts, plus the default folder name used when no configuration
// exists.
var wellKnown = []struct {
	keyFragment string
	label       string
	defaultName string
}{
	{"DOCUMENTS", "Documents", "Documents"},
	{"PICTURES", "Pictures", "Pictures"},
	{"VIDEOS", "Videos", "Videos"},
	{"MUSIC", "Music", "Music"},
	{"DOWNLOAD", "Downloads", "Downloads"},
}

// UserDirs returns the absolute paths of the well-known user directories
// for the given home directory, keyed by canonical label. Directories whose
// configured path cannot be determined fall back to the default name under
// home. Entries resolving to home itself are dropped; xdg-user-dirs uses
// "$HOME" to mark a disabled directory.
func UserDirs(home string) map[string]string {
	dirs := make(map[string]string, len(wellKnown))
	for _, w := range wellKnown {
		dirs[w.label] = filepath.Join(home, w.defaultName)
	}

	f, err := os.Open(filepath.Join(home, userDirsFile))
	if err != nil {
		return dirs // No config; defaults apply.
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "XDG_") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		value = strings.Trim(value, `"`)
		value = strings.ReplaceAll(value, "$HOME", home)
		if value == "" {
			continue
		}

		for _, w := range wellKnown {
			if !strings.Contains(key, w.keyFragment) {
				continue
			}
			if filepath.Clean(value) == filepath.Clean(home) {
				// Disabled directory.
				delete(dirs, w.label)
			} else {
				dirs[w.label] = value
			}
			break
		}
	}

	return dirs
}
