// Package sysinfo collects the host identity recorded in backup metadata.
package sysinfo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// plasmaVersionTimeout bounds the plasmashell version query; the desktop
// shell can be slow to answer on a loaded session.
const plasmaVersionTimeout = 3 * time.Second

// Identity describes the machine a backup was taken on.
type Identity struct {
	Hostname      string
	User          string
	Platform      string
	PlasmaVersion string
}

// Collect gathers the host identity. Every probe is best-effort: a field
// that cannot be determined is reported as "Unknown" rather than failing
// the backup.
func Collect(ctx context.Context) Identity {
	id := Identity{
		Hostname:      "Unknown",
		User:          "Unknown",
		Platform:      "Unknown",
		PlasmaVersion: plasmaVersion(ctx),
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		id.Hostname = info.Hostname
		id.Platform = strings.TrimSpace(fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion))
	} else if hostname, err := os.Hostname(); err == nil {
		id.Hostname = hostname
	}

	if u, err := user.Current(); err == nil {
		id.User = u.Username
	}

	return id
}

// plasmaVersion queries the running desktop for its version string.
func plasmaVersion(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, plasmaVersionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "plasmashell", "--version").Output()
	if err != nil {
		return "Unknown"
	}
	version := strings.TrimSpace(string(out))
	if version == "" {
		return "Unknown"
	}
	return version
}
