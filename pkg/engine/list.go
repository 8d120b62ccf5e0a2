package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/plasmaworks/plasma-backup/pkg/metafile"
	"github.com/plasmaworks/plasma-backup/pkg/plog"
	"github.com/plasmaworks/plasma-backup/pkg/preflight"
	"github.com/plasmaworks/plasma-backup/pkg/util"
)

// ExecuteList prints the backups available at the destination, newest
// first, and returns them for programmatic use.
func (r *Runner) ExecuteList(ctx context.Context) ([]metafile.MetafileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := preflight.CheckSourceAccessible(r.cfg.DestinationBase); err != nil {
		return nil, fmt.Errorf("preflight failed: %w", err)
	}

	backups, err := r.scanBackups()
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		plog.Info("No backups found", "destination", r.cfg.DestinationBase)
		return nil, nil
	}

	plog.Info("Backups", "destination", r.cfg.DestinationBase, "count", len(backups))
	for _, b := range backups {
		size := dirSize(filepath.Join(r.cfg.DestinationBase, b.DirName))
		plog.Info(b.DirName,
			"taken", b.Metadata.TimestampUTC.Local().Format("2006-01-02 15:04:05"),
			"host", b.Metadata.Hostname,
			"user", b.Metadata.User,
			"categories", strings.Join(b.Metadata.Categories, ", "),
			"size", util.ByteCountIEC(size),
		)
	}
	return backups, nil
}
