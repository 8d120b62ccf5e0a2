// Package engine orchestrates backup, restore, and list runs: preflight
// checks, destination locking, concurrent category copies, verification,
// and metadata handling.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/plasmaworks/plasma-backup/pkg/config"
	"github.com/plasmaworks/plasma-backup/pkg/lockfile"
	"github.com/plasmaworks/plasma-backup/pkg/metafile"
	"github.com/plasmaworks/plasma-backup/pkg/plog"
	"github.com/plasmaworks/plasma-backup/pkg/treecopy"
)

// outcomeBufferSize bounds the outcome stream between the copy workers and
// the logging drain.
const outcomeBufferSize = 256

// Runner executes the top-level operations against one configuration.
type Runner struct {
	cfg config.Config
}

// New creates a Runner for the given validated configuration.
func New(cfg config.Config) *Runner {
	return &Runner{cfg: cfg}
}

// copyOptions builds the treecopy options shared by all copies of a run.
// The report callback is attached per copy task.
func (r *Runner) copyOptions(report func(treecopy.Outcome)) treecopy.Options {
	return treecopy.Options{
		IgnoreErrors: !r.cfg.Engine.FailFast,
		BufferSize:   r.cfg.Engine.Performance.BufferSizeKB * 1024,
		Report:       report,
	}
}

// acquireDestinationLock serializes runs against the destination. A lock
// held by a live process is reported as a friendly error.
func (r *Runner) acquireDestinationLock(ctx context.Context, operation string) (*lockfile.Lock, error) {
	lock, err := lockfile.Acquire(ctx, r.cfg.DestinationBase, operation)
	if err != nil {
		var active *lockfile.ErrLockActive
		if errors.As(err, &active) {
			return nil, fmt.Errorf("destination %s is busy: %w", r.cfg.DestinationBase, active)
		}
		return nil, fmt.Errorf("failed to lock destination %s: %w", r.cfg.DestinationBase, err)
	}
	return lock, nil
}

// scanBackups returns the backups found at the destination base, newest
// first. Directories without a readable metafile are skipped with a notice;
// they may be foreign or half-written.
func (r *Runner) scanBackups() ([]metafile.MetafileInfo, error) {
	entries, err := os.ReadDir(r.cfg.DestinationBase)
	if err != nil {
		return nil, fmt.Errorf("failed to read destination %s: %w", r.cfg.DestinationBase, err)
	}

	var backups []metafile.MetafileInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		content, err := metafile.Read(filepath.Join(r.cfg.DestinationBase, entry.Name()))
		if err != nil {
			if !os.IsNotExist(err) {
				plog.Notice("Skipping directory with unreadable metadata", "dir", entry.Name(), "error", err)
			}
			continue
		}
		backups = append(backups, metafile.MetafileInfo{DirName: entry.Name(), Metadata: content})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Metadata.TimestampUTC.After(backups[j].Metadata.TimestampUTC)
	})
	return backups, nil
}

// resolveBackupDir maps the configured backup ID to an existing backup
// directory, defaulting to the most recent backup.
func (r *Runner) resolveBackupDir() (metafile.MetafileInfo, error) {
	backups, err := r.scanBackups()
	if err != nil {
		return metafile.MetafileInfo{}, err
	}
	if len(backups) == 0 {
		return metafile.MetafileInfo{}, fmt.Errorf("no backups found at %s", r.cfg.DestinationBase)
	}

	id := r.cfg.Runtime.BackupID
	if id == "" {
		return backups[0], nil
	}
	for _, b := range backups {
		if b.DirName == id {
			return b, nil
		}
	}
	return metafile.MetafileInfo{}, fmt.Errorf("backup %q not found at %s", id, r.cfg.DestinationBase)
}

// logOutcome routes one copy decision to the log. Copies are debug noise;
// skips are surfaced.
func logOutcome(cat string, o treecopy.Outcome) {
	switch o.Kind {
	case treecopy.Copied:
		plog.Debug("Copied", "category", cat, "path", o.RelPath)
	case treecopy.SkippedDirectorySymlink:
		plog.Notice("Skipped directory symlink", "category", cat, "path", o.RelPath)
	case treecopy.SkippedBrokenSymlink:
		plog.Notice("Skipped broken symlink", "category", cat, "path", o.RelPath, "error", o.Err)
	default:
		plog.Warn("Skipped", "category", cat, "path", o.RelPath, "reason", o.Kind.String(), "error", o.Err)
	}
}

// dirSize walks a tree and sums the sizes of its regular files.
func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil // Best effort; unreadable entries just don't count.
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// runTimestamp captures a consistent timestamp pair for one backup run.
func runTimestamp() (string, time.Time) {
	now := time.Now()
	return now.Format(metafile.TimestampLayout), now.UTC()
}
