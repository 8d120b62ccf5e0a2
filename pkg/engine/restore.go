package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/plasmaworks/plasma-backup/pkg/category"
	"github.com/plasmaworks/plasma-backup/pkg/plog"
	"github.com/plasmaworks/plasma-backup/pkg/preflight"
	"github.com/plasmaworks/plasma-backup/pkg/treecopy"
	"github.com/plasmaworks/plasma-backup/pkg/util"
)

// restoreTask is one archived subtree scheduled for restoring.
type restoreTask struct {
	cat     category.Category
	srcPath string
	dstPath string
	replace bool
}

// ExecuteRestore copies a backup's categories back into the home directory.
// Merge categories overlay the live tree in place; profile categories
// (browser, mail) replace their live tree wholesale so stale profile state
// cannot mix with the restored one.
func (r *Runner) ExecuteRestore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := preflight.CheckSourceAccessible(r.cfg.DestinationBase); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}

	backup, err := r.resolveBackupDir()
	if err != nil {
		return err
	}
	backupDir := filepath.Join(r.cfg.DestinationBase, backup.DirName)

	// Restore the categories that are enabled AND present in this backup.
	archived := make(map[string]bool, len(backup.Metadata.Categories))
	for _, name := range backup.Metadata.Categories {
		archived[name] = true
	}

	var tasks []restoreTask
	for _, cat := range r.cfg.Categories.Enabled() {
		if !archived[string(cat)] {
			plog.Notice("Category not present in backup, skipping", "category", string(cat), "backup", backup.DirName)
			continue
		}
		categoryDir := filepath.Join(backupDir, string(cat))
		if _, err := os.Stat(categoryDir); err != nil {
			plog.Warn("Category listed in metadata but missing on disk, skipping", "category", string(cat), "error", err)
			continue
		}

		plan, err := cat.RestorePlan(r.cfg.Home, categoryDir)
		if err != nil {
			if r.cfg.Engine.FailFast {
				return fmt.Errorf("category %s: %w", string(cat), err)
			}
			plog.Warn("Failed to plan category restore, skipping", "category", string(cat), "error", err)
			continue
		}
		for _, t := range plan {
			tasks = append(tasks, restoreTask{
				cat:     cat,
				srcPath: t.AbsSrcPath,
				dstPath: t.AbsDstPath,
				replace: t.Replace,
			})
		}
	}
	if len(tasks) == 0 {
		return fmt.Errorf("nothing to restore from backup %s for the enabled categories", backup.DirName)
	}

	if r.cfg.Runtime.DryRun {
		plog.Info("Dry run: would restore backup", "backup", backup.DirName, "home", r.cfg.Home)
		for _, task := range tasks {
			mode := "merge"
			if task.replace {
				mode = "replace"
			}
			plog.Info("Dry run: would restore", "category", string(task.cat), "source", task.srcPath, "destination", task.dstPath, "mode", mode)
		}
		return nil
	}

	lock, err := r.acquireDestinationLock(ctx, "restore")
	if err != nil {
		return err
	}
	defer lock.Release()

	plog.Info("Starting restore", "backup", backup.DirName, "taken", backup.Metadata.Timestamp,
		"from_host", backup.Metadata.Hostname, "home", r.cfg.Home)

	outcomes := make(chan categoryOutcome, outcomeBufferSize)
	var drainWG sync.WaitGroup
	drainWG.Add(1)
	go func() {
		defer drainWG.Done()
		for co := range outcomes {
			logOutcome(string(co.cat), co.outcome)
		}
	}()

	var mu sync.Mutex
	var total treecopy.Summary

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Engine.Performance.CopyWorkers)
	for _, task := range tasks {
		g.Go(func() error {
			if task.replace {
				if err := os.RemoveAll(task.dstPath); err != nil {
					if r.cfg.Engine.FailFast {
						return fmt.Errorf("category %s: failed to clear %s: %w", string(task.cat), task.dstPath, err)
					}
					plog.Warn("Could not clear destination before restore, merging instead", "path", task.dstPath, "error", err)
				}
			}

			opts := r.copyOptions(func(o treecopy.Outcome) {
				select {
				case outcomes <- categoryOutcome{cat: task.cat, outcome: o}:
				case <-gctx.Done():
				}
			})
			sum, err := treecopy.CopyTree(gctx, task.srcPath, task.dstPath, opts)

			mu.Lock()
			total.Add(sum)
			mu.Unlock()

			if err != nil {
				return fmt.Errorf("category %s: %w", string(task.cat), err)
			}
			return nil
		})
	}

	copyErr := g.Wait()
	close(outcomes)
	drainWG.Wait()
	if copyErr != nil {
		return copyErr
	}

	if total.Copied == 0 {
		plog.Warn("Restore finished without copying a single file")
	}

	plog.Info("Restore complete",
		"backup", backup.DirName,
		"copied", total.Copied,
		"skipped", total.Skipped(),
		"bytes", util.ByteCountIEC(total.BytesCopied),
	)
	plog.Notice("Log out and back in (or restart plasmashell) for restored settings to take effect")
	return nil
}
