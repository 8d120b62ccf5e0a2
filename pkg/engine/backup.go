package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/plasmaworks/plasma-backup/pkg/buildinfo"
	"github.com/plasmaworks/plasma-backup/pkg/category"
	"github.com/plasmaworks/plasma-backup/pkg/metafile"
	"github.com/plasmaworks/plasma-backup/pkg/plog"
	"github.com/plasmaworks/plasma-backup/pkg/preflight"
	"github.com/plasmaworks/plasma-backup/pkg/sysinfo"
	"github.com/plasmaworks/plasma-backup/pkg/treecopy"
	"github.com/plasmaworks/plasma-backup/pkg/util"
	"github.com/plasmaworks/plasma-backup/pkg/verify"
)

// copyTask is one category root scheduled for copying.
type copyTask struct {
	cat     category.Category
	srcPath string
	dstPath string
	isDir   bool
}

// categoryOutcome pairs a copy decision with the category it belongs to, for
// the logging drain.
type categoryOutcome struct {
	cat     category.Category
	outcome treecopy.Outcome
}

// ExecuteBackup creates a new timestamped backup under the destination base.
// Copies run best-effort unless fail-fast is configured; the metadata file
// is written last, so only complete runs are ever listed or restored.
func (r *Runner) ExecuteBackup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dirName, timestampUTC := runTimestamp()
	backupDir := filepath.Join(r.cfg.DestinationBase, dirName)

	if err := preflight.CheckSourceAccessible(r.cfg.Home); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}
	if err := preflight.CheckDestinationAccessible(r.cfg.DestinationBase); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}
	if !r.cfg.Runtime.DryRun {
		if err := preflight.CheckDestinationWritable(r.cfg.DestinationBase); err != nil {
			return fmt.Errorf("preflight failed: %w", err)
		}
		if err := preflight.CheckFreeSpace(r.cfg.DestinationBase, uint64(r.cfg.MinFreeSpaceMB)<<20); err != nil {
			return fmt.Errorf("preflight failed: %w", err)
		}
	}

	// Resolve the enabled categories against the live home directory.
	var tasks []copyTask
	var backedUp []string
	for _, cat := range r.cfg.Categories.Enabled() {
		roots := cat.Resolve(r.cfg.Home)
		if len(roots) == 0 {
			plog.Notice("Nothing to back up for category", "category", string(cat))
			continue
		}
		backedUp = append(backedUp, string(cat))
		categoryDir := filepath.Join(backupDir, string(cat))
		for _, root := range roots {
			tasks = append(tasks, copyTask{
				cat:     cat,
				srcPath: root.AbsSrcPath,
				dstPath: filepath.Join(categoryDir, root.RelDstPath),
				isDir:   root.IsDir,
			})
		}
	}
	if len(tasks) == 0 {
		return fmt.Errorf("nothing to back up: no enabled category resolved any paths under %s", r.cfg.Home)
	}

	if r.cfg.Runtime.DryRun {
		plog.Info("Dry run: would create backup", "dir", backupDir)
		for _, task := range tasks {
			plog.Info("Dry run: would copy", "category", string(task.cat), "source", task.srcPath, "destination", task.dstPath)
		}
		return nil
	}

	lock, err := r.acquireDestinationLock(ctx, "backup")
	if err != nil {
		return err
	}
	defer lock.Release()

	identity := sysinfo.Collect(ctx)
	plog.Info("Starting backup", "home", r.cfg.Home, "destination", backupDir,
		"categories", len(backedUp), "roots", len(tasks), "host", identity.Hostname)

	// Copy workers stream their outcomes to a single logging drain over a
	// bounded channel.
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
	var mismatches atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Engine.Performance.CopyWorkers)
	for _, task := range tasks {
		g.Go(func() error {
			var copiedRels []string
			opts := r.copyOptions(func(o treecopy.Outcome) {
				if r.cfg.Engine.Verify && o.Kind == treecopy.Copied {
					copiedRels = append(copiedRels, o.RelPath)
				}
				select {
				case outcomes <- categoryOutcome{cat: task.cat, outcome: o}:
				case <-gctx.Done():
				}
			})

			var sum treecopy.Summary
			var err error
			if task.isDir {
				sum, err = treecopy.CopyTree(gctx, task.srcPath, task.dstPath, opts)
			} else {
				sum, err = treecopy.CopyFile(gctx, task.srcPath, task.dstPath, opts)
			}

			mu.Lock()
			total.Add(sum)
			mu.Unlock()

			if err != nil {
				return fmt.Errorf("category %s: %w", string(task.cat), err)
			}

			if r.cfg.Engine.Verify && len(copiedRels) > 0 {
				srcRoot, dstRoot := task.srcPath, task.dstPath
				if !task.isDir {
					srcRoot = filepath.Dir(task.srcPath)
					dstRoot = filepath.Dir(task.dstPath)
				}
				bad, verr := verify.Tree(gctx, srcRoot, dstRoot, copiedRels)
				for _, m := range bad {
					plog.Warn("Verification mismatch", "category", string(task.cat), "path", m.RelPath, "reason", m.Reason)
				}
				mismatches.Add(int64(len(bad)))
				if verr != nil {
					return verr
				}
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
		plog.Warn("Backup finished without copying a single file; check permissions and category settings")
	}
	if n := mismatches.Load(); n > 0 {
		if r.cfg.Engine.FailFast {
			return fmt.Errorf("verification failed for %d files", n)
		}
		plog.Warn("Verification found mismatched files", "count", n)
	}

	// The metafile marks the backup as complete and is written last.
	content := &metafile.MetafileContent{
		Version:       buildinfo.Version,
		Timestamp:     dirName,
		TimestampUTC:  timestampUTC,
		Hostname:      identity.Hostname,
		User:          identity.User,
		Platform:      identity.Platform,
		PlasmaVersion: identity.PlasmaVersion,
		Categories:    backedUp,
	}
	if err := metafile.Write(backupDir, content); err != nil {
		return fmt.Errorf("backup copied but could not be finalized: %w", err)
	}

	plog.Info("Backup complete",
		"dir", backupDir,
		"copied", total.Copied,
		"skipped", total.Skipped(),
		"bytes", util.ByteCountIEC(total.BytesCopied),
	)
	return nil
}
