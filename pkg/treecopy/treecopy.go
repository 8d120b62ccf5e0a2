// Package treecopy implements a best-effort, fault-tolerant recursive copy
// of a directory tree.
//
// The copier is built for backup targets on network-attached storage with
// restricted permission models: it copies file content only and never
// replicates permission bits, ownership, timestamps, or extended attributes.
// Symlinks to files are resolved and copied as regular files; symlinks to
// directories are never followed, which also bounds the walk without any
// cycle detection. The walk is single-threaded and synchronous; progress is
// reported through a per-decision Outcome callback so callers can stream it
// over a channel when the copy runs on a background worker.
package treecopy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/plasmaworks/plasma-backup/pkg/util"
)

// DefaultBufferSize is the I/O buffer size used when Options.BufferSize is
// zero (256 KiB).
const DefaultBufferSize = 256 * 1024

// Options controls a copy run.
type Options struct {
	// IgnoreErrors selects best-effort mode: every failure is converted to a
	// Skipped* outcome and the walk continues. When false, the first failure
	// aborts the whole run with a *CopyError.
	IgnoreErrors bool

	// BufferSize is the size of the I/O buffer in bytes. Zero means
	// DefaultBufferSize.
	BufferSize int

	// Report, if non-nil, receives one Outcome per decision, in walk order.
	Report func(Outcome)
}

// copyRun holds the traversal state for a single CopyTree invocation. Each
// invocation owns its state exclusively; nothing is shared across runs.
type copyRun struct {
	ctx     context.Context
	opts    Options
	srcRoot string
	buf     []byte
	summary Summary
}

// CopyTree recursively copies the content of the tree rooted at src into
// dst, merging into whatever already exists there (existing destination
// files are overwritten, unrelated ones are never deleted). src must be an
// existing directory; dst is created as needed.
//
// In best-effort mode the returned error is nil unless the walk was
// cancelled. In fail-fast mode the first failure is returned as a
// *CopyError and the walk stops where it stood.
func CopyTree(ctx context.Context, src, dst string, opts Options) (Summary, error) {
	r := &copyRun{
		ctx:     ctx,
		opts:    opts,
		srcRoot: src,
		buf:     make([]byte, bufferSize(opts)),
	}
	err := r.copyDir(src, dst)
	return r.summary, err
}

// CopyFile copies the content of the single regular file src to dst,
// creating dst's parent directory on demand. It applies the same failure
// classification as CopyTree does for one file entry.
func CopyFile(ctx context.Context, src, dst string, opts Options) (Summary, error) {
	r := &copyRun{
		ctx:     ctx,
		opts:    opts,
		srcRoot: filepath.Dir(src),
		buf:     make([]byte, bufferSize(opts)),
	}

	if err := os.MkdirAll(filepath.Dir(dst), util.UserWritableDirPerms); err != nil {
		if r.opts.IgnoreErrors {
			return r.summary, nil
		}
		return r.summary, &CopyError{Kind: FailureDestinationCreate, Path: filepath.Dir(dst), Err: err}
	}

	err := r.copyFileEntry(src, dst, filepath.Base(src))
	return r.summary, err
}

func bufferSize(opts Options) int {
	if opts.BufferSize > 0 {
		return opts.BufferSize
	}
	return DefaultBufferSize
}

// copyDir performs one level of the depth-first, pre-order walk.
func (r *copyRun) copyDir(src, dst string) error {
	// 1. Ensure the destination directory exists. A failure here aborts this
	// subtree: silently in best-effort mode, with a classified error otherwise.
	if err := os.MkdirAll(dst, util.UserWritableDirPerms); err != nil {
		if r.opts.IgnoreErrors {
			return nil
		}
		return &CopyError{Kind: FailureDestinationCreate, Path: dst, Err: err}
	}

	// 2. Enumerate the immediate children. Enumeration order is whatever the
	// filesystem returns; it is not part of the contract.
	entries, err := os.ReadDir(src)
	if err != nil {
		if r.opts.IgnoreErrors {
			return nil
		}
		return &CopyError{Kind: FailureSourceEnumeration, Path: src, Err: err}
	}

	// 3. Process each child. Classification is re-derived per visit; nothing
	// is cached across calls because the tree may change under us.
	for _, entry := range entries {
		// Cooperative cancellation: a cancelled walk stops emitting and
		// unwinds cleanly.
		if err := r.ctx.Err(); err != nil {
			return err
		}

		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if err := r.copyEntry(entry, srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

// copyEntry dispatches a single directory entry to the handler for its kind.
func (r *copyRun) copyEntry(entry fs.DirEntry, srcPath, dstPath string) error {
	mode := entry.Type()

	switch {
	case mode&fs.ModeSymlink != 0:
		return r.copySymlinkEntry(srcPath, dstPath)

	case mode.IsRegular():
		return r.copyFileEntry(srcPath, dstPath, r.relPath(srcPath))

	case mode.IsDir():
		return r.copyDir(srcPath, dstPath)

	default:
		// Device nodes, sockets, FIFOs. Deliberately ignored without an
		// outcome; they have no meaning in a configuration backup.
		return nil
	}
}

// copySymlinkEntry resolves a symlink chain to its final target and copies
// file targets by content. Directory targets are never descended into:
// symlinked directories are disproportionately likely to hit permission
// errors on network shares, and skipping them keeps the walk finite.
func (r *copyRun) copySymlinkEntry(srcPath, dstPath string) error {
	rel := r.relPath(srcPath)

	resolved, err := filepath.EvalSymlinks(srcPath)
	if err != nil {
		// Broken link, loop, or permission error along the chain.
		r.emit(Outcome{Kind: SkippedBrokenSymlink, RelPath: rel, Err: &CopyError{Kind: FailureSymlinkResolution, Path: srcPath, Err: err}})
		return nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		r.emit(Outcome{Kind: SkippedBrokenSymlink, RelPath: rel, Err: &CopyError{Kind: FailureSymlinkResolution, Path: srcPath, Err: err}})
		return nil
	}

	switch {
	case info.IsDir():
		r.emit(Outcome{Kind: SkippedDirectorySymlink, RelPath: rel})
		return nil
	case info.Mode().IsRegular():
		// The destination is named after the link, not the target.
		return r.copyFileEntry(resolved, dstPath, rel)
	default:
		// Link to a device/socket/FIFO. Ignored like the direct case.
		return nil
	}
}

// copyFileEntry copies one regular file's content and emits the outcome.
func (r *copyRun) copyFileEntry(srcPath, dstPath, rel string) error {
	written, err := r.copyContents(srcPath, dstPath)
	if err != nil {
		copyErr := &CopyError{Kind: FailureFileCopy, Path: srcPath, Err: err}
		if !r.opts.IgnoreErrors {
			return copyErr
		}
		if errors.Is(err, fs.ErrPermission) {
			r.emit(Outcome{Kind: SkippedPermission, RelPath: rel, Err: copyErr})
		} else {
			r.emit(Outcome{Kind: SkippedOther, RelPath: rel, Err: copyErr})
		}
		return nil
	}

	r.summary.BytesCopied += written
	r.emit(Outcome{Kind: Copied, RelPath: rel})
	return nil
}

// copyContents performs the low-level content-only copy. The file handles
// are scoped to this single entry. No chmod, chtimes, or xattr calls are
// made: those are the operations that fail on NAS mounts with restricted
// permission models, and the backup never needs them.
func (r *copyRun) copyContents(srcPath, dstPath string) (int64, error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file %s: %w", srcPath, err)
	}
	defer in.Close()

	out, err := os.Create(dstPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination file %s: %w", dstPath, err)
	}

	written, err := io.CopyBuffer(out, in, r.buf)
	if err != nil {
		out.Close()
		return written, fmt.Errorf("failed to copy content from %s to %s: %w", srcPath, dstPath, err)
	}

	if err := out.Close(); err != nil {
		return written, fmt.Errorf("failed to close destination file %s: %w", dstPath, err)
	}
	return written, nil
}

func (r *copyRun) emit(o Outcome) {
	r.summary.count(o.Kind)
	if r.opts.Report != nil {
		r.opts.Report(o)
	}
}

func (r *copyRun) relPath(path string) string {
	rel, err := filepath.Rel(r.srcRoot, path)
	if err != nil {
		return path
	}
	return rel
}
