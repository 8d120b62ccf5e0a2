// Package lockfile serializes backup and restore runs against a shared
// destination. The lock is a JSON file in the destination directory,
// acquired atomically with O_EXCL and kept fresh by a background heartbeat
// so crashed runs can be taken over once their lock goes stale.
package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/plasmaworks/plasma-backup/pkg/plog"
	"github.com/plasmaworks/plasma-backup/pkg/util"
)

// LockFileName is the name of the lock file created in the destination
// directory. The '~' prefix marks it as temporary.
const LockFileName = ".~plasma-backup.lock"

// LockContent is the JSON payload written to the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	Operation  string    `json:"operation"`
	LastUpdate time.Time `json:"lastUpdate"`
	Nonce      string    `json:"nonce,omitempty"` // Disambiguates takeover races.
}

// ErrLockActive reports a lock held by another live process.
type ErrLockActive struct {
	PID       int64
	Hostname  string
	Operation string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("another %s is running: PID %d on host '%s', last active %s ago",
		e.Operation, e.PID, e.Hostname, e.TimeSince.Truncate(time.Second))
}

// ErrLostRace is returned when another process wins a stale-lock takeover.
var ErrLostRace = errors.New("lost race during stale lock takeover")

// ErrCorruptLockFile indicates the lock file on disk is empty or not valid
// JSON.
var ErrCorruptLockFile = errors.New("lock file is corrupt or empty")

// Lock is an acquired destination lock.
type Lock struct {
	path    string
	content LockContent
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	held    bool
}

// Vars so tests can shorten them.
var (
	heartbeatInterval = 1 * time.Minute
	staleTimeout      = 3 * heartbeatInterval
)

// Acquire takes the destination lock for the named operation ("backup" or
// "restore"). It returns *ErrLockActive when another live process holds the
// lock; stale and corrupt locks are taken over.
func Acquire(ctx context.Context, dirPath, operation string) (*Lock, error) {
	lockPath := filepath.Join(dirPath, LockFileName)
	const maxAttempts = 3

	for range maxAttempts {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lock, err := tryAcquire(lockPath, operation)
		if err == nil {
			cleanupTempLockFiles(lockPath)
			go lock.heartbeat()
			return lock, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to access lock file: %w", err)
		}

		// Lock file exists; decide whether the holder is still alive.
		content, readErr := readLockContent(lockPath)
		if readErr != nil {
			if !errors.Is(readErr, ErrCorruptLockFile) {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			plog.Warn("Found corrupt lock file, treating as stale", "path", lockPath, "error", readErr)
		} else {
			elapsed := time.Since(content.LastUpdate)
			if elapsed < staleTimeout {
				return nil, &ErrLockActive{
					PID:       content.PID,
					Hostname:  content.Hostname,
					Operation: content.Operation,
					TimeSince: elapsed,
				}
			}
			plog.Warn("Found stale lock, attempting takeover", "pid", content.PID, "age", elapsed)
		}

		lock, takeoverErr := takeoverStaleLock(lockPath, operation)
		if takeoverErr != nil {
			if errors.Is(takeoverErr, ErrLostRace) {
				plog.Debug("Lock takeover race lost, retrying acquisition")
			} else {
				plog.Warn("Lock takeover failed, retrying", "error", takeoverErr)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		cleanupTempLockFiles(lockPath)
		go lock.heartbeat()
		return lock, nil
	}

	return nil, fmt.Errorf("failed to acquire lock after %d attempts (contention)", maxAttempts)
}

// tryAcquire creates the lock file atomically with O_EXCL.
func tryAcquire(lockPath, operation string) (*Lock, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := newLockContent(operation)
	if err != nil {
		return nil, err
	}

	l := newLock(lockPath, content)
	if err := writeLockContent(f, content); err != nil {
		l.removeFile()
		return nil, err
	}
	return l, nil
}

func newLockContent(operation string) (LockContent, error) {
	nonce, err := generateNonce()
	if err != nil {
		return LockContent{}, err
	}
	hostname, err := os.Hostname()
	if err != nil {
		return LockContent{}, err
	}
	return LockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		Operation:  operation,
		LastUpdate: time.Now().UTC(),
		Nonce:      nonce,
	}, nil
}

func newLock(lockPath string, content LockContent) *Lock {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Lock{
		path:    lockPath,
		content: content,
		cancel:  cancel,
		done:    make(chan struct{}),
		held:    true,
	}
	go func() {
		<-ctx.Done()
		close(l.done)
	}()
	return l
}

// Release stops the heartbeat and removes the lock file. Safe to call more
// than once.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	l.cancel()
	l.removeFile()
	l.held = false
}

// takeoverStaleLock seizes a stale or corrupt lock by atomically renaming
// fresh content over it, then reading back to confirm we won any race.
func takeoverStaleLock(lockPath, operation string) (*Lock, error) {
	content, err := newLockContent(operation)
	if err != nil {
		return nil, err
	}

	if err := updateLockFileAtomic(lockPath, content); err != nil {
		return nil, err
	}

	readback, err := readLockContent(lockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read back lock file after takeover: %w", err)
	}
	if readback.PID == content.PID && readback.Nonce == content.Nonce {
		plog.Debug("Successfully took over stale lock")
		return newLock(lockPath, content), nil
	}
	return nil, ErrLostRace
}

func (l *Lock) removeFile() {
	if err := os.Remove(l.path); err != nil {
		if !os.IsNotExist(err) {
			plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
		}
	} else {
		plog.Debug("Lock released", "path", l.path)
	}
}

func (l *Lock) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.content.LastUpdate = time.Now().UTC()
			if err := updateLockFileAtomic(l.path, l.content); err != nil {
				// Try again next tick.
				plog.Warn("Heartbeat failed to update lock file", "error", err)
			}
		}
	}
}

// updateLockFileAtomic writes content to a temp file in the same directory
// and renames it over the lock, so the file is never observed empty.
func updateLockFileAtomic(lockPath string, content LockContent) error {
	dir := filepath.Dir(lockPath)
	tmpF, err := os.CreateTemp(dir, filepath.Base(lockPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmpF.Name()); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary lock file", "path", tmpF.Name(), "error", err)
		}
	}()

	if err := writeLockContent(tmpF, content); err != nil {
		tmpF.Close()
		return err
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		return err
	}
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpF.Name(), lockPath); err != nil {
		return fmt.Errorf("failed to rename temp file to lock file: %w", err)
	}
	return nil
}

// cleanupTempLockFiles removes leftover temp files from crashed runs. Only
// files unmodified for longer than the stale timeout are deleted, so a live
// holder's in-flight heartbeat write is never touched.
func cleanupTempLockFiles(lockPath string) {
	pattern := filepath.Join(filepath.Dir(lockPath), filepath.Base(lockPath)+".*.tmp")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		plog.Warn("Failed to glob for temporary lock files", "pattern", pattern, "error", err)
		return
	}

	threshold := time.Now().Add(-staleTimeout)
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		if info.ModTime().Before(threshold) {
			plog.Debug("Removing old temporary lock file", "path", match, "age", time.Since(info.ModTime()))
			if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
				plog.Warn("Failed to remove leftover temporary lock file", "path", match, "error", err)
			}
		}
	}
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return fmt.Sprintf("%x", b), nil
}

func writeLockContent(w io.Writer, content LockContent) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write lock content: %w", err)
	}
	return nil
}

// readLockContent reads the lock file, retrying briefly over transient
// empty or partial states left by a concurrent writer.
func readLockContent(lockPath string) (LockContent, error) {
	var lastErr error
	var lastCorruptErr error

	for range 3 {
		data, err := os.ReadFile(lockPath)
		if err != nil {
			if os.IsNotExist(err) {
				return LockContent{}, err
			}
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if len(data) == 0 {
			lastCorruptErr = fmt.Errorf("lock file is empty")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		var content LockContent
		lastCorruptErr = json.Unmarshal(data, &content)
		if lastCorruptErr != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		return content, nil
	}

	if lastCorruptErr != nil {
		return LockContent{}, fmt.Errorf("%w: %v", ErrCorruptLockFile, lastCorruptErr)
	}
	return LockContent{}, fmt.Errorf("failed to read valid lock content: %w", lastErr)
}
