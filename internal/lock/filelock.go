// Package lock provides file-based advisory locking for symtrace.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrLockHeld is returned when lock acquisition fails because another
// collector is holding the lock.
var ErrLockHeld = errors.New("lock held by another process")

// retryInterval is the poll interval used when waiting for a lock.
const retryInterval = 100 * time.Millisecond

// FileLock represents a file-based advisory lock guarding an output
// path against concurrent collector runs. The lock file is created with
// O_EXCL and records the holder's pid; it is removed on release.
//
// The lock is advisory: the atomic rename performed by emission keeps
// the output file itself consistent even without it, but the lock stops
// two runs from silently overwriting each other's results.
type FileLock struct {
	path string
	held bool
}

// New creates a lock on the given lock file path.
// The lock is not acquired until one of the acquire methods is called.
func New(path string) *FileLock {
	return &FileLock{path: path}
}

// ForOutput creates the lock guarding an output path. Lock files sit
// next to the output they guard: "out/symtrace.json" is guarded by
// "out/symtrace.json.lock".
func ForOutput(outputPath string) *FileLock {
	return New(outputPath + ".lock")
}

// TryAcquire attempts to acquire the lock immediately without waiting.
// Returns true if acquired, false if the lock is already held by
// another process. Returns an error only for filesystem failures.
func (l *FileLock) TryAcquire() (bool, error) {
	if l.held {
		return true, nil // Already holding the lock
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating lock file %s: %w", l.path, err)
	}

	_, writeErr := fmt.Fprintf(f, "%d\n", os.Getpid())
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(l.path)
		return false, fmt.Errorf("writing lock file %s: %w", l.path, errors.Join(writeErr, closeErr))
	}

	l.held = true
	return true, nil
}

// Acquire attempts to acquire the lock, polling until the wait elapses.
// A zero wait is equivalent to TryAcquire. Returns true if the lock was
// acquired, false if the wait was exhausted, and an error for
// filesystem failures or context cancellation.
func (l *FileLock) Acquire(ctx context.Context, wait time.Duration) (bool, error) {
	deadline := time.Now().Add(wait)
	for {
		acquired, err := l.TryAcquire()
		if err != nil || acquired {
			return acquired, err
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// AcquireOrFail attempts to acquire the lock immediately.
// Returns nil if the lock is acquired.
// Returns ErrLockHeld, annotated with the holder pid when readable,
// if another collector holds it. A crashed holder leaves the lock file
// behind; removing the file by hand clears it.
func (l *FileLock) AcquireOrFail() error {
	acquired, err := l.TryAcquire()
	if err != nil {
		return err
	}
	if acquired {
		return nil
	}
	if pid, ok := l.HolderPID(); ok {
		return fmt.Errorf("%w: %s (pid %d)", ErrLockHeld, l.path, pid)
	}
	return fmt.Errorf("%w: %s", ErrLockHeld, l.path)
}

// Release removes the lock file.
// Returns true if the lock was released, false if it was not held.
func (l *FileLock) Release() (bool, error) {
	if !l.held {
		return false, nil // Not holding the lock
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("removing lock file %s: %w", l.path, err)
	}
	return true, nil
}

// IsHeld returns true if this lock is currently held by this instance.
func (l *FileLock) IsHeld() bool {
	return l.held
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// HolderPID reads the pid recorded in the lock file. The second return
// is false when the file is missing or does not carry a pid.
func (l *FileLock) HolderPID() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

// WithLock executes a function while holding the lock, ensuring release
// even if the function panics.
//
// Returns:
//   - ErrLockHeld if the lock cannot be acquired within the wait
//   - Any error returned by the function
//   - Any panic from the function is re-raised after releasing the lock
//
// Example:
//
//	err := lock.ForOutput(outputPath).WithLock(ctx, 0, func() error {
//	    return runCollection()
//	})
//	if errors.Is(err, lock.ErrLockHeld) {
//	    log.Error("Another collector is writing this output")
//	}
func (l *FileLock) WithLock(ctx context.Context, wait time.Duration, fn func() error) error {
	acquired, err := l.Acquire(ctx, wait)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		if pid, ok := l.HolderPID(); ok {
			return fmt.Errorf("%w: %s (pid %d)", ErrLockHeld, l.path, pid)
		}
		return fmt.Errorf("%w: %s", ErrLockHeld, l.path)
	}

	// Ensure lock is released even on panic
	defer func() {
		if _, releaseErr := l.Release(); releaseErr != nil {
			// The lock file path is stable, so a failed removal is
			// recoverable by hand; nothing more to do here.
			_ = releaseErr
		}
	}()

	return fn()
}
