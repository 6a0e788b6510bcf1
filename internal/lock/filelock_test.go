// Package lock provides file-based advisory locking for symtrace.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ============================================================================
// Test Helpers
// ============================================================================

func tempLockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "symtrace.json.lock")
}

// ============================================================================
// TryAcquire
// ============================================================================

func TestTryAcquire_Success(t *testing.T) {
	l := New(tempLockPath(t))

	acquired, err := l.TryAcquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Fatal("expected lock to be acquired")
	}
	if !l.IsHeld() {
		t.Error("expected IsHeld to report true")
	}
	if _, statErr := os.Stat(l.Path()); statErr != nil {
		t.Errorf("expected lock file to exist: %v", statErr)
	}
}

func TestTryAcquire_Contention(t *testing.T) {
	path := tempLockPath(t)

	first := New(path)
	if acquired, err := first.TryAcquire(); err != nil || !acquired {
		t.Fatalf("first acquire failed: acquired=%v err=%v", acquired, err)
	}

	second := New(path)
	acquired, err := second.TryAcquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Error("expected second acquire to fail while lock is held")
	}
	if second.IsHeld() {
		t.Error("expected second lock to not be held")
	}
}

func TestTryAcquire_Idempotent(t *testing.T) {
	l := New(tempLockPath(t))

	if acquired, err := l.TryAcquire(); err != nil || !acquired {
		t.Fatalf("first acquire failed: acquired=%v err=%v", acquired, err)
	}
	// Acquiring a lock we already hold succeeds without touching the file.
	if acquired, err := l.TryAcquire(); err != nil || !acquired {
		t.Fatalf("re-acquire failed: acquired=%v err=%v", acquired, err)
	}
}

func TestTryAcquire_AfterRelease(t *testing.T) {
	path := tempLockPath(t)

	first := New(path)
	if acquired, _ := first.TryAcquire(); !acquired {
		t.Fatal("expected first acquire to succeed")
	}
	if released, err := first.Release(); err != nil || !released {
		t.Fatalf("release failed: released=%v err=%v", released, err)
	}

	second := New(path)
	acquired, err := second.TryAcquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected acquire to succeed after release")
	}
}

func TestTryAcquire_RecordsPID(t *testing.T) {
	l := New(tempLockPath(t))
	if acquired, _ := l.TryAcquire(); !acquired {
		t.Fatal("expected acquire to succeed")
	}

	pid, ok := l.HolderPID()
	if !ok {
		t.Fatal("expected holder pid to be readable")
	}
	if pid != os.Getpid() {
		t.Errorf("expected holder pid %d, got %d", os.Getpid(), pid)
	}
}

// ============================================================================
// Acquire with wait
// ============================================================================

func TestAcquire_WaitsForRelease(t *testing.T) {
	path := tempLockPath(t)

	first := New(path)
	if acquired, _ := first.TryAcquire(); !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	go func() {
		time.Sleep(250 * time.Millisecond)
		_, _ = first.Release()
	}()

	second := New(path)
	acquired, err := second.Acquire(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected acquire to succeed once the lock was released")
	}
}

func TestAcquire_WaitExhausted(t *testing.T) {
	path := tempLockPath(t)

	first := New(path)
	if acquired, _ := first.TryAcquire(); !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	second := New(path)
	acquired, err := second.Acquire(context.Background(), 300*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Error("expected acquire to fail while lock stays held")
	}
}

func TestAcquire_ContextCancelled(t *testing.T) {
	path := tempLockPath(t)

	first := New(path)
	if acquired, _ := first.TryAcquire(); !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	second := New(path)
	_, err := second.Acquire(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// ============================================================================
// AcquireOrFail
// ============================================================================

func TestAcquireOrFail_Success(t *testing.T) {
	l := New(tempLockPath(t))
	if err := l.AcquireOrFail(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAcquireOrFail_Held(t *testing.T) {
	path := tempLockPath(t)

	first := New(path)
	if acquired, _ := first.TryAcquire(); !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	err := New(path).AcquireOrFail()
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	// The error names the holder so the operator can check the process.
	wantPid := fmt.Sprintf("pid %d", os.Getpid())
	if got := err.Error(); !strings.Contains(got, wantPid) {
		t.Errorf("expected error to mention %q, got %q", wantPid, got)
	}
}

// ============================================================================
// Release
// ============================================================================

func TestRelease_NotHeld(t *testing.T) {
	l := New(tempLockPath(t))
	released, err := l.Release()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released {
		t.Error("expected release of an unheld lock to report false")
	}
}

func TestRelease_RemovesFile(t *testing.T) {
	l := New(tempLockPath(t))
	if acquired, _ := l.TryAcquire(); !acquired {
		t.Fatal("expected acquire to succeed")
	}

	released, err := l.Release()
	if err != nil || !released {
		t.Fatalf("release failed: released=%v err=%v", released, err)
	}
	if _, statErr := os.Stat(l.Path()); !os.IsNotExist(statErr) {
		t.Error("expected lock file to be removed")
	}
	if l.IsHeld() {
		t.Error("expected IsHeld to report false after release")
	}
}

// ============================================================================
// ForOutput
// ============================================================================

func TestForOutput_PathDerivation(t *testing.T) {
	l := ForOutput("/data/out/symtrace.json")
	if l.Path() != "/data/out/symtrace.json.lock" {
		t.Errorf("unexpected lock path: %s", l.Path())
	}
}

// ============================================================================
// WithLock
// ============================================================================

func TestWithLock_RunsFunction(t *testing.T) {
	l := New(tempLockPath(t))

	ran := false
	err := l.WithLock(context.Background(), 0, func() error {
		ran = true
		if !l.IsHeld() {
			t.Error("expected lock to be held inside the function")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected function to run")
	}
	if l.IsHeld() {
		t.Error("expected lock to be released after the function")
	}
}

func TestWithLock_PropagatesError(t *testing.T) {
	l := New(tempLockPath(t))

	wantErr := errors.New("collection failed")
	err := l.WithLock(context.Background(), 0, func() error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected function error to propagate, got %v", err)
	}
	if l.IsHeld() {
		t.Error("expected lock to be released after an error")
	}
}

func TestWithLock_Held(t *testing.T) {
	path := tempLockPath(t)

	first := New(path)
	if acquired, _ := first.TryAcquire(); !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	err := New(path).WithLock(context.Background(), 0, func() error {
		t.Error("function must not run when the lock is held elsewhere")
		return nil
	})
	if !errors.Is(err, ErrLockHeld) {
		t.Errorf("expected ErrLockHeld, got %v", err)
	}
}

func TestWithLock_ReleasesOnPanic(t *testing.T) {
	path := tempLockPath(t)
	l := New(path)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the panic to propagate")
			}
		}()
		_ = l.WithLock(context.Background(), 0, func() error {
			panic("boom")
		})
	}()

	// Lock must be reusable after the panic.
	acquired, err := New(path).TryAcquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected lock to be acquirable after panic release")
	}
}
