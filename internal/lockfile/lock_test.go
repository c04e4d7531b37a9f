package lockfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNamedLockAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claim.lock")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.TryAcquire(); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if _, err := os.Stat(path + ".info"); err != nil {
		t.Fatalf("expected info sidecar to be written: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lock file must be retained after release: %v", err)
	}
}

func TestNamedLockContendedFromAnotherHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.lock")

	l1, err := Open(path)
	if err != nil {
		t.Fatalf("Open l1: %v", err)
	}
	if err := l1.TryAcquire(); err != nil {
		t.Fatalf("TryAcquire l1: %v", err)
	}
	defer l1.Release()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("Open l2: %v", err)
	}
	defer l2.Release()

	if err := l2.TryAcquire(); err == nil {
		t.Fatalf("expected l2.TryAcquire to fail while l1 holds the lock")
	} else if !IsLocked(err) {
		t.Fatalf("expected IsLocked(err) to be true, got %v", err)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("expected current process to be running")
	}
	if isProcessRunning(0) {
		t.Error("expected pid 0 to report not running")
	}
}
