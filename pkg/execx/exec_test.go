package execx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunCapturesOutput(t *testing.T) {
	res, err := Run(context.Background(), "echo", []string{"hello"}, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello\n")
	}
}

func TestRunNonzeroExitIsError(t *testing.T) {
	_, err := Run(context.Background(), "sh", []string{"-c", "exit 3"}, Options{})
	if err == nil {
		t.Fatal("expected error on nonzero exit")
	}
}

func TestRunAllowError(t *testing.T) {
	res, err := Run(context.Background(), "sh", []string{"-c", "exit 3"}, Options{AllowError: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestWaitForIndexLockNoLock(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := WaitForIndexLock(dir); err != nil {
		t.Fatalf("WaitForIndexLock() error = %v", err)
	}
}

func TestWaitForIndexLockStaleReclaimed(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	if err := os.MkdirAll(gitDir, 0o755); err != nil {
		t.Fatal(err)
	}
	lockPath := filepath.Join(gitDir, "index.lock")
	if err := os.WriteFile(lockPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatal(err)
	}

	if err := WaitForIndexLock(dir); err != nil {
		t.Fatalf("WaitForIndexLock() error = %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("expected stale lock to be removed")
	}
}

func TestWithTreeLockSerializes(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	var order []int
	err := WithTreeLock(dir, func() error {
		order = append(order, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("WithTreeLock() error = %v", err)
	}
	err = WithTreeLock(dir, func() error {
		order = append(order, 2)
		return nil
	})
	if err != nil {
		t.Fatalf("WithTreeLock() error = %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v, want [1 2]", order)
	}
}
