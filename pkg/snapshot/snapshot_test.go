//go:build unit

package snapshot

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func setupGitRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init")
	run("config", "user.name", "Test User")
	run("config", "user.email", "test@example.com")
	run("commit", "--allow-empty", "-m", "initial")
}

func TestRecursiveCaptureAndRestoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	setupGitRepo(t, root)

	subDir := filepath.Join(root, "sub1")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	trackedFile := filepath.Join(subDir, "file1.txt")
	if err := os.WriteFile(trackedFile, []byte("original\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command("git", "add", "sub1/file1.txt")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v\n%s", err, out)
	}
	cmd = exec.Command("git", "commit", "-m", "add file1")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v\n%s", err, out)
	}

	// Make a local edit and add an untracked file under sub1.
	if err := os.WriteFile(trackedFile, []byte("edited\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	newFile := filepath.Join(subDir, "file2.txt")
	if err := os.WriteFile(newFile, []byte("new\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	cap, err := Recursive(ctx, root, []string{"sub1"}, "test-token")
	if err != nil {
		t.Fatalf("Recursive() error = %v", err)
	}
	if len(cap.Files) != 1 {
		t.Fatalf("Recursive() captured %d files, want 1", len(cap.Files))
	}

	// The reconciliation step (simulated here by the reset/clean inside
	// Recursive itself) must have discarded the edit and the untracked
	// file.
	data, err := os.ReadFile(trackedFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original\n" {
		t.Errorf("file1.txt after capture = %q, want original content restored", data)
	}
	if _, err := os.Stat(newFile); !os.IsNotExist(err) {
		t.Errorf("expected untracked file2.txt to be removed after capture")
	}

	if err := Restore(ctx, root, []string{"sub1"}, "test-token"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	data, err = os.ReadFile(trackedFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "edited\n" {
		t.Errorf("file1.txt after restore = %q, want %q", data, "edited\n")
	}
	if _, err := os.Stat(newFile); err != nil {
		t.Errorf("expected file2.txt to be restored, stat error = %v", err)
	}
}

func TestListTokensEmpty(t *testing.T) {
	root := t.TempDir()
	tokens, err := ListTokens(root)
	if err != nil {
		t.Fatalf("ListTokens() error = %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("ListTokens() = %v, want empty", tokens)
	}
}

func TestCleanupToken(t *testing.T) {
	root := t.TempDir()
	setupGitRepo(t, root)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(root, "dirty.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cap, err := Recursive(ctx, root, []string{"."}, "cleanup-token")
	if err != nil {
		t.Fatalf("Recursive() error = %v", err)
	}

	tokens, err := ListTokens(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 || tokens[0] != "cleanup-token" {
		t.Fatalf("ListTokens() = %v, want [cleanup-token]", tokens)
	}

	if err := cap.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	tokens, err = ListTokens(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 0 {
		t.Errorf("ListTokens() after Cleanup() = %v, want empty", tokens)
	}
}
