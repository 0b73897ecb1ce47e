//go:build unit

package resolver

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

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "gimera.yml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGetEffectiveStateRootEntry(t *testing.T) {
	root := t.TempDir()
	setupGitRepo(t, root)
	writeManifest(t, root, `
repos:
  - path: vendor/dep
    url: https://example.com/dep.git
    branch: main
    type: integrated
`)
	if err := os.MkdirAll(filepath.Join(root, "vendor", "dep"), 0o755); err != nil {
		t.Fatal(err)
	}

	st, err := GetEffectiveState(context.Background(), root, filepath.Join(root, "vendor", "dep", "file.txt"))
	if err != nil {
		t.Fatalf("GetEffectiveState() error = %v", err)
	}
	if st.ParentGimera != root {
		t.Errorf("ParentGimera = %q, want %q", st.ParentGimera, root)
	}
	if st.ParentRepo != root {
		t.Errorf("ParentRepo = %q, want %q", st.ParentRepo, root)
	}
	wantRel := filepath.Join("vendor", "dep", "file.txt")
	if st.ParentGimeraRelpath != wantRel {
		t.Errorf("ParentGimeraRelpath = %q, want %q", st.ParentGimeraRelpath, wantRel)
	}
	if st.IsSubmodule {
		t.Errorf("IsSubmodule = true, want false (not installed as a submodule)")
	}
}

func TestGetEffectiveStateOwnManifestBoundary(t *testing.T) {
	root := t.TempDir()
	setupGitRepo(t, root)
	writeManifest(t, root, `
repos:
  - path: vendor/dep
    url: https://example.com/dep.git
    branch: main
    type: integrated
`)
	entryDir := filepath.Join(root, "vendor", "dep")
	if err := os.MkdirAll(entryDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, entryDir, `
repos:
  - path: nested
    url: https://example.com/nested.git
    branch: main
    type: integrated
`)

	st, err := GetEffectiveState(context.Background(), root, entryDir)
	if err != nil {
		t.Fatalf("GetEffectiveState() error = %v", err)
	}
	if st.ParentGimera != entryDir {
		t.Errorf("ParentGimera = %q, want %q (entry's own manifest is the boundary)", st.ParentGimera, entryDir)
	}
}

func TestGetNearestRepoNoSubmodules(t *testing.T) {
	root := t.TempDir()
	setupGitRepo(t, root)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := GetNearestRepo(context.Background(), root, nested)
	if err != nil {
		t.Fatalf("GetNearestRepo() error = %v", err)
	}
	if got != root {
		t.Errorf("GetNearestRepo() = %q, want %q", got, root)
	}
}

func TestGetNearestRepoDescendsIntoSubmodule(t *testing.T) {
	upstream := t.TempDir()
	setupGitRepo(t, upstream)

	root := t.TempDir()
	setupGitRepo(t, root)
	cmd := exec.Command("git", "submodule", "add", "--force", upstream, "vendor/dep")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git submodule add: %v\n%s", err, out)
	}

	target := filepath.Join(root, "vendor", "dep", "inner")
	got, err := GetNearestRepo(context.Background(), root, target)
	if err != nil {
		t.Fatalf("GetNearestRepo() error = %v", err)
	}
	want := filepath.Join(root, "vendor", "dep")
	if got != want {
		t.Errorf("GetNearestRepo() = %q, want %q", got, want)
	}
}

func TestIsSubmodulePath(t *testing.T) {
	upstream := t.TempDir()
	setupGitRepo(t, upstream)

	root := t.TempDir()
	setupGitRepo(t, root)
	cmd := exec.Command("git", "submodule", "add", "--force", upstream, "vendor/dep")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git submodule add: %v\n%s", err, out)
	}

	isSub, err := isSubmodulePath(context.Background(), root, "vendor/dep")
	if err != nil {
		t.Fatalf("isSubmodulePath() error = %v", err)
	}
	if !isSub {
		t.Errorf("isSubmodulePath() = false, want true")
	}

	isSub, err = isSubmodulePath(context.Background(), root, "vendor/other")
	if err != nil {
		t.Fatalf("isSubmodulePath() error = %v", err)
	}
	if isSub {
		t.Errorf("isSubmodulePath() = true for unrelated path, want false")
	}
}
