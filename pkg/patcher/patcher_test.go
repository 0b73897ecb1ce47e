//go:build unit

package patcher

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/gimera-go/gimera/pkg/gimeralog"
	"github.com/gimera-go/gimera/pkg/gitrepo"
	"github.com/gimera-go/gimera/pkg/manifest"
)

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func setupHost(t *testing.T) (string, *gitrepo.Repo) {
	t.Helper()
	dir := t.TempDir()
	run(t, dir, "init", "-b", "main")
	run(t, dir, "config", "user.name", "Test User")
	run(t, dir, "config", "user.email", "test@example.com")
	return dir, gitrepo.New(dir)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestMakePatchesInPlaceCapturesLocalEdit(t *testing.T) {
	hostDir, host := setupHost(t)
	entryPath := filepath.Join(hostDir, "vendor", "dep")
	writeFile(t, filepath.Join(entryPath, "file.txt"), "original\n")
	patchDir := filepath.Join(hostDir, "patches", "dep")
	if err := os.MkdirAll(patchDir, 0o755); err != nil {
		t.Fatal(err)
	}
	run(t, hostDir, "add", "-A")
	run(t, hostDir, "commit", "-m", "initial")

	m := &manifest.Manifest{
		Repos: []*manifest.Entry{
			{Path: "vendor/dep", Type: manifest.TypeIntegrated, Patches: []string{"patches/dep"}},
		},
	}
	if err := m.SaveAs(filepath.Join(hostDir, manifest.FileName)); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	m, err := manifest.LoadDefault(hostDir)
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	entry := m.Find("vendor/dep")

	writeFile(t, filepath.Join(entryPath, "file.txt"), "edited\n")

	p := New(host, m, t.TempDir(), gimeralog.Discard(), nil)
	if err := p.MakePatches(context.Background(), entry); err != nil {
		t.Fatalf("MakePatches() error = %v", err)
	}

	entries, err := os.ReadDir(patchDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1 captured patch file", len(entries))
	}
}

func TestApplyPatchesSkipsIgnoredAndEdited(t *testing.T) {
	hostDir, host := setupHost(t)
	entryPath := filepath.Join(hostDir, "vendor", "dep")
	writeFile(t, filepath.Join(entryPath, "file.txt"), "base\n")
	patchDir := filepath.Join(hostDir, "patches", "dep")
	writeFile(t, filepath.Join(patchDir, "0001-ignored.patch"), "should not be applied\n")
	writeFile(t, filepath.Join(patchDir, "0002-edited.patch"), "should not be applied either\n")
	run(t, hostDir, "add", "-A")
	run(t, hostDir, "commit", "-m", "initial")

	m := &manifest.Manifest{
		Repos: []*manifest.Entry{
			{
				Path:              "vendor/dep",
				Type:              manifest.TypeIntegrated,
				Patches:           []string{"patches/dep"},
				IgnoredPatchfiles: []string{"0001-ignored.patch"},
				EditPatchfile:     "patches/dep/0002-edited.patch",
			},
		},
	}
	if err := m.SaveAs(filepath.Join(hostDir, manifest.FileName)); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	m, err := manifest.LoadDefault(hostDir)
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	entry := m.Find("vendor/dep")

	p := New(host, m, t.TempDir(), gimeralog.Discard(), nil)
	if err := p.ApplyPatches(context.Background(), entry); err != nil {
		t.Fatalf("ApplyPatches() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(entryPath, "file.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "base\n" {
		t.Fatalf("file.txt = %q, want unchanged (ignored patch must not apply)", data)
	}
}

func TestEditPatchRecordsFieldAndInvokesRefresh(t *testing.T) {
	hostDir, host := setupHost(t)
	entryPath := filepath.Join(hostDir, "vendor", "dep")
	writeFile(t, filepath.Join(entryPath, "file.txt"), "base\n")
	run(t, hostDir, "add", "-A")
	run(t, hostDir, "commit", "-m", "initial")

	m := &manifest.Manifest{
		Repos: []*manifest.Entry{
			{Path: "vendor/dep", Type: manifest.TypeIntegrated},
		},
	}
	if err := m.SaveAs(filepath.Join(hostDir, manifest.FileName)); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	m, err := manifest.LoadDefault(hostDir)
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	entry := m.Find("vendor/dep")

	var refreshed bool
	refresh := func(ctx context.Context, workDir string, e *manifest.Entry) error {
		refreshed = true
		return nil
	}
	p := New(host, m, t.TempDir(), gimeralog.Discard(), refresh)
	if err := p.EditPatch(context.Background(), entry, filepath.Join(hostDir, "patches", "dep", "0001-x.patch")); err != nil {
		t.Fatalf("EditPatch() error = %v", err)
	}
	if !refreshed {
		t.Fatalf("refresh callback was not invoked")
	}

	reloaded, err := manifest.LoadDefault(hostDir)
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if got := reloaded.Find("vendor/dep").EditPatchfile; got != filepath.Join(hostDir, "patches", "dep", "0001-x.patch") {
		t.Fatalf("EditPatchfile = %q, want recorded path", got)
	}
}
