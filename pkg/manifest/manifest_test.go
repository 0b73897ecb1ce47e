package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesEntries(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
common:
  vars:
    ver: "16.0"
repos:
  - path: vendor/thing
    url: https://example.com/thing.git
    branch: 16
    type: integrated
    patches:
      - patches/thing
  - path: vendor/other
    url: https://example.com/other.git
    branch: main
    type: submodule
`)

	m, err := LoadDefault(dir)
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if len(m.Repos) != 2 {
		t.Fatalf("len(Repos) = %d, want 2", len(m.Repos))
	}
	if m.Repos[0].Branch != "16" {
		t.Errorf("Branch = %q, want coerced \"16\"", m.Repos[0].Branch)
	}
	if m.Repos[0].Type != TypeIntegrated {
		t.Errorf("Type = %q, want integrated", m.Repos[0].Type)
	}
	if !m.Repos[1].IsEnabled() {
		t.Errorf("IsEnabled() = false, want true by default")
	}
}

func TestValidateRejectsDuplicatePath(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
repos:
  - path: vendor/thing
    url: https://example.com/a.git
    branch: main
    type: integrated
  - path: vendor/thing
    url: https://example.com/b.git
    branch: main
    type: submodule
`)
	if _, err := LoadDefault(dir); err == nil {
		t.Fatal("expected duplicate path to be rejected")
	}
}

func TestValidateRejectsTrailingSeparator(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
repos:
  - path: vendor/thing/
    url: https://example.com/a.git
    branch: main
    type: integrated
`)
	if _, err := LoadDefault(dir); err == nil {
		t.Fatal("expected trailing separator to be rejected")
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
repos:
  - path: vendor/thing
    url: https://example.com/a.git
    branch: main
    type: bogus
`)
	if _, err := LoadDefault(dir); err == nil {
		t.Fatal("expected unknown type to be rejected")
	}
}

func TestExpandVarsResolvesAndErrorsOnMissing(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
common:
  vars:
    org: acme
repos:
  - path: vendor/thing
    url: https://example.com/${org}/thing.git
    branch: "${branch_var}"
    type: integrated
`)
	m, err := LoadDefault(dir)
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}

	vars := m.MergeVars(nil)
	err = m.ExpandVars(vars)
	if err == nil {
		t.Fatal("expected unresolved ${branch_var} to error")
	}

	vars["branch_var"] = "main"
	if err := m.ExpandVars(vars); err != nil {
		t.Fatalf("ExpandVars() error = %v", err)
	}
	if m.Repos[0].URL != "https://example.com/acme/thing.git" {
		t.Errorf("URL = %q, want expanded", m.Repos[0].URL)
	}
	if m.Repos[0].Branch != "main" {
		t.Errorf("Branch = %q, want \"main\"", m.Repos[0].Branch)
	}
}

func TestMergesSplitIntoRemoteAndRef(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
repos:
  - path: vendor/thing
    url: https://example.com/thing.git
    branch: main
    type: integrated
    merges:
      - "upstream feature-x"
`)
	m, err := LoadDefault(dir)
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if len(m.Repos[0].Merges) != 1 {
		t.Fatalf("len(Merges) = %d, want 1", len(m.Repos[0].Merges))
	}
	if m.Repos[0].Merges[0].Remote != "upstream" || m.Repos[0].Merges[0].Ref != "feature-x" {
		t.Errorf("Merges[0] = %+v, want {upstream feature-x}", m.Repos[0].Merges[0])
	}
}

func TestAllPatchDirsResolvesOwnPatches(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
repos:
  - path: vendor/thing
    url: https://example.com/thing.git
    branch: main
    type: integrated
    patches:
      - patches/thing
`)
	m, err := LoadDefault(dir)
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}

	dirs, err := m.AllPatchDirs(m.Repos[0], dir, ModeAbsolute)
	if err != nil {
		t.Fatalf("AllPatchDirs() error = %v", err)
	}
	if len(dirs) != 1 {
		t.Fatalf("len(dirs) = %d, want 1", len(dirs))
	}
	wantDir := filepath.Join(dir, "patches", "thing")
	wantApplyFrom := filepath.Join(dir, "vendor", "thing")
	if dirs[0].Dir != wantDir {
		t.Errorf("Dir = %q, want %q", dirs[0].Dir, wantDir)
	}
	if dirs[0].ApplyFrom != wantApplyFrom {
		t.Errorf("ApplyFrom = %q, want %q", dirs[0].ApplyFrom, wantApplyFrom)
	}
}
