//go:build unit

package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/gimera-go/gimera/pkg/manifest"
)

func runGitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return string(out)
}

func initRepo(t *testing.T, dir string) {
	t.Helper()
	runGitCmd(t, dir, "init")
	runGitCmd(t, dir, "symbolic-ref", "HEAD", "refs/heads/main")
	runGitCmd(t, dir, "config", "user.name", "Test User")
	runGitCmd(t, dir, "config", "user.email", "test@example.com")
}

func TestApplyIntegratedEntryVendorsTree(t *testing.T) {
	upstream := t.TempDir()
	initRepo(t, upstream)
	if err := os.WriteFile(filepath.Join(upstream, "hello.txt"), []byte("hello upstream\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGitCmd(t, upstream, "add", "hello.txt")
	runGitCmd(t, upstream, "commit", "--no-verify", "-m", "initial upstream commit")
	upstreamSha := runGitCmd(t, upstream, "rev-parse", "HEAD")
	upstreamSha = trimNewline(upstreamSha)

	host := t.TempDir()
	initRepo(t, host)

	manifestYAML := "repos:\n" +
		"  - path: vendor/dep\n" +
		"    url: " + upstream + "\n" +
		"    branch: main\n" +
		"    type: integrated\n"
	if err := os.WriteFile(filepath.Join(host, manifest.FileName), []byte(manifestYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	runGitCmd(t, host, "add", manifest.FileName)
	runGitCmd(t, host, "commit", "--no-verify", "-m", "add gimera.yml")

	cacheRoot := t.TempDir()
	eng := New(cacheRoot, nil)

	ctx := context.Background()
	if err := eng.Apply(ctx, host, Options{AutoCommit: true}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	vendored := filepath.Join(host, "vendor", "dep", "hello.txt")
	data, err := os.ReadFile(vendored)
	if err != nil {
		t.Fatalf("vendored file missing: %v", err)
	}
	if string(data) != "hello upstream\n" {
		t.Errorf("vendored file content = %q, want %q", data, "hello upstream\n")
	}

	m, err := manifest.LoadDefault(host)
	if err != nil {
		t.Fatalf("reload manifest: %v", err)
	}
	entry := m.Find("vendor/dep")
	if entry == nil {
		t.Fatal("entry vendor/dep missing from reloaded manifest")
	}
	if entry.Sha != upstreamSha {
		t.Errorf("entry.Sha = %q, want %q", entry.Sha, upstreamSha)
	}

	if _, err := os.Stat(filepath.Join(host, "vendor", "dep", ".git")); err == nil {
		t.Errorf("vendored tree should not carry its own .git entry")
	}

	gitignore, err := os.ReadFile(filepath.Join(host, ".gitignore"))
	if err != nil {
		t.Fatalf("read .gitignore: %v", err)
	}
	if !containsLine(string(gitignore), ".gimera/") {
		t.Errorf(".gitignore = %q, want a .gimera/ entry", gitignore)
	}
}

func TestApplyIntegratedEntryNoOpOnSecondRun(t *testing.T) {
	upstream := t.TempDir()
	initRepo(t, upstream)
	if err := os.WriteFile(filepath.Join(upstream, "hello.txt"), []byte("hello upstream\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGitCmd(t, upstream, "add", "hello.txt")
	runGitCmd(t, upstream, "commit", "--no-verify", "-m", "initial upstream commit")

	host := t.TempDir()
	initRepo(t, host)
	manifestYAML := "repos:\n" +
		"  - path: vendor/dep\n" +
		"    url: " + upstream + "\n" +
		"    branch: main\n" +
		"    type: integrated\n"
	if err := os.WriteFile(filepath.Join(host, manifest.FileName), []byte(manifestYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	runGitCmd(t, host, "add", manifest.FileName)
	runGitCmd(t, host, "commit", "--no-verify", "-m", "add gimera.yml")

	cacheRoot := t.TempDir()
	eng := New(cacheRoot, nil)
	ctx := context.Background()

	if err := eng.Apply(ctx, host, Options{AutoCommit: true}); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	headBefore := trimNewline(runGitCmd(t, host, "rev-parse", "HEAD"))
	if err := eng.Apply(ctx, host, Options{AutoCommit: true}); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if headAfter := trimNewline(runGitCmd(t, host, "rev-parse", "HEAD")); headAfter != headBefore {
		t.Errorf("HEAD after second Apply() = %s, want unchanged %s", headAfter, headBefore)
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func containsLine(content, want string) bool {
	for _, line := range splitLinesRaw(content) {
		if line == want {
			return true
		}
	}
	return false
}

func splitLinesRaw(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			line := s[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			out = append(out, line)
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
