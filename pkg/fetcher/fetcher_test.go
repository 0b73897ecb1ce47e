//go:build unit

package fetcher

import (
	"context"
	"os/exec"
	"testing"

	"github.com/gimera-go/gimera/pkg/cachedir"
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

func makeUpstream(t *testing.T, branch string) string {
	t.Helper()
	dir := t.TempDir()
	run(t, dir, "init", "-b", branch)
	run(t, dir, "config", "user.name", "Test User")
	run(t, dir, "config", "user.email", "test@example.com")
	run(t, dir, "commit", "--allow-empty", "-m", "initial")
	return dir
}

func TestGroupEntriesDedupsByURLAndBranch(t *testing.T) {
	entries := []*manifest.Entry{
		{Path: "a", URL: "https://example.com/x.git", Branch: "main"},
		{Path: "b", URL: "https://example.com/x.git", Branch: "main"},
		{Path: "c", URL: "https://example.com/x.git", Branch: "dev"},
	}
	groups := groupEntries(entries)
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
}

func TestGroupEntriesSkipsDisabled(t *testing.T) {
	f := false
	entries := []*manifest.Entry{
		{Path: "a", URL: "https://example.com/x.git", Branch: "main", Enabled: &f},
	}
	groups := groupEntries(entries)
	if len(groups) != 0 {
		t.Fatalf("len(groups) = %d, want 0 for a disabled-only entry list", len(groups))
	}
}

func TestFetchAllSkipsUnopenedCache(t *testing.T) {
	entries := []*manifest.Entry{
		{Path: "a", URL: "https://example.com/never-cloned.git", Branch: "main"},
	}
	root := t.TempDir()
	if err := FetchAll(context.Background(), root, entries, nil); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
}

func TestFetchAllShortcutsWhenShaAlreadyCached(t *testing.T) {
	upstream := makeUpstream(t, "main")
	root := t.TempDir()
	ctx := context.Background()

	c, err := cachedir.Acquire(ctx, root, upstream, cachedir.Options{})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	headOut, err := exec.Command("git", "-C", c.Path(), "rev-parse", "HEAD").CombinedOutput()
	if err != nil {
		t.Fatalf("rev-parse: %v\n%s", err, headOut)
	}
	sha := string(headOut)
	if len(sha) > 0 && sha[len(sha)-1] == '\n' {
		sha = sha[:len(sha)-1]
	}
	if err := c.Release(true); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	entries := []*manifest.Entry{
		{Path: "a", URL: upstream, Branch: "main", Sha: sha},
	}
	if err := FetchAll(ctx, root, entries, nil); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
}
