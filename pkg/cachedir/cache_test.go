//go:build unit

package cachedir

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestKeyNormalizesAndStrips(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"git@github.com:acme/thing.git", "https---github.com-acme-thing.git"},
		{"https://user@example.com/acme/thing.git", "https---example.com-acme-thing.git"},
	}
	for _, tc := range cases {
		got := Key(tc.url)
		if got != tc.want {
			t.Errorf("Key(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestKeyEquivalentURLsShareACache(t *testing.T) {
	a := Key("git@github.com:acme/thing.git")
	b := Key("https://user@github.com/acme/thing.git")
	if a != b {
		t.Errorf("Key() for equivalent URLs diverged: %q vs %q", a, b)
	}
}

func makeUpstream(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
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
	return dir
}

func TestAcquireBootstrapsAndRelease(t *testing.T) {
	upstream := makeUpstream(t)
	root := t.TempDir()
	ctx := context.Background()

	c, err := Acquire(ctx, root, upstream, Options{})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !isComplete(c.Path()) {
		t.Errorf("Acquire() produced an incomplete cache at %s", c.Path())
	}
	if err := c.Release(true); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	golden := PathFor(root, upstream)
	if !isComplete(golden) {
		t.Errorf("expected golden cache at %s after Release(true)", golden)
	}
	if _, err := os.Stat(golden + ".tar.gz"); err != nil {
		t.Errorf("expected sibling tarball to exist: %v", err)
	}
}

func TestAcquireNoActionReportsMissing(t *testing.T) {
	root := t.TempDir()
	c, err := Acquire(context.Background(), root, "https://example.com/never-cloned.git", Options{NoAction: true})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !c.Missing() {
		t.Errorf("Missing() = false, want true for a never-populated cache")
	}
}

func TestAcquireReusesExistingGoldenCache(t *testing.T) {
	upstream := makeUpstream(t)
	root := t.TempDir()
	ctx := context.Background()

	c1, err := Acquire(ctx, root, upstream, Options{})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := c1.Release(true); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	c2, err := Acquire(ctx, root, upstream, Options{})
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if c2.fresh {
		t.Errorf("second Acquire() re-bootstrapped an already-complete cache")
	}
	if c2.Path() != filepath.Join(root, Key(upstream)) {
		t.Errorf("Path() = %q, want golden path reused", c2.Path())
	}
}
