package cachedir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/gimera-go/gimera/pkg/execx"
	"github.com/gimera-go/gimera/pkg/gimeraerrors"
)

// requiredEntries are the bare-repo paths whose absence marks a cache
// as incomplete and due for a rebuild, per spec §3's cache lifecycle
// note.
var requiredEntries = []string{"HEAD", "refs", "objects", "config", "info"}

// Options configures an Acquire call.
type Options struct {
	// Sha, if set, must be present in the cache (after a fetch, if
	// necessary) for Acquire to succeed.
	Sha string
	// ExpectUpdate suppresses the hard failure when Sha is still
	// missing after `git fetch --all`; the caller is expected to fetch
	// it forward itself (set by submodule reconciliation when an apply
	// runs with --update).
	ExpectUpdate bool
	// NoAction skips cloning/bootstrapping entirely and simply reports
	// whether a usable cache already exists (the Fetcher's "skip if
	// the cache does not exist" no-action variant).
	NoAction bool
}

// Cache is a scoped resource: the golden, on-disk cache path for one
// URL, possibly backed for the duration of this call by a freshly
// populated temporary clone.
type Cache struct {
	root    string
	url     string
	golden  string
	tmp     string
	fresh   bool // true if tmp was freshly populated this call
	missing bool // true if NoAction found no usable cache
}

// Path returns the cache directory to operate against: the temporary
// clone if one was freshly populated this call, else the golden path.
func (c *Cache) Path() string {
	if c.fresh {
		return c.tmp
	}
	return c.golden
}

// Missing reports whether NoAction found no usable cache (only
// meaningful when Options.NoAction was set).
func (c *Cache) Missing() bool { return c.missing }

func isComplete(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	for _, name := range requiredEntries {
		if _, err := os.Stat(filepath.Join(path, name)); err != nil {
			return false
		}
	}
	return true
}

// Acquire opens (bootstrapping if necessary) the cache for url under
// root, per spec §4.4.
func Acquire(ctx context.Context, root, url string, opts Options) (*Cache, error) {
	golden := PathFor(root, url)
	c := &Cache{root: root, url: url, golden: golden}

	complete := isComplete(golden)

	if opts.NoAction {
		if !complete {
			c.missing = true
		}
		return c, nil
	}

	if !complete {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, gimeraerrors.CacheIntegrity(Key(url), err)
		}
		tmp := filepath.Join(root, uuid.NewString())

		tarball := golden + ".tar.gz"
		if _, err := os.Stat(tarball); err == nil {
			if err := os.MkdirAll(tmp, 0o755); err != nil {
				return nil, gimeraerrors.CacheIntegrity(Key(url), err)
			}
			if _, err := execx.Tar(ctx, tmp, "-xzf", tarball); err != nil {
				return nil, gimeraerrors.CacheIntegrity(Key(url), fmt.Errorf("extract tarball: %w", err))
			}
		} else {
			if _, err := execx.Run(ctx, "git", []string{"clone", "--bare", url, tmp}, execx.Options{}); err != nil {
				return nil, gimeraerrors.CacheIntegrity(Key(url), fmt.Errorf("bare clone: %w", err))
			}
			if _, err := execx.Run(ctx, "tar", []string{"-czf", tarball, "-C", tmp, "."}, execx.Options{}); err != nil {
				return nil, gimeraerrors.CacheIntegrity(Key(url), fmt.Errorf("create tarball: %w", err))
			}
		}

		c.tmp = tmp
		c.fresh = true
	}

	if opts.Sha != "" {
		if err := c.ensureSha(ctx, opts.Sha, opts.ExpectUpdate); err != nil {
			c.cleanupTmp()
			return nil, err
		}
	}

	return c, nil
}

func (c *Cache) ensureSha(ctx context.Context, sha string, expectUpdate bool) error {
	path := c.Path()
	res, err := execx.Run(ctx, "git", []string{"cat-file", "-t", sha}, execx.Options{Dir: path, AllowError: true})
	if err == nil && res.ExitCode == 0 {
		return nil
	}

	if _, err := execx.Run(ctx, "git", []string{"fetch", "--all"}, execx.Options{Dir: path}); err != nil {
		return gimeraerrors.CacheIntegrity(Key(c.url), fmt.Errorf("fetch --all: %w", err))
	}

	res, err = execx.Run(ctx, "git", []string{"cat-file", "-t", sha}, execx.Options{Dir: path, AllowError: true})
	if err == nil && res.ExitCode == 0 {
		return nil
	}
	if expectUpdate {
		return nil
	}
	return gimeraerrors.CacheIntegrity(Key(c.url), fmt.Errorf("sha %s not found in cache after fetch --all", sha))
}

func (c *Cache) cleanupTmp() {
	if c.tmp != "" {
		_ = os.RemoveAll(c.tmp)
		c.tmp = ""
		c.fresh = false
	}
}

// Release completes the scope: on success with a freshly populated
// temp clone, atomically swaps it in as the new golden cache; the
// temporary path is always removed.
func (c *Cache) Release(success bool) error {
	defer c.cleanupTmp()

	if !c.fresh || !success {
		return nil
	}

	old := c.golden + ".old-" + uuid.NewString()
	if _, err := os.Stat(c.golden); err == nil {
		if err := os.Rename(c.golden, old); err != nil {
			return gimeraerrors.CacheIntegrity(Key(c.url), err)
		}
		defer os.RemoveAll(old)
	}
	if err := os.Rename(c.tmp, c.golden); err != nil {
		return gimeraerrors.CacheIntegrity(Key(c.url), err)
	}
	c.tmp = ""
	c.fresh = false
	return nil
}

// Invalidate deletes the golden cache entirely, forcing the next
// Acquire to rebuild from scratch (used by the Fetcher when a fetched
// tip mismatches the remote).
func Invalidate(root, url string) error {
	return os.RemoveAll(PathFor(root, url))
}
