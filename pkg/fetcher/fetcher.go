// Package fetcher refreshes the bare caches backing a manifest's
// entries before the apply engine reconciles working trees against
// them. Concurrency follows the pack's golang.org/x/sync convention
// for bounded fan-out (errgroup + semaphore) rather than an unbounded
// goroutine-per-entry loop, since the teacher itself has no
// multi-network-call component to ground this on.
package fetcher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gimera-go/gimera/pkg/cachedir"
	"github.com/gimera-go/gimera/pkg/envtoggle"
	"github.com/gimera-go/gimera/pkg/execx"
	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/gimeralog"
	"github.com/gimera-go/gimera/pkg/manifest"
)

const maxWorkers = 4

// group is one distinct (url, branch) pair and the entries sharing it.
// Dedup is keyed on the pair rather than the URL alone because the
// same upstream vendored at two different branches is a legitimate,
// independent fetch target — see DESIGN.md.
type group struct {
	url     string
	branch  string
	entries []*manifest.Entry
}

// FetchAll refreshes the cache for every enabled entry's (url, branch)
// pair, at most once per pair, per spec §4.5.
func FetchAll(ctx context.Context, cacheRoot string, entries []*manifest.Entry, log *gimeralog.Logger) error {
	groups := groupEntries(entries)
	if len(groups) == 0 {
		return nil
	}

	workers := maxWorkers
	if len(groups) == 1 || envtoggle.NonThreaded() {
		workers = 1
	}

	sem := semaphore.NewWeighted(int64(workers))
	eg, egCtx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	failures := make(map[string]string)

	for _, g := range groups {
		g := g
		eg.Go(func() error {
			if err := sem.Acquire(egCtx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			if err := fetchGroup(egCtx, cacheRoot, g, log); err != nil {
				if envtoggle.IgnoreFetchErrors() {
					if log != nil {
						log.Warn("fetch failed, ignoring", "url", g.url, "branch", g.branch, "error", err)
					}
					return nil
				}
				mu.Lock()
				for _, e := range g.entries {
					failures[e.Path] = err.Error()
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	if len(failures) > 0 {
		return gimeraerrors.Fetch(formatFailureKeys(failures), fmt.Errorf("%d entries failed to fetch: %v", len(failures), failures))
	}
	return nil
}

func groupEntries(entries []*manifest.Entry) []*group {
	index := make(map[string]int)
	var groups []*group
	for _, e := range entries {
		if !e.IsEnabled() {
			continue
		}
		key := e.URL + "\x00" + e.Branch
		if i, ok := index[key]; ok {
			groups[i].entries = append(groups[i].entries, e)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, &group{url: e.URL, branch: e.Branch, entries: []*manifest.Entry{e}})
	}
	return groups
}

func formatFailureKeys(failures map[string]string) string {
	keys := make([]string, 0, len(failures))
	for k := range failures {
		keys = append(keys, k)
	}
	return fmt.Sprint(keys)
}

// fetchGroup refreshes the cache for one (url, branch) pair.
func fetchGroup(ctx context.Context, cacheRoot string, g *group, log *gimeralog.Logger) error {
	probe, err := cachedir.Acquire(ctx, cacheRoot, g.url, cachedir.Options{NoAction: true})
	if err != nil {
		return err
	}
	if probe.Missing() {
		return nil
	}

	if shortcutSatisfied(ctx, probe.Path(), g) {
		return nil
	}

	if err := doFetch(ctx, probe.Path(), g.url, g.branch); err == nil {
		if tipsMatch(ctx, probe.Path(), g.branch) {
			return nil
		}
	}

	// Rebuild once from scratch on mismatch or fetch failure.
	if log != nil {
		log.Info("rebuilding cache from scratch", "url", g.url, "branch", g.branch)
	}
	if err := cachedir.Invalidate(cacheRoot, g.url); err != nil {
		return err
	}
	rebuilt, err := cachedir.Acquire(ctx, cacheRoot, g.url, cachedir.Options{})
	if err != nil {
		return err
	}
	defer rebuilt.Release(true)

	if err := doFetch(ctx, rebuilt.Path(), g.url, g.branch); err != nil {
		return err
	}
	if !tipsMatch(ctx, rebuilt.Path(), g.branch) {
		return fmt.Errorf("fetched branch tip for %s still does not match remote after rebuild", g.url)
	}
	return nil
}

// shortcutSatisfied reports whether every entry in g already has what
// it needs from the cache without a network call: a pinned sha already
// present, or (unpinned) the cache's local branch ref already at the
// remote tip.
func shortcutSatisfied(ctx context.Context, cachePath string, g *group) bool {
	for _, e := range g.entries {
		if e.Sha != "" {
			res, err := execx.Run(ctx, "git", []string{"cat-file", "-t", e.Sha}, execx.Options{Dir: cachePath, AllowError: true})
			if err != nil || res.ExitCode != 0 {
				return false
			}
			continue
		}
		if !tipsMatch(ctx, cachePath, g.branch) {
			return false
		}
	}
	return true
}

func tipsMatch(ctx context.Context, cachePath, branch string) bool {
	local, err := execx.Run(ctx, "git", []string{"rev-parse", "refs/heads/" + branch}, execx.Options{Dir: cachePath, AllowError: true})
	if err != nil || local.ExitCode != 0 {
		return false
	}
	remote, err := execx.Run(ctx, "git", []string{"ls-remote", "origin", branch}, execx.Options{Dir: cachePath, AllowError: true})
	if err != nil || remote.ExitCode != 0 {
		return false
	}
	fields := strings.Fields(remote.Stdout)
	if len(fields) == 0 {
		return false
	}
	remoteTip := fields[0]
	return remoteTip == strings.TrimSpace(local.Stdout)
}

func doFetch(ctx context.Context, cachePath, url, branch string) error {
	remotesRes, err := execx.Run(ctx, "git", []string{"remote"}, execx.Options{Dir: cachePath, AllowError: true})
	if err != nil {
		return err
	}
	remotes := splitNonEmpty(remotesRes.Stdout)
	if len(remotes) == 0 {
		remotes = []string{"origin"}
		if _, err := execx.Run(ctx, "git", []string{"remote", "add", "origin", url}, execx.Options{Dir: cachePath}); err != nil {
			return err
		}
	}

	var lastErr error
	for _, remote := range remotes {
		if _, err := execx.Run(ctx, "git", []string{"remote", "set-url", remote, url}, execx.Options{Dir: cachePath}); err != nil {
			lastErr = err
			continue
		}
		if _, err := execx.Run(ctx, "git", []string{"fetch", remote, branch}, execx.Options{Dir: cachePath}); err != nil {
			altURL := swapScheme(url)
			if altURL != url {
				_, _ = execx.Run(ctx, "git", []string{"remote", "set-url", remote, altURL}, execx.Options{Dir: cachePath})
				if _, err2 := execx.Run(ctx, "git", []string{"fetch", remote, branch}, execx.Options{Dir: cachePath}); err2 != nil {
					lastErr = err2
					continue
				}
			} else {
				lastErr = err
				continue
			}
		}
		if _, err := execx.Run(ctx, "git", []string{"update-ref", "refs/heads/" + branch, "FETCH_HEAD"}, execx.Options{Dir: cachePath}); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// swapScheme flips a URL between the git:// and http(s):// schemes,
// the fallback spec §4.5 names for a failed fetch.
func swapScheme(url string) string {
	switch {
	case strings.HasPrefix(url, "git://"):
		return "https://" + strings.TrimPrefix(url, "git://")
	case strings.HasPrefix(url, "https://"):
		return "git://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "git://" + strings.TrimPrefix(url, "http://")
	default:
		return url
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
