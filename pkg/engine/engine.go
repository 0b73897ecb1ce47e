// Package engine implements ApplyEngine and IntegratedRefresh, the
// reconciliation loop that walks a manifest's entries and brings each
// one's working tree in line with its declared type, pin, and patches,
// per spec §4.9/§4.10. It is the orchestration layer: every other
// package here (manifest, fetcher, gitrepo, resolver, patcher,
// cachedir, snapshot) is a collaborator it drives, the way the
// teacher's pkg/install orchestrates pkg/resource, pkg/workspace, and
// pkg/modifications for a bulk import run.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/gimera-go/gimera/pkg/cachedir"
	"github.com/gimera-go/gimera/pkg/execx"
	"github.com/gimera-go/gimera/pkg/fetcher"
	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/gimeralog"
	"github.com/gimera-go/gimera/pkg/gitrepo"
	"github.com/gimera-go/gimera/pkg/manifest"
	"github.com/gimera-go/gimera/pkg/pattern"
	"github.com/gimera-go/gimera/pkg/resolver"
	"github.com/gimera-go/gimera/pkg/snapshot"
)

// Options configures one Apply invocation, mirroring the `apply(...)`
// parameter list of spec §4.9.
type Options struct {
	// Repos restricts processing to entries whose path matches one of
	// these glob patterns (or is a literal match). Empty means all.
	Repos []string
	// Update re-pulls pinned entries to their branch tip instead of
	// staying at entry.Sha.
	Update bool
	// ForceType, if set, overrides every entry's declared type for this
	// invocation (the CLI's --all-integrated/--all-submodule).
	ForceType manifest.Type
	// Strict disables the "a successful integrated refresh forces
	// subsequent entries to behave as integrated" relaxation.
	Strict bool
	// Recursive descends into entries that carry their own gimera.yml.
	Recursive bool
	// NoPatches skips make_patches before an integrated refresh.
	NoPatches bool
	// RemoveInvalidBranches tolerates a submodule entry whose declared
	// branch no longer exists upstream, logging a warning and leaving
	// the submodule at its current checkout instead of failing.
	RemoveInvalidBranches bool
	// AutoCommit, when false, wraps the root invocation in a
	// stay_at_commit scope so the run's commits collapse back into a
	// single staged changeset.
	AutoCommit bool
	// NoFetch skips the Fetcher pass entirely.
	NoFetch bool
	// MigrateChanges wraps the loop in a snapshot_recursive/restore
	// round trip so uncommitted local edits survive the reconciliation.
	MigrateChanges bool
}

// Engine drives ApplyEngine invocations sharing a cache root and logger.
type Engine struct {
	CacheRoot string
	Log       *gimeralog.Logger
}

// New builds an Engine. An empty cacheRoot defaults to cachedir.Root().
func New(cacheRoot string, log *gimeralog.Logger) *Engine {
	if cacheRoot == "" {
		cacheRoot = cachedir.Root()
	}
	if log == nil {
		log = gimeralog.Discard()
	}
	return &Engine{CacheRoot: cacheRoot, Log: log}
}

// Apply runs the top-level ApplyEngine loop starting from cwd, per spec
// §4.9 steps 1-2, then hands off to runManifest for the rest.
func (eng *Engine) Apply(ctx context.Context, cwd string, opts Options) error {
	hostRootPath, err := gitrepo.NearestRepoRoot(cwd)
	if err != nil {
		return gimeraerrors.Manifest("locate host repo", err)
	}
	host := gitrepo.New(hostRootPath)

	return execx.WithTreeLock(hostRootPath, func() error {
		if err := ensureGimeraIgnored(ctx, host); err != nil {
			return err
		}

		manifestDir := resolver.ClosestGimera(hostRootPath, cwd)
		subPath := mustRel(hostRootPath, manifestDir)

		return eng.runManifest(ctx, hostRootPath, manifestDir, nil, subPath, opts)
	})
}

// runManifest implements spec §4.9 steps 3-8 for one manifest: load and
// expand it, fetch, optionally wrap in stay_at_commit/migrate_changes
// scopes, and reconcile every entry in declaration order.
func (eng *Engine) runManifest(ctx context.Context, hostRootPath, manifestDir string, parentVars map[string]string, subPath string, opts Options) (err error) {
	m, err := manifest.LoadDefault(manifestDir)
	if err != nil {
		return gimeraerrors.Manifest("load manifest", err)
	}

	vars := m.MergeVars(parentVars)
	if err := m.ExpandVars(vars); err != nil {
		return gimeraerrors.Manifest("expand vars", err)
	}

	entries := m.Repos
	if subPath == "" && len(opts.Repos) > 0 {
		entries = filterEntries(entries, opts.Repos)
	}

	repoPath, err := resolver.GetNearestRepo(ctx, hostRootPath, manifestDir)
	if err != nil {
		return gimeraerrors.Manifest("locate enclosing repo", err)
	}
	repo := gitrepo.New(repoPath)

	if !opts.NoFetch {
		if err := fetcher.FetchAll(ctx, eng.CacheRoot, entries, eng.Log); err != nil {
			return err
		}
	}

	if !opts.AutoCommit && subPath == "" {
		stay, stayErr := repo.BeginStayAtCommit(ctx)
		if stayErr != nil {
			return gimeraerrors.Manifest("begin stay_at_commit", stayErr)
		}
		defer func() {
			if relErr := stay.Release(ctx, true); relErr != nil && err == nil {
				err = relErr
			}
		}()
	}

	var cap *snapshot.Capture
	var filterPaths []string
	if opts.MigrateChanges && subPath == "" {
		filterPaths = entryFilterPaths(manifestDir, hostRootPath, entries)
		cap, err = snapshot.Recursive(ctx, hostRootPath, filterPaths, "")
		if err != nil {
			return err
		}
		defer func() {
			if err != nil {
				_ = cap.Cleanup()
			}
		}()
	}

	forcedIntegrated := opts.ForceType == manifest.TypeIntegrated
	for _, entry := range entries {
		if err = eng.reconcileEntry(ctx, hostRootPath, repo, m, entry, vars, opts, &forcedIntegrated); err != nil {
			return err
		}
	}

	if cap != nil {
		if err = snapshot.Restore(ctx, hostRootPath, filterPaths, cap.Token); err != nil {
			return err
		}
	}

	return nil
}

// effectiveType resolves the type an entry should be treated as this
// run: an explicit ForceType wins outright, then a non-strict run's
// "mixed mode" relaxation, then the entry's own declared type.
func effectiveType(entry *manifest.Entry, opts Options, forcedIntegrated bool) manifest.Type {
	if opts.ForceType != "" {
		return opts.ForceType
	}
	if !opts.Strict && forcedIntegrated {
		return manifest.TypeIntegrated
	}
	return entry.Type
}

func filterEntries(entries []*manifest.Entry, repos []string) []*manifest.Entry {
	var out []*manifest.Entry
	for _, e := range entries {
		if pattern.MatchesAny(repos, e.Path) {
			out = append(out, e)
		}
	}
	return out
}

func entryFilterPaths(manifestDir, hostRootPath string, entries []*manifest.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		abs := filepath.Join(manifestDir, e.Path)
		out = append(out, mustRel(hostRootPath, abs))
	}
	return out
}

// mustRel returns path relative to root, or "" when they're equal.
func mustRel(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	if rel == "." {
		return ""
	}
	return rel
}

// ensureGimeraIgnored lists ".gimera/" in the host's .gitignore,
// committing the change if it had to add it, per spec §4.9 step 2.
func ensureGimeraIgnored(ctx context.Context, host *gitrepo.Repo) error {
	gitignorePath := filepath.Join(host.Path, ".gitignore")
	data, _ := os.ReadFile(gitignorePath)
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == ".gimera/" || trimmed == ".gimera" {
			return nil
		}
	}

	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += ".gimera/\n"
	if err := os.WriteFile(gitignorePath, []byte(content), 0o644); err != nil {
		return gimeraerrors.Manifest("write .gitignore", err)
	}
	return gimeraerrors.Manifest("commit .gitignore", host.CommitDirIfDirty(ctx, ".gitignore", "gimera: ignore .gimera directory", false))
}
