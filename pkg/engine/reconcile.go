package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gimera-go/gimera/pkg/cachedir"
	"github.com/gimera-go/gimera/pkg/envtoggle"
	"github.com/gimera-go/gimera/pkg/execx"
	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/gimeralog"
	"github.com/gimera-go/gimera/pkg/gitrepo"
	"github.com/gimera-go/gimera/pkg/manifest"
	"github.com/gimera-go/gimera/pkg/patcher"
)

// reconcileEntry runs one manifest entry through spec §4.9 step 7: mode
// switching, submodule or integrated reconciliation, and the recursive
// descent into a nested manifest.
func (eng *Engine) reconcileEntry(ctx context.Context, hostRootPath string, repo *gitrepo.Repo, m *manifest.Manifest, entry *manifest.Entry, vars map[string]string, opts Options, forcedIntegrated *bool) error {
	if !entry.IsEnabled() {
		return nil
	}

	effType := effectiveType(entry, opts, *forcedIntegrated)

	if err := turnIntoCorrectRepotype(ctx, repo, entry, effType, eng.CacheRoot); err != nil {
		return err
	}

	switch effType {
	case manifest.TypeSubmodule:
		if _, err := reconcileSubmodule(ctx, repo, m, entry, eng.CacheRoot, opts, eng.Log); err != nil {
			return err
		}
	case manifest.TypeIntegrated:
		refresh := func(rctx context.Context, workDir string, e *manifest.Entry) error {
			scratchRepo := gitrepo.New(workDir)
			_, err := IntegratedRefresh(rctx, scratchRepo, m.WithDir(workDir), e, eng.CacheRoot, opts.Update, eng.Log, nil)
			return err
		}
		pat := patcher.New(repo, m, eng.CacheRoot, eng.Log, refresh)
		if !opts.NoPatches {
			if err := pat.MakePatches(ctx, entry); err != nil {
				return err
			}
		}
		if _, err := IntegratedRefresh(ctx, repo, m, entry, eng.CacheRoot, opts.Update, eng.Log, pat); err != nil {
			return err
		}
		*forcedIntegrated = true
	}

	if opts.Recursive {
		entryDir := filepath.Join(m.Dir(), entry.Path)
		if manifest.Exists(entryDir) {
			childSubPath := mustRel(hostRootPath, entryDir)
			if err := eng.runManifest(ctx, hostRootPath, entryDir, vars, childSubPath, opts); err != nil {
				return err
			}
			msg := fmt.Sprintf("gimera: updated submodule %s", entry.Path)
			if err := repo.CommitDirIfDirty(ctx, entry.Path, msg, true); err != nil {
				return gimeraerrors.Manifest("commit recursive entry", err)
			}
		}
	}

	return nil
}

// turnIntoCorrectRepotype reconciles what's actually on disk with
// effType, per spec §4.9 step 7 first bullet.
func turnIntoCorrectRepotype(ctx context.Context, repo *gitrepo.Repo, entry *manifest.Entry, effType manifest.Type, cacheRoot string) error {
	relPath := entry.Path
	subs, err := repo.GetSubmodules(ctx)
	if err != nil {
		return gimeraerrors.SubmoduleAdd(relPath, err)
	}
	isSub := false
	for _, s := range subs {
		if filepath.Clean(s.Path) == filepath.Clean(relPath) {
			isSub = true
			break
		}
	}

	switch effType {
	case manifest.TypeIntegrated:
		if isSub {
			if err := repo.ForceRemoveSubmodule(ctx, relPath, envtoggle.Force()); err != nil {
				return err
			}
		}
	case manifest.TypeSubmodule:
		currentURL := gitmodulesURL(ctx, repo, relPath)
		switch {
		case !isSub:
			if err := installSubmodule(ctx, repo, entry, cacheRoot); err != nil {
				return err
			}
		case currentURL != "" && currentURL != entry.URL:
			if err := repo.ForceRemoveSubmodule(ctx, relPath, true); err != nil {
				return err
			}
			if err := installSubmodule(ctx, repo, entry, cacheRoot); err != nil {
				return err
			}
		}
	}
	return nil
}

// installSubmodule adds entry as a fresh submodule pointed at its
// local cache, then rewrites the recorded URL to the declared one, per
// spec §4.9 step 7 ("delete any leftover .git/modules/<relpath> and
// stale working-tree contents" / "rewrite its URL to the declared
// URL").
func installSubmodule(ctx context.Context, repo *gitrepo.Repo, entry *manifest.Entry, cacheRoot string) error {
	relPath := entry.Path
	_ = os.RemoveAll(filepath.Join(repo.Path, ".git", "modules", relPath))
	if _, err := os.Stat(filepath.Join(repo.Path, relPath)); err == nil {
		if err := os.RemoveAll(filepath.Join(repo.Path, relPath)); err != nil {
			return gimeraerrors.SubmoduleAdd(relPath, err)
		}
	}

	cache, err := cachedir.Acquire(ctx, cacheRoot, entry.URL, cachedir.Options{})
	if err != nil {
		return gimeraerrors.CacheIntegrity(entry.URL, err)
	}
	defer cache.Release(true)

	if err := repo.SubmoduleAdd(ctx, entry.Branch, "file://"+cache.Path(), relPath); err != nil {
		return err
	}

	if _, err := execx.Run(ctx, "git", []string{"config", "-f", ".gitmodules", "submodule." + relPath + ".url", entry.URL}, execx.Options{Dir: repo.Path}); err != nil {
		return gimeraerrors.SubmoduleAdd(relPath, err)
	}
	if _, err := repo.GitAdd(ctx, ".gitmodules"); err != nil {
		return gimeraerrors.SubmoduleAdd(relPath, err)
	}
	return nil
}

func gitmodulesURL(ctx context.Context, repo *gitrepo.Repo, relPath string) string {
	res, err := execx.Run(ctx, "git", []string{"config", "-f", ".gitmodules", "--get", "submodule." + relPath + ".url"}, execx.Options{Dir: repo.Path, AllowError: true})
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}

// reconcileSubmodule checks out and fetches a submodule entry per spec
// §4.9 step 7 second bullet, returning its new commit hash.
func reconcileSubmodule(ctx context.Context, repo *gitrepo.Repo, m *manifest.Manifest, entry *manifest.Entry, cacheRoot string, opts Options, log *gimeralog.Logger) (string, error) {
	relPath := entry.Path

	cacheOpts := cachedir.Options{}
	if entry.Sha != "" {
		cacheOpts.Sha = entry.Sha
		cacheOpts.ExpectUpdate = opts.Update
	}
	cache, err := cachedir.Acquire(ctx, cacheRoot, entry.URL, cacheOpts)
	if err != nil {
		return "", gimeraerrors.CacheIntegrity(entry.URL, err)
	}
	defer cache.Release(true)

	origURL := gitmodulesURL(ctx, repo, relPath)
	if _, err := execx.Run(ctx, "git", []string{"config", "submodule." + relPath + ".url", cache.Path()}, execx.Options{Dir: repo.Path}); err != nil {
		return "", gimeraerrors.SubmoduleAdd(relPath, err)
	}
	_, updateErr := execx.Run(ctx, "git", []string{"submodule", "update", "--init", "--recursive", relPath}, execx.Options{Dir: repo.Path})
	restoreURL := entry.URL
	if origURL != "" {
		restoreURL = origURL
	}
	_, _ = execx.Run(ctx, "git", []string{"config", "submodule." + relPath + ".url", restoreURL}, execx.Options{Dir: repo.Path})
	if updateErr != nil {
		return "", gimeraerrors.SubmoduleAdd(relPath, updateErr)
	}

	subRepo := gitrepo.New(filepath.Join(repo.Path, relPath))

	if opts.RemoveInvalidBranches && !subRepo.ContainsBranch(ctx, entry.Branch) {
		if log != nil {
			log.Warn("declared branch not found upstream, leaving submodule at current checkout", "entry", entry.Path, "branch", entry.Branch)
		}
	} else if entry.Sha != "" {
		if !subRepo.ContainCommit(ctx, entry.Sha) {
			_, _ = execx.Run(ctx, "git", []string{"fetch", "origin"}, execx.Options{Dir: subRepo.Path})
		}
		if !subRepo.ContainCommit(ctx, entry.Sha) {
			return "", gimeraerrors.Merge(entry.Path, fmt.Errorf("sha %s not found in submodule after fetch", entry.Sha))
		}
		if tip := remoteBranchTip(ctx, subRepo, entry.Branch); tip != "" && tip == entry.Sha {
			_, _ = execx.Run(ctx, "git", []string{"checkout", entry.Branch}, execx.Options{Dir: subRepo.Path})
		} else {
			_, _ = execx.Run(ctx, "git", []string{"checkout", entry.Sha}, execx.Options{Dir: subRepo.Path})
		}
		if opts.Update {
			_, _ = execx.Run(ctx, "git", []string{"checkout", entry.Branch}, execx.Options{Dir: subRepo.Path})
			_, _ = execx.Run(ctx, "git", []string{"pull", "--rebase", "--autostash"}, execx.Options{Dir: subRepo.Path})
		}
	} else {
		_, _ = execx.Run(ctx, "git", []string{"checkout", entry.Branch}, execx.Options{Dir: subRepo.Path})
		if opts.Update {
			_, _ = execx.Run(ctx, "git", []string{"pull", "--rebase", "--autostash"}, execx.Options{Dir: subRepo.Path})
		}
	}

	newSha, err := subRepo.Hex(ctx)
	if err != nil {
		return "", gimeraerrors.SubmoduleAdd(relPath, err)
	}

	if subDirty, _ := subRepo.Dirty(ctx); !subDirty {
		msg := fmt.Sprintf("gimera: updated submodule %s", relPath)
		if err := repo.CommitDirIfDirty(ctx, relPath, msg, false); err != nil {
			return "", gimeraerrors.Manifest("commit submodule pointer", err)
		}
	}

	if err := m.Store(ctx, repo, entry, map[string]interface{}{"sha": newSha}); err != nil {
		return "", err
	}
	return newSha, nil
}

func remoteBranchTip(ctx context.Context, repo *gitrepo.Repo, branch string) string {
	res, err := execx.Run(ctx, "git", []string{"rev-parse", "origin/" + branch}, execx.Options{Dir: repo.Path, AllowError: true})
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}
