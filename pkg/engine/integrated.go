package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gimera-go/gimera/pkg/cachedir"
	"github.com/gimera-go/gimera/pkg/execx"
	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/gimeralog"
	"github.com/gimera-go/gimera/pkg/gitrepo"
	"github.com/gimera-go/gimera/pkg/manifest"
	"github.com/gimera-go/gimera/pkg/patcher"
)

// IntegratedRefresh re-vendors entry's tree from its upstream cache
// into repo, per spec §4.10. pat may be nil — the make-patches
// scratch-repo refresh callback passes nil since that call only needs
// the fresh upstream tree, not a patch application pass.
func IntegratedRefresh(ctx context.Context, repo *gitrepo.Repo, m *manifest.Manifest, entry *manifest.Entry, cacheRoot string, update bool, log *gimeralog.Logger, pat *patcher.Patcher) (string, error) {
	cacheOpts := cachedir.Options{}
	commit := entry.Branch
	if entry.Sha != "" && !update {
		commit = entry.Sha
		cacheOpts.Sha = entry.Sha
	}
	cache, err := cachedir.Acquire(ctx, cacheRoot, entry.URL, cacheOpts)
	if err != nil {
		return "", gimeraerrors.CacheIntegrity(entry.URL, err)
	}
	defer cache.Release(true)

	cacheRepo := gitrepo.New(cache.Path())
	wt, err := cacheRepo.NewWorktree(ctx, commit)
	if err != nil {
		return "", gimeraerrors.Merge(entry.Path, err)
	}
	defer wt.Remove(ctx)

	newSha, err := wt.Repo.Hex(ctx)
	if err != nil {
		return "", gimeraerrors.Merge(entry.Path, err)
	}

	var mergeLines []string
	if len(entry.Merges) > 0 {
		if err := ensureRemote(ctx, wt.Repo, "origin", entry.URL); err != nil {
			return "", gimeraerrors.Merge(entry.Path, err)
		}
		for _, mg := range entry.Merges {
			remoteURL := entry.Remotes[mg.Remote]
			if err := ensureRemote(ctx, wt.Repo, mg.Remote, remoteURL); err != nil {
				return "", gimeraerrors.Merge(entry.Path, err)
			}
			if _, err := execx.Run(ctx, "git", []string{"fetch", mg.Remote, mg.Ref}, execx.Options{Dir: wt.Repo.Path}); err != nil {
				return "", gimeraerrors.Merge(entry.Path, err)
			}
			if _, err := execx.Run(ctx, "git", []string{"pull", "--no-edit", "--no-rebase", mg.Remote, mg.Ref}, execx.Options{Dir: wt.Repo.Path}); err != nil {
				return "", gimeraerrors.Merge(entry.Path, err)
			}
			mergeLines = append(mergeLines, fmt.Sprintf("Merging %s %s", mg.Remote, mg.Ref))
		}
		if h, err := wt.Repo.Hex(ctx); err == nil {
			newSha = h
		}
	}

	dest := filepath.Join(m.Dir(), entry.Path)
	if _, err := os.Stat(dest); err == nil {
		if err := os.RemoveAll(dest); err != nil {
			return "", gimeraerrors.Merge(entry.Path, err)
		}
	}
	if err := wt.MoveWorktreeContent(dest); err != nil {
		return "", gimeraerrors.Merge(entry.Path, err)
	}

	msg := fmt.Sprintf("updated integrated submodule: %s", entry.Path)
	if len(mergeLines) > 0 {
		msg += "\n\n" + strings.Join(mergeLines, "\n")
	}
	if err := repo.CommitDirIfDirty(ctx, entry.Path, msg, true); err != nil {
		return "", gimeraerrors.Merge(entry.Path, err)
	}

	if pat != nil {
		if err := pat.ApplyPatches(ctx, entry); err != nil {
			return "", err
		}
	}

	if manifestRel, relErr := filepath.Rel(repo.Path, m.Path()); relErr == nil {
		if dirty, _ := repo.Dirty(ctx); dirty {
			_, _ = execx.GitAllowError(ctx, repo.Path, "add", "-f", manifestRel)
		}
	}

	if err := repo.CommitDirIfDirty(ctx, entry.Path, msg, true); err != nil {
		return "", gimeraerrors.Merge(entry.Path, err)
	}

	if err := m.Store(ctx, repo, entry, map[string]interface{}{"sha": newSha}); err != nil {
		return "", err
	}

	if entry.EditPatchfile != "" && pat != nil {
		if err := pat.ApplyOnlyEditPatch(ctx, entry); err != nil {
			return "", err
		}
	}

	return newSha, nil
}

// ensureRemote adds name→url, or resets its URL if the remote already
// exists pointing somewhere else, per spec §4.10 step 4.
func ensureRemote(ctx context.Context, repo *gitrepo.Repo, name, url string) error {
	if url == "" {
		return fmt.Errorf("remote %q has no configured url", name)
	}
	res, err := execx.Run(ctx, "git", []string{"remote"}, execx.Options{Dir: repo.Path, AllowError: true})
	if err != nil {
		return err
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.TrimSpace(line) == name {
			_, err := execx.Run(ctx, "git", []string{"remote", "set-url", name, url}, execx.Options{Dir: repo.Path})
			return err
		}
	}
	_, err = execx.Run(ctx, "git", []string{"remote", "add", name, url}, execx.Options{Dir: repo.Path})
	return err
}
