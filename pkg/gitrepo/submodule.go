package gitrepo

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gimera-go/gimera/pkg/gimeraerrors"
)

// Submodule is a handle on one entry reported by `git submodule status`.
type Submodule struct {
	// Path is the submodule path relative to its parent repo.
	Path string
	// Sha is the commit the parent repo currently pins.
	Sha string
	// Repo is rooted at next_module_root, the nearest ancestor
	// directory that contains a .git entry — ordinarily the
	// submodule's own checkout, at <parent>/<Path>.
	Repo *Repo
}

// GetSubmodules parses `git submodule status`, skipping uninitialized
// entries (status '-') and the "./" path git reports for the
// superproject itself.
func (r *Repo) GetSubmodules(ctx context.Context) ([]*Submodule, error) {
	res, err := r.gitAllowError(ctx, "submodule", "status")
	if err != nil {
		return nil, err
	}
	var subs []*Submodule
	scanner := bufio.NewScanner(strings.NewReader(res.Stdout))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		status := line[0]
		rest := strings.TrimSpace(line[1:])
		fields := strings.Fields(rest)
		if len(fields) < 2 {
			continue
		}
		sha, path := fields[0], fields[1]
		if status == '-' || path == "./" {
			continue
		}

		root, err := nextModuleRoot(filepath.Join(r.Path, path))
		if err != nil {
			root = filepath.Join(r.Path, path)
		}
		subs = append(subs, &Submodule{
			Path: path,
			Sha:  sha,
			Repo: New(root),
		})
	}
	return subs, nil
}

// nextModuleRoot finds the nearest ancestor of start (inclusive) that
// contains a .git entry.
func nextModuleRoot(start string) (string, error) {
	return NearestRepoRoot(start)
}

// NearestRepoRoot finds the nearest ancestor of start (inclusive) that
// contains a .git entry, used both to resolve a submodule's own
// checkout root and, by the snapshot engine, to find the repo
// enclosing an arbitrary directory.
func NearestRepoRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no .git ancestor found above %s", start)
		}
		dir = parent
	}
}

// SubmoduleAdd invokes `git submodule add --force -b branch url relpath`.
// On failure it erases any stale entry left under .git/modules/relpath
// and retries once, per spec §4.2.
func (r *Repo) SubmoduleAdd(ctx context.Context, branch, url, relpath string) error {
	args := []string{"submodule", "add", "--force"}
	if branch != "" {
		args = append(args, "-b", branch)
	}
	args = append(args, url, relpath)

	_, err := r.git(ctx, args...)
	if err == nil {
		return nil
	}

	modulesPath := filepath.Join(r.Path, ".git", "modules", relpath)
	_ = os.RemoveAll(modulesPath)

	_, err = r.git(ctx, args...)
	if err != nil {
		return gimeraerrors.SubmoduleAdd(relpath, err)
	}
	return nil
}

// ForceRemoveSubmodule removes a submodule entirely: it strips the
// [submodule "path"] section from .gitmodules and git config, deletes
// the working-tree path, commits the removal, and deletes
// .git/modules/path. It refuses to run against a dirty target path
// unless force is set.
func (r *Repo) ForceRemoveSubmodule(ctx context.Context, path string, force bool) error {
	absPath := filepath.Join(r.Path, path)

	if !force {
		status, err := r.Status(ctx)
		if err != nil {
			return err
		}
		for _, p := range append(append([]string{}, status.DirtyAbs...), status.UntrackedAbs...) {
			if isUnder(p, absPath) {
				return gimeraerrors.SubmoduleAdd(path, fmt.Errorf("refusing to remove dirty submodule %s without force", path))
			}
		}
	}

	_, _ = r.gitAllowError(ctx, "config", "-f", ".gitmodules", "--remove-section", "submodule."+path)
	_, _ = r.gitAllowError(ctx, "config", "--remove-section", "submodule."+path)

	if err := os.RemoveAll(absPath); err != nil && !os.IsNotExist(err) {
		return gimeraerrors.SubmoduleAdd(path, err)
	}

	if _, err := r.git(ctx, "add", ".gitmodules"); err != nil {
		return gimeraerrors.SubmoduleAdd(path, err)
	}
	if _, err := r.gitAllowError(ctx, "add", "-A", "--", path); err != nil {
		return gimeraerrors.SubmoduleAdd(path, err)
	}
	if staged, err := r.hasStaged(ctx); err == nil && staged {
		if _, err := r.git(ctx, "commit", "--no-verify", "-m", fmt.Sprintf("remove submodule %s", path)); err != nil {
			return gimeraerrors.SubmoduleAdd(path, err)
		}
	}

	modulesPath := filepath.Join(r.Path, ".git", "modules", path)
	if err := os.RemoveAll(modulesPath); err != nil && !os.IsNotExist(err) {
		return gimeraerrors.SubmoduleAdd(path, err)
	}
	return nil
}

// Worktree is a scoped resource wrapping `git worktree add`.
type Worktree struct {
	host *Repo
	tmp  string // original worktree path, for `git worktree remove` bookkeeping
	Repo *Repo
}

// NewWorktree creates a temporary worktree at commit, via `git worktree
// add --force <tmp> <commit>`. Callers must call Remove when done.
func (r *Repo) NewWorktree(ctx context.Context, commit string) (*Worktree, error) {
	tmp, err := os.MkdirTemp("", "gimera-worktree-")
	if err != nil {
		return nil, err
	}
	// git worktree add refuses to create into an existing directory.
	if err := os.RemoveAll(tmp); err != nil {
		return nil, err
	}
	if _, err := r.git(ctx, "worktree", "add", "--force", tmp, commit); err != nil {
		return nil, err
	}
	return &Worktree{host: r, tmp: tmp, Repo: New(tmp)}, nil
}

// Remove runs `git worktree remove --force` against the worktree's
// original path to clear the host repo's worktree bookkeeping, then
// deletes whatever is left on disk there (harmless no-op if
// MoveWorktreeContent already emptied it down to nothing).
func (w *Worktree) Remove(ctx context.Context) error {
	_, _ = w.host.gitAllowError(ctx, "worktree", "remove", "--force", w.tmp)
	return os.RemoveAll(w.tmp)
}

// MoveWorktreeContent renames the worktree directory to dest. The
// worktree's `.git` file pointer is pulled out first and moved back
// onto a freshly recreated stub at the original tmp path, so dest ends
// up a plain vendored tree (no nested git repo) while Remove can still
// find a `.git` file there for `git worktree remove` to register
// against.
func (w *Worktree) MoveWorktreeContent(dest string) error {
	gitFile := filepath.Join(w.tmp, ".git")
	data, err := os.ReadFile(gitFile)
	hasGitFile := err == nil
	if hasGitFile {
		if err := os.Remove(gitFile); err != nil {
			return err
		}
	}

	if err := os.Rename(w.tmp, dest); err != nil {
		return err
	}
	w.Repo = New(dest)

	if hasGitFile {
		if err := os.MkdirAll(w.tmp, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(gitFile, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
