// Package gitrepo wraps the git working-tree operations the apply
// engine, patcher, and snapshot layers build on. Every call shells out
// via pkg/execx rather than an in-process git implementation, matching
// the teacher repo's pkg/repo/pkg/source convention of driving git
// through exec.Command and surfacing CombinedOutput on failure.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gimera-go/gimera/pkg/execx"
)

// Repo is a handle on a single working tree rooted at Path.
type Repo struct {
	Path string
}

// New returns a handle rooted at path. It does not verify path is a
// git working tree; callers that need that guarantee should call
// IsGitRepo or rely on an operation failing naturally.
func New(path string) *Repo {
	return &Repo{Path: path}
}

// IsGitRepo reports whether Path contains a .git entry (directory, for
// a normal repo, or file, for a submodule/worktree).
func (r *Repo) IsGitRepo() bool {
	_, err := os.Stat(filepath.Join(r.Path, ".git"))
	return err == nil
}

// git runs `git <args>` against this repo's working tree, waiting out
// any index.lock held on it first.
func (r *Repo) git(ctx context.Context, args ...string) (execx.Result, error) {
	if err := execx.WaitForIndexLock(r.Path); err != nil {
		return execx.Result{}, err
	}
	return execx.Git(ctx, r.Path, args...)
}

func (r *Repo) gitAllowError(ctx context.Context, args ...string) (execx.Result, error) {
	if err := execx.WaitForIndexLock(r.Path); err != nil {
		return execx.Result{}, err
	}
	return execx.GitAllowError(ctx, r.Path, args...)
}

// GitAdd stages the given repo-relative paths.
func (r *Repo) GitAdd(ctx context.Context, paths ...string) (execx.Result, error) {
	args := append([]string{"add", "--"}, paths...)
	return r.git(ctx, args...)
}

// GitCommitNoVerify commits currently staged changes with msg and
// --no-verify.
func (r *Repo) GitCommitNoVerify(ctx context.Context, msg string) (execx.Result, error) {
	return r.git(ctx, "commit", "--no-verify", "-m", msg)
}

// Hex returns the commit hash of HEAD.
func (r *Repo) Hex(ctx context.Context) (string, error) {
	res, err := r.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// GetBranch returns the current branch name, or "" (never an error) if
// HEAD is detached or the lookup otherwise fails.
func (r *Repo) GetBranch(ctx context.Context) string {
	res, err := r.gitAllowError(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}

// Contains reports whether commit is an ancestor of (or equal to) HEAD.
func (r *Repo) Contains(ctx context.Context, commit string) bool {
	res, err := r.gitAllowError(ctx, "merge-base", "--is-ancestor", commit, "HEAD")
	return err == nil && res.ExitCode == 0
}

// ContainsBranch reports whether branch exists, locally or as a remote
// tracking ref.
func (r *Repo) ContainsBranch(ctx context.Context, branch string) bool {
	res, err := r.gitAllowError(ctx, "rev-parse", "--verify", "--quiet", branch)
	if err == nil && res.ExitCode == 0 {
		return true
	}
	res, err = r.gitAllowError(ctx, "rev-parse", "--verify", "--quiet", "origin/"+branch)
	return err == nil && res.ExitCode == 0
}

// ContainCommit reports whether commit resolves to a valid object in
// this repo.
func (r *Repo) ContainCommit(ctx context.Context, commit string) bool {
	res, err := r.gitAllowError(ctx, "cat-file", "-e", commit)
	return err == nil && res.ExitCode == 0
}

// CheckIgnore reports whether path is excluded by .gitignore rules.
func (r *Repo) CheckIgnore(ctx context.Context, path string) bool {
	res, err := r.gitAllowError(ctx, "check-ignore", "-q", path)
	return err == nil && res.ExitCode == 0
}

// LsFiles lists tracked files under path (repo-relative paths in the
// returned slice), or the whole tree if path is "".
func (r *Repo) LsFiles(ctx context.Context, path string) ([]string, error) {
	args := []string{"ls-files"}
	if path != "" {
		args = append(args, "--", path)
	}
	res, err := r.git(ctx, args...)
	if err != nil {
		return nil, err
	}
	return splitLines(res.Stdout), nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// ClearEmptySubpaths walks the directory chain from <root>/path upward,
// running `git clean -fd` at each level and removing the directory if
// it ends up empty, stopping at the first path segment or on leaving
// the repo root.
func (r *Repo) ClearEmptySubpaths(ctx context.Context, path string) error {
	rel := filepath.Clean(path)
	for rel != "." && rel != string(filepath.Separator) && rel != "" {
		abs := filepath.Join(r.Path, rel)
		if _, err := r.gitAllowError(ctx, "clean", "-fd", "--", rel); err != nil {
			return err
		}
		entries, err := os.ReadDir(abs)
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return err
		}
		if len(entries) > 0 {
			break
		}
		if err := os.Remove(abs); err != nil {
			return err
		}
		parent := filepath.Dir(rel)
		if parent == rel {
			break
		}
		rel = parent
	}
	return nil
}

// CommitDirIfDirty stages any dirty paths under path (relative to the
// repo root) and commits them with msg if anything was staged. When
// force is true, staging uses `-f` to include gitignored paths. After a
// successful commit, if a pre-commit config exists at the root, the
// pre-commit hook is run against the new commit and any residual dirty
// files under path are folded into an amend, per spec §4.2.
func (r *Repo) CommitDirIfDirty(ctx context.Context, path, msg string, force bool) error {
	dirty, err := r.Status(ctx)
	if err != nil {
		return err
	}
	absPath := filepath.Join(r.Path, path)
	var underPath bool
	for _, p := range dirty.DirtyAbs {
		if isUnder(p, absPath) {
			underPath = true
			break
		}
	}
	for _, p := range dirty.UntrackedAbs {
		if isUnder(p, absPath) {
			underPath = true
			break
		}
	}
	if !underPath {
		return nil
	}

	addArgs := []string{"add"}
	if force {
		addArgs = append(addArgs, "-f")
	}
	addArgs = append(addArgs, "--", path)
	if _, err := r.git(ctx, addArgs...); err != nil {
		return err
	}

	staged, err := r.hasStaged(ctx)
	if err != nil {
		return err
	}
	if !staged {
		return nil
	}
	if _, err := r.git(ctx, "commit", "--no-verify", "-m", msg); err != nil {
		return err
	}

	if r.hasPrecommitConfig() {
		_, _ = r.gitAllowError(ctx, "rev-parse", "HEAD~1")
		_, _ = execx.Run(ctx, "pre-commit", []string{"run", "--from-ref", "HEAD~1", "--to-ref", "HEAD"}, execx.Options{Dir: r.Path, AllowError: true})

		dirty, err = r.Status(ctx)
		if err != nil {
			return err
		}
		var residual bool
		for _, p := range dirty.DirtyAbs {
			if isUnder(p, absPath) {
				residual = true
				break
			}
		}
		if residual {
			if _, err := r.git(ctx, addArgs...); err != nil {
				return err
			}
			if _, err := r.git(ctx, "commit", "--no-verify", "--amend", "--no-edit"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Repo) hasStaged(ctx context.Context) (bool, error) {
	res, err := r.gitAllowError(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}

func (r *Repo) hasPrecommitConfig() bool {
	for _, name := range []string{".pre-commit-config.yaml", ".pre-commit-config.yml"} {
		if _, err := os.Stat(filepath.Join(r.Path, name)); err == nil {
			return true
		}
	}
	return false
}

func isUnder(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

// StayAtCommit is a scoped resource recording HEAD on acquisition; if
// Release is called with enabled true, HEAD is soft-reset back to that
// commit so any commits made in between become staged index changes.
type StayAtCommit struct {
	repo    *Repo
	initial string
}

// BeginStayAtCommit records the current HEAD hash.
func (r *Repo) BeginStayAtCommit(ctx context.Context) (*StayAtCommit, error) {
	hex, err := r.Hex(ctx)
	if err != nil {
		return nil, err
	}
	return &StayAtCommit{repo: r, initial: hex}, nil
}

// Release performs the soft reset back to the recorded HEAD when
// enabled is true; otherwise it is a no-op.
func (s *StayAtCommit) Release(ctx context.Context, enabled bool) error {
	if !enabled {
		return nil
	}
	_, err := s.repo.git(ctx, "reset", "--soft", s.initial)
	return err
}

// String implements fmt.Stringer for debugging/log output.
func (r *Repo) String() string {
	return fmt.Sprintf("gitrepo.Repo(%s)", r.Path)
}
