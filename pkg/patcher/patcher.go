package patcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gimera-go/gimera/pkg/execx"
	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/gimeralog"
	"github.com/gimera-go/gimera/pkg/gitrepo"
	"github.com/gimera-go/gimera/pkg/manifest"
)

// RefreshFunc re-vendors entry's tree under workDir, treating workDir
// as the host root. MakePatches uses it only for the gitignored-entry
// scratch-repo path, where a fresh integrated refresh must run inside
// a throwaway repo before the local diff can be computed. The apply
// engine supplies this callback so patcher never has to import it
// back (the engine is the one orchestrating patcher, not the reverse).
type RefreshFunc func(ctx context.Context, workDir string, entry *manifest.Entry) error

// Patcher captures (make_patches), replays (apply_patches), and
// earmarks for editing (edit_patch) the patch files belonging to one
// host repository's manifest.
type Patcher struct {
	Host      *gitrepo.Repo
	Manifest  *manifest.Manifest
	CacheRoot string
	Log       *gimeralog.Logger
	Refresh   RefreshFunc
}

// New builds a Patcher bound to host/m.
func New(host *gitrepo.Repo, m *manifest.Manifest, cacheRoot string, log *gimeralog.Logger, refresh RefreshFunc) *Patcher {
	if log == nil {
		log = gimeralog.Discard()
	}
	return &Patcher{Host: host, Manifest: m, CacheRoot: cacheRoot, Log: log, Refresh: refresh}
}

func (p *Patcher) entryRoot(entry *manifest.Entry) string {
	return filepath.Join(p.Manifest.Dir(), entry.Path)
}

// CapturePatch exports capturePatch for callers outside this package
// (the `commit` CLI command) that need the same format-patch-and-
// uncommit round trip against an arbitrary repo-relative path, without
// going through the patch-directory bookkeeping MakePatches does.
func CapturePatch(ctx context.Context, repo *gitrepo.Repo, entryRel string) (string, error) {
	return capturePatch(ctx, repo, entryRel)
}

// capturePatch stages entryRel (untracked files included via `add -N`
// so they appear in the format-patch diff), commits it as a throwaway
// commit, produces the `format-patch` text for that single commit
// scoped to entryRel, then uncommits and restores the previously
// untracked files to untracked, per spec §4.6.
func capturePatch(ctx context.Context, repo *gitrepo.Repo, entryRel string) (string, error) {
	status, err := repo.Status(ctx)
	if err != nil {
		return "", err
	}

	absEntry := filepath.Join(repo.Path, entryRel)
	var untrackedUnderEntry []string
	for _, rel := range status.UntrackedRel {
		if isUnderRel(rel, entryRel, absEntry, repo.Path) {
			untrackedUnderEntry = append(untrackedUnderEntry, rel)
		}
	}
	var dirtyUnderEntry bool
	for _, rel := range status.DirtyRel {
		if isUnderRel(rel, entryRel, absEntry, repo.Path) {
			dirtyUnderEntry = true
			break
		}
	}
	if len(untrackedUnderEntry) == 0 && !dirtyUnderEntry {
		return "", nil
	}

	if len(untrackedUnderEntry) > 0 {
		args := append([]string{"add", "-N", "--"}, untrackedUnderEntry...)
		if _, err := runGit(ctx, repo, args...); err != nil {
			return "", err
		}
	}

	if _, err := repo.GitAdd(ctx, entryRel); err != nil {
		return "", err
	}
	if _, err := repo.GitCommitNoVerify(ctx, "for patch"); err != nil {
		return "", err
	}

	res, err := runGit(ctx, repo, "format-patch", "HEAD~1", "--stdout", "--relative="+entryRel)
	if err != nil {
		_, _ = runGit(ctx, repo, "reset", "HEAD~1")
		return "", err
	}

	if _, err := runGit(ctx, repo, "reset", "HEAD~1"); err != nil {
		return "", err
	}

	if len(untrackedUnderEntry) > 0 {
		args := append([]string{"reset", "--"}, untrackedUnderEntry...)
		if _, err := runGit(ctx, repo, args...); err != nil {
			return "", err
		}
	}

	return res.Stdout, nil
}

func isUnderRel(rel, entryRel, absEntry, root string) bool {
	abs := filepath.Join(root, rel)
	r, err := filepath.Rel(absEntry, abs)
	if err != nil {
		return false
	}
	return r == "." || !strings.HasPrefix(r, "..")
}

func runGit(ctx context.Context, repo *gitrepo.Repo, args ...string) (execx.Result, error) {
	if err := execx.WaitForIndexLock(repo.Path); err != nil {
		return execx.Result{}, err
	}
	return execx.Git(ctx, repo.Path, args...)
}

// copyTree copies src onto dst, creating dst fresh. Used to seed a
// scratch repo with an entry's current tree and its patch directories.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := copyTree(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, info os.FileInfo) error {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func wrapPatchApply(file string, err error) error {
	if err == nil {
		return nil
	}
	return gimeraerrors.PatchApply(file, err)
}

func nextPatchFilename(dir string) string {
	entries, _ := os.ReadDir(dir)
	n := 1
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".patch") {
			n++
		}
	}
	return fmt.Sprintf("%04d-local.patch", n)
}
