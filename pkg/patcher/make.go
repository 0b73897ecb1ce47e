package patcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gimera-go/gimera/pkg/envtoggle"
	"github.com/gimera-go/gimera/pkg/execx"
	"github.com/gimera-go/gimera/pkg/fetcher"
	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/gitrepo"
	"github.com/gimera-go/gimera/pkg/interactive"
	"github.com/gimera-go/gimera/pkg/manifest"
)

// MakePatches captures entry's pending local edits as a `.patch` file,
// per spec §4.6. entry.Type must be manifest.TypeIntegrated.
func (p *Patcher) MakePatches(ctx context.Context, entry *manifest.Entry) error {
	if entry.Type != manifest.TypeIntegrated {
		return gimeraerrors.Manifest("make_patches", fmt.Errorf("entry %q is not integrated", entry.Path))
	}

	if _, err := os.Stat(filepath.Join(p.Host.Path, entry.Path)); os.IsNotExist(err) {
		// Nothing vendored yet for this entry, so there is no local
		// edit to capture before the first refresh.
		return nil
	}

	if p.Host.CheckIgnore(ctx, entry.Path) {
		return p.makePatchesScratch(ctx, entry)
	}
	return p.makePatchesInPlace(ctx, entry)
}

func (p *Patcher) makePatchesInPlace(ctx context.Context, entry *manifest.Entry) error {
	patchText, err := capturePatch(ctx, p.Host, entry.Path)
	if err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}
	if strings.TrimSpace(patchText) == "" {
		p.Log.Info("no local changes to capture", "entry", entry.Path)
		return nil
	}

	dir, filename, err := p.choosePatchDestination(entry)
	if err != nil {
		return err
	}

	dest := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	if err := os.WriteFile(dest, []byte(patchText), 0o644); err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}

	if err := p.clearEditPatchfile(ctx, entry, dest); err != nil {
		return err
	}

	return p.landPatchFile(ctx, entry, dest)
}

// makePatchesScratch handles the case where entry's own path is
// gitignored in the host: the diff cannot be computed directly
// against the host working tree (nothing under a gitignored path is
// ever staged), so it is computed in a disposable scratch repo that
// mirrors just entry's tree and patch directories, refreshed once
// from upstream, then overlaid with the host's current (dirty)
// content.
func (p *Patcher) makePatchesScratch(ctx context.Context, entry *manifest.Entry) error {
	if p.Refresh == nil {
		return gimeraerrors.PatchApply(entry.Path, fmt.Errorf("make_patches: entry %q is gitignored but no refresh callback is configured", entry.Path))
	}

	scratchRoot, err := os.MkdirTemp("", "gimera-makepatch-")
	if err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}
	defer os.RemoveAll(scratchRoot)

	entryRel := entry.Path
	hostEntryAbs := filepath.Join(p.Host.Path, entryRel)
	scratchEntryAbs := filepath.Join(scratchRoot, entryRel)

	dirs, err := p.Manifest.AllPatchDirs(entry, p.Host.Path, manifest.ModeAbsolute)
	if err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}

	if err := copyTree(hostEntryAbs, scratchEntryAbs); err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}
	scratchDirs := make([]string, 0, len(dirs))
	for _, d := range dirs {
		rel, err := filepath.Rel(p.Host.Path, d.Dir)
		if err != nil {
			continue
		}
		scratchDir := filepath.Join(scratchRoot, rel)
		if err := copyTree(d.Dir, scratchDir); err != nil {
			return gimeraerrors.PatchApply(entry.Path, err)
		}
		scratchDirs = append(scratchDirs, scratchDir)
	}

	scratch := gitrepo.New(scratchRoot)
	if _, err := runGit(ctx, scratch, "init"); err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}
	if _, err := runGit(ctx, scratch, "add", "-A"); err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}
	if _, err := runGit(ctx, scratch, "commit", "--no-verify", "--allow-empty", "-m", "scratch baseline"); err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}

	if dirty, err := scratch.Dirty(ctx); err == nil && dirty && !envtoggle.Force() {
		return gimeraerrors.PatchApply(entry.Path, fmt.Errorf("scratch tree is dirty after setup; rerun with GIMERA_FORCE=1 to proceed anyway"))
	}

	if err := p.Refresh(ctx, scratchRoot, entry); err != nil {
		return gimeraerrors.PatchApply(entry.Path, fmt.Errorf("refresh in scratch repo: %w", err))
	}

	// Overlay the host's current (possibly dirty) entry tree on top of
	// the freshly refreshed scratch copy.
	if err := os.RemoveAll(scratchEntryAbs); err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}
	if err := copyTree(hostEntryAbs, scratchEntryAbs); err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}

	patchText, err := capturePatch(ctx, scratch, entryRel)
	if err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}
	if strings.TrimSpace(patchText) == "" {
		p.Log.Info("no local changes to capture", "entry", entry.Path)
		return nil
	}

	dir, filename, err := p.choosePatchDestinationAmong(entry, scratchDirs)
	if err != nil {
		return err
	}
	dest := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	if err := os.WriteFile(dest, []byte(patchText), 0o644); err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}

	// rsync every patch directory from the scratch copy back onto the
	// host.
	for i, scratchDir := range scratchDirs {
		if _, err := os.Stat(scratchDir); err != nil {
			continue
		}
		if err := os.MkdirAll(dirs[i].Dir, 0o755); err != nil {
			return gimeraerrors.PatchApply(dirs[i].Dir, err)
		}
		if _, err := execx.Rsync(ctx, "-a", "--delete", scratchDir+string(filepath.Separator), dirs[i].Dir+string(filepath.Separator)); err != nil {
			return gimeraerrors.PatchApply(dirs[i].Dir, err)
		}
	}

	hostDest, err := correspondingHostPath(dest, scratchRoot, p.Host.Path)
	if err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	if err := p.clearEditPatchfile(ctx, entry, hostDest); err != nil {
		return err
	}
	return p.landPatchFile(ctx, entry, hostDest)
}

func correspondingHostPath(path, scratchRoot, hostRoot string) (string, error) {
	rel, err := filepath.Rel(scratchRoot, path)
	if err != nil {
		return "", err
	}
	return filepath.Join(hostRoot, rel), nil
}

// choosePatchDestination resolves the directory and filename a freshly
// captured patch should be written to, reusing entry.EditPatchfile
// when set.
func (p *Patcher) choosePatchDestination(entry *manifest.Entry) (dir, filename string, err error) {
	dirs, err := p.Manifest.AllPatchDirs(entry, p.Host.Path, manifest.ModeAbsolute)
	if err != nil {
		return "", "", gimeraerrors.Manifest("all_patch_dirs", err)
	}
	candidates := make([]string, 0, len(dirs))
	for _, d := range dirs {
		candidates = append(candidates, d.Dir)
	}
	return p.choosePatchDestinationAmong(entry, candidates)
}

func (p *Patcher) choosePatchDestinationAmong(entry *manifest.Entry, candidates []string) (dir, filename string, err error) {
	if entry.EditPatchfile != "" {
		return filepath.Dir(entry.EditPatchfile), filepath.Base(entry.EditPatchfile), nil
	}

	chosen, err := interactive.ChoosePatchDir(candidates)
	if err != nil {
		return "", "", gimeraerrors.PatchApply(entry.Path, err)
	}
	suggested := nextPatchFilename(chosen)
	name, err := interactive.ChoosePatchFilename(suggested)
	if err != nil {
		return "", "", gimeraerrors.PatchApply(entry.Path, err)
	}
	return chosen, name, nil
}

func (p *Patcher) clearEditPatchfile(ctx context.Context, entry *manifest.Entry, dest string) error {
	if entry.EditPatchfile == "" {
		return nil
	}
	return p.Manifest.Store(ctx, p.Host, entry, map[string]interface{}{"edit_patchfile": ""})
}

// landPatchFile commits the newly written patch file. If it was
// written inside the entry's own vendored tree, the next integrated
// refresh would wipe it out, so instead it is pushed straight to the
// entry's upstream branch and the entry's pinned sha is advanced to
// the new tip. Otherwise it is committed normally in the host repo.
func (p *Patcher) landPatchFile(ctx context.Context, entry *manifest.Entry, dest string) error {
	entryRoot := p.entryRoot(entry)
	rel, err := filepath.Rel(entryRoot, dest)
	insideEntry := err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))

	if insideEntry {
		return p.pushPatchUpstream(ctx, entry, rel, dest)
	}

	hostRel, err := filepath.Rel(p.Host.Path, dest)
	if err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	if _, err := p.Host.GitAdd(ctx, hostRel); err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	if _, err := p.Host.GitCommitNoVerify(ctx, fmt.Sprintf("gimera: add patch %s", filepath.Base(dest))); err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	return nil
}

func (p *Patcher) pushPatchUpstream(ctx context.Context, entry *manifest.Entry, relInEntry, dest string) error {
	clone, err := os.MkdirTemp("", "gimera-patch-push-")
	if err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	defer os.RemoveAll(clone)

	if _, err := execx.Run(ctx, "git", []string{"clone", entry.URL, clone}, execx.Options{}); err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	cloneRepo := gitrepo.New(clone)
	if _, err := runGit(ctx, cloneRepo, "checkout", entry.Branch); err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}

	patchBytes, err := os.ReadFile(dest)
	if err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	clonedDest := filepath.Join(clone, relInEntry)
	if err := os.MkdirAll(filepath.Dir(clonedDest), 0o755); err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	if err := os.WriteFile(clonedDest, patchBytes, 0o644); err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	if _, err := cloneRepo.GitAdd(ctx, relInEntry); err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	if _, err := cloneRepo.GitCommitNoVerify(ctx, fmt.Sprintf("add patch %s", filepath.Base(dest))); err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}
	if _, err := runGit(ctx, cloneRepo, "push", "origin", "HEAD:"+entry.Branch); err != nil {
		return gimeraerrors.PatchApply(dest, fmt.Errorf("push patch to %s: %w", entry.URL, err))
	}

	newHex, err := cloneRepo.Hex(ctx)
	if err != nil {
		return gimeraerrors.PatchApply(dest, err)
	}

	if err := fetcher.FetchAll(ctx, p.CacheRoot, []*manifest.Entry{entry}, p.Log); err != nil {
		return gimeraerrors.PatchApply(dest, fmt.Errorf("wait for cache to catch up: %w", err))
	}

	return p.Manifest.Store(ctx, p.Host, entry, map[string]interface{}{"sha": newHex})
}
