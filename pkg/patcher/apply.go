package patcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gimera-go/gimera/pkg/envtoggle"
	"github.com/gimera-go/gimera/pkg/execx"
	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/interactive"
	"github.com/gimera-go/gimera/pkg/manifest"
	"github.com/gimera-go/gimera/pkg/pattern"
)

// ApplyPatches applies every `.patch` file resolved for entry, in
// filename sort order per patch directory, skipping
// ignored_patchfiles and the currently-edited patchfile, per spec
// §4.6. A no-op if GIMERA_DO_NOT_APPLY_PATCHES is set.
//
// A DryRunPatches pass runs first so every file that would fail to
// apply is logged up front, before the real (possibly partial) apply
// pass commits to any of them.
func (p *Patcher) ApplyPatches(ctx context.Context, entry *manifest.Entry) error {
	if envtoggle.DoNotApplyPatches() {
		return nil
	}
	if rejections, err := p.DryRunPatches(ctx, entry); err == nil {
		for file, msg := range rejections {
			p.Log.Warn("patch predicted to fail", "file", file, "reason", msg)
		}
	}
	_, err := p.applyPatches(ctx, entry, false)
	return err
}

// DryRunPatches applies every resolved patch file with `patch
// --dry-run` and collects the per-file rejection output instead of
// stopping on the first failure, so a caller can report every problem
// at once before committing to a real apply.
func (p *Patcher) DryRunPatches(ctx context.Context, entry *manifest.Entry) (map[string]string, error) {
	return p.applyPatches(ctx, entry, true)
}

func (p *Patcher) applyPatches(ctx context.Context, entry *manifest.Entry, dryRun bool) (map[string]string, error) {
	dirs, err := p.Manifest.AllPatchDirs(entry, p.Host.Path, manifest.ModeAbsolute)
	if err != nil {
		return nil, gimeraerrors.Manifest("all_patch_dirs", err)
	}

	editedName := ""
	if entry.EditPatchfile != "" {
		editedName = filepath.Base(entry.EditPatchfile)
	}

	rejections := map[string]string{}
	for _, pd := range dirs {
		files, err := patchFilesSorted(pd.Dir)
		if err != nil {
			return rejections, gimeraerrors.PatchApply(pd.Dir, err)
		}
		for _, file := range files {
			name := filepath.Base(file)
			if name == editedName {
				continue
			}
			if pattern.MatchesAny(entry.IgnoredPatchfiles, name) {
				continue
			}

			args := []string{"-p1", "--no-backup-if-mismatch", "--force", "-s"}
			if dryRun {
				args = append(args, "--dry-run")
			}
			args = append(args, "-i", file)

			res, err := execx.Patch(ctx, pd.ApplyFrom, nil, args...)
			if err == nil && res.ExitCode == 0 {
				continue
			}

			msg := strings.TrimSpace(res.Stderr)
			if msg == "" && err != nil {
				msg = err.Error()
			}

			if dryRun {
				rejections[file] = msg
				continue
			}

			if !interactive.Enabled() {
				return rejections, wrapPatchApply(file, fmt.Errorf("%s", msg))
			}
			if !interactive.ConfirmContinueAfterPatchFailure(file) {
				return rejections, wrapPatchApply(file, fmt.Errorf("%s", msg))
			}
			rejections[file] = msg
		}
	}
	return rejections, nil
}

// ApplyOnlyEditPatch applies just entry's currently-edited patch file
// (the one ApplyPatches skips), so the user sees their pending edit as
// working-tree changes immediately after an integrated refresh, per
// spec §4.10 step 11.
func (p *Patcher) ApplyOnlyEditPatch(ctx context.Context, entry *manifest.Entry) error {
	if entry.EditPatchfile == "" {
		return nil
	}
	dirs, err := p.Manifest.AllPatchDirs(entry, p.Host.Path, manifest.ModeAbsolute)
	if err != nil {
		return gimeraerrors.Manifest("all_patch_dirs", err)
	}
	editedName := filepath.Base(entry.EditPatchfile)
	for _, pd := range dirs {
		file := filepath.Join(pd.Dir, editedName)
		if _, err := os.Stat(file); err != nil {
			continue
		}
		args := []string{"-p1", "--no-backup-if-mismatch", "--force", "-s", "-i", file}
		res, err := execx.Patch(ctx, pd.ApplyFrom, nil, args...)
		if err == nil && res.ExitCode == 0 {
			return nil
		}
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" && err != nil {
			msg = err.Error()
		}
		return wrapPatchApply(file, fmt.Errorf("%s", msg))
	}
	return nil
}

// patchFilesSorted rglobs dir for *.patch files, returned in filename
// sort order.
func patchFilesSorted(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(info.Name(), ".patch") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	})
	return files, nil
}
