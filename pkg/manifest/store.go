package manifest

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gimera-go/gimera/pkg/envtoggle"
	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/gitrepo"
)

// Store rewrites entry's fields with updates, saves the manifest, and
// attempts to commit the change to hostRepo with message "auto update
// gimera.yml" — refusing if files other than gimera.yml are already
// staged, per spec §4.3.
//
// A "sha" update is special-cased: when GIMERA_NO_SHA_UPDATE is set or
// entry.FreezeSha is true, it is applied in memory only and never
// written to disk or committed.
func (m *Manifest) Store(ctx context.Context, hostRepo *gitrepo.Repo, entry *Entry, updates map[string]interface{}) error {
	memoryOnlySha, hasSha := updates["sha"]
	skipShaPersist := hasSha && (envtoggle.NoShaUpdate() || entry.FreezeSha)

	for k, v := range updates {
		if k == "sha" && skipShaPersist {
			continue
		}
		if err := applyUpdate(entry, k, v); err != nil {
			return gimeraerrors.Manifest(fmt.Sprintf("store update for %s", entry.Path), err)
		}
	}
	if skipShaPersist {
		entry.Sha = coerceScalar(memoryOnlySha)
	}

	if skipShaPersist && len(updates) == 1 {
		// Only the sha changed, and it was memory-only: nothing to save
		// or commit.
		return nil
	}

	status, err := hostRepo.Status(ctx)
	if err != nil {
		return gimeraerrors.Manifest("check staged files before manifest commit", err)
	}
	for _, rel := range status.StagedRel {
		if rel != FileName {
			return gimeraerrors.Manifest("store", fmt.Errorf("refusing to update gimera.yml: %s is already staged", rel))
		}
	}

	if err := m.Save(); err != nil {
		return gimeraerrors.Manifest("save manifest", err)
	}

	manifestRel, err := filepath.Rel(hostRepo.Path, m.path)
	if err != nil {
		manifestRel = FileName
	}
	if _, err := hostRepo.GitAdd(ctx, manifestRel); err != nil {
		return gimeraerrors.Manifest("stage manifest", err)
	}

	afterAdd, err := hostRepo.Status(ctx)
	if err != nil {
		return gimeraerrors.Manifest("check staged manifest", err)
	}
	staged := false
	for _, rel := range afterAdd.StagedRel {
		if rel == FileName {
			staged = true
			break
		}
	}
	if !staged {
		// Save() reproduced byte-identical content (e.g. re-pinning an
		// entry to the sha it already had): nothing to commit.
		return nil
	}

	if _, err := hostRepo.GitCommitNoVerify(ctx, "auto update gimera.yml"); err != nil {
		return gimeraerrors.Manifest("commit manifest", err)
	}
	return nil
}

func applyUpdate(e *Entry, key string, value interface{}) error {
	switch key {
	case "sha":
		e.Sha = coerceScalar(value)
	case "branch":
		e.Branch = coerceScalar(value)
	case "edit_patchfile":
		e.EditPatchfile = coerceScalar(value)
	case "freeze_sha":
		b, _ := value.(bool)
		e.FreezeSha = b
	default:
		return fmt.Errorf("unsupported field %q", key)
	}
	return nil
}
