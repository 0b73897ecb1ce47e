package patcher

import (
	"context"
	"fmt"

	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/manifest"
)

// EditPatch records patchFile as entry.edit_patchfile and runs the
// apply engine for that entry, per spec §4.6. At the next integrated
// refresh, every other patchfile is applied but this one is left
// untouched, so the user's working-tree diff against the refreshed
// tree matches the patch's own content and can be edited directly.
func (p *Patcher) EditPatch(ctx context.Context, entry *manifest.Entry, patchFile string) error {
	if p.Refresh == nil {
		return gimeraerrors.Manifest("edit_patch", fmt.Errorf("no refresh callback configured"))
	}
	if err := p.Manifest.Store(ctx, p.Host, entry, map[string]interface{}{"edit_patchfile": patchFile}); err != nil {
		return err
	}
	return p.Refresh(ctx, p.Host.Path, entry)
}
