package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gimera-go/gimera/pkg/engine"
	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/manifest"
	"github.com/gimera-go/gimera/pkg/patcher"
)

// editPatchCmd represents `edit-patch <patchfile>`, per spec §4.6/§6.
var editPatchCmd = &cobra.Command{
	Use:   "edit-patch <patchfile>",
	Short: "Enter edit mode for a specific patch file",
	Long: `edit-patch marks patchfile as the entry's edit_patchfile and re-runs the
integrated refresh for that entry. The next refresh applies every
other patch but leaves this one unapplied, so the working tree shows
the patch's content as plain edits ready to be changed and recaptured
with a later make-patches pass.`,
	Args: cobra.ExactArgs(1),
	RunE: runEditPatch,
}

func init() {
	editPatchCmd.Flags().StringVar(&applyCacheDir, "cache-dir", "", "override the bare-clone cache root (default: XDG cache dir)")
	rootCmd.AddCommand(editPatchCmd)
}

func runEditPatch(cmd *cobra.Command, args []string) error {
	patchFile := args[0]
	ctx := context.Background()

	host, m, err := findHost()
	if err != nil {
		return err
	}

	entry := entryOwningPatchfile(m, host.Path, patchFile)
	if entry == nil {
		return gimeraerrors.Manifest("edit-patch", fmt.Errorf("no entry owns patch file %q", patchFile))
	}

	root := resolveCacheRoot(applyCacheDir)
	log := newLogger(host.Path)

	var pat *patcher.Patcher
	refresh := func(rctx context.Context, workDir string, e *manifest.Entry) error {
		_, err := engine.IntegratedRefresh(rctx, host, m.WithDir(workDir), e, root, false, log, pat)
		return err
	}
	pat = patcher.New(host, m, root, log, refresh)

	relPatch, err := filepath.Rel(host.Path, patchFile)
	if err != nil {
		relPatch = patchFile
	}
	if err := pat.EditPatch(ctx, entry, relPatch); err != nil {
		return err
	}

	fmt.Printf("entry %s is now editing %s; re-run 'gimera apply' after you're done to recapture it\n", entry.Path, relPatch)
	return nil
}

// entryOwningPatchfile finds the manifest entry whose resolved patch
// directories contain patchFile (an absolute or host-relative path).
func entryOwningPatchfile(m *manifest.Manifest, hostRoot, patchFile string) *manifest.Entry {
	abs := patchFile
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(hostRoot, patchFile)
	}
	for _, e := range m.Repos {
		dirs, err := m.AllPatchDirs(e, hostRoot, manifest.ModeAbsolute)
		if err != nil {
			continue
		}
		for _, d := range dirs {
			if rel, err := filepath.Rel(d.Dir, abs); err == nil && filepath.Dir(rel) == "." {
				return e
			}
		}
	}
	return nil
}
