package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gimera-go/gimera/pkg/engine"
	"github.com/gimera-go/gimera/pkg/gimeralog"
	"github.com/gimera-go/gimera/pkg/manifest"
	"github.com/gimera-go/gimera/pkg/patcher"
)

var (
	applyUpdate                bool
	applyAllIntegrated         bool
	applyAllSubmodule          bool
	applyRecursive             bool
	applyStrict                bool
	applyNoPatches             bool
	applyMissing               bool
	applyMigrateChanges        bool
	applyNoFetch               bool
	applyNoAutoCommit          bool
	applyForce                 bool
	applyRemoveInvalidBranches bool
	applyRaiseException        bool
	applyDoNotApplyPatches     bool
	applyNoShaUpdate           bool
	applyCacheDir              string
	applyDryRun                bool
)

// applyCmd represents `apply [repos...]`, the top-level reconciliation
// entry point spec §4.9/§6 names.
var applyCmd = &cobra.Command{
	Use:   "apply [repos...]",
	Short: "Reconcile the working tree with gimera.yml",
	Long: `apply walks every enabled entry in gimera.yml, in declaration order, and
brings the working tree in line with each entry's declared type,
pin, and patches: submodule entries are checked out and pinned,
integrated entries are re-vendored from their upstream cache with
local patches re-applied on top.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVarP(&applyUpdate, "update", "u", false, "pull pinned entries to their branch tip instead of staying at entry.sha")
	applyCmd.Flags().BoolVarP(&applyAllIntegrated, "all-integrated", "I", false, "treat every entry as integrated for this run")
	applyCmd.Flags().BoolVarP(&applyAllSubmodule, "all-submodule", "S", false, "treat every entry as submodule for this run")
	applyCmd.Flags().BoolVarP(&applyRecursive, "recursive", "r", false, "descend into entries that carry their own gimera.yml")
	applyCmd.Flags().BoolVarP(&applyStrict, "strict", "s", false, "disable the mixed-mode relaxation that forces later entries integrated after one runs")
	applyCmd.Flags().BoolVarP(&applyNoPatches, "no-patches", "P", false, "skip make_patches before an integrated refresh")
	applyCmd.Flags().BoolVarP(&applyMissing, "missing", "m", false, "only process entries whose path does not yet exist")
	applyCmd.Flags().BoolVarP(&applyMigrateChanges, "migrate-changes", "M", false, "snapshot local edits before reconciling and restore them after")
	applyCmd.Flags().BoolVarP(&applyNoFetch, "no-fetch", "n", false, "skip the fetch pass entirely")
	applyCmd.Flags().BoolVarP(&applyNoAutoCommit, "no-auto-commit", "C", false, "collapse this run's commits into staged changes instead of committing them")
	applyCmd.Flags().BoolVarP(&applyForce, "force", "f", false, "proceed past dirty-working-tree checks that would otherwise abort")
	applyCmd.Flags().BoolVar(&applyRemoveInvalidBranches, "remove-invalid-branches", false, "tolerate a submodule whose declared branch no longer exists upstream")
	applyCmd.Flags().BoolVar(&applyRaiseException, "raise-exception", false, "set GIMERA_EXCEPTION_THAN_SYSEXIT=1 for this run (nothing reads it; failures still exit nonzero)")
	applyCmd.Flags().BoolVar(&applyDoNotApplyPatches, "do-not-apply-patches", false, "skip applying patch files during integrated refresh")
	applyCmd.Flags().BoolVar(&applyNoShaUpdate, "no-sha-update", false, "never write entry.sha back to gimera.yml")
	applyCmd.Flags().StringVar(&applyCacheDir, "cache-dir", "", "override the bare-clone cache root (default: XDG cache dir)")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "report patches predicted to fail for the targeted entries without reconciling anything")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	if applyForce {
		os.Setenv("GIMERA_FORCE", "1")
	}
	if applyRaiseException {
		os.Setenv("GIMERA_EXCEPTION_THAN_SYSEXIT", "1")
	}
	if applyDoNotApplyPatches {
		os.Setenv("GIMERA_DO_NOT_APPLY_PATCHES", "1")
	}
	if applyNoShaUpdate {
		os.Setenv("GIMERA_NO_SHA_UPDATE", "1")
	}
	if applyAllIntegrated && applyAllSubmodule {
		return fmt.Errorf("--all-integrated and --all-submodule are mutually exclusive")
	}

	forceType := manifest.Type("")
	switch {
	case applyAllIntegrated:
		forceType = manifest.TypeIntegrated
	case applyAllSubmodule:
		forceType = manifest.TypeSubmodule
	}

	repos := args
	if applyMissing {
		_, m, err := findHost()
		if err != nil {
			return err
		}
		repos = missingEntryPaths(m)
		if len(repos) == 0 {
			fmt.Println("no missing entries")
			return nil
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	root := resolveCacheRoot(applyCacheDir)
	log := newLogger(cwd)

	if applyDryRun {
		return runApplyDryRun(root, log, repos)
	}

	eng := engine.New(root, log)

	opts := engine.Options{
		Repos:                 repos,
		Update:                applyUpdate,
		ForceType:             forceType,
		Strict:                applyStrict,
		Recursive:             applyRecursive,
		NoPatches:             applyNoPatches,
		RemoveInvalidBranches: applyRemoveInvalidBranches,
		AutoCommit:            !applyNoAutoCommit,
		NoFetch:               applyNoFetch,
		MigrateChanges:        applyMigrateChanges,
	}

	return eng.Apply(context.Background(), cwd, opts)
}

// runApplyDryRun reports, for every targeted integrated entry, which
// resolved patch files are predicted to fail a real `patch` apply,
// without touching the working tree or the manifest.
func runApplyDryRun(cacheRoot string, log *gimeralog.Logger, repos []string) error {
	host, m, err := findHost()
	if err != nil {
		return err
	}

	entries := m.Repos
	if len(repos) > 0 {
		entries = filterByPath(entries, repos)
	}

	pat := patcher.New(host, m, cacheRoot, log, nil)

	ctx := context.Background()
	failing := 0
	for _, e := range entries {
		if !e.IsEnabled() || e.Type != manifest.TypeIntegrated {
			continue
		}
		rejections, err := pat.DryRunPatches(ctx, e)
		if err != nil {
			return err
		}
		for file, reason := range rejections {
			failing++
			fmt.Printf("%s: %s: predicted to fail: %s\n", e.Path, file, reason)
		}
	}

	if failing == 0 {
		fmt.Println("every patch is predicted to apply cleanly")
	}
	return nil
}

func filterByPath(entries []*manifest.Entry, repos []string) []*manifest.Entry {
	want := make(map[string]bool, len(repos))
	for _, r := range repos {
		want[filepath.Clean(r)] = true
	}
	var out []*manifest.Entry
	for _, e := range entries {
		if want[filepath.Clean(e.Path)] {
			out = append(out, e)
		}
	}
	return out
}

func missingEntryPaths(m *manifest.Manifest) []string {
	var out []string
	for _, e := range m.Repos {
		if !e.IsEnabled() {
			continue
		}
		if _, err := os.Stat(filepath.Join(m.Dir(), e.Path)); os.IsNotExist(err) {
			out = append(out, e.Path)
		}
	}
	return out
}
