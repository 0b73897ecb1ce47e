package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gimera-go/gimera/pkg/execx"
	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/gitrepo"
	"github.com/gimera-go/gimera/pkg/interactive"
	"github.com/gimera-go/gimera/pkg/patcher"
)

var commitPreview bool

// commitCmd represents `commit <repo> <message> [branch]`: push local
// edits on an integrated subtree straight back to its upstream as a
// real commit, per spec §6 and original_source/gimera/commit.py.
var commitCmd = &cobra.Command{
	Use:   "commit <repo> <message> [branch]",
	Short: "Push local edits on an integrated subtree back as an upstream commit",
	Long: `commit computes the divergence between an integrated entry's current
working tree and its last vendored commit, applies that divergence as
a patch against a fresh clone of the entry's upstream, and pushes the
result directly to branch (the entry's declared branch if omitted).`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runCommit,
}

func init() {
	commitCmd.Flags().BoolVar(&commitPreview, "preview", false, "show the diff and ask for confirmation before pushing")
	rootCmd.AddCommand(commitCmd)
}

func runCommit(cmd *cobra.Command, args []string) error {
	repoPath, message := args[0], args[1]
	var branch string
	if len(args) == 3 {
		branch = args[2]
	}

	ctx := context.Background()

	host, m, err := findHost()
	if err != nil {
		return err
	}
	entry := m.Find(repoPath)
	if entry == nil {
		return gimeraerrors.Manifest("commit", fmt.Errorf("no entry with path %q in gimera.yml", repoPath))
	}

	if branch == "" {
		branch = entry.Branch
		if interactive.Enabled() && !interactive.Confirm(fmt.Sprintf("Committing to branch %s - continue?", branch), true) {
			return fmt.Errorf("aborted")
		}
	}

	patchText, err := patcher.CapturePatch(ctx, host, entry.Path)
	if err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}
	if strings.TrimSpace(patchText) == "" {
		fmt.Println("no local changes to commit")
		return nil
	}

	clone, err := os.MkdirTemp("", "gimera-commit-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(clone)

	if _, err := execx.Run(ctx, "git", []string{"clone", entry.URL, clone}, execx.Options{}); err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}
	cloneRepo := gitrepo.New(clone)
	if _, err := execx.Git(ctx, clone, "checkout", "-f", branch); err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}

	patchFile := filepath.Join(clone, "gimera-commit.patch")
	if err := os.WriteFile(patchFile, []byte(patchText), 0o644); err != nil {
		return err
	}
	applyRes, err := execx.Patch(ctx, clone, nil, "-p1", "--no-backup-if-mismatch", "--force", "-s", "-i", patchFile)
	if err != nil || applyRes.ExitCode != 0 {
		return gimeraerrors.PatchApply(entry.Path, fmt.Errorf("apply divergence onto clone: %s", strings.TrimSpace(applyRes.Stderr)))
	}
	_ = os.Remove(patchFile)

	if _, err := cloneRepo.GitAdd(ctx, "."); err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}

	if commitPreview {
		diff, _ := execx.Git(ctx, clone, "diff", "--cached")
		fmt.Println(diff.Stdout)
		if interactive.Enabled() && !interactive.Confirm("Commit this?", true) {
			return fmt.Errorf("aborted")
		}
	}

	if _, err := cloneRepo.GitCommitNoVerify(ctx, message); err != nil {
		return gimeraerrors.PatchApply(entry.Path, err)
	}
	if _, err := execx.Git(ctx, clone, "push", "origin", branch); err != nil {
		return gimeraerrors.Merge(entry.Path, err)
	}

	fmt.Printf("pushed local edits on %s to %s %s\n", entry.Path, entry.URL, branch)
	return nil
}

