package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gimera-go/gimera/pkg/envtoggle"
	"github.com/gimera-go/gimera/pkg/interactive"
)

var purgeForce bool

// purgeCmd represents `purge`, deleting every enabled entry's path
// after confirmation, per spec §6 and SPEC_FULL's supplemented
// description of it as a thin, confirmation-gated wrapper.
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every enabled entry's working-tree path",
	Long: `purge removes the on-disk directory for every enabled gimera.yml entry,
without touching the manifest itself. A later apply re-materializes
them from scratch. Requires --force in non-interactive mode.`,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().BoolVarP(&purgeForce, "force", "f", false, "skip the confirmation prompt")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	host, m, err := findHost()
	if err != nil {
		return err
	}

	if !purgeForce && !envtoggle.Force() {
		if !interactive.Enabled() {
			return fmt.Errorf("purge requires --force in non-interactive mode")
		}
		if !interactive.Confirm("Delete every enabled entry's working-tree path?", false) {
			return fmt.Errorf("aborted")
		}
	}

	removed := 0
	for _, e := range m.Repos {
		if !e.IsEnabled() {
			continue
		}
		full := filepath.Join(host.Path, e.Path)
		if _, err := os.Stat(full); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(full); err != nil {
			return fmt.Errorf("remove %s: %w", e.Path, err)
		}
		removed++
	}

	fmt.Printf("purged %d entr%s\n", removed, plural(removed))
	return nil
}
