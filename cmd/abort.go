package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// abortCmd represents `abort`, which clears every edit_patchfile marker
// left by a prior edit-patch run, per spec §4.6/§6.
var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Clear any edit-patch markers left on the manifest",
	Long: `abort clears edit_patchfile on every entry that still carries one,
returning the manifest to its normal reconciliation behavior without
touching the working tree itself.`,
	RunE: runAbort,
}

func init() {
	rootCmd.AddCommand(abortCmd)
}

func runAbort(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	host, m, err := findHost()
	if err != nil {
		return err
	}

	cleared := 0
	for _, e := range m.Repos {
		if e.EditPatchfile == "" {
			continue
		}
		if err := m.Store(ctx, host, e, map[string]interface{}{"edit_patchfile": ""}); err != nil {
			return err
		}
		cleared++
	}

	if cleared == 0 {
		fmt.Println("no entry was in edit-patch mode")
		return nil
	}
	fmt.Printf("cleared edit-patch mode on %d entr%s\n", cleared, plural(cleared))
	return nil
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
