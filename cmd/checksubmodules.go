package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gimera-go/gimera/pkg/manifest"
)

// checkSubmodulesCmd represents `check-all-submodules-initialized`,
// used as a pre-commit/CI guard against a forgotten `git submodule
// update --init`, per spec §6.
var checkSubmodulesCmd = &cobra.Command{
	Use:   "check-all-submodules-initialized",
	Short: "Fail if any declared submodule entry is not present on disk",
	RunE:  runCheckSubmodules,
}

func init() {
	rootCmd.AddCommand(checkSubmodulesCmd)
}

func runCheckSubmodules(cmd *cobra.Command, args []string) error {
	host, m, err := findHost()
	if err != nil {
		return err
	}

	var uninitialized []string
	for _, e := range m.Repos {
		if !e.IsEnabled() || e.Type != manifest.TypeSubmodule {
			continue
		}
		full := filepath.Join(host.Path, e.Path)
		entries, err := os.ReadDir(full)
		if err != nil || len(entries) == 0 {
			uninitialized = append(uninitialized, e.Path)
		}
	}

	if len(uninitialized) > 0 {
		for _, p := range uninitialized {
			fmt.Fprintf(os.Stderr, "not initialized: %s\n", p)
		}
		return fmt.Errorf("%d submodule(s) not initialized", len(uninitialized))
	}

	fmt.Println("all submodules initialized")
	return nil
}
