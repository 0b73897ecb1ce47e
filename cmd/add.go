package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/manifest"
)

var (
	addURL     string
	addBranch  string
	addPatches []string
	addType    string
)

// addCmd represents `add -u <url> -b <branch> -p <patchdir> -t submodule <path>`,
// appending a new entry to gimera.yml without touching the working
// tree (a subsequent apply materializes it), per SPEC_FULL's
// supplemented add command.
var addCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Add a new entry to gimera.yml",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addURL, "url", "u", "", "upstream git URL (required)")
	addCmd.Flags().StringVarP(&addBranch, "branch", "b", "master", "branch to track")
	addCmd.Flags().StringArrayVarP(&addPatches, "patch", "p", nil, "patch directory (repeatable)")
	addCmd.Flags().StringVarP(&addType, "type", "t", "integrated", "entry type: integrated or submodule")
	_ = addCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	path := args[0]

	_, m, err := findHost()
	if err != nil {
		return err
	}

	if m.Find(path) != nil {
		return gimeraerrors.Manifest("add", fmt.Errorf("an entry already exists at path %q", path))
	}

	entryType := manifest.TypeIntegrated
	if addType == string(manifest.TypeSubmodule) {
		entryType = manifest.TypeSubmodule
	} else if addType != "" && addType != string(manifest.TypeIntegrated) {
		return gimeraerrors.Manifest("add", fmt.Errorf("unknown type %q, want %q or %q", addType, manifest.TypeIntegrated, manifest.TypeSubmodule))
	}

	m.Repos = append(m.Repos, &manifest.Entry{
		Path:    path,
		URL:     addURL,
		Branch:  addBranch,
		Type:    entryType,
		Patches: addPatches,
	})

	if err := m.Save(); err != nil {
		return err
	}

	fmt.Printf("added %s (%s, branch %s); run 'gimera apply %s' to materialize it\n", path, entryType, addBranch, path)
	return nil
}
