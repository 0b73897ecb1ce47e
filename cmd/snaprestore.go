package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gimera-go/gimera/pkg/envtoggle"
	"github.com/gimera-go/gimera/pkg/gimeraerrors"
	"github.com/gimera-go/gimera/pkg/interactive"
	"github.com/gimera-go/gimera/pkg/snapshot"
)

var snaprestoreToken string

// snaprestoreCmd represents `snaprestore [repos...]`, replaying the
// patches a prior snap captured back onto the working tree, per spec
// §4.7/§6.
var snaprestoreCmd = &cobra.Command{
	Use:   "snaprestore [repos...]",
	Short: "Replay a prior snapshot's patches back onto the working tree",
	RunE:  runSnaprestore,
}

func init() {
	snaprestoreCmd.Flags().StringVar(&snaprestoreToken, "token", "", "snapshot token to restore (default: GIMERA_TOKEN, else the only snapshot on disk, else an interactive choice)")
	rootCmd.AddCommand(snaprestoreCmd)
}

func runSnaprestore(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	host, m, err := findHost()
	if err != nil {
		return err
	}

	token := snaprestoreToken
	if token == "" {
		token, err = pickToken(host.Path)
		if err != nil {
			return err
		}
	}

	paths := args
	if len(paths) == 0 {
		paths = enabledEntryPaths(m)
	}

	if err := snapshot.Restore(ctx, host.Path, paths, token); err != nil {
		return err
	}

	fmt.Printf("restored snapshot %s\n", token)
	return nil
}

// pickToken resolves the snapshot token to restore when --token is
// omitted: GIMERA_TOKEN if set, the sole token on disk, or an
// interactive choice among several.
func pickToken(root string) (string, error) {
	if t := envtoggle.Token(); t != "" {
		return t, nil
	}
	tokens, err := snapshot.ListTokens(root)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", gimeraerrors.Manifest("snaprestore", fmt.Errorf("no snapshots found under %s", root))
	}
	if len(tokens) == 1 {
		return tokens[0], nil
	}
	if !interactive.Enabled() {
		return "", gimeraerrors.Manifest("snaprestore", fmt.Errorf("multiple snapshots exist; pass --token (non-interactive mode requires exactly one candidate)"))
	}
	return interactive.Choose("Which snapshot should be restored?", tokens)
}
