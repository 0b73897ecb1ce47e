package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gimera-go/gimera/pkg/output"
	"github.com/gimera-go/gimera/pkg/snapshot"
)

var listSnapshotsFormat string

// listSnapshotsCmd represents `list-snapshots`, per spec §4.7/§6.
var listSnapshotsCmd = &cobra.Command{
	Use:   "list-snapshots",
	Short: "List the snapshot tokens recorded under .gimera/snapshots",
	RunE:  runListSnapshots,
}

func init() {
	listSnapshotsCmd.Flags().StringVar(&listSnapshotsFormat, "format", "table", "output format: table|json|yaml")
	rootCmd.AddCommand(listSnapshotsCmd)
}

func runListSnapshots(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(listSnapshotsFormat)
	if err != nil {
		return err
	}

	host, _, err := findHost()
	if err != nil {
		return err
	}

	tokens, err := snapshot.ListTokens(host.Path)
	if err != nil {
		return err
	}

	report := &output.SnapshotReport{}
	for _, t := range tokens {
		report.Snapshots = append(report.Snapshots, describeToken(host.Path, t))
	}

	return output.FormatSnapshots(report, format)
}

// describeToken derives a SnapshotEntry's Files/Created fields from
// the token directory's contents, since ListTokens only returns names.
func describeToken(root, token string) output.SnapshotEntry {
	dir := snapshot.TokenDir(root, token)
	entry := output.SnapshotEntry{Token: token}

	var newest os.FileInfo
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		entry.Files++
		if newest == nil || info.ModTime().After(newest.ModTime()) {
			newest = info
		}
		return nil
	})
	if newest != nil {
		entry.Created = newest.ModTime().Format("2006-01-02 15:04:05")
	}
	return entry
}
