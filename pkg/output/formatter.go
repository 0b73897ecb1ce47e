package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format represents an output format type
type Format string

const (
	Table Format = "table"
	JSON  Format = "json"
	YAML  Format = "yaml"
)

// ParseFormat parses a format string into a Format type
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "table":
		return Table, nil
	case "json":
		return JSON, nil
	case "yaml":
		return YAML, nil
	default:
		return "", fmt.Errorf("invalid format: %s (valid: table, json, yaml)", s)
	}
}

// StatusEntry is one row of `gimera status`: an entry's declared path
// and type versus what's actually on disk, per SPEC_FULL's
// PATH|TYPE|STATE|NOTE table shape.
type StatusEntry struct {
	Path string `json:"path" yaml:"path"`
	Type string `json:"type" yaml:"type"`
	// State is one of "ok", "missing", "drift", "dirty".
	State string `json:"state" yaml:"state"`
	Note  string `json:"note,omitempty" yaml:"note,omitempty"`
}

// StatusReport is the full result of `gimera status`.
type StatusReport struct {
	Entries []StatusEntry `json:"entries" yaml:"entries"`
}

// FormatStatus renders report in the requested format.
func FormatStatus(report *StatusReport, format Format) error {
	switch format {
	case Table:
		return formatStatusAsTable(report)
	case JSON:
		return formatAsJSON(report)
	case YAML:
		return formatAsYAML(report)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func formatStatusAsTable(report *StatusReport) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("PATH", "TYPE", "STATE", "NOTE")

	for _, e := range report.Entries {
		if err := table.Append(e.Path, e.Type, strings.ToUpper(e.State), e.Note); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if len(report.Entries) == 0 {
		fmt.Println("No entries in manifest")
		return nil
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	var missing, drift, dirty int
	for _, e := range report.Entries {
		switch e.State {
		case "missing":
			missing++
		case "drift":
			drift++
		case "dirty":
			dirty++
		}
	}
	if missing+drift+dirty > 0 {
		fmt.Println()
		fmt.Printf("%d missing, %d type drift, %d dirty\n", missing, drift, dirty)
	}

	return nil
}

// SnapshotEntry is one row of `gimera list-snapshots`.
type SnapshotEntry struct {
	Token   string `json:"token" yaml:"token"`
	Created string `json:"created,omitempty" yaml:"created,omitempty"`
	Files   int    `json:"files" yaml:"files"`
}

// SnapshotReport is the full result of `gimera list-snapshots`.
type SnapshotReport struct {
	Snapshots []SnapshotEntry `json:"snapshots" yaml:"snapshots"`
}

// FormatSnapshots renders report in the requested format.
func FormatSnapshots(report *SnapshotReport, format Format) error {
	switch format {
	case Table:
		return formatSnapshotsAsTable(report)
	case JSON:
		return formatAsJSON(report)
	case YAML:
		return formatAsYAML(report)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func formatSnapshotsAsTable(report *SnapshotReport) error {
	if len(report.Snapshots) == 0 {
		fmt.Println("No snapshots")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("TOKEN", "CREATED", "FILES")
	for _, s := range report.Snapshots {
		if err := table.Append(s.Token, s.Created, fmt.Sprintf("%d", s.Files)); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

func formatAsJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func formatAsYAML(v interface{}) error {
	encoder := yaml.NewEncoder(os.Stdout)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(v)
}
