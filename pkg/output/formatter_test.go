package output

import (
	"testing"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", Table, false},
		{"Table", Table, false},
		{"json", JSON, false},
		{"JSON", JSON, false},
		{"yaml", YAML, false},
		{"YAML", YAML, false},
		{"xml", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := ParseFormat(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) expected error, got nil", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q) unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFormatConstantValues(t *testing.T) {
	if Table != "table" {
		t.Errorf("Table = %q, want %q", Table, "table")
	}
	if JSON != "json" {
		t.Errorf("JSON = %q, want %q", JSON, "json")
	}
	if YAML != "yaml" {
		t.Errorf("YAML = %q, want %q", YAML, "yaml")
	}
}

func TestFormatStatus_JSON(t *testing.T) {
	report := &StatusReport{
		Entries: []StatusEntry{
			{Path: "vendor/dep", Type: "integrated", State: "ok"},
			{Path: "vendor/missing", Type: "submodule", State: "missing", Note: "path does not exist"},
		},
	}
	if err := FormatStatus(report, JSON); err != nil {
		t.Errorf("FormatStatus(JSON) error = %v", err)
	}
}

func TestFormatStatus_YAML(t *testing.T) {
	report := &StatusReport{
		Entries: []StatusEntry{
			{Path: "vendor/dep", Type: "integrated", State: "dirty", Note: "uncommitted changes"},
		},
	}
	if err := FormatStatus(report, YAML); err != nil {
		t.Errorf("FormatStatus(YAML) error = %v", err)
	}
}

func TestFormatStatus_Table(t *testing.T) {
	report := &StatusReport{
		Entries: []StatusEntry{
			{Path: "vendor/dep", Type: "integrated", State: "ok"},
		},
	}
	if err := FormatStatus(report, Table); err != nil {
		t.Errorf("FormatStatus(Table) error = %v", err)
	}
}

func TestFormatStatus_TableEmpty(t *testing.T) {
	report := &StatusReport{}
	if err := FormatStatus(report, Table); err != nil {
		t.Errorf("FormatStatus(Table) with no entries error = %v", err)
	}
}

func TestFormatStatus_UnsupportedFormat(t *testing.T) {
	report := &StatusReport{}
	if err := FormatStatus(report, Format("xml")); err == nil {
		t.Error("FormatStatus with unsupported format should error")
	}
}

func TestFormatSnapshots_Table(t *testing.T) {
	report := &SnapshotReport{
		Snapshots: []SnapshotEntry{
			{Token: "20260101-120000-abcd", Created: "2026-01-01T12:00:00Z", Files: 3},
		},
	}
	if err := FormatSnapshots(report, Table); err != nil {
		t.Errorf("FormatSnapshots(Table) error = %v", err)
	}
}

func TestFormatSnapshots_TableEmpty(t *testing.T) {
	report := &SnapshotReport{}
	if err := FormatSnapshots(report, Table); err != nil {
		t.Errorf("FormatSnapshots(Table) with no snapshots error = %v", err)
	}
}

func TestFormatSnapshots_JSON(t *testing.T) {
	report := &SnapshotReport{
		Snapshots: []SnapshotEntry{
			{Token: "20260101-120000-abcd", Files: 1},
		},
	}
	if err := FormatSnapshots(report, JSON); err != nil {
		t.Errorf("FormatSnapshots(JSON) error = %v", err)
	}
}

func TestFormatSnapshots_UnsupportedFormat(t *testing.T) {
	report := &SnapshotReport{}
	if err := FormatSnapshots(report, Format("xml")); err == nil {
		t.Error("FormatSnapshots with unsupported format should error")
	}
}
