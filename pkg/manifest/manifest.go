package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the manifest file every gimera-managed directory carries.
const FileName = "gimera.yml"

// Type enumerates the two ways an entry can be materialized.
type Type string

const (
	TypeSubmodule  Type = "submodule"
	TypeIntegrated Type = "integrated"
)

// Merge is one (remote, ref) pair folded into the upstream tree before
// an integrated entry is vendored.
type Merge struct {
	Remote string
	Ref    string
}

// Common holds the vars and patch templates a manifest shares with any
// child manifest nested under one of its entries.
type Common struct {
	Vars    map[string]string `yaml:"vars,omitempty"`
	Patches []string          `yaml:"patches,omitempty"`
}

// Entry is one row of the repos list.
type Entry struct {
	Path              string            `yaml:"path"`
	URL               string            `yaml:"url"`
	Branch            string            `yaml:"branch"`
	Type              Type              `yaml:"type"`
	Sha               string            `yaml:"sha,omitempty"`
	FreezeSha         bool              `yaml:"freeze_sha,omitempty"`
	Patches           []string          `yaml:"patches,omitempty"`
	IgnoredPatchfiles []string          `yaml:"ignored_patchfiles,omitempty"`
	EditPatchfile     string            `yaml:"edit_patchfile,omitempty"`
	Remotes           map[string]string `yaml:"remotes,omitempty"`
	Merges            []Merge           `yaml:"-"`
	RawMerges         []string          `yaml:"merges,omitempty"`
	Enabled           *bool             `yaml:"enabled,omitempty"`
}

// IsEnabled defaults to true: only an explicit `enabled: false` skips
// an entry.
func (e *Entry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// entryAlias avoids recursing through Entry's custom UnmarshalYAML and
// lets `branch` arrive as an arbitrary scalar (string, int, float,
// bool) before being coerced to a string, per spec §3.
type entryAlias struct {
	Path              string            `yaml:"path"`
	URL               string            `yaml:"url"`
	Branch            yaml.Node         `yaml:"branch"`
	Type              Type              `yaml:"type"`
	Sha               string            `yaml:"sha,omitempty"`
	FreezeSha         bool              `yaml:"freeze_sha,omitempty"`
	Patches           []string          `yaml:"patches,omitempty"`
	IgnoredPatchfiles []string          `yaml:"ignored_patchfiles,omitempty"`
	EditPatchfile     string            `yaml:"edit_patchfile,omitempty"`
	Remotes           map[string]string `yaml:"remotes,omitempty"`
	RawMerges         []string          `yaml:"merges,omitempty"`
	Enabled           *bool             `yaml:"enabled,omitempty"`
}

// UnmarshalYAML coerces a numeric or boolean `branch` scalar to a
// string and splits each `merges` entry of the form "remote ref".
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	var a entryAlias
	if err := value.Decode(&a); err != nil {
		return err
	}

	*e = Entry{
		Path:              a.Path,
		URL:               a.URL,
		Type:              a.Type,
		Sha:               a.Sha,
		FreezeSha:         a.FreezeSha,
		Patches:           a.Patches,
		IgnoredPatchfiles: a.IgnoredPatchfiles,
		EditPatchfile:     a.EditPatchfile,
		Remotes:           a.Remotes,
		RawMerges:         a.RawMerges,
		Enabled:           a.Enabled,
	}

	if a.Branch.Value != "" || a.Branch.Kind != 0 {
		switch a.Branch.Tag {
		case "!!int", "!!float", "!!bool", "!!str":
			e.Branch = a.Branch.Value
		default:
			e.Branch = a.Branch.Value
		}
	}

	for _, raw := range a.RawMerges {
		fields := strings.Fields(raw)
		if len(fields) != 2 {
			return fmt.Errorf("entry %q: invalid merge %q, want \"remote ref\"", a.Path, raw)
		}
		e.Merges = append(e.Merges, Merge{Remote: fields[0], Ref: fields[1]})
	}

	return nil
}

// MarshalYAML re-flattens Merges into RawMerges and writes the alias
// shape back out, preserving field order.
func (e Entry) MarshalYAML() (interface{}, error) {
	a := entryAlias{
		Path:              e.Path,
		URL:               e.URL,
		Type:              e.Type,
		Sha:               e.Sha,
		FreezeSha:         e.FreezeSha,
		Patches:           e.Patches,
		IgnoredPatchfiles: e.IgnoredPatchfiles,
		EditPatchfile:     e.EditPatchfile,
		Remotes:           e.Remotes,
		Enabled:           e.Enabled,
	}
	a.Branch.SetString(e.Branch)
	for _, m := range e.Merges {
		a.RawMerges = append(a.RawMerges, m.Remote+" "+m.Ref)
	}
	if e.Merges == nil {
		a.RawMerges = e.RawMerges
	}
	return a, nil
}

// Manifest is a parsed gimera.yml document.
type Manifest struct {
	Common Common   `yaml:"common,omitempty"`
	Repos  []*Entry `yaml:"repos"`

	// path is the manifest's own location on disk, set by Load and used
	// by Save/Store to rewrite the same file.
	path string
}

// Path returns the manifest's filesystem path.
func (m *Manifest) Path() string { return m.path }

// Dir returns the manifest's containing directory.
func (m *Manifest) Dir() string { return filepath.Dir(m.path) }

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest not found: %s", path)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	m.path = path

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}

// LoadDefault loads <dir>/gimera.yml, or <cwd>/gimera.yml if dir is "".
func LoadDefault(dir string) (*Manifest, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = cwd
	}
	return Load(filepath.Join(dir, FileName))
}

// Exists reports whether dir contains a gimera.yml.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}

// Save writes the manifest back to its own path.
func (m *Manifest) Save() error {
	return m.SaveAs(m.path)
}

// SaveAs writes the manifest to an explicit path.
func (m *Manifest) SaveAs(path string) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}

// Validate enforces the invariants spec §3 names: unique, non-empty
// paths with no trailing separator and a known type per entry. Variable
// resolution is checked separately by ExpandVars, since it needs the inherited
// parent vars this manifest alone cannot see.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Repos))
	for _, e := range m.Repos {
		if e.Path == "" {
			return fmt.Errorf("entry has empty path")
		}
		if strings.HasSuffix(e.Path, string(filepath.Separator)) || strings.HasSuffix(e.Path, "/") {
			return fmt.Errorf("entry path %q may not end in a separator", e.Path)
		}
		clean := filepath.Clean(e.Path)
		if seen[clean] {
			return fmt.Errorf("duplicate path: %s", e.Path)
		}
		seen[clean] = true

		if e.Type != TypeSubmodule && e.Type != TypeIntegrated {
			return fmt.Errorf("entry %q: type must be %q or %q", e.Path, TypeSubmodule, TypeIntegrated)
		}
	}
	return nil
}

// WithDir returns a shallow copy of m whose Dir()/Path() resolve under
// dir instead of m's own on-disk location, sharing the same Common and
// Repos. It touches nothing on disk; the apply engine's make-patches
// refresh callback uses it to replay an integrated refresh against a
// scratch copy of the host tree rooted elsewhere.
func (m *Manifest) WithDir(dir string) *Manifest {
	return &Manifest{Common: m.Common, Repos: m.Repos, path: filepath.Join(dir, FileName)}
}

// Find returns the entry with the given path, or nil.
func (m *Manifest) Find(path string) *Entry {
	clean := filepath.Clean(path)
	for _, e := range m.Repos {
		if filepath.Clean(e.Path) == clean {
			return e
		}
	}
	return nil
}

// coerceScalar renders a YAML scalar value (as produced by fmt for
// ints/floats/bools coming off a flag or programmatic update) as text.
func coerceScalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
