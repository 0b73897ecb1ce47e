package engine

import (
	"testing"

	"github.com/gimera-go/gimera/pkg/manifest"
)

func TestEffectiveType(t *testing.T) {
	entry := &manifest.Entry{Path: "vendor/dep", Type: manifest.TypeSubmodule}

	if got := effectiveType(entry, Options{}, false); got != manifest.TypeSubmodule {
		t.Errorf("effectiveType() = %q, want declared type %q", got, manifest.TypeSubmodule)
	}
	if got := effectiveType(entry, Options{ForceType: manifest.TypeIntegrated}, false); got != manifest.TypeIntegrated {
		t.Errorf("effectiveType() with ForceType = %q, want %q", got, manifest.TypeIntegrated)
	}
	if got := effectiveType(entry, Options{}, true); got != manifest.TypeIntegrated {
		t.Errorf("effectiveType() non-strict with forcedIntegrated = %q, want %q", got, manifest.TypeIntegrated)
	}
	if got := effectiveType(entry, Options{Strict: true}, true); got != manifest.TypeSubmodule {
		t.Errorf("effectiveType() strict with forcedIntegrated = %q, want declared type %q", got, manifest.TypeSubmodule)
	}
}

func TestFilterEntries(t *testing.T) {
	entries := []*manifest.Entry{
		{Path: "vendor/a"},
		{Path: "vendor/b"},
		{Path: "lib/c"},
	}

	got := filterEntries(entries, []string{"vendor/*"})
	if len(got) != 2 {
		t.Fatalf("filterEntries() = %d entries, want 2", len(got))
	}
	if got[0].Path != "vendor/a" || got[1].Path != "vendor/b" {
		t.Errorf("filterEntries() = %v, want vendor/a, vendor/b", got)
	}

	got = filterEntries(entries, []string{"lib/c"})
	if len(got) != 1 || got[0].Path != "lib/c" {
		t.Errorf("filterEntries() literal match = %v, want [lib/c]", got)
	}
}

func TestMustRel(t *testing.T) {
	if got := mustRel("/a/b", "/a/b"); got != "" {
		t.Errorf("mustRel() for identical paths = %q, want empty", got)
	}
	if got := mustRel("/a/b", "/a/b/c"); got != "c" {
		t.Errorf("mustRel() = %q, want %q", got, "c")
	}
}
