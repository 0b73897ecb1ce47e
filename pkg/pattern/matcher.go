// Package pattern compiles and evaluates glob patterns, used for
// matching patch filenames against an entry's ignored_patchfiles list
// and for filtering `gimera apply [repos...]` arguments against
// manifest entry paths.
//
// Adapted from the teacher's pkg/pattern.Matcher, which matched
// "type/pattern" resource references; gimera has no resource-type
// prefix, so the matcher here is a plain glob-over-a-name matcher.
package pattern

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher holds one compiled glob pattern.
type Matcher struct {
	pattern   glob.Glob
	isPattern bool
}

// NewMatcher compiles pattern. Supported glob syntax: `*` any run of
// characters, `?` any single character, `[abc]` a character class,
// `{a,b}` alternation.
func NewMatcher(pattern string) (*Matcher, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return &Matcher{pattern: g, isPattern: IsPattern(pattern)}, nil
}

// MatchName reports whether name matches the compiled pattern.
func (m *Matcher) MatchName(name string) bool {
	return m.pattern.Match(name)
}

// IsPattern reports whether the matcher was built from an actual glob
// pattern, as opposed to a literal string with no special characters.
func (m *Matcher) IsPattern() bool {
	return m.isPattern
}

// IsPattern reports whether s contains glob special characters.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// MatchesPattern compiles pattern and matches it against name in one
// call; prefer NewMatcher for repeated matching.
func MatchesPattern(pattern, name string) (bool, error) {
	m, err := NewMatcher(pattern)
	if err != nil {
		return false, err
	}
	return m.MatchName(name), nil
}

// MatchesAny reports whether name matches any of patterns (used for
// ignored_patchfiles and repo-name filter lists, where any compile
// error is treated as "matches nothing" rather than aborting a whole
// filter pass over one bad entry).
func MatchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := MatchesPattern(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// FilterNames returns the subset of names matching pattern.
func FilterNames(names []string, pattern string) ([]string, error) {
	m, err := NewMatcher(pattern)
	if err != nil {
		return nil, err
	}
	var filtered []string
	for _, n := range names {
		if m.MatchName(n) {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}
