package manifest

import (
	"fmt"
	"regexp"
)

// varPattern matches a ${name} reference inside url/branch fields.
// Modeled on the teacher's Docker-Compose-style expandEnvVars pattern,
// but plain ${name} substitution against manifest-declared vars rather
// than the process environment and without a `:-default` form, since
// spec §4.3 defines no default syntax.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// MergeVars returns parentVars overlaid with this manifest's own
// common.vars, the child taking precedence.
func (m *Manifest) MergeVars(parentVars map[string]string) map[string]string {
	merged := make(map[string]string, len(parentVars)+len(m.Common.Vars))
	for k, v := range parentVars {
		merged[k] = v
	}
	for k, v := range m.Common.Vars {
		merged[k] = v
	}
	return merged
}

// ExpandVars substitutes every ${name} in each entry's URL and Branch
// against vars, mutating the entries in place. Any reference left
// unresolved is an error, per spec §3/§4.3.
func (m *Manifest) ExpandVars(vars map[string]string) error {
	for _, e := range m.Repos {
		expanded, err := expandOne(e.URL, vars)
		if err != nil {
			return fmt.Errorf("entry %q: url: %w", e.Path, err)
		}
		e.URL = expanded

		expanded, err = expandOne(e.Branch, vars)
		if err != nil {
			return fmt.Errorf("entry %q: branch: %w", e.Path, err)
		}
		e.Branch = expanded
	}
	return nil
}

func expandOne(s string, vars map[string]string) (string, error) {
	var missing string
	out := varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := varPattern.FindStringSubmatch(match)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		if missing == "" {
			missing = name
		}
		return match
	})
	if missing != "" {
		return "", fmt.Errorf("unresolved variable ${%s}", missing)
	}
	return out, nil
}
