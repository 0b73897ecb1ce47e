package gitrepo

import (
	"context"
	"path/filepath"
	"strings"
)

// StatusView is one parsed `git status --porcelain --untracked-files=all`
// output, split into the three views spec §4.2 names. Each view is
// available both repo-relative (the *Rel slices) and absolute (the
// *Abs slices, joined against the repo root).
type StatusView struct {
	StagedRel []string
	StagedAbs []string

	DirtyRel []string
	DirtyAbs []string

	UntrackedRel []string
	UntrackedAbs []string
}

// Status parses `git status --porcelain --untracked-files=all` for the
// whole working tree.
func (r *Repo) Status(ctx context.Context) (*StatusView, error) {
	res, err := r.git(ctx, "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	return parseStatus(res.Stdout, r.Path), nil
}

func parseStatus(output, root string) *StatusView {
	sv := &StatusView{}
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 3 {
			continue
		}
		code := line[:2]
		rel := strings.TrimSpace(line[3:])
		// Renames report as "R  old -> new"; the new path is what matters.
		if idx := strings.Index(rel, " -> "); idx >= 0 {
			rel = rel[idx+4:]
		}
		rel = strings.Trim(rel, `"`)
		abs := filepath.Join(root, rel)

		x, y := code[0], code[1]

		if x == 'A' || x == 'M' || x == 'D' {
			sv.StagedRel = append(sv.StagedRel, rel)
			sv.StagedAbs = append(sv.StagedAbs, abs)
		}

		if y == 'M' || y == 'D' || x == 'M' {
			sv.DirtyRel = append(sv.DirtyRel, rel)
			sv.DirtyAbs = append(sv.DirtyAbs, abs)
		}

		if code == "??" || x == 'A' {
			sv.UntrackedRel = append(sv.UntrackedRel, rel)
			sv.UntrackedAbs = append(sv.UntrackedAbs, abs)
		}
	}
	return sv
}

// Dirty reports whether the working tree has any status line other
// than a lone change to gimera.yml.
func (r *Repo) Dirty(ctx context.Context) (bool, error) {
	res, err := r.git(ctx, "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return false, err
	}
	lines := splitLines(res.Stdout)
	if len(lines) == 0 {
		return false, nil
	}
	if len(lines) == 1 {
		rel := strings.TrimSpace(lines[0][3:])
		if rel == "gimera.yml" {
			return false, nil
		}
	}
	return true, nil
}
