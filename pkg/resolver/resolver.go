// Package resolver computes the effective state of an arbitrary path
// under the host repository: which manifest owns it, which real git
// repository owns it, and whether it is currently a submodule. Every
// other component that needs "which repo owns this path" calls here
// rather than re-deriving the answer, per spec §4.8/§9.
package resolver

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/gimera-go/gimera/pkg/gitrepo"
	"github.com/gimera-go/gimera/pkg/manifest"
)

// EffectiveState is the computed answer for one path, per spec §3.
type EffectiveState struct {
	// ClosestGimera is the nearest ancestor directory (inclusive of
	// path's parent) carrying a gimera.yml, or root if none is found.
	ClosestGimera string
	// ParentGimera is the manifest directory that declares path as one
	// of its entries — which may equal ClosestGimera when path is
	// itself a gimera boundary.
	ParentGimera string
	// ParentRepo is the nearest enclosing real git repository of
	// ParentGimera (root itself when ParentGimera is root).
	ParentRepo string
	// ParentGimeraRelpath is path relative to ParentGimera.
	ParentGimeraRelpath string
	// ParentRepoRelpath is path relative to ParentRepo.
	ParentRepoRelpath string
	// IsSubmodule reports whether ParentRepo currently lists
	// ParentRepoRelpath as a submodule.
	IsSubmodule bool
}

// GetEffectiveState computes the EffectiveState for path, per spec
// §4.8 step 1-4.
func GetEffectiveState(ctx context.Context, root, path string) (*EffectiveState, error) {
	closest := closestGimera(root, filepath.Dir(path))

	parentGimera, err := findParentGimera(closest, root, path)
	if err != nil {
		return nil, err
	}

	var parentRepo string
	if parentGimera == root {
		parentRepo = root
	} else {
		r, err := GetNearestRepo(ctx, root, parentGimera)
		if err != nil {
			return nil, err
		}
		parentRepo = r
	}

	gimeraRel, err := filepath.Rel(parentGimera, path)
	if err != nil {
		gimeraRel = ""
	}
	repoRel, err := filepath.Rel(parentRepo, path)
	if err != nil {
		repoRel = ""
	}

	isSub, err := isSubmodulePath(ctx, parentRepo, repoRel)
	if err != nil {
		return nil, err
	}

	return &EffectiveState{
		ClosestGimera:       closest,
		ParentGimera:        parentGimera,
		ParentRepo:          parentRepo,
		ParentGimeraRelpath: gimeraRel,
		ParentRepoRelpath:   repoRel,
		IsSubmodule:         isSub,
	}, nil
}

// ClosestGimera exports closestGimera for callers outside this package
// that need the same "nearest ancestor manifest" walk — the apply
// engine uses it to resolve CWD to the sub_path a nested invocation
// should run under, per spec §4.9 step 1.
func ClosestGimera(root, start string) string {
	return closestGimera(root, start)
}

// closestGimera walks upward from start (inclusive) to root, returning
// the first directory carrying a gimera.yml, or root if none do.
func closestGimera(root, start string) string {
	dir := filepath.Clean(start)
	rootClean := filepath.Clean(root)
	for {
		if manifest.Exists(dir) {
			return dir
		}
		if dir == rootClean {
			return root
		}
		parent := filepath.Dir(dir)
		if parent == dir || !isUnderRoot(parent, rootClean) {
			return root
		}
		dir = parent
	}
}

func isUnderRoot(dir, root string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

// findParentGimera implements spec §4.8 step 2: if closest's own
// manifest declares an entry whose path equals path's location
// relative to closest, then path is itself a gimera boundary and its
// own manifest is the parent; otherwise the parent is the closest
// gimera strictly above closest.
func findParentGimera(closest, root, path string) (string, error) {
	if closest == root && !manifest.Exists(root) {
		return root, nil
	}

	m, err := manifest.LoadDefault(closest)
	if err == nil {
		rel, relErr := filepath.Rel(closest, path)
		if relErr == nil && m.Find(rel) != nil {
			boundary := filepath.Join(closest, rel)
			if manifest.Exists(boundary) {
				return boundary, nil
			}
		}
	}

	if closest == root {
		return root, nil
	}
	above := closestGimera(root, filepath.Dir(closest))
	return above, nil
}

// GetNearestRepo walks the submodule tree from end (a git repo, usually
// root) inward, always descending into the submodule whose path is a
// prefix of start, and returns the deepest such repo — the nearest
// real git repository enclosing start, per spec §4.8.
func GetNearestRepo(ctx context.Context, end, start string) (string, error) {
	current := end
	for {
		repo := gitrepo.New(current)
		subs, err := repo.GetSubmodules(ctx)
		if err != nil {
			return current, nil
		}

		descended := false
		for _, s := range subs {
			subAbs := filepath.Join(current, s.Path)
			if isUnderRoot(start, subAbs) {
				current = subAbs
				descended = true
				break
			}
		}
		if !descended {
			return current, nil
		}
	}
}

// isSubmodulePath reports whether repo lists relPath as a submodule.
func isSubmodulePath(ctx context.Context, repoPath, relPath string) (bool, error) {
	if relPath == "" || relPath == "." {
		return false, nil
	}
	repo := gitrepo.New(repoPath)
	subs, err := repo.GetSubmodules(ctx)
	if err != nil {
		return false, nil
	}
	clean := filepath.Clean(relPath)
	for _, s := range subs {
		if filepath.Clean(s.Path) == clean {
			return true, nil
		}
	}
	return false, nil
}
