package manifest

import "path/filepath"

// PatchDirMode selects whether AllPatchDirs returns paths as joined onto
// the owning manifest's directory (ModeRelative; these are absolute
// whenever the manifest was loaded from an absolute path) or, for any
// that are still relative, additionally joined against the host root
// (ModeAbsolute).
type PatchDirMode int

const (
	ModeRelative PatchDirMode = iota
	ModeAbsolute
)

// PatchDir is one resolved patch directory: Dir is where patch files
// are collected from or written to, ApplyFrom is the working
// directory `patch -p1` must run from for those files to land
// correctly, per spec §4.3/§4.6.
type PatchDir struct {
	Dir       string
	ApplyFrom string
}

// AllPatchDirs returns the union of entry's own declared patch
// directories and, when the entry's own tree nests a child gimera.yml,
// that child manifest's inherited common.patches.
//
// Grounding note: original_source/gimera/config.py's
// transform_local_patchdirs and transform_patchdir both root apply-from
// at the entry's own directory (config_file.parent / entry.path), not
// at the manifest's directory itself — followed here over the
// summarized prose, since patches target the vendored entry tree.
func (m *Manifest) AllPatchDirs(e *Entry, hostRoot string, mode PatchDirMode) ([]PatchDir, error) {
	manifestDir := m.Dir()
	entryRoot := filepath.Join(manifestDir, e.Path)

	var dirs []PatchDir
	for _, p := range e.Patches {
		dirs = append(dirs, PatchDir{
			Dir:       filepath.Join(manifestDir, p),
			ApplyFrom: entryRoot,
		})
	}

	childPath := filepath.Join(entryRoot, FileName)
	if Exists(entryRoot) {
		if child, err := Load(childPath); err == nil {
			for _, p := range child.Common.Patches {
				dirs = append(dirs, PatchDir{
					Dir:       filepath.Join(entryRoot, p),
					ApplyFrom: entryRoot,
				})
			}
		}
	}

	if mode == ModeAbsolute {
		for i := range dirs {
			dirs[i].Dir = joinAbs(hostRoot, dirs[i].Dir)
			dirs[i].ApplyFrom = joinAbs(hostRoot, dirs[i].ApplyFrom)
		}
	}
	return dirs, nil
}

func joinAbs(hostRoot, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(hostRoot, p)
}
