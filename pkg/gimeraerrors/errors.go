// Package gimeraerrors defines the typed error kinds the apply/patch/
// snapshot engines raise, so callers can tell a fatal configuration
// problem from a recoverable one without string-matching messages.
package gimeraerrors

import (
	"errors"
	"fmt"
)

// Kind categorizes an error per spec §7.
type Kind int

const (
	// KindManifest covers duplicate paths, trailing separators, missing
	// variables, unknown types, and missing manifest files. Always fatal.
	KindManifest Kind = iota
	// KindFetch covers network or ref-resolution failures. Aggregated
	// across fetch workers; fatal unless GIMERA_IGNORE_FETCH_ERRORS.
	KindFetch
	// KindDirtyWorkingTree signals that proceeding would lose local
	// edits. Fatal unless GIMERA_FORCE.
	KindDirtyWorkingTree
	// KindCacheIntegrity signals a bare cache missing required refs or
	// paths after a fetch. Triggers a rebuild; fatal on second failure.
	KindCacheIntegrity
	// KindPatchApply signals `patch` returned nonzero. Interactive mode
	// may continue to the next file; non-interactive is fatal.
	KindPatchApply
	// KindMerge signals `git pull --no-edit --no-rebase` failed. Fatal.
	KindMerge
	// KindSubmoduleAdd signals `git submodule add` failed after the one
	// permitted retry. Fatal.
	KindSubmoduleAdd
)

func (k Kind) String() string {
	switch k {
	case KindManifest:
		return "manifest"
	case KindFetch:
		return "fetch"
	case KindDirtyWorkingTree:
		return "dirty_working_tree"
	case KindCacheIntegrity:
		return "cache_integrity"
	case KindPatchApply:
		return "patch_apply"
	case KindMerge:
		return "merge"
	case KindSubmoduleAdd:
		return "submodule_add"
	default:
		return "unknown"
	}
}

// GimeraError is an error tagged with a Kind and, for a subset of
// kinds, the entry path it concerns.
type GimeraError struct {
	Kind    Kind
	Entry   string // entry path this error concerns, if any
	Context string
	Err     error
}

func (e *GimeraError) Error() string {
	prefix := e.Kind.String()
	if e.Entry != "" {
		prefix = fmt.Sprintf("%s[%s]", prefix, e.Entry)
	}
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Context, e.Err)
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e *GimeraError) Unwrap() error { return e.Err }

func wrap(kind Kind, entry, context string, err error) error {
	if err == nil {
		return nil
	}
	return &GimeraError{Kind: kind, Entry: entry, Context: context, Err: err}
}

// Manifest wraps err as a KindManifest error.
func Manifest(context string, err error) error { return wrap(KindManifest, "", context, err) }

// Fetch wraps err as a KindFetch error for the named entry.
func Fetch(entry string, err error) error { return wrap(KindFetch, entry, "", err) }

// DirtyWorkingTree wraps err as a KindDirtyWorkingTree error for the named path.
func DirtyWorkingTree(path string, err error) error {
	return wrap(KindDirtyWorkingTree, path, "", err)
}

// CacheIntegrity wraps err as a KindCacheIntegrity error for the named URL/cache key.
func CacheIntegrity(cacheKey string, err error) error {
	return wrap(KindCacheIntegrity, cacheKey, "", err)
}

// PatchApply wraps err as a KindPatchApply error for the named patch file.
func PatchApply(patchFile string, err error) error { return wrap(KindPatchApply, patchFile, "", err) }

// Merge wraps err as a KindMerge error for the named entry.
func Merge(entry string, err error) error { return wrap(KindMerge, entry, "", err) }

// SubmoduleAdd wraps err as a KindSubmoduleAdd error for the named path.
func SubmoduleAdd(path string, err error) error { return wrap(KindSubmoduleAdd, path, "", err) }

// Is reports whether err is a GimeraError of the given kind.
func Is(err error, kind Kind) bool {
	var ge *GimeraError
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err, and ok=false if err is not a GimeraError.
func KindOf(err error) (Kind, bool) {
	var ge *GimeraError
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return 0, false
}
