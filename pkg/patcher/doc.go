// Package patcher captures and replays the local edits an integrated
// entry carries on top of its vendored upstream tree, as `.patch`
// files living alongside the manifest, per spec §4.6.
//
// Patches are plain `git format-patch` text applied with the external
// `patch` binary (`patch -p1 ...`), not an in-process diff/apply
// library — grit's git/patch.go models the same format-patch output
// as structured Diff/Patch values for an in-process `git am`, but
// gimera's contract is an external-process one throughout, so this
// package shells out for both capture and application instead.
package patcher
