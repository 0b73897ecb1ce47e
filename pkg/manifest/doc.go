// Package manifest loads, validates, and rewrites gimera.yml manifest
// files: the ordered list of repo entries a host repository composes
// itself from, plus the common vars/patches a manifest shares with its
// children.
package manifest
