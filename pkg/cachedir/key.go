// Package cachedir manages the per-URL bare-clone cache every entry
// fetches against, keyed deterministically off its URL so equivalent
// URLs (scp-style vs. https, with or without a user@ prefix) share one
// cache on disk. The per-URL bare-clone idea follows grailbio-grit's
// git.Open (hash the URL, clone --bare once, reuse across
// invocations); the cache root and temp-dir-then-atomic-replace
// bootstrap follow the teacher's XDG-rooted data directory and
// CloneRepo/temp-dir-cleanup convention.
package cachedir

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/adrg/xdg"
)

var scpLike = regexp.MustCompile(`^(?:[\w.-]+@)?([\w.-]+):(.+)$`)

// normalizeToHTTPS rewrites a git@host:path scp-style URL to
// https://host/path. Any other URL form is returned unchanged.
func normalizeToHTTPS(url string) string {
	if strings.Contains(url, "://") {
		return url
	}
	m := scpLike.FindStringSubmatch(url)
	if m == nil {
		return url
	}
	return "https://" + m[1] + "/" + m[2]
}

var cacheKeyReplacer = strings.NewReplacer(
	"?", "-", ":", "-", "+", "-",
	"[", "-", "]", "-", "{", "-", "}", "-",
	"/", "-", `\`, "-", `"`, "-", "'", "-", "_", "-",
)

// userPrefix matches a "user@" credential prefix either at the very
// start of the URL (scp-style, already handled by normalizeToHTTPS but
// harmless to re-check) or right after a "://" scheme separator.
var userPrefix = regexp.MustCompile(`(^|://)[\w.-]+@`)

// Key derives the deterministic cache directory name for url, per spec
// §4.4: normalize scp-style URLs to https, strip a user@ prefix so
// equivalent URLs collapse to the same cache, then replace the
// punctuation set ?:+[]{}\/"'_ with '-'.
func Key(url string) string {
	normalized := normalizeToHTTPS(url)
	normalized = userPrefix.ReplaceAllString(normalized, "$1")
	return cacheKeyReplacer.Replace(normalized)
}

// Root returns the cache root directory, ~/.cache/gimera by default.
func Root() string {
	return filepath.Join(xdg.CacheHome, "gimera")
}

// PathFor returns the golden (non-temporary) cache path for url.
func PathFor(root, url string) string {
	return filepath.Join(root, Key(url))
}
