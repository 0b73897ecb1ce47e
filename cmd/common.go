package cmd

import (
	"fmt"
	"os"

	"github.com/gimera-go/gimera/pkg/cachedir"
	"github.com/gimera-go/gimera/pkg/gimeralog"
	"github.com/gimera-go/gimera/pkg/gitrepo"
	"github.com/gimera-go/gimera/pkg/manifest"
)

// findHost locates the enclosing host repository and its top-level
// manifest starting from the current working directory, the way
// engine.Engine.Apply does for the apply command itself. Every
// subcommand that isn't apply (commit, status, snap, ...) needs the
// same pair, so it's centralized here instead of re-derived per file.
func findHost() (*gitrepo.Repo, *manifest.Manifest, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	rootPath, err := gitrepo.NearestRepoRoot(cwd)
	if err != nil {
		return nil, nil, fmt.Errorf("locate host repo: %w", err)
	}
	host := gitrepo.New(rootPath)
	m, err := manifest.LoadDefault(rootPath)
	if err != nil {
		return nil, nil, err
	}
	return host, m, nil
}

// newLogger builds a gimeralog.Logger rooted at host's .gimera
// directory, falling back to a discard logger if it can't be created
// (a fresh repo with no .gimera yet still shouldn't fail a read-only
// command like status).
func newLogger(hostPath string) *gimeralog.Logger {
	log, err := gimeralog.New(hostPath)
	if err != nil {
		return gimeralog.Discard()
	}
	return log
}

// resolveCacheRoot resolves the cache root CLI commands pass to the engine/
// fetcher/cachedir layers: the explicit --cache-dir flag if set, else
// cachedir.Root()'s XDG default.
func resolveCacheRoot(flag string) string {
	if flag != "" {
		return flag
	}
	return cachedir.Root()
}
