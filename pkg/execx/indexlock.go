package execx

import (
	"os"
	"path/filepath"
	"time"
)

// WaitForIndexLock blocks while <dir>/.git/index.lock exists and is
// younger than one hour, polling every 500ms. A lock older than the
// ceiling is treated as stale and forcibly removed, per spec §4.1/§5.
func WaitForIndexLock(dir string) error {
	lockPath := filepath.Join(dir, ".git", "index.lock")
	deadline := time.Now().Add(lockCeiling)
	for {
		info, err := os.Stat(lockPath)
		if err != nil {
			// Any failure to stat the lock path (missing, or a worktree
			// whose .git is a file rather than a directory) means there
			// is nothing to wait on.
			return nil
		}

		if time.Since(info.ModTime()) > lockCeiling {
			_ = os.Remove(lockPath)
			return nil
		}
		if time.Now().After(deadline) {
			_ = os.Remove(lockPath)
			return nil
		}
		time.Sleep(lockPollInterval)
	}
}
