package execx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// TreeLock serializes concurrent gimera invocations against the same
// working tree via <dir>/.git/gimera.lock (spec §4.1, §5). A lock held
// for longer than the one-hour ceiling is reclaimed rather than waited
// on forever, matching the index.lock policy.
type TreeLock struct {
	fl   *flock.Flock
	path string
}

// AcquireTreeLock blocks (polling) until the gimera.lock for dir is
// obtained, or the ceiling elapses and the lock is forcibly broken.
func AcquireTreeLock(dir string) (*TreeLock, error) {
	lockPath := filepath.Join(dir, ".git", "gimera.lock")
	fl := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), lockCeiling)
	defer cancel()

	ok, err := fl.TryLockContext(ctx, lockPollInterval)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", lockPath, err)
	}
	if !ok {
		// Ceiling elapsed: treat the holder as stale and break the lock
		// by removing the lock file before retrying once, non-blocking.
		_ = os.Remove(lockPath)
		if ok, err := fl.TryLock(); err != nil || !ok {
			return nil, fmt.Errorf("acquire %s: timed out waiting past ceiling", lockPath)
		}
	}
	return &TreeLock{fl: fl, path: lockPath}, nil
}

// Release relinquishes the lock.
func (t *TreeLock) Release() error {
	if t == nil || t.fl == nil {
		return nil
	}
	return t.fl.Unlock()
}

// WithTreeLock acquires the tree lock for dir, runs fn, and always
// releases it afterward.
func WithTreeLock(dir string, fn func() error) error {
	lock, err := AcquireTreeLock(dir)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}
