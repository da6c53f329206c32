package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	homedir "github.com/mitchellh/go-homedir"
)

// Writers of a history database serialize on a sibling "<db>.lock" file.
const lockFileSuffix = ".lock"

const lockRetryDelay = 200 * time.Millisecond

// ErrLockTimeout is returned when the history database lock could not be
// taken before the context ended.
var ErrLockTimeout = errors.New("timed out waiting for the history database lock")

// DBLock is a held lock on a history database.
type DBLock struct {
	fl *flock.Flock
}

// AcquireDBLock takes the write lock of the database at dbPath. When another
// process holds it, AcquireDBLock logs once and polls until the lock frees up
// or ctx is done.
func AcquireDBLock(ctx context.Context, dbPath string) (*DBLock, error) {
	absPath, err := ResolveDBPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("resolving db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, err
	}

	fl := flock.New(absPath + lockFileSuffix)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", fl.Path(), err)
	}
	if locked {
		return &DBLock{fl: fl}, nil
	}

	Log.Warnf("%s is held by another ruleconv process, waiting for it to finish", fl.Path())
	locked, err = fl.TryLockContext(ctx, lockRetryDelay)
	if ctxErr := ctx.Err(); ctxErr != nil && !locked {
		return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, fl.Path(), ctxErr)
	}
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, fl.Path())
	}
	return &DBLock{fl: fl}, nil
}

// WithDBLock runs fn while holding the lock of the database at dbPath. A
// positive wait bounds how long to wait for the lock; fn itself is not
// bounded by it.
func WithDBLock(ctx context.Context, dbPath string, wait time.Duration, fn func() error) error {
	lockCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	lock, err := AcquireDBLock(lockCtx, dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			Log.Warn(err)
		}
	}()
	return fn()
}

// Path returns the lock file path.
func (l *DBLock) Path() string {
	return l.fl.Path()
}

// Release drops the lock. Releasing twice is a no-op.
func (l *DBLock) Release() error {
	if !l.fl.Locked() {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlocking %s: %w", l.fl.Path(), err)
	}
	return nil
}

// ResolveDBPath makes dbPath absolute. An empty path selects
// ~/.config/ruleconv/ruleconv.sqlite.
func ResolveDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "ruleconv", "ruleconv.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}
