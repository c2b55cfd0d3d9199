// Package lock serializes mutating commands across processes on one host
// with an advisory file lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// DefaultTimeout bounds how long Acquire waits for another process.
const DefaultTimeout = 10 * time.Second

// retryDelay is how often a held lock is polled.
const retryDelay = 50 * time.Millisecond

// ErrTimeout is returned when the lock could not be acquired in time.
var ErrTimeout = errors.New("timed out waiting for lock")

// Lock is a held file lock.
type Lock struct {
	path string
	fl   *flock.Flock
	once sync.Once
	err  error
}

// Acquire takes an exclusive lock on path, creating the file if needed,
// waiting at most timeout for a competing holder to let go.
func Acquire(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(path)
	ok, err := fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w %s after %s", ErrTimeout, path, timeout)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w %s after %s", ErrTimeout, path, timeout)
	}
	return &Lock{path: path, fl: fl}, nil
}

// Path returns the locked file's path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks the file. Calling it more than once, or on a nil Lock, is
// harmless.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		if err := l.fl.Unlock(); err != nil {
			l.err = fmt.Errorf("unlock %s: %w", l.path, err)
		}
	})
	return l.err
}
