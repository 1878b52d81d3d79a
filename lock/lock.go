package lock

import (
	"context"
	"errors"
)

// ErrGone means the lock's backing file can no longer exist because its
// directory was removed, usually because the run that owned it was reset.
var ErrGone = errors.New("lock directory gone")

// Locker provides mutual exclusion with context support.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
	TryLock(ctx context.Context) (bool, error)
}

// WithLock runs fn while holding l.
func WithLock(ctx context.Context, l Locker, fn func() error) error {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer l.Unlock(ctx) //nolint:errcheck
	return fn()
}
