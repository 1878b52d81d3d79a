package flock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/gofrs/flock"

	"github.com/projecteru2/modelforge/lock"
)

const retryDelay = 100 * time.Millisecond

var _ lock.Locker = (*Lock)(nil)

// Lock serializes writers of one run's image index: the server's downloads
// in this process and `modelforge gc` in another.
//
// Goroutines of one process queue on slot, a one-element channel, so Lock can
// give up when ctx ends and TryLock never waits. The goroutine holding slot
// then takes flock(2) on a new fd, which is dropped again on Unlock.
//
// The lock file is never created outside an existing directory: once a run
// directory is removed, acquisitions fail with lock.ErrGone instead of
// recreating it.
type Lock struct {
	path string
	slot chan struct{}
	fd   *flock.Flock // non-nil while held
}

// New returns a Lock on path. Nothing touches the disk until the first acquisition.
func New(path string) *Lock {
	return &Lock{path: path, slot: make(chan struct{}, 1)}
}

// Lock blocks until the lock is held or ctx ends.
func (l *Lock) Lock(ctx context.Context) error {
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("wait for %s: %w", l.path, ctx.Err())
	}
	held, err := l.take(func(fd *flock.Flock) (bool, error) {
		return fd.TryLockContext(ctx, retryDelay)
	})
	switch {
	case err != nil:
		return err
	case !held:
		return fmt.Errorf("flock %s: %w", l.path, ctx.Err())
	}
	return nil
}

// TryLock takes the lock only if it is free right now. A lock held by this
// or another process yields (false, nil).
func (l *Lock) TryLock(_ context.Context) (bool, error) {
	select {
	case l.slot <- struct{}{}:
	default:
		return false, nil
	}
	return l.take((*flock.Flock).TryLock)
}

// Unlock releases the lock. Unlocking a free lock is a no-op.
func (l *Lock) Unlock(_ context.Context) error {
	fd := l.fd
	l.fd = nil
	select {
	case <-l.slot:
	default:
	}
	if fd == nil {
		return nil
	}
	if err := fd.Unlock(); err != nil {
		return fmt.Errorf("release %s: %w", l.path, err)
	}
	return nil
}

// take runs acquire on a fresh fd while slot is held. The slot is released
// unless the flock was obtained.
func (l *Lock) take(acquire func(*flock.Flock) (bool, error)) (bool, error) {
	fd := flock.New(l.path)
	held, err := acquire(fd)
	if err == nil && held {
		l.fd = fd
		return true, nil
	}
	<-l.slot
	if errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("flock %s: %w", l.path, lock.ErrGone)
	}
	if err != nil {
		return false, fmt.Errorf("flock %s: %w", l.path, err)
	}
	return false, nil
}
