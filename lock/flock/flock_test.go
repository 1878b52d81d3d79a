package flock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/projecteru2/modelforge/lock"
)

func TestTryLockExclusive(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "images.lock")
	l := New(path)

	ok, err := l.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("first TryLock = %v, %v", ok, err)
	}
	if ok, _ := l.TryLock(ctx); ok {
		t.Fatal("second TryLock on same instance should fail")
	}
	other := New(path)
	if ok, _ := other.TryLock(ctx); ok {
		t.Fatal("TryLock from another instance should fail while held")
	}
	if err := l.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	ok, err = other.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("TryLock after release = %v, %v", ok, err)
	}
	_ = other.Unlock(ctx)
}

func TestLockHonoursContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.lock")
	l := New(path)
	if err := l.Lock(context.Background()); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer l.Unlock(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Lock(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	l := New(filepath.Join(t.TempDir(), "images.lock"))
	sentinel := errors.New("boom")

	err := lock.WithLock(ctx, l, func() error {
		if ok, _ := l.TryLock(ctx); ok {
			t.Error("lock should be held inside WithLock")
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("WithLock returned %v, want sentinel", err)
	}
	ok, err := l.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("lock not released after WithLock: %v, %v", ok, err)
	}
	_ = l.Unlock(ctx)
}

func TestRemovedDirectoryIsGone(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "run", "db")
	l := New(filepath.Join(dir, "images.lock"))

	if ok, err := l.TryLock(ctx); ok || !errors.Is(err, lock.ErrGone) {
		t.Errorf("TryLock = %v, %v; want lock.ErrGone", ok, err)
	}
	if err := l.Lock(ctx); !errors.Is(err, lock.ErrGone) {
		t.Errorf("Lock = %v, want lock.ErrGone", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("lock recreated its directory: %v", err)
	}

	// A failed acquisition must not leave the slot taken.
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	ok, err := l.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("TryLock after mkdir = %v, %v", ok, err)
	}
	_ = l.Unlock(ctx)
}
