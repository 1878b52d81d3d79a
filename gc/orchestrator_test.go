package gc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/projecteru2/modelforge/lock"
)

type fakeLocker struct {
	mu   sync.Mutex
	busy bool
	gone bool
	held bool
}

func (f *fakeLocker) Lock(context.Context) error {
	f.mu.Lock()
	f.held = true
	f.mu.Unlock()
	return nil
}
func (f *fakeLocker) Unlock(context.Context) error {
	f.mu.Lock()
	f.held = false
	f.mu.Unlock()
	return nil
}
func (f *fakeLocker) TryLock(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone {
		return false, lock.ErrGone
	}
	if f.busy || f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func TestRunCollectsResolvedTargets(t *testing.T) {
	orch := New()
	var collected []string
	locker := &fakeLocker{}
	Register(orch, Module[[]string]{
		Name:   "a",
		Locker: locker,
		ReadDB: func(context.Context) ([]string, error) { return []string{"x", "y"}, nil },
		Resolve: func(snap []string, others map[string]any) []string {
			if _, ok := others["a"]; !ok {
				t.Error("own snapshot missing from others")
			}
			return snap[:1]
		},
		Collect: func(_ context.Context, ids []string) error {
			if !locker.held {
				t.Error("Collect called without lock")
			}
			collected = append(collected, ids...)
			return nil
		},
	})
	if orch.Len() != 1 {
		t.Fatalf("Len = %d, want 1", orch.Len())
	}
	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(collected) != 1 || collected[0] != "x" {
		t.Errorf("collected = %v, want [x]", collected)
	}
	if locker.held {
		t.Error("lock not released after Run")
	}
}

func TestRunSkipsBusyModule(t *testing.T) {
	orch := New()
	calls := 0
	Register(orch, Module[int]{
		Name:    "busy",
		Locker:  &fakeLocker{busy: true},
		ReadDB:  func(context.Context) (int, error) { calls++; return 0, nil },
		Resolve: func(int, map[string]any) []string { return []string{"z"} },
		Collect: func(context.Context, []string) error { calls++; return nil },
	})
	collected := false
	Register(orch, Module[int]{
		Name:    "free",
		Locker:  &fakeLocker{},
		ReadDB:  func(context.Context) (int, error) { return 1, nil },
		Resolve: func(int, map[string]any) []string { return []string{"z"} },
		Collect: func(context.Context, []string) error { collected = true; return nil },
	})
	report, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Busy) != 1 || report.Busy[0] != "busy" || report.Collected["free"] != 1 {
		t.Errorf("report = %+v", report)
	}
	if calls != 0 {
		t.Errorf("busy module touched %d times", calls)
	}
	if !collected {
		t.Error("free module not collected")
	}
}

func TestRunReportsCollectErrors(t *testing.T) {
	orch := New()
	Register(orch, Module[int]{
		Name:    "broken",
		Locker:  &fakeLocker{},
		ReadDB:  func(context.Context) (int, error) { return 0, nil },
		Resolve: func(int, map[string]any) []string { return []string{"id"} },
		Collect: func(context.Context, []string) error { return errors.New("disk gone") },
	})
	if _, err := orch.Run(context.Background()); err == nil {
		t.Fatal("expected collect error")
	}
}

func TestRunSkipsRemovedModule(t *testing.T) {
	orch := New()
	Register(orch, Module[int]{
		Name:    "images/deleted",
		Locker:  &fakeLocker{gone: true},
		ReadDB:  func(context.Context) (int, error) { return 0, errors.New("must not snapshot") },
		Resolve: func(int, map[string]any) []string { return nil },
		Collect: func(context.Context, []string) error { return nil },
	})
	report, err := orch.Run(context.Background())
	if err != nil {
		t.Errorf("Run: %v", err)
	}
	if len(report.Gone) != 1 || report.Gone[0] != "images/deleted" || report.Total() != 0 {
		t.Errorf("report = %+v", report)
	}
}
