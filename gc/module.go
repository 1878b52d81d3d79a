package gc

import (
	"context"

	"github.com/projecteru2/modelforge/lock"
)

// Module is one storage area taking part in a GC cycle. S is the snapshot
// type its ReadDB returns; Resolve receives it typed, plus every other
// module's snapshot as any.
type Module[S any] struct {
	Name   string
	Locker lock.Locker

	// ReadDB, Resolve and Collect run with Locker held and must not re-acquire it.
	ReadDB  func(ctx context.Context) (S, error)
	Resolve func(snap S, others map[string]any) []string
	Collect func(ctx context.Context, ids []string) error
}

// member erases S so one Orchestrator can hold modules of different snapshot types.
type member interface {
	name() string
	locker() lock.Locker
	snapshot(ctx context.Context) (any, error)
	targets(snap any, others map[string]any) []string
	collect(ctx context.Context, ids []string) error
}

func (m Module[S]) name() string        { return m.Name }
func (m Module[S]) locker() lock.Locker { return m.Locker }
func (m Module[S]) snapshot(ctx context.Context) (any, error) {
	return m.ReadDB(ctx)
}

func (m Module[S]) targets(snap any, others map[string]any) []string {
	if m.Resolve == nil {
		return nil
	}
	s, _ := snap.(S)
	return m.Resolve(s, others)
}

func (m Module[S]) collect(ctx context.Context, ids []string) error {
	if m.Collect == nil {
		return nil
	}
	return m.Collect(ctx, ids)
}
