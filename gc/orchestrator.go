package gc

import (
	"context"
	"errors"
	"fmt"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/modelforge/lock"
)

// Orchestrator runs GC cycles across registered modules.
type Orchestrator struct {
	members []member
}

// New creates an empty Orchestrator.
func New() *Orchestrator { return &Orchestrator{} }

// Register adds a typed Module to the Orchestrator.
func Register[S any](o *Orchestrator, m Module[S]) {
	o.members = append(o.members, m)
}

// Len is the number of registered modules.
func (o *Orchestrator) Len() int { return len(o.members) }

// Report summarizes one cycle.
type Report struct {
	Collected map[string]int // module name → ids handed to Collect
	Busy      []string       // modules whose lock was held elsewhere
	Gone      []string       // modules whose directory was removed
}

// Total is the number of ids collected across modules.
func (r Report) Total() int {
	n := 0
	for _, c := range r.Collected {
		n += c
	}
	return n
}

// Run executes one GC cycle. Every module whose lock is free is locked for
// the whole cycle, so a blob committed by a running download is either in the
// snapshot or not on disk yet. Busy and removed modules wait for the next
// cycle. A snapshot failure aborts the cycle before anything is deleted;
// collect failures are joined and do not stop other modules.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	logger := log.WithFunc("gc.Run")
	report := Report{Collected: make(map[string]int)}

	var locked []member
	defer func() {
		for _, m := range locked {
			m.locker().Unlock(ctx) //nolint:errcheck,gosec
		}
	}()
	for _, m := range o.members {
		ok, err := m.locker().TryLock(ctx)
		switch {
		case errors.Is(err, lock.ErrGone):
			report.Gone = append(report.Gone, m.name())
		case err != nil:
			logger.Warnf(ctx, "skip %s: %v", m.name(), err)
			report.Busy = append(report.Busy, m.name())
		case !ok:
			report.Busy = append(report.Busy, m.name())
		default:
			locked = append(locked, m)
		}
	}

	snapshots := make(map[string]any, len(locked))
	for _, m := range locked {
		snap, err := m.snapshot(ctx)
		if err != nil {
			return report, fmt.Errorf("gc aborted: snapshot %s: %w", m.name(), err)
		}
		snapshots[m.name()] = snap
	}

	var errs []error
	for _, m := range locked {
		ids := m.targets(snapshots[m.name()], snapshots)
		if len(ids) == 0 {
			continue
		}
		if err := m.collect(ctx, ids); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.name(), err))
			continue
		}
		report.Collected[m.name()] = len(ids)
	}
	if len(report.Busy) > 0 {
		logger.Infof(ctx, "%d modules busy, retried next cycle: %v", len(report.Busy), report.Busy)
	}
	return report, errors.Join(errs...)
}
