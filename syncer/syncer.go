package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/modelforge/images"
	"github.com/projecteru2/modelforge/lock"
	"github.com/projecteru2/modelforge/peer"
	"github.com/projecteru2/modelforge/progress"
	"github.com/projecteru2/modelforge/progress/capture"
	"github.com/projecteru2/modelforge/types"
)

const DefaultInterval = 3 * time.Second

// Peer is the subset of the device client the engine polls.
type Peer interface {
	Progress(ctx context.Context) (types.Progress, error)
	ReadyImages(ctx context.Context) ([]string, error)
	FetchImage(ctx context.Context, id string) ([]byte, error)
}

// Store is where downloaded images land.
type Store interface {
	Put(ctx context.Context, remote string, data []byte) error
	Diff(remote []string) []string
	Len() int
}

// Options tune an Engine. Zero values pick defaults.
type Options struct {
	Interval time.Duration
	// Pool runs downloads. Shared across runs; nil means downloads run on
	// plain goroutines.
	Pool *ants.Pool
}

// Engine polls the device until its progress reaches the target, downloading
// every image it lists that the store does not hold yet.
type Engine struct {
	peer     Peer
	store    Store
	tracker  progress.Tracker[capture.Event]
	target   types.Progress
	interval time.Duration
	pool     *ants.Pool

	mu       sync.Mutex
	observed types.Progress
	seen     bool
	inflight map[string]struct{} // local names being downloaded

	downloads sync.WaitGroup
	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	completed atomic.Bool
}

// New creates an Engine. tracker receives capture.Event values.
func New(p Peer, store Store, tracker progress.Tracker[capture.Event], target types.Progress, opts Options) *Engine {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		peer:     p,
		store:    store,
		tracker:  progress.OrNop(tracker),
		target:   target,
		interval: interval,
		pool:     opts.Pool,
		inflight: make(map[string]struct{}),
		cancel:   func() {},
		done:     make(chan struct{}),
	}
}

// Start launches the poll loop. The first tick runs immediately. Calling
// Start more than once has no effect.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		e.mu.Lock()
		e.cancel = cancel
		e.mu.Unlock()
		go e.loop(ctx)
	})
}

// Stop cancels the loop and in-flight downloads without waiting for them.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	cancel()
}

// Done is closed when the loop has exited and no download is running.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Completed reports whether the loop exited because the target was reached.
func (e *Engine) Completed() bool { return e.completed.Load() }

// Observed returns the last accepted device progress and whether any was seen.
func (e *Engine) Observed() (types.Progress, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observed, e.seen
}

// Target is the progress at which the engine completes.
func (e *Engine) Target() types.Progress { return e.target }

func (e *Engine) loop(ctx context.Context) {
	logger := log.WithFunc("syncer.loop")
	defer close(e.done)
	defer e.downloads.Wait()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		if e.tick(ctx) {
			e.finish(ctx)
			return
		}
		select {
		case <-ctx.Done():
			logger.Infof(ctx, "sync stopped at %s", e.observedString())
			return
		case <-ticker.C:
		}
	}
}

// tick runs one poll iteration and reports whether the target is reached.
func (e *Engine) tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	e.pollProgress(ctx)
	e.syncImages(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seen && e.observed == e.target
}

func (e *Engine) pollProgress(ctx context.Context) {
	logger := log.WithFunc("syncer.pollProgress")
	p, err := e.peer.Progress(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warnf(ctx, "poll progress: %v", err)
		}
		return
	}

	e.mu.Lock()
	if e.seen && p == e.observed {
		e.mu.Unlock()
		return
	}
	if err := e.validate(p); err != nil {
		e.mu.Unlock()
		logger.Warnf(ctx, "ignore progress: %v", err)
		return
	}
	e.observed, e.seen = p, true
	e.mu.Unlock()

	e.tracker.OnEvent(capture.Event{Phase: capture.PhaseProgress, Progress: p, Stored: e.store.Len()})
}

// validate rejects progress that moves backwards or past the target.
// Caller holds e.mu.
func (e *Engine) validate(p types.Progress) error {
	if e.seen && p.Before(e.observed) {
		return peer.Malformed("progress", "regressed from %s to %s", e.observed, p)
	}
	if e.target.Before(p) {
		return peer.Malformed("progress", "%s is past target %s", p, e.target)
	}
	return nil
}

// syncImages lists the device's ready images and schedules a download for
// every one neither stored nor in flight. Returns the identifiers still missing.
func (e *Engine) syncImages(ctx context.Context) []string {
	logger := log.WithFunc("syncer.syncImages")
	ready, err := e.peer.ReadyImages(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warnf(ctx, "list ready images: %v", err)
		}
		return nil
	}

	missing := e.store.Diff(ready)
	for _, id := range missing {
		name := images.LocalName(id)
		e.mu.Lock()
		if _, busy := e.inflight[name]; busy {
			e.mu.Unlock()
			continue
		}
		e.inflight[name] = struct{}{}
		e.mu.Unlock()
		// A download may have stored it since Diff; Put precedes clearInflight.
		if len(e.store.Diff([]string{id})) == 0 {
			e.clearInflight(name)
			continue
		}

		e.downloads.Add(1)
		task := func() { e.download(ctx, id, name) }
		if err := e.submit(task); err != nil {
			e.downloads.Done()
			e.clearInflight(name)
			logger.Warnf(ctx, "schedule download %s: %v", id, err)
		}
	}
	return missing
}

func (e *Engine) submit(task func()) error {
	if e.pool == nil {
		go task()
		return nil
	}
	return e.pool.Submit(task)
}

func (e *Engine) download(ctx context.Context, id, name string) {
	logger := log.WithFunc("syncer.download")
	defer e.downloads.Done()
	defer e.clearInflight(name)

	data, err := e.peer.FetchImage(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warnf(ctx, "fetch %s: %v", id, err)
		}
		return
	}
	if err := e.store.Put(ctx, id, data); err != nil {
		// A reset destroyed the store under us.
		if !errors.Is(err, images.ErrClosed) && !errors.Is(err, lock.ErrGone) {
			logger.Warnf(ctx, "store %s: %v", name, err)
		}
		return
	}
	e.tracker.OnEvent(capture.Event{Phase: capture.PhaseImage, Name: name, Stored: e.store.Len(), Progress: e.progressSnapshot()})
}

// finish drains downloads, runs a final diff pass and marks the engine completed.
func (e *Engine) finish(ctx context.Context) {
	logger := log.WithFunc("syncer.finish")
	e.downloads.Wait()
	missing := e.syncImages(ctx)
	e.downloads.Wait()
	if ctx.Err() != nil {
		return
	}
	// Failed downloads are not retried past this point.
	if left := e.store.Diff(missing); len(left) > 0 {
		logger.Warnf(ctx, "capture complete with %d images not synced", len(left))
	}
	e.completed.Store(true)
	stored := e.store.Len()
	logger.Infof(ctx, "capture complete at %s, %d images stored", e.target, stored)
	e.tracker.OnEvent(capture.Event{Phase: capture.PhaseDone, Progress: e.target, Stored: stored})
}

func (e *Engine) clearInflight(name string) {
	e.mu.Lock()
	delete(e.inflight, name)
	e.mu.Unlock()
}

func (e *Engine) progressSnapshot() types.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observed
}

func (e *Engine) observedString() string {
	p, ok := e.Observed()
	if !ok {
		return "no progress"
	}
	return p.String()
}
