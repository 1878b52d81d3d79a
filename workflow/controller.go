package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/modelforge/config"
	"github.com/projecteru2/modelforge/notify"
	"github.com/projecteru2/modelforge/utils"
)

// ErrInvalidPhase is returned for an operation the current phase does not offer.
var ErrInvalidPhase = errors.New("operation not valid in current phase")

// Controller owns the workflow phase slot.
//
// opMu serialises transitions (user operations and the internal watchers);
// mu guards the slot itself and is only held for short reads and swaps, so
// Status never waits behind a slow device call.
type Controller struct {
	conf *config.Config
	hub  *notify.Hub
	pool *ants.Pool
	bg   context.Context

	opMu    sync.Mutex
	mu      sync.Mutex
	current phase
}

// New creates an idle Controller. ctx bounds every background task the
// controller starts. Run directories left by a previous process are removed.
func New(ctx context.Context, conf *config.Config, hub *notify.Hub) (*Controller, error) {
	logger := log.WithFunc("workflow.New")
	if hub == nil {
		hub = notify.NewHub()
	}
	pool, err := ants.NewPool(conf.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("create download pool: %w", err)
	}
	if err := utils.EnsureDirs(conf.RunsDir()); err != nil {
		pool.Release()
		return nil, err
	}
	// Runs do not survive a restart.
	if n, err := utils.PruneDir(ctx, conf.RunsDir(), os.DirEntry.IsDir); err != nil {
		logger.Warnf(ctx, "prune stale runs: %v", err)
	} else if n > 0 {
		logger.Infof(ctx, "pruned %d stale runs", n)
	}
	return &Controller{
		conf:    conf,
		hub:     hub,
		pool:    pool,
		bg:      ctx,
		current: &idle{},
	}, nil
}

// Attach rebinds the notification observer, in any phase. Returns the
// displaced observer.
func (c *Controller) Attach(obs notify.Observer) notify.Observer {
	return c.hub.Attach(obs)
}

// Detach removes obs if it is still the current observer.
func (c *Controller) Detach(obs notify.Observer) {
	c.hub.Detach(obs)
}

// Phase returns the current phase name.
func (c *Controller) Phase() PhaseName {
	return c.load().name()
}

// Close resets the controller and releases the download pool.
func (c *Controller) Close(ctx context.Context) error {
	err := c.Reset(ctx)
	c.pool.Release()
	return err
}

func (c *Controller) load() phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// swap installs next if the slot still holds expected.
func (c *Controller) swap(expected, next phase) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != expected {
		return false
	}
	c.current = next
	return true
}

// notifier returns a Notifier that delivers only while ph is installed, so
// late events of a torn-down phase never reach the next run's observer.
func (c *Controller) notifier(ph phase) notify.Notifier {
	return phaseNotifier{c: c, ph: ph}
}

type phaseNotifier struct {
	c  *Controller
	ph phase
}

func (n phaseNotifier) Notify(msg notify.Message) {
	n.c.mu.Lock()
	defer n.c.mu.Unlock()
	if n.c.current == n.ph {
		n.c.hub.Notify(msg)
	}
}
