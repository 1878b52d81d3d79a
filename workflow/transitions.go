package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/modelforge/archive"
	"github.com/projecteru2/modelforge/images"
	"github.com/projecteru2/modelforge/notify"
	"github.com/projecteru2/modelforge/peer"
	"github.com/projecteru2/modelforge/progress"
	"github.com/projecteru2/modelforge/progress/capture"
	"github.com/projecteru2/modelforge/supervisor"
	"github.com/projecteru2/modelforge/syncer"
	"github.com/projecteru2/modelforge/types"
)

// SubmitPlan starts a capture run against the device at baseURL. Only valid
// while Idle. On any failure the controller stays Idle and the run's
// directory is removed.
func (c *Controller) SubmitPlan(ctx context.Context, baseURL string, plan types.Plan) error {
	logger := log.WithFunc("workflow.SubmitPlan")
	if err := plan.Validate(); err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()
	cur := c.load()
	if _, ok := cur.(*idle); !ok {
		return fmt.Errorf("submit plan in %s: %w", cur.name(), ErrInvalidPhase)
	}

	maxImage, err := c.conf.MaxImageBytes()
	if err != nil {
		return err
	}
	client, err := peer.New(baseURL, c.conf.HTTPTimeout, maxImage)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	if err := c.conf.EnsureRunDirs(runID); err != nil {
		return fmt.Errorf("create run %s: %w", runID, err)
	}
	store, err := images.New(ctx, c.conf, runID)
	if err != nil {
		c.removeRun(ctx, runID)
		return fmt.Errorf("open image store: %w", err)
	}
	if err := client.SubmitPlan(ctx, plan); err != nil {
		client.CloseIdleConnections()
		c.removeRun(ctx, runID)
		return fmt.Errorf("submit plan to %s: %w", client.BaseURL(), err)
	}

	cp := &capturing{
		id:        runID,
		plan:      plan,
		target:    plan.Target(),
		peer:      client,
		store:     store,
		startedAt: time.Now(),
	}
	c.mu.Lock()
	c.current = cp
	c.startEngineLocked(cp)
	c.mu.Unlock()

	logger.Infof(ctx, "run %s capturing %v from %s, target %s", runID, []int(plan), client.BaseURL(), cp.target)
	return nil
}

// startEngineLocked creates and starts a sync engine for cp plus its
// completion watcher. Caller holds c.mu.
func (c *Controller) startEngineLocked(cp *capturing) {
	n := c.notifier(cp)
	tracker := progress.Func[capture.Event](func(e capture.Event) {
		switch e.Phase {
		case capture.PhaseProgress:
			n.Notify(notify.ProgressChanged())
		case capture.PhaseImage:
			n.Notify(notify.ImageReady(e.Name))
		case capture.PhaseDone:
			n.Notify(notify.CaptureFinished())
		}
	})
	engine := syncer.New(cp.peer, cp.store, tracker, cp.target, syncer.Options{
		Interval: c.conf.PollInterval,
		Pool:     c.pool,
	})
	cp.engine = engine
	engine.Start(c.bg)
	go c.watchCapture(cp, engine)
}

// watchCapture moves a completed capture into reconstruction. A watcher whose
// phase has been reset, or whose engine was replaced, does nothing.
func (c *Controller) watchCapture(cp *capturing, engine *syncer.Engine) {
	logger := log.WithFunc("workflow.watchCapture")
	<-engine.Done()
	if !engine.Completed() {
		return
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	current := c.current == cp && cp.engine == engine
	c.mu.Unlock()
	if !current {
		return
	}
	if err := c.startReconstruction(c.bg, cp); err != nil {
		logger.Warnf(c.bg, "run %s: start reconstruction: %v", cp.id, err)
		c.notifier(cp).Notify(notify.Error(err.Error()))
	}
}

// StartReconstruction stops capturing early and launches the reconstruction
// program on the images stored so far. Only valid while Capturing. If the
// program cannot be started the controller stays Capturing.
func (c *Controller) StartReconstruction(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	cur := c.load()
	cp, ok := cur.(*capturing)
	if !ok {
		return fmt.Errorf("start reconstruction in %s: %w", cur.name(), ErrInvalidPhase)
	}
	return c.startReconstruction(ctx, cp)
}

// startReconstruction performs Capturing → Reconstructing. Caller holds opMu.
func (c *Controller) startReconstruction(ctx context.Context, cp *capturing) (err error) {
	logger := log.WithFunc("workflow.startReconstruction")

	engine := cp.engine
	defer func() {
		// A stopped but incomplete capture resumes polling.
		if err != nil && !engine.Completed() {
			c.mu.Lock()
			if c.current == cp && cp.engine == engine {
				c.startEngineLocked(cp)
			}
			c.mu.Unlock()
		}
	}()
	engine.Stop()
	select {
	case <-engine.Done():
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	inputDir, outputDir := c.conf.RunInputDir(cp.id), c.conf.RunOutputDir(cp.id)
	n, err := cp.store.Export(ctx, inputDir)
	if err != nil {
		return err
	}
	args, err := supervisor.ExpandArgs(c.conf.Reconstruct.Args, supervisor.ArgsData{ImageDir: inputDir, OutputDir: outputDir})
	if err != nil {
		return err
	}

	rp := &reconstructing{
		id:        cp.id,
		plan:      cp.plan,
		store:     cp.store,
		console:   supervisor.NewConsole(),
		startedAt: time.Now(),
	}
	cmd := supervisor.Command{
		Binary:    c.conf.Reconstruct.Binary,
		Args:      args,
		Dir:       c.conf.RunDir(cp.id),
		StopGrace: c.conf.Reconstruct.StopGrace,
	}
	artifactDir, archivePath := c.conf.RunArtifactDir(cp.id), c.conf.RunArchivePath(cp.id)
	pack := func(ctx context.Context) error {
		_, err := archive.Zip(ctx, artifactDir, archivePath)
		return err
	}

	// Spawn under mu so the job's first lines wait for rp to be installed.
	// Status and the phase notifier block on mu for the duration of
	// fork/exec; nothing under mu takes opMu, and hub.mu nests inside mu.
	c.mu.Lock()
	if c.current != cp {
		c.mu.Unlock()
		return fmt.Errorf("start reconstruction: %w", ErrInvalidPhase)
	}
	job, err := supervisor.Run(c.bg, cmd, rp.console, c.notifier(rp), pack)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	rp.job = job
	c.current = rp
	c.mu.Unlock()
	cp.peer.CloseIdleConnections()

	go c.watchJob(rp)
	logger.Infof(ctx, "run %s reconstructing %d images with %s", cp.id, n, cmd.Binary)
	return nil
}

// watchJob moves a finished reconstruction into Complete once packaging is done.
func (c *Controller) watchJob(rp *reconstructing) {
	logger := log.WithFunc("workflow.watchJob")
	<-rp.job.Done()

	c.opMu.Lock()
	defer c.opMu.Unlock()
	done := &complete{
		id:          rp.id,
		plan:        rp.plan,
		console:     rp.console,
		archivePath: c.conf.RunArchivePath(rp.id),
		outcome:     rp.job.Outcome(),
		finishedAt:  time.Now(),
	}
	if !c.swap(rp, done) {
		return
	}
	logger.Infof(c.bg, "run %s complete: %s", rp.id, done.outcome)
}

// Reset returns to Idle from any phase. Background work is signalled, not
// awaited; the run directory is removed immediately and swept once more
// after the background work drains.
func (c *Controller) Reset(ctx context.Context) error {
	logger := log.WithFunc("workflow.Reset")
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	old := c.current
	c.current = &idle{}
	c.mu.Unlock()

	var (
		drained <-chan struct{}
		store   *images.Store
		client  *peer.Client
	)
	switch p := old.(type) {
	case *idle:
		return nil
	case *capturing:
		p.engine.Stop()
		drained, store, client = p.engine.Done(), p.store, p.peer
		client.CloseIdleConnections()
	case *reconstructing:
		p.job.Cancel()
		drained, store = p.job.Done(), p.store
	}
	logger.Infof(ctx, "run %s reset from %s", old.runID(), old.name())

	var errs []error
	if store != nil {
		if err := store.Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(c.conf.RunDir(old.runID())); err != nil {
		errs = append(errs, fmt.Errorf("remove run %s: %w", old.runID(), err))
	}
	if drained != nil {
		go func() {
			<-drained
			if client != nil {
				client.CloseIdleConnections()
			}
			c.removeRun(c.bg, old.runID())
		}()
	}
	return errors.Join(errs...)
}

func (c *Controller) removeRun(ctx context.Context, runID string) {
	if err := os.RemoveAll(c.conf.RunDir(runID)); err != nil {
		log.WithFunc("workflow.removeRun").Warnf(ctx, "remove run %s: %v", runID, err)
	}
}
