package serve

import (
	"context"
	"time"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	cmdcore "github.com/projecteru2/modelforge/cmd/core"
	"github.com/projecteru2/modelforge/config"
	"github.com/projecteru2/modelforge/notify"
	"github.com/projecteru2/modelforge/server"
	"github.com/projecteru2/modelforge/workflow"
)

type Handler struct {
	cmdcore.BaseHandler
}

func (h Handler) Serve(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	logger := log.WithFunc("cmd.serve")
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		conf.Listen = listen
	}
	if interval, _ := cmd.Flags().GetDuration("poll-interval"); interval > 0 {
		conf.PollInterval = interval
	}

	ctrl, err := workflow.New(ctx, conf, notify.NewHub())
	if err != nil {
		return err
	}
	srv := server.New(ctrl)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, conf.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		return ctrl.Close(context.WithoutCancel(gctx))
	})
	if conf.GCInterval > 0 {
		g.Go(func() error {
			collectLoop(gctx, conf)
			return nil
		})
	}

	logger.Infof(ctx, "modelforge serving on %s, data in %s", conf.Listen, conf.RootDir)
	err = g.Wait()
	logger.Infof(ctx, "modelforge stopped")
	return err
}

// collectLoop runs GC on every tick until ctx is done. Failures are retried
// on the next tick.
func collectLoop(ctx context.Context, conf *config.Config) {
	logger := log.WithFunc("cmd.collectLoop")
	ticker := time.NewTicker(conf.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cmdcore.CollectRuns(ctx, conf); err != nil {
				logger.Warnf(ctx, "gc: %v", err)
			}
		}
	}
}
