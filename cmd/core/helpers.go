package core

import (
	"context"
	"fmt"

	units "github.com/docker/go-units"
	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	"github.com/projecteru2/modelforge/config"
	"github.com/projecteru2/modelforge/gc"
	"github.com/projecteru2/modelforge/images"
	"github.com/projecteru2/modelforge/utils"
)

// BaseHandler provides shared config access for all command handlers.
type BaseHandler struct {
	ConfProvider func() *config.Config
}

// Init returns the command context and validated config in one call.
func (h BaseHandler) Init(cmd *cobra.Command) (context.Context, *config.Config, error) {
	conf, err := h.Conf()
	if err != nil {
		return nil, nil, err
	}
	return CommandContext(cmd), conf, nil
}

// Conf validates and returns the config. All handlers call this first.
func (h BaseHandler) Conf() (*config.Config, error) {
	if h.ConfProvider == nil {
		return nil, fmt.Errorf("config provider is nil")
	}
	conf := h.ConfProvider()
	if conf == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	return conf, nil
}

// CommandContext returns command context, falling back to Background.
func CommandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// RunIDs lists the run directories under conf.RunsDir().
func RunIDs(conf *config.Config) []string {
	return utils.ScanSubdirs(conf.RunsDir())
}

// CollectRuns runs one GC cycle over the image stores of the given runs, or
// of every run on disk when none are given. Runs busy with a download are
// skipped until the next cycle.
func CollectRuns(ctx context.Context, conf *config.Config, runIDs ...string) error {
	if len(runIDs) == 0 {
		runIDs = RunIDs(conf)
	}
	orch := gc.New()
	for _, id := range runIDs {
		images.RegisterRunGC(orch, conf, id)
	}
	if orch.Len() == 0 {
		return nil
	}
	report, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	log.WithFunc("core.CollectRuns").Infof(ctx, "GC over %d runs: %d files removed, %d busy",
		orch.Len(), report.Total(), len(report.Busy))
	return nil
}

func FormatSize(bytes int64) string {
	return units.HumanSize(float64(bytes))
}
