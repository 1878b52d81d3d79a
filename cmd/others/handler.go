package others

import (
	"fmt"
	"slices"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	cmdcore "github.com/projecteru2/modelforge/cmd/core"
	"github.com/projecteru2/modelforge/version"
)

type Handler struct {
	cmdcore.BaseHandler
}

func (h Handler) GC(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	only, _ := cmd.Flags().GetStringSlice("run")
	ids := cmdcore.RunIDs(conf)
	if len(only) > 0 {
		for _, id := range only {
			if !slices.Contains(ids, id) {
				log.WithFunc("cmd.gc").Warnf(ctx, "run %s not found", id)
			}
		}
		ids = slices.DeleteFunc(ids, func(id string) bool { return !slices.Contains(only, id) })
		if len(ids) == 0 {
			return nil
		}
	}
	return cmdcore.CollectRuns(ctx, conf, ids...)
}

func (h Handler) Version(cmd *cobra.Command, _ []string) error {
	if short, _ := cmd.Flags().GetBool("short"); short {
		fmt.Println(version.Version)
		return nil
	}
	fmt.Print(version.String())
	return nil
}
