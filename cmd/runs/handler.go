package runs

import (
	"context"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	cmdcore "github.com/projecteru2/modelforge/cmd/core"
	"github.com/projecteru2/modelforge/config"
	"github.com/projecteru2/modelforge/images"
	"github.com/projecteru2/modelforge/types"
	"github.com/projecteru2/modelforge/utils"
)

type Handler struct {
	cmdcore.BaseHandler
}

func (h Handler) List(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	ids := cmdcore.RunIDs(conf)
	if len(ids) == 0 {
		fmt.Println("No runs found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0) //nolint:mnd
	_, _ = fmt.Fprintln(w, "RUN\tIMAGES\tSIZE\tARCHIVE\tMODIFIED")
	for _, id := range ids {
		imgs, err := listImages(ctx, conf, id)
		if err != nil {
			return err
		}
		var total int64
		for _, img := range imgs {
			total += img.Size
		}
		archive := "-"
		if info, err := os.Stat(conf.RunArchivePath(id)); err == nil {
			archive = cmdcore.FormatSize(info.Size())
		}
		modified := "-"
		if info, err := os.Stat(conf.RunDir(id)); err == nil {
			modified = info.ModTime().Local().Format(time.DateTime)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", id, len(imgs), cmdcore.FormatSize(total), archive, modified)
	}
	w.Flush() //nolint:errcheck,gosec
	return nil
}

func (h Handler) Images(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	id := args[0]
	if !slices.Contains(cmdcore.RunIDs(conf), id) {
		return fmt.Errorf("run %q not found", id)
	}
	imgs, err := listImages(ctx, conf, id)
	if err != nil {
		return err
	}
	if len(imgs) == 0 {
		fmt.Println("No images found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0) //nolint:mnd
	_, _ = fmt.Fprintln(w, "NAME\tDIGEST\tSIZE\tCREATED")
	for _, img := range imgs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			img.Name,
			images.Digest(img.Digest).Short(),
			cmdcore.FormatSize(img.Size),
			img.CreatedAt.Local().Format(time.DateTime),
		)
	}
	w.Flush() //nolint:errcheck,gosec
	return nil
}

func (h Handler) Delete(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	logger := log.WithFunc("cmd.runs.delete")
	known := cmdcore.RunIDs(conf)
	for _, id := range args {
		if !slices.Contains(known, id) {
			logger.Warnf(ctx, "run %s not found", id)
			continue
		}
		if err := os.RemoveAll(conf.RunDir(id)); err != nil {
			return fmt.Errorf("delete run %s: %w", id, err)
		}
		logger.Infof(ctx, "deleted: %s", id)
	}
	return nil
}

func listImages(ctx context.Context, conf *config.Config, runID string) ([]types.Image, error) {
	if !utils.ValidFile(conf.ImageIndexFile(runID)) {
		return nil, nil
	}
	store, err := images.New(ctx, conf, runID)
	if err != nil {
		return nil, fmt.Errorf("open run %s: %w", runID, err)
	}
	return store.List(ctx)
}
