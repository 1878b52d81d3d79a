package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/projecteru2/modelforge/images"
	"github.com/projecteru2/modelforge/types"
	"github.com/projecteru2/modelforge/utils"
)

// Status is a point-in-time view of the controller.
type Status struct {
	Phase        PhaseName       `json:"phase"`
	RunID        string          `json:"run_id,omitempty"`
	Plan         types.Plan      `json:"plan,omitempty"`
	Target       *types.Progress `json:"target,omitempty"`
	Observed     *types.Progress `json:"observed,omitempty"`
	Images       int             `json:"images"`
	ConsoleLines int             `json:"console_lines"`
	Outcome      string          `json:"outcome,omitempty"`
	ArchiveReady bool            `json:"archive_ready,omitempty"`
	Since        *time.Time      `json:"since,omitempty"`
}

// Content is what the current phase exposes: image names while capturing,
// the console transcript afterwards, and the archive once complete.
type Content struct {
	Phase   PhaseName            `json:"phase"`
	Images  []string             `json:"images,omitempty"`
	Console []types.ConsoleEvent `json:"console,omitempty"`
	Archive []byte               `json:"-"`
}

// Status reports the current phase. Never blocks behind a transition.
func (c *Controller) Status(_ context.Context) Status {
	cur := c.load()
	st := Status{Phase: cur.name(), RunID: cur.runID()}
	switch p := cur.(type) {
	case *capturing:
		target := p.target
		st.Plan, st.Target, st.Since = p.plan, &target, &p.startedAt
		c.mu.Lock()
		engine := p.engine
		c.mu.Unlock()
		if obs, ok := engine.Observed(); ok {
			st.Observed = &obs
		}
		st.Images = p.store.Len()
	case *reconstructing:
		st.Plan, st.Since = p.plan, &p.startedAt
		st.Images = p.store.Len()
		st.ConsoleLines = p.console.Len()
	case *complete:
		st.Plan, st.Since = p.plan, &p.finishedAt
		st.ConsoleLines = p.console.Len()
		st.Outcome = p.outcome.String()
		st.ArchiveReady = utils.ValidFile(p.archivePath)
	}
	return st
}

// Content returns the current phase's content. Idle has none.
func (c *Controller) Content(_ context.Context) (Content, error) {
	cur := c.load()
	out := Content{Phase: cur.name()}
	switch p := cur.(type) {
	case *capturing:
		out.Images = p.store.Names()
	case *reconstructing:
		out.Console = p.console.Snapshot()
	case *complete:
		out.Console = p.console.Snapshot()
		data, err := os.ReadFile(p.archivePath)
		if errors.Is(err, os.ErrNotExist) {
			// Failed runs and failed packaging leave only the transcript.
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("read archive of run %s: %w", p.id, err)
		}
		out.Archive = data
	default:
		return out, fmt.Errorf("content in %s: %w", cur.name(), ErrInvalidPhase)
	}
	return out, nil
}

// NamedContent returns one stored image by local name. Only valid while
// Capturing; unknown names yield images.ErrNotFound.
func (c *Controller) NamedContent(ctx context.Context, name string) ([]byte, error) {
	cur := c.load()
	p, ok := cur.(*capturing)
	if !ok {
		return nil, fmt.Errorf("named content in %s: %w", cur.name(), ErrInvalidPhase)
	}
	return p.store.Get(ctx, images.LocalName(name))
}
