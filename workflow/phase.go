package workflow

import (
	"time"

	"github.com/projecteru2/modelforge/images"
	"github.com/projecteru2/modelforge/peer"
	"github.com/projecteru2/modelforge/supervisor"
	"github.com/projecteru2/modelforge/syncer"
	"github.com/projecteru2/modelforge/types"
)

// PhaseName identifies a workflow phase.
type PhaseName string

const (
	PhaseIdle           PhaseName = "idle"
	PhaseCapturing      PhaseName = "capturing"
	PhaseReconstructing PhaseName = "reconstructing"
	PhaseComplete       PhaseName = "complete"
)

// phase is the content of the controller's slot. Each variant owns the
// handles of its background work; nothing outside the variant refers to them.
type phase interface {
	name() PhaseName
	runID() string
}

type idle struct{}

func (*idle) name() PhaseName { return PhaseIdle }
func (*idle) runID() string   { return "" }

type capturing struct {
	id        string
	plan      types.Plan
	target    types.Progress
	peer      *peer.Client
	store     *images.Store
	engine    *syncer.Engine
	startedAt time.Time
}

func (*capturing) name() PhaseName { return PhaseCapturing }
func (p *capturing) runID() string { return p.id }

type reconstructing struct {
	id        string
	plan      types.Plan
	store     *images.Store
	console   *supervisor.Console
	job       *supervisor.Job
	startedAt time.Time
}

func (*reconstructing) name() PhaseName { return PhaseReconstructing }
func (p *reconstructing) runID() string { return p.id }

type complete struct {
	id          string
	plan        types.Plan
	console     *supervisor.Console
	archivePath string
	outcome     supervisor.Outcome
	finishedAt  time.Time
}

func (*complete) name() PhaseName { return PhaseComplete }
func (p *complete) runID() string { return p.id }
