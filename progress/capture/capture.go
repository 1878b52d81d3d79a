package capture

import "github.com/projecteru2/modelforge/types"

// Phase represents a stage in the capture sync lifecycle.
type Phase int

const (
	PhaseProgress Phase = iota // Device reported a new round/image position.
	PhaseImage                 // One image was downloaded and stored.
	PhaseDone                  // Target reached and every listed image synced.
)

// Event describes a single capture sync update.
type Event struct {
	Phase    Phase
	Progress types.Progress // Last observed device progress.
	Name     string         // Local image name (image phase only).
	Stored   int            // Images held by the store after this event.
}
