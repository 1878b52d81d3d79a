package supervisor

import (
	"sync"

	"github.com/projecteru2/modelforge/types"
)

// Console is the append-only transcript of one reconstruction run.
type Console struct {
	mu     sync.RWMutex
	events []types.ConsoleEvent
}

func NewConsole() *Console { return &Console{} }

func (c *Console) Append(ev types.ConsoleEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// Snapshot returns a copy of the transcript in arrival order.
func (c *Console) Snapshot() []types.ConsoleEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.ConsoleEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Console) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}
