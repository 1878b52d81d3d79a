package notify

import (
	"sync"
)

// Observer receives notifications. Deliver must not block for long: the hub
// calls it while holding its lock.
type Observer interface {
	Deliver(Message)
}

// Notifier is the publishing side of a Hub.
type Notifier interface {
	Notify(Message)
}

// Hub holds at most one observer. Attaching replaces, never stacks.
type Hub struct {
	mu  sync.Mutex
	obs Observer
}

// NewHub returns a hub with no observer.
func NewHub() *Hub { return &Hub{} }

// Attach installs obs and returns the observer it displaced (nil if none),
// so the caller can close it.
func (h *Hub) Attach(obs Observer) Observer {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.obs
	h.obs = obs
	return prev
}

// Detach clears the slot only if it still holds obs.
func (h *Hub) Detach(obs Observer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.obs != obs {
		return false
	}
	h.obs = nil
	return true
}

// Attached reports whether an observer is installed.
func (h *Hub) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.obs != nil
}

// Notify delivers msg to the current observer, or drops it if there is none.
// Delivery happens under the hub lock so each message reaches exactly one handle.
func (h *Hub) Notify(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.obs != nil {
		h.obs.Deliver(msg)
	}
}

// Discard is a Notifier that drops everything.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Message) {}
