package notify

import "sync"

// ChanObserver buffers messages for a consumer goroutine. Deliver never
// blocks: when the buffer is full the message is dropped and counted.
type ChanObserver struct {
	ch      chan Message
	once    sync.Once
	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewChanObserver returns an observer with room for size pending messages.
func NewChanObserver(size int) *ChanObserver {
	return &ChanObserver{ch: make(chan Message, size)}
}

// Deliver implements Observer.
func (c *ChanObserver) Deliver(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- msg:
	default:
		c.dropped++
	}
}

// C is closed by Close.
func (c *ChanObserver) C() <-chan Message { return c.ch }

// Dropped is the number of messages lost to a full buffer.
func (c *ChanObserver) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close stops delivery and closes C. Safe to call more than once.
func (c *ChanObserver) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.ch)
		c.mu.Unlock()
	})
}
