package core

import "sync"

// FanoutCloser propagates close call to the underlying closers.
//
// Remarks:
//   - Closers are closed in reverse order of registration.
//   - Close is performed only once, subsequent calls are no-op.
type FanoutCloser struct {
	mu      sync.Mutex
	closers []closerNode
	closed  bool
}

// Add closer with id to be notified when the close event is happened.
func (c *FanoutCloser) Add(id string, closer Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closers = append(c.closers, closerNode{id: id, closer: closer})
}

// Close all.
func (c *FanoutCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	for i := len(c.closers) - 1; i >= 0; i-- {
		n := c.closers[i]

		if err := n.closer.Close(); err != nil {
			LogErr.Printf("fanout-closer: failed to close: id=%s err=%v\n", n.id, err)
		} else {
			LogDbg.Printf("fanout-closer: closed: id=%s\n", n.id)
		}
	}

	return nil
}

type closerNode struct {
	id     string
	closer Closer
}
