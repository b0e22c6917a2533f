package rdpcsc

import (
	"sync"
	"time"

	"github.com/ebfe/scard"
)

type testContextStep func(states []scard.ReaderState) error

type testContext struct {
	mu           sync.Mutex
	readers      []string
	listErr      error
	released     bool
	cancelCount  int
	stepCh       chan testContextStep
	cancelCh     chan struct{}
	cancelClosed bool
}

func newTestContext(readers ...string) *testContext {
	return &testContext{
		readers:  readers,
		stepCh:   make(chan testContextStep, 16),
		cancelCh: make(chan struct{}),
	}
}

func (c *testContext) ListReaders() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listErr != nil {
		return nil, c.listErr
	}

	if len(c.readers) == 0 {
		return nil, scard.ErrNoReadersAvailable
	}

	return append([]string(nil), c.readers...), nil
}

func (c *testContext) GetStatusChange(states []scard.ReaderState, timeout time.Duration) error {
	select {
	case step := <-c.stepCh:
		return step(states)

	case <-c.cancelCh:
		return scard.ErrCancelled

	case <-time.After(timeout):
		return scard.ErrTimeout
	}
}

func (c *testContext) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelCount++

	if !c.cancelClosed {
		c.cancelClosed = true
		close(c.cancelCh)
	}

	return nil
}

func (c *testContext) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.released = true

	return nil
}

func (c *testContext) setReaders(readers ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readers = readers
}

func (c *testContext) cancelled() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cancelCount
}

func (c *testContext) isReleased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.released
}

func (c *testContext) factory() ContextFactory {
	return func() (Context, error) {
		return c, nil
	}
}

// setPresence reports the card presence for the readers, the readers not
// mentioned keep their current state.
func setPresence(presence map[string]bool) testContextStep {
	return func(states []scard.ReaderState) error {
		for i := range states {
			present, ok := presence[states[i].Reader]
			if !ok {
				states[i].EventState = states[i].CurrentState

				continue
			}

			state := scard.StateEmpty
			if present {
				state = scard.StatePresent | scard.StateInuse
			}

			if states[i].CurrentState&^scard.StateChanged != state {
				state |= scard.StateChanged
			}

			states[i].EventState = state
		}

		return nil
	}
}

func returnError(err error) testContextStep {
	return func(_ []scard.ReaderState) error {
		return err
	}
}
