package rdpcsc

import (
	"fmt"
	"sync"

	"github.com/ebfe/scard"

	"github.com/open-control-systems/card-detector/components/core"
	"github.com/open-control-systems/card-detector/components/reader/rdcore"
	"github.com/open-control-systems/card-detector/components/status"
)

// Monitor watches a fixed set of readers for card insertion and removal.
//
// Remarks:
//   - Each reader is reported as initialized once, on the first status read.
//   - Cancel and Close are safe to call concurrently with the polling goroutine.
type Monitor struct {
	factory ContextFactory
	handler rdcore.MonitorHandler

	mu        sync.Mutex
	ctx       Context
	doneCh    chan struct{}
	cancelled bool
	closed    bool
}

// NewMonitor is an initialization of Monitor.
func NewMonitor(factory ContextFactory, handler rdcore.MonitorHandler) *Monitor {
	return &Monitor{
		factory: factory,
		handler: handler,
	}
}

// Start begins polling the readers in the standalone goroutine.
func (m *Monitor) Start(readers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return status.StatusClosed
	}

	if m.ctx != nil {
		return status.StatusInvalidState
	}

	ctx, err := m.factory()
	if err != nil {
		return fmt.Errorf("pcsc-monitor: failed to establish context: %w", err)
	}

	m.ctx = ctx
	m.doneCh = make(chan struct{})

	go m.run(ctx, readers, m.doneCh)

	return nil
}

// Cancel interrupts polling.
func (m *Monitor) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancelled || m.ctx == nil || m.closed {
		m.cancelled = true

		return
	}

	m.cancelled = true

	if err := m.ctx.Cancel(); err != nil {
		core.LogDbg.Printf("pcsc-monitor: failed to cancel: %v\n", err)
	}
}

// Close waits for polling to finish and releases the context.
func (m *Monitor) Close() error {
	m.Cancel()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()

		return nil
	}

	m.closed = true
	ctx := m.ctx
	doneCh := m.doneCh
	m.mu.Unlock()

	if ctx == nil {
		return nil
	}

	<-doneCh

	return ctx.Release()
}

func (m *Monitor) isCancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cancelled
}

func (m *Monitor) run(ctx Context, readers []string, doneCh chan<- struct{}) {
	defer close(doneCh)

	states := make([]scard.ReaderState, len(readers))
	for i, reader := range readers {
		states[i] = scard.ReaderState{
			Reader:       reader,
			CurrentState: scard.StateUnaware,
		}
	}

	initialized := false

	for {
		// SCardCancel only interrupts a pending call, the flag covers a
		// cancellation which happens between two calls.
		if m.isCancelled() {
			return
		}

		err := ctx.GetStatusChange(states, statusTimeout)
		if err != nil {
			if isTimeout(err) {
				continue
			}

			if isCancelled(err) || m.isCancelled() {
				core.LogDbg.Println("pcsc-monitor: cancelled")

				return
			}

			m.handler.HandleFault(err)

			return
		}

		for i := range states {
			m.handleState(&states[i], initialized)
		}

		initialized = true
	}
}

func (m *Monitor) handleState(state *scard.ReaderState, initialized bool) {
	present := state.EventState&scard.StatePresent != 0
	wasPresent := state.CurrentState&scard.StatePresent != 0

	changed := state.EventState&scard.StateChanged != 0

	switch {
	case !initialized:
		m.handler.HandleInitialized(state.Reader, present)

	case changed && present && !wasPresent:
		m.handler.HandleInserted(state.Reader)

	case changed && !present && wasPresent:
		m.handler.HandleRemoved(state.Reader)
	}

	state.CurrentState = state.EventState &^ scard.StateChanged
}

// MonitorFactory creates PC/SC monitors.
type MonitorFactory struct {
	factory ContextFactory
}

// NewMonitorFactory is an initialization of MonitorFactory.
func NewMonitorFactory(factory ContextFactory) *MonitorFactory {
	return &MonitorFactory{factory: factory}
}

// NewMonitor creates a monitor delivering notifications to the handler.
func (f *MonitorFactory) NewMonitor(handler rdcore.MonitorHandler) (rdcore.Monitor, error) {
	return NewMonitor(f.factory, handler), nil
}
