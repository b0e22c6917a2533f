package rdcore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/open-control-systems/card-detector/components/core"
)

// MonitorState is a lifecycle state of the per-reader monitor.
type MonitorState int

const (
	// MonitorStopped - no monitor is polling the readers.
	MonitorStopped MonitorState = iota

	// MonitorStarting - the monitor is being created and subscribed.
	MonitorStarting

	// MonitorRunning - the monitor is polling the readers.
	MonitorRunning
)

func (s MonitorState) String() string {
	switch s {
	case MonitorStopped:
		return "stopped"
	case MonitorStarting:
		return "starting"
	case MonitorRunning:
		return "running"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MonitorManager owns the single active per-reader monitor.
//
// Remarks:
//   - Start, Restart, Stop and Run are mutually exclusive, at most one monitor
//     is alive at any time.
//   - Cancel doesn't take the lifecycle lock, it's safe to call it from the
//     monitor's own goroutine.
type MonitorManager struct {
	factory  MonitorFactory
	handler  MonitorHandler
	registry *Registry

	current atomic.Pointer[monitorSubscription]

	mu          sync.Mutex
	state       MonitorState
	monitor     Monitor
	sub         *monitorSubscription
	wantRunning bool
}

// NewMonitorManager is an initialization of MonitorManager.
//
// Parameters:
//   - factory - to create a new monitor on each (re)start.
//   - handler - to receive notifications from the active monitor.
//   - registry - to get the reader set when recovering a faulted monitor.
func NewMonitorManager(
	factory MonitorFactory,
	handler MonitorHandler,
	registry *Registry,
) *MonitorManager {
	return &MonitorManager{
		factory:  factory,
		handler:  handler,
		registry: registry,
	}
}

// SetHandler replaces the notification handler used by subsequently started monitors.
func (m *MonitorManager) SetHandler(handler MonitorHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handler = handler
}

// Start creates a monitor for the readers and begins polling.
//
// Remarks:
//   - No-op if the monitor already exists.
//   - No-op if there are no readers to watch.
func (m *MonitorManager) Start(readers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.startLocked(readers)
}

// Restart tears down the active monitor and starts a new one for the readers.
func (m *MonitorManager) Restart(readers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	core.LogInf.Printf("monitor-manager: restarting: readers=%v\n", readers)

	m.teardownLocked()

	return m.startLocked(readers)
}

// Stop tears down the active monitor.
func (m *MonitorManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.wantRunning = false
	m.teardownLocked()

	return nil
}

// Cancel interrupts the active monitor without disposing it.
//
// Remarks:
//   - The cancelled monitor is disposed by the next Restart, Stop or Run call.
func (m *MonitorManager) Cancel() {
	if sub := m.current.Load(); sub != nil {
		sub.cancel()
	}
}

// State returns the current lifecycle state.
func (m *MonitorManager) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == MonitorRunning && m.sub != nil && m.sub.isCancelled() {
		return MonitorStopped
	}

	return m.state
}

// Run restarts the monitor if it was cancelled due to a fault or failed to start.
func (m *MonitorManager) Run() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.wantRunning {
		return nil
	}

	if m.monitor != nil && !m.sub.isCancelled() {
		return nil
	}

	readers := m.registry.Names()

	core.LogInf.Printf("monitor-manager: recovering: readers=%v\n", readers)

	m.teardownLocked()

	return m.startLocked(readers)
}

func (m *MonitorManager) startLocked(readers []string) error {
	if m.monitor != nil {
		core.LogInf.Println("monitor-manager: monitor already started")

		return nil
	}

	if len(readers) == 0 {
		core.LogDbg.Println("monitor-manager: no readers attached")

		m.wantRunning = false
		m.state = MonitorStopped

		return nil
	}

	m.wantRunning = true
	m.state = MonitorStarting

	sub := &monitorSubscription{handler: m.handler}

	monitor, err := m.factory.NewMonitor(sub)
	if err != nil {
		m.state = MonitorStopped

		return fmt.Errorf("monitor-manager: failed to create monitor: %w", err)
	}

	sub.monitor = monitor

	m.monitor = monitor
	m.sub = sub
	m.current.Store(sub)

	for _, reader := range readers {
		core.LogDbg.Printf("monitor-manager: start monitoring reader: %s\n", reader)
	}

	if err := monitor.Start(readers); err != nil {
		m.teardownLocked()

		return fmt.Errorf("monitor-manager: failed to start monitor: %w", err)
	}

	m.state = MonitorRunning

	return nil
}

// teardownLocked unsubscribes, cancels and disposes the monitor, in that order,
// so that no callback can be delivered after the monitor is released.
func (m *MonitorManager) teardownLocked() {
	if m.monitor == nil {
		m.state = MonitorStopped

		return
	}

	m.sub.detach()
	m.current.Store(nil)

	m.monitor.Cancel()

	if err := m.monitor.Close(); err != nil {
		core.LogWrn.Printf("monitor-manager: failed to close monitor: %v\n", err)
	}

	m.monitor = nil
	m.sub = nil
	m.state = MonitorStopped
}

type monitorSubscription struct {
	handler MonitorHandler
	monitor Monitor

	detached   atomic.Bool
	cancelled  atomic.Bool
	cancelOnce sync.Once
}

func (s *monitorSubscription) detach() {
	s.detached.Store(true)
}

func (s *monitorSubscription) cancel() {
	s.cancelOnce.Do(func() {
		s.cancelled.Store(true)

		if s.monitor != nil {
			s.monitor.Cancel()
		}
	})
}

func (s *monitorSubscription) isCancelled() bool {
	return s.cancelled.Load()
}

func (s *monitorSubscription) HandleInitialized(reader string, present bool) {
	if s.detached.Load() {
		return
	}

	s.handler.HandleInitialized(reader, present)
}

func (s *monitorSubscription) HandleInserted(reader string) {
	if s.detached.Load() {
		return
	}

	s.handler.HandleInserted(reader)
}

func (s *monitorSubscription) HandleRemoved(reader string) {
	if s.detached.Load() {
		return
	}

	s.handler.HandleRemoved(reader)
}

func (s *monitorSubscription) HandleFault(err error) {
	if s.detached.Load() {
		return
	}

	s.handler.HandleFault(err)
}
