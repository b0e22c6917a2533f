package rdcore

import (
	"fmt"
	"sync"

	"github.com/open-control-systems/card-detector/components/core"
)

// CoordinatorParams provides collaborators for Coordinator.
type CoordinatorParams struct {
	// WatcherFactory - to create the reader topology watcher.
	WatcherFactory DeviceWatcherFactory

	// MonitorFactory - to create per-reader monitors.
	MonitorFactory MonitorFactory

	// Enumerator - to list readers on start.
	Enumerator Enumerator

	// Dispatcher - to fire insertion and removal actions.
	Dispatcher ActionDispatcher
}

// Coordinator reconciles reader notifications into card insertion and removal actions.
//
// Remarks:
//   - Owns the reader topology watcher, the per-reader monitor and the reader registry.
//   - Suspend is handled as an implicit removal of every held card.
type Coordinator struct {
	watcherFactory DeviceWatcherFactory
	enumerator     Enumerator
	registry       *Registry
	manager        *MonitorManager
	classifier     *Classifier

	mu      sync.Mutex
	watcher DeviceWatcher
}

// NewCoordinator is an initialization of Coordinator.
func NewCoordinator(params CoordinatorParams) *Coordinator {
	registry := NewRegistry()
	manager := NewMonitorManager(params.MonitorFactory, nil, registry)
	classifier := NewClassifier(registry, manager, params.Dispatcher)
	manager.SetHandler(classifier)

	return &Coordinator{
		watcherFactory: params.WatcherFactory,
		enumerator:     params.Enumerator,
		registry:       registry,
		manager:        manager,
		classifier:     classifier,
	}
}

// Registry returns the reader registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Manager returns the monitor lifecycle manager.
func (c *Coordinator) Manager() *MonitorManager {
	return c.manager
}

// StartMonitoring starts watching the reader topology and the card presence.
//
// Remarks:
//   - No-op if monitoring is already started.
//   - Readers found by enumeration are treated as just attached, a seated card
//     fires the insert action once the reader is initialized.
func (c *Coordinator) StartMonitoring() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher != nil {
		core.LogInf.Println("reader-coordinator: monitoring already started")

		return nil
	}

	core.LogInf.Println("reader-coordinator: start monitoring")

	c.registry.Clear()

	watcher, err := c.watcherFactory.NewDeviceWatcher(c.classifier)
	if err != nil {
		return fmt.Errorf("reader-coordinator: failed to create device watcher: %w", err)
	}

	readers, err := c.enumerator.ListReaders()
	if err != nil {
		core.LogWrn.Printf("reader-coordinator: failed to list readers: %v\n", err)
	}

	if len(readers) == 0 {
		core.LogDbg.Println("reader-coordinator: there are currently no readers attached")
	}

	if err := c.classifier.HandleEnumerated(readers); err != nil {
		core.LogWrn.Printf("reader-coordinator: failed to start monitor: %v\n", err)
	}

	if err := watcher.Start(); err != nil {
		if err := c.manager.Stop(); err != nil {
			core.LogWrn.Printf("reader-coordinator: failed to stop monitor: %v\n", err)
		}

		c.registry.Clear()

		return fmt.Errorf("reader-coordinator: failed to start device watcher: %w", err)
	}

	c.watcher = watcher

	return nil
}

// StopMonitoring stops watching the readers and forgets their state.
//
// Remarks:
//   - Safe to call multiple times and after a partial start.
func (c *Coordinator) StopMonitoring() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	core.LogInf.Println("reader-coordinator: stop monitoring")

	// The watcher goes first so that no topology change can restart the monitor
	// after it's stopped.
	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil {
			core.LogWrn.Printf("reader-coordinator: failed to close device watcher: %v\n", err)
		}

		c.watcher = nil
	}

	if err := c.manager.Stop(); err != nil {
		core.LogWrn.Printf("reader-coordinator: failed to stop monitor: %v\n", err)
	}

	c.registry.Clear()

	return nil
}

// HandleSuspend fires the removal action for held cards and stops monitoring.
func (c *Coordinator) HandleSuspend() {
	core.LogInf.Println("reader-coordinator: system is suspending operation")

	c.classifier.FlushPresent()

	if err := c.StopMonitoring(); err != nil {
		core.LogWrn.Printf("reader-coordinator: failed to stop monitoring: %v\n", err)
	}
}

// HandleResume restarts monitoring from scratch.
func (c *Coordinator) HandleResume() {
	core.LogInf.Println("reader-coordinator: system is resuming from a low-power state")

	if err := c.StartMonitoring(); err != nil {
		core.LogWrn.Printf("reader-coordinator: failed to start monitoring: %v\n", err)
	}
}

// Close stops monitoring.
func (c *Coordinator) Close() error {
	return c.StopMonitoring()
}
