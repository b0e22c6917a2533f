package rdcore

import (
	"sync"

	"github.com/open-control-systems/card-detector/components/core"
)

// Classifier turns raw reader notifications into card insertion and removal actions.
//
// Remarks:
//   - An action is dispatched only on a presence transition, repeated
//     notifications which don't change the presence are ignored.
//   - Topology changes are serialized, the monitor is always restarted against
//     the reader set of the most recent change.
//   - Handlers never panic past their boundary.
type Classifier struct {
	registry   *Registry
	manager    *MonitorManager
	dispatcher ActionDispatcher

	topologyMu sync.Mutex
	suspended  bool
}

// NewClassifier is an initialization of Classifier.
//
// Parameters:
//   - registry - reader presence state.
//   - manager - to restart the monitor on topology changes.
//   - dispatcher - to fire insertion and removal actions.
func NewClassifier(
	registry *Registry,
	manager *MonitorManager,
	dispatcher ActionDispatcher,
) *Classifier {
	return &Classifier{
		registry:   registry,
		manager:    manager,
		dispatcher: dispatcher,
	}
}

// HandleEnumerated registers enumerated readers and starts the monitor for them.
func (c *Classifier) HandleEnumerated(readers []string) error {
	c.topologyMu.Lock()
	defer c.topologyMu.Unlock()

	c.suspended = false

	for _, reader := range readers {
		if c.registry.Upsert(reader) {
			core.LogInf.Printf("reader-classifier: reader found: %s\n", reader)
		}
	}

	return c.manager.Start(readers)
}

// HandleDevicesInitialized reconciles the initial watcher view with the known readers.
func (c *Classifier) HandleDevicesInitialized(readers []string) {
	defer c.recoverPanic("devices-initialized")

	c.topologyMu.Lock()
	defer c.topologyMu.Unlock()

	for _, reader := range readers {
		core.LogDbg.Printf("reader-classifier: connected reader: %s\n", reader)
	}

	current := make(map[string]struct{}, len(readers))
	for _, reader := range readers {
		current[reader] = struct{}{}
	}

	var attached, detached []string

	for _, reader := range readers {
		if _, ok := c.registry.Get(reader); !ok {
			attached = append(attached, reader)
		}
	}

	for _, reader := range c.registry.Names() {
		if _, ok := current[reader]; !ok {
			detached = append(detached, reader)
		}
	}

	c.changeTopologyLocked(attached, detached, readers)
}

// HandleDevicesChanged handles reader attachment and detachment.
func (c *Classifier) HandleDevicesChanged(attached, detached, readers []string) {
	defer c.recoverPanic("devices-changed")

	c.topologyMu.Lock()
	defer c.topologyMu.Unlock()

	c.changeTopologyLocked(attached, detached, readers)
}

// HandleDeviceFault logs the watcher fault.
func (c *Classifier) HandleDeviceFault(err error) {
	defer c.recoverPanic("device-fault")

	core.LogWrn.Printf("reader-classifier: device watcher failed: %v\n", err)
}

// HandleInitialized settles the reader presence reported by the monitor.
//
// Remarks:
//   - Insert action is fired only if the reader was just attached with the card
//     already seated, otherwise the initialization is a resync.
func (c *Classifier) HandleInitialized(reader string, present bool) {
	defer c.recoverPanic("initialized")

	core.LogInf.Printf("reader-classifier: reader initialized: reader=%s present=%v\n",
		reader, present)

	fireInsert, known := c.registry.Initialize(reader, present)
	if !known {
		core.LogDbg.Printf("reader-classifier: ignore initialization of unknown reader: %s\n",
			reader)

		return
	}

	if fireInsert {
		core.LogInf.Printf("reader-classifier: reader initialized with card present: %s\n",
			reader)

		c.dispatcher.FireInsert(reader)
	}
}

// HandleInserted fires the insert action if the card wasn't known to be present.
func (c *Classifier) HandleInserted(reader string) {
	defer c.recoverPanic("inserted")

	if !c.registry.Transition(reader, true) {
		core.LogDbg.Printf("reader-classifier: ignore insertion: reader=%s\n", reader)

		return
	}

	core.LogInf.Printf("reader-classifier: card inserted: reader=%s\n", reader)

	c.dispatcher.FireInsert(reader)
}

// HandleRemoved fires the removal action if the card was known to be present.
func (c *Classifier) HandleRemoved(reader string) {
	defer c.recoverPanic("removed")

	if !c.registry.Transition(reader, false) {
		core.LogDbg.Printf("reader-classifier: ignore removal: reader=%s\n", reader)

		return
	}

	core.LogInf.Printf("reader-classifier: card removed: reader=%s\n", reader)

	c.dispatcher.FireRemoved(reader)
}

// HandleFault cancels the monitor, the state is resynchronized on the next restart.
func (c *Classifier) HandleFault(err error) {
	defer c.recoverPanic("fault")

	core.LogWrn.Printf("reader-classifier: monitor exited due to an error: %v\n", err)

	c.manager.Cancel()
}

// FlushPresent forgets all readers and fires the removal action for every reader
// which held a card.
//
// Remarks:
//   - Topology changes are ignored until the readers are enumerated again.
func (c *Classifier) FlushPresent() {
	defer c.recoverPanic("flush")

	c.topologyMu.Lock()
	c.suspended = true
	present := c.registry.Drain()
	c.topologyMu.Unlock()

	for _, reader := range present {
		core.LogInf.Printf("reader-classifier: flush card: reader=%s\n", reader)

		c.dispatcher.FireRemoved(reader)
	}
}

func (c *Classifier) changeTopologyLocked(attached, detached, readers []string) {
	if c.suspended {
		core.LogDbg.Printf("reader-classifier: ignore topology change while suspended: "+
			"attached=%v detached=%v\n", attached, detached)

		return
	}

	for _, reader := range detached {
		core.LogInf.Printf("reader-classifier: reader detached: %s\n", reader)

		if c.registry.Remove(reader) {
			core.LogInf.Printf("reader-classifier: reader detached with card present: %s\n",
				reader)

			c.dispatcher.FireRemoved(reader)
		}
	}

	for _, reader := range attached {
		core.LogInf.Printf("reader-classifier: reader attached: %s\n", reader)

		c.registry.Upsert(reader)
	}

	if len(attached) == 0 && len(detached) == 0 {
		return
	}

	if err := c.manager.Restart(readers); err != nil {
		core.LogWrn.Printf("reader-classifier: failed to restart monitor: %v\n", err)
	}
}

func (*Classifier) recoverPanic(op string) {
	if r := recover(); r != nil {
		core.LogErr.Printf("reader-classifier: %s: recovered from panic: %v\n", op, r)
	}
}
