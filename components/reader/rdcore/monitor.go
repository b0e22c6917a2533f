package rdcore

// MonitorHandler receives per-reader card notifications.
//
// Remarks:
//   - Methods are called from goroutines owned by the monitor.
type MonitorHandler interface {
	// HandleInitialized is called once per reader when the monitor learns its
	// initial state.
	HandleInitialized(reader string, present bool)

	// HandleInserted is called when a card is inserted into the reader.
	HandleInserted(reader string)

	// HandleRemoved is called when a card is removed from the reader.
	HandleRemoved(reader string)

	// HandleFault is called when the monitor stops due to an error.
	HandleFault(err error)
}

// Monitor watches a fixed set of readers for card insertion and removal.
type Monitor interface {
	// Start begins polling the readers.
	Start(readers []string) error

	// Cancel interrupts polling, it doesn't wait for the polling to finish.
	Cancel()

	// Close waits for the polling to finish and releases all resources.
	Close() error
}

// MonitorFactory creates per-reader monitors.
type MonitorFactory interface {
	// NewMonitor creates a monitor delivering notifications to the handler.
	NewMonitor(handler MonitorHandler) (Monitor, error)
}

// DeviceHandler receives reader topology notifications.
type DeviceHandler interface {
	// HandleDevicesInitialized is called once when the watcher learns the initial
	// set of readers.
	HandleDevicesInitialized(readers []string)

	// HandleDevicesChanged is called when readers are attached or detached.
	//
	// Parameters:
	//   - attached - readers which appeared since the previous notification.
	//   - detached - readers which disappeared since the previous notification.
	//   - readers - all currently attached readers.
	HandleDevicesChanged(attached, detached, readers []string)

	// HandleDeviceFault is called when the watcher stops due to an error.
	HandleDeviceFault(err error)
}

// DeviceWatcher watches the set of attached readers.
type DeviceWatcher interface {
	// Start begins watching.
	Start() error

	// Close stops watching and waits for all notifications to be delivered.
	Close() error
}

// DeviceWatcherFactory creates reader topology watchers.
type DeviceWatcherFactory interface {
	// NewDeviceWatcher creates a watcher delivering notifications to the handler.
	NewDeviceWatcher(handler DeviceHandler) (DeviceWatcher, error)
}

// Enumerator lists currently attached readers.
type Enumerator interface {
	// ListReaders returns names of all attached readers, the result can be empty.
	ListReaders() ([]string, error)
}

// ActionDispatcher fires external actions on card insertion and removal.
//
// Remarks:
//   - Implementation should never block for long and never fail the caller.
type ActionDispatcher interface {
	// FireInsert fires the card insertion action.
	FireInsert(reader string)

	// FireRemoved fires the card removal action.
	FireRemoved(reader string)
}
