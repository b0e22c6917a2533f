package rdpcsc

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ebfe/scard"

	"github.com/open-control-systems/card-detector/components/core"
	"github.com/open-control-systems/card-detector/components/reader/rdcore"
	"github.com/open-control-systems/card-detector/components/status"
)

// DeviceWatcherParams provides various configuration options for DeviceWatcher.
type DeviceWatcherParams struct {
	// PollInterval - how often to re-list readers when the PnP notification
	// isn't delivered.
	PollInterval time.Duration
}

// DeviceWatcher watches the set of attached readers.
//
// Remarks:
//   - Waits on the PnP notification pseudo reader, re-lists readers at least
//     once per PollInterval.
//   - Falls back to plain polling if the PnP notification isn't supported.
type DeviceWatcher struct {
	factory ContextFactory
	handler rdcore.DeviceHandler
	params  DeviceWatcherParams

	mu     sync.Mutex
	ctx    Context
	doneCh chan struct{}
	stopCh chan struct{}
	closed bool
}

// NewDeviceWatcher is an initialization of DeviceWatcher.
func NewDeviceWatcher(
	factory ContextFactory,
	handler rdcore.DeviceHandler,
	params DeviceWatcherParams,
) *DeviceWatcher {
	if params.PollInterval <= 0 {
		params.PollInterval = time.Second
	}

	return &DeviceWatcher{
		factory: factory,
		handler: handler,
		params:  params,
		stopCh:  make(chan struct{}),
	}
}

// Start begins watching in the standalone goroutine.
func (w *DeviceWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return status.StatusClosed
	}

	if w.ctx != nil {
		return status.StatusInvalidState
	}

	ctx, err := w.factory()
	if err != nil {
		return fmt.Errorf("pcsc-device-watcher: failed to establish context: %w", err)
	}

	w.ctx = ctx
	w.doneCh = make(chan struct{})

	go w.run(ctx, w.doneCh)

	return nil
}

// Close stops watching and releases the context.
func (w *DeviceWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()

		return nil
	}

	w.closed = true
	close(w.stopCh)

	ctx := w.ctx
	doneCh := w.doneCh

	if ctx != nil {
		if err := ctx.Cancel(); err != nil {
			core.LogDbg.Printf("pcsc-device-watcher: failed to cancel: %v\n", err)
		}
	}
	w.mu.Unlock()

	if ctx == nil {
		return nil
	}

	<-doneCh

	return ctx.Release()
}

func (w *DeviceWatcher) isClosed() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *DeviceWatcher) run(ctx Context, doneCh chan<- struct{}) {
	defer close(doneCh)

	known, err := listReaders(ctx)
	if err != nil {
		w.fault(err)

		return
	}

	w.handler.HandleDevicesInitialized(known)

	states := []scard.ReaderState{{
		Reader:       pnpNotification,
		CurrentState: scard.StateUnaware,
	}}

	pnpSupported := true

	for {
		if w.isClosed() {
			return
		}

		if pnpSupported {
			err := ctx.GetStatusChange(states, w.params.PollInterval)
			switch {
			case err == nil:
				states[0].CurrentState = states[0].EventState &^ scard.StateChanged

				if states[0].EventState&scard.StateUnknown != 0 {
					core.LogInf.Println("pcsc-device-watcher: PnP notification isn't supported")

					pnpSupported = false
				}

			case isTimeout(err):

			case isCancelled(err) || w.isClosed():
				return

			case errors.Is(err, scard.ErrUnknownReader):
				core.LogInf.Println("pcsc-device-watcher: PnP notification isn't supported")

				pnpSupported = false

			default:
				w.fault(err)

				return
			}
		} else {
			select {
			case <-time.After(w.params.PollInterval):
			case <-w.stopCh:
				return
			}
		}

		current, err := listReaders(ctx)
		if err != nil {
			if isCancelled(err) || w.isClosed() {
				return
			}

			w.fault(err)

			return
		}

		attached, detached := diffReaders(known, current)
		if len(attached) == 0 && len(detached) == 0 {
			continue
		}

		known = current

		w.handler.HandleDevicesChanged(attached, detached, current)
	}
}

func (w *DeviceWatcher) fault(err error) {
	core.LogWrn.Printf("pcsc-device-watcher: monitor exited due to an error: %v\n", err)

	w.handler.HandleDeviceFault(err)
}

func diffReaders(known, current []string) (attached, detached []string) {
	knownSet := make(map[string]struct{}, len(known))
	for _, reader := range known {
		knownSet[reader] = struct{}{}
	}

	currentSet := make(map[string]struct{}, len(current))
	for _, reader := range current {
		currentSet[reader] = struct{}{}

		if _, ok := knownSet[reader]; !ok {
			attached = append(attached, reader)
		}
	}

	for _, reader := range known {
		if _, ok := currentSet[reader]; !ok {
			detached = append(detached, reader)
		}
	}

	sort.Strings(attached)
	sort.Strings(detached)

	return attached, detached
}

// DeviceWatcherFactory creates PC/SC device watchers.
type DeviceWatcherFactory struct {
	factory ContextFactory
	params  DeviceWatcherParams
}

// NewDeviceWatcherFactory is an initialization of DeviceWatcherFactory.
func NewDeviceWatcherFactory(
	factory ContextFactory,
	params DeviceWatcherParams,
) *DeviceWatcherFactory {
	return &DeviceWatcherFactory{
		factory: factory,
		params:  params,
	}
}

// NewDeviceWatcher creates a watcher delivering notifications to the handler.
func (f *DeviceWatcherFactory) NewDeviceWatcher(
	handler rdcore.DeviceHandler,
) (rdcore.DeviceWatcher, error) {
	return NewDeviceWatcher(f.factory, handler, f.params), nil
}
