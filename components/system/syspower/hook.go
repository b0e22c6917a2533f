package syspower

import (
	"fmt"
	"sync"

	"github.com/open-control-systems/card-detector/components/core"
	"github.com/open-control-systems/card-detector/components/status"
)

// EventType is a power broadcast event code delivered by the OS.
type EventType uint32

const (
	// EventSuspend - system is suspending operation.
	EventSuspend EventType = 0x4

	// EventResumeSuspend - system is resuming after user input.
	EventResumeSuspend EventType = 0x7

	// EventPowerStatusChange - power status has changed.
	EventPowerStatusChange EventType = 0xA

	// EventResumeAutomatic - system is resuming automatically, sent on every resume.
	EventResumeAutomatic EventType = 0x12
)

func (e EventType) String() string {
	switch e {
	case EventSuspend:
		return "suspend"
	case EventResumeSuspend:
		return "resume-suspend"
	case EventPowerStatusChange:
		return "power-status-change"
	case EventResumeAutomatic:
		return "resume-automatic"
	default:
		return fmt.Sprintf("0x%X", uint32(e))
	}
}

// Handler handles host suspend and resume.
type Handler interface {
	// HandleSuspend is called when the host is about to sleep.
	HandleSuspend()

	// HandleResume is called when the host wakes up.
	HandleResume()
}

// Token is an opaque OS registration handle.
type Token uintptr

// Registrar subscribes a slot for the OS suspend/resume notifications.
//
// Remarks:
//   - The OS callback should call Notify with the registered slot.
type Registrar interface {
	// Register subscribes the slot.
	Register(slot uintptr) (Token, error)

	// Unregister unsubscribes the token.
	Unregister(token Token) error
}

// Hook bridges the OS suspend/resume notifications to the handler.
//
// Remarks:
//   - The OS callback never blocks, events are delivered to the handler
//     in order from a single goroutine.
//   - Pending events are never dropped, a repeated event is merged with the
//     pending one of the same type.
//   - The OS callback refers to the hook by a slot, a callback arriving after
//     the hook was unregistered is a no-op.
type Hook struct {
	registrar Registrar
	handler   Handler

	mu         sync.Mutex
	registered bool
	slot       uintptr
	token      Token
	doneCh     chan struct{}

	// pendingMu is separate from mu, the OS may wait for in-flight callbacks
	// while unregistering.
	pendingMu sync.Mutex
	pending   []EventType
	wakeCh    chan struct{}
	closed    bool
}

// NewHook is an initialization of Hook.
func NewHook(registrar Registrar, handler Handler) *Hook {
	return &Hook{
		registrar: registrar,
		handler:   handler,
	}
}

// Register subscribes the hook for the OS suspend/resume notifications.
func (h *Hook) Register() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.registered {
		return status.StatusInvalidState
	}

	wakeCh := make(chan struct{}, 1)

	h.pendingMu.Lock()
	h.pending = nil
	h.wakeCh = wakeCh
	h.closed = false
	h.pendingMu.Unlock()

	h.doneCh = make(chan struct{})
	h.slot = slots.add(h)

	go h.eventPump(wakeCh, h.doneCh)

	token, err := h.registrar.Register(h.slot)
	if err != nil {
		slots.remove(h.slot)
		h.closeEvents()
		<-h.doneCh

		return fmt.Errorf("power-hook: failed to register for power notifications: %w", err)
	}

	h.token = token
	h.registered = true

	core.LogInf.Println("power-hook: registered for power notifications")

	return nil
}

// Unregister unsubscribes the hook and waits for pending events to be handled.
//
// Remarks:
//   - Safe to call multiple times or without successful registration.
func (h *Hook) Unregister() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.registered {
		return nil
	}

	h.registered = false

	err := h.registrar.Unregister(h.token)

	// The slot is released after the OS unregistration, so no callback can
	// observe a released slot while still registered.
	slots.remove(h.slot)

	h.closeEvents()
	<-h.doneCh

	h.token = 0

	if err != nil {
		return fmt.Errorf("power-hook: failed to unregister from power notifications: %w", err)
	}

	core.LogInf.Println("power-hook: unregistered from power notifications")

	return nil
}

// Close unregisters the hook.
func (h *Hook) Close() error {
	return h.Unregister()
}

func (h *Hook) closeEvents() {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()

	if !h.closed {
		h.closed = true
		close(h.wakeCh)
	}
}

func (h *Hook) enqueue(event EventType) {
	if event != EventSuspend && event != EventResumeAutomatic {
		core.LogInf.Printf("power-hook: no action will be taken on power event: %s\n", event)

		return
	}

	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()

	if h.closed || h.wakeCh == nil {
		return
	}

	if n := len(h.pending); n > 0 && h.pending[n-1] == event {
		core.LogDbg.Printf("power-hook: merge with pending event: %s\n", event)

		return
	}

	h.pending = append(h.pending, event)

	select {
	case h.wakeCh <- struct{}{}:
	default:
	}
}

func (h *Hook) next() (EventType, bool) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()

	if len(h.pending) == 0 {
		return 0, false
	}

	event := h.pending[0]
	h.pending = h.pending[1:]

	return event, true
}

func (h *Hook) eventPump(wakeCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		_, ok := <-wakeCh

		for {
			event, pending := h.next()
			if !pending {
				break
			}

			h.handleEvent(event)
		}

		if !ok {
			return
		}
	}
}

func (h *Hook) handleEvent(event EventType) {
	defer func() {
		if r := recover(); r != nil {
			core.LogErr.Printf("power-hook: recovered from panic: event=%s: %v\n", event, r)
		}
	}()

	core.LogInf.Printf("power-hook: got power event: %s\n", event)

	switch event {
	case EventSuspend:
		h.handler.HandleSuspend()

	case EventResumeAutomatic:
		h.handler.HandleResume()
	}
}

// Notify delivers the OS power event to the hook registered under the slot.
//
// Remarks:
//   - Never blocks, unknown slots are ignored.
func Notify(slot uintptr, event EventType) {
	hook := slots.get(slot)
	if hook == nil {
		core.LogDbg.Printf("power-hook: ignore event for unknown slot: slot=%d event=%s\n",
			slot, event)

		return
	}

	hook.enqueue(event)
}
