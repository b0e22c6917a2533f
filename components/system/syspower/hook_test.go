package syspower

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-control-systems/card-detector/components/status"
)

type testHookRegistrar struct {
	mu              sync.Mutex
	slot            uintptr
	registerErr     error
	registerCount   int
	unregisterCount int
}

func (r *testHookRegistrar) Register(slot uintptr) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registerCount++

	if r.registerErr != nil {
		return 0, r.registerErr
	}

	r.slot = slot

	return Token(0xABCD), nil
}

func (r *testHookRegistrar) Unregister(token Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if token != Token(0xABCD) {
		return status.StatusInvalidState
	}

	r.unregisterCount++

	return nil
}

func (r *testHookRegistrar) getSlot() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.slot
}

type testHookHandler struct {
	eventCh     chan string
	blockCh     chan struct{}
	panicResume bool
}

func newTestHookHandler() *testHookHandler {
	return &testHookHandler{
		eventCh: make(chan string, 16),
	}
}

func (h *testHookHandler) HandleSuspend() {
	h.eventCh <- "suspend"

	if h.blockCh != nil {
		<-h.blockCh
	}
}

func (h *testHookHandler) HandleResume() {
	if h.panicResume {
		panic("resume failed")
	}

	h.eventCh <- "resume"
}

func TestHookSuspendResume(t *testing.T) {
	registrar := &testHookRegistrar{}
	handler := newTestHookHandler()

	hook := NewHook(registrar, handler)
	require.Nil(t, hook.Register())

	slot := registrar.getSlot()
	require.NotZero(t, slot)

	Notify(slot, EventSuspend)
	Notify(slot, EventPowerStatusChange)
	Notify(slot, EventResumeSuspend)
	Notify(slot, EventResumeAutomatic)

	require.Equal(t, "suspend", <-handler.eventCh)
	require.Equal(t, "resume", <-handler.eventCh)

	require.Nil(t, hook.Unregister())
	require.Equal(t, 1, registrar.unregisterCount)
	require.Empty(t, handler.eventCh)
}

func TestHookNotifyAfterUnregister(t *testing.T) {
	registrar := &testHookRegistrar{}
	handler := newTestHookHandler()

	hook := NewHook(registrar, handler)
	require.Nil(t, hook.Register())

	slot := registrar.getSlot()
	require.Nil(t, hook.Unregister())

	Notify(slot, EventSuspend)

	select {
	case event := <-handler.eventCh:
		t.Fatalf("unexpected event: %s", event)
	case <-time.After(time.Millisecond * 50):
	}
}

func TestHookUnregisterIdempotent(t *testing.T) {
	registrar := &testHookRegistrar{}

	hook := NewHook(registrar, newTestHookHandler())
	require.Nil(t, hook.Unregister())

	require.Nil(t, hook.Register())
	require.Equal(t, status.StatusInvalidState, hook.Register())

	require.Nil(t, hook.Unregister())
	require.Nil(t, hook.Close())
	require.Equal(t, 1, registrar.unregisterCount)
}

func TestHookRegisterError(t *testing.T) {
	registrar := &testHookRegistrar{
		registerErr: status.StatusNotSupported,
	}

	hook := NewHook(registrar, newTestHookHandler())

	err := hook.Register()
	require.True(t, errors.Is(err, status.StatusNotSupported))
	require.Nil(t, hook.Unregister())
	require.Equal(t, 0, registrar.unregisterCount)

	registrar.registerErr = nil
	require.Nil(t, hook.Register())
	require.Nil(t, hook.Unregister())
}

func TestHookHandlerPanic(t *testing.T) {
	registrar := &testHookRegistrar{}
	handler := newTestHookHandler()
	handler.panicResume = true

	hook := NewHook(registrar, handler)
	require.Nil(t, hook.Register())

	slot := registrar.getSlot()

	Notify(slot, EventResumeAutomatic)
	Notify(slot, EventSuspend)

	require.Equal(t, "suspend", <-handler.eventCh)
	require.Nil(t, hook.Unregister())
}

func TestHookBurstWhileHandlerBusy(t *testing.T) {
	registrar := &testHookRegistrar{}
	handler := newTestHookHandler()
	handler.blockCh = make(chan struct{})

	hook := NewHook(registrar, handler)
	require.Nil(t, hook.Register())

	slot := registrar.getSlot()

	Notify(slot, EventSuspend)
	require.Equal(t, "suspend", <-handler.eventCh)

	for _, event := range []EventType{EventSuspend, EventResumeAutomatic, EventSuspend} {
		for i := 0; i < 32; i++ {
			Notify(slot, event)
			Notify(slot, EventPowerStatusChange)
		}
	}

	close(handler.blockCh)

	require.Equal(t, "suspend", <-handler.eventCh)
	require.Equal(t, "resume", <-handler.eventCh)
	require.Equal(t, "suspend", <-handler.eventCh)

	require.Nil(t, hook.Unregister())
	require.Empty(t, handler.eventCh)
}

func TestHookNotifyUnknownSlot(t *testing.T) {
	require.NotPanics(t, func() {
		Notify(^uintptr(0), EventSuspend)
	})
}

func TestEventTypeString(t *testing.T) {
	require.Equal(t, "suspend", EventSuspend.String())
	require.Equal(t, "resume-automatic", EventResumeAutomatic.String())
	require.Equal(t, "0x20", EventType(0x20).String())
}
