//go:build windows

package syspower

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// DEVICE_NOTIFY_CALLBACK
const deviceNotifyCallback = 2

var (
	modPowrprof = windows.NewLazySystemDLL("powrprof.dll")

	procPowerRegisterSuspendResumeNotification = modPowrprof.NewProc(
		"PowerRegisterSuspendResumeNotification")
	procPowerUnregisterSuspendResumeNotification = modPowrprof.NewProc(
		"PowerUnregisterSuspendResumeNotification")

	// The number of callbacks created with NewCallback is limited per process,
	// a single one is shared by all registrations.
	powerCallbackOnce sync.Once
	powerCallbackPtr  uintptr
)

// DEVICE_NOTIFY_SUBSCRIBE_PARAMETERS
type deviceNotifySubscribeParameters struct {
	callback uintptr
	context  uintptr
}

// WindowsRegistrar subscribes for suspend/resume notifications with
// PowerRegisterSuspendResumeNotification.
//
// References:
//   - https://learn.microsoft.com/en-us/windows/win32/api/powerbase/nf-powerbase-powerregistersuspendresumenotification
type WindowsRegistrar struct {
	mu     sync.Mutex
	params map[Token]*deviceNotifySubscribeParameters
}

// NewSystemRegistrar returns the registrar for the current platform.
func NewSystemRegistrar() Registrar {
	return &WindowsRegistrar{
		params: make(map[Token]*deviceNotifySubscribeParameters),
	}
}

// Register subscribes the slot, the slot is passed back as the callback context.
func (r *WindowsRegistrar) Register(slot uintptr) (Token, error) {
	if err := procPowerRegisterSuspendResumeNotification.Find(); err != nil {
		return 0, err
	}

	powerCallbackOnce.Do(func() {
		powerCallbackPtr = windows.NewCallback(powerCallback)
	})

	params := &deviceNotifySubscribeParameters{
		callback: powerCallbackPtr,
		context:  slot,
	}

	var handle uintptr

	ret, _, _ := procPowerRegisterSuspendResumeNotification.Call(
		deviceNotifyCallback,
		uintptr(unsafe.Pointer(params)),
		uintptr(unsafe.Pointer(&handle)),
	)
	if ret != uintptr(windows.ERROR_SUCCESS) {
		return 0, fmt.Errorf("PowerRegisterSuspendResumeNotification: %w", windows.Errno(ret))
	}

	token := Token(handle)

	r.mu.Lock()
	r.params[token] = params
	r.mu.Unlock()

	return token, nil
}

// Unregister unsubscribes the token.
func (r *WindowsRegistrar) Unregister(token Token) error {
	defer func() {
		r.mu.Lock()
		delete(r.params, token)
		r.mu.Unlock()
	}()

	if err := procPowerUnregisterSuspendResumeNotification.Find(); err != nil {
		return err
	}

	ret, _, _ := procPowerUnregisterSuspendResumeNotification.Call(uintptr(token))
	if ret != uintptr(windows.ERROR_SUCCESS) {
		return fmt.Errorf("PowerUnregisterSuspendResumeNotification: %w", windows.Errno(ret))
	}

	return nil
}

// powerCallback is DEVICE_NOTIFY_CALLBACK_ROUTINE, it runs on an OS thread.
func powerCallback(context uintptr, eventType uintptr, _ uintptr) uintptr {
	Notify(context, EventType(eventType))

	return uintptr(windows.ERROR_SUCCESS)
}
