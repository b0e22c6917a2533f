package rdpcsc

import (
	"errors"
	"time"

	"github.com/ebfe/scard"
)

// pnpNotification is a pseudo reader which changes its state when readers are
// attached or detached.
const pnpNotification = `\\?PnP?\Notification`

// statusTimeout bounds a single GetStatusChange call.
const statusTimeout = time.Second

// Context is a PC/SC resource manager context.
//
// Remarks:
//   - Cancel can be called from any goroutine to interrupt GetStatusChange.
type Context interface {
	// ListReaders returns names of the attached readers.
	ListReaders() ([]string, error)

	// GetStatusChange blocks until the state of any reader differs from the
	// current state, the timeout expires or the context is cancelled.
	GetStatusChange(states []scard.ReaderState, timeout time.Duration) error

	// Cancel interrupts a pending GetStatusChange call.
	Cancel() error

	// Release releases the context.
	Release() error
}

// ContextFactory establishes new PC/SC contexts.
type ContextFactory func() (Context, error)

// EstablishContext establishes a system scope PC/SC context.
//
// References:
//   - https://github.com/ebfe/scard
func EstablishContext() (Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, err
	}

	return ctx, nil
}

func listReaders(ctx Context) ([]string, error) {
	readers, err := ctx.ListReaders()
	if err != nil {
		if errors.Is(err, scard.ErrNoReadersAvailable) {
			return nil, nil
		}

		return nil, err
	}

	ret := make([]string, 0, len(readers))
	for _, reader := range readers {
		if reader != pnpNotification {
			ret = append(ret, reader)
		}
	}

	return ret, nil
}

func isCancelled(err error) bool {
	return errors.Is(err, scard.ErrCancelled)
}

func isTimeout(err error) bool {
	return errors.Is(err, scard.ErrTimeout)
}
