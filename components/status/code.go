package status

import "errors"

var (
	// StatusInvalidState indicates that an operation can't be performed due to invalid state.
	StatusInvalidState = errors.New("invalid state")

	// StatusNotSupported indicates that an operation isn't supported.
	StatusNotSupported = errors.New("not implemented")

	// StatusClosed indicates that a resource was already closed.
	StatusClosed = errors.New("closed")
)
