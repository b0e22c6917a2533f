//go:build !windows

package syspower

import "github.com/open-control-systems/card-detector/components/status"

type unsupportedRegistrar struct{}

// NewSystemRegistrar returns the registrar for the current platform.
//
// Remarks:
//   - Suspend/resume notifications aren't supported, registration always fails
//     with status.StatusNotSupported.
func NewSystemRegistrar() Registrar {
	return &unsupportedRegistrar{}
}

func (*unsupportedRegistrar) Register(_ uintptr) (Token, error) {
	return 0, status.StatusNotSupported
}

func (*unsupportedRegistrar) Unregister(_ Token) error {
	return status.StatusNotSupported
}
