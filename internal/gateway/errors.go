package gateway

import (
	"errors"
	"fmt"
)

// Domain errors for the gateway package.
var (
	// ErrDeviceNotFound is returned when the target device ID is unknown.
	ErrDeviceNotFound = errors.New("gateway: device not found")

	// ErrDeviceOffline is returned without any network call when the
	// registry reports the target device offline.
	ErrDeviceOffline = errors.New("gateway: device offline")

	// ErrCapabilityMissing is returned when the device does not advertise
	// the capability the call requires.
	ErrCapabilityMissing = errors.New("gateway: capability not supported by device")

	// ErrTimeout is returned when a forwarded call exceeds its operation timeout.
	ErrTimeout = errors.New("gateway: call timed out")

	// ErrUnreachable is returned when the agent cannot be reached at all
	// (dial failure, connection refused, reset).
	ErrUnreachable = errors.New("gateway: device unreachable")
)

// RemoteError is a failure reported by the agent itself: the call reached
// the device but the device-side operation failed.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("gateway: remote error %s: %s", e.Code, e.Message)
}
