package fall

import (
	"errors"
	"fmt"
)

var (
	// ErrLinkUnavailable means the adapter or port does not exist or is down.
	ErrLinkUnavailable = errors.New("link unavailable")
	// ErrPermissionDenied means a required capability was not granted at the moment of use.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConnectFailed means the remote sensor could not be reached.
	ErrConnectFailed = errors.New("connect failed")
	// ErrLinkIO means an established session failed while reading.
	ErrLinkIO = errors.New("link i/o failure")
	// ErrNoEmergencyContact means an escalation was requested without a contact.
	ErrNoEmergencyContact = errors.New("emergency contact is not set")
	// ErrEncoding means a message could not be represented in the requested encoding.
	ErrEncoding = errors.New("message encoding failed")
	// ErrTransmission means the carrier or modem rejected a message or call.
	ErrTransmission = errors.New("transmission failed")
)

// LinkError reports a failure of the sensor link.
type LinkError struct {
	// Op is the operation that failed ("connect", "read").
	Op string
	// Device is the display name of the sensor.
	Device string
	// Err is the underlying cause, wrapping one of the link sentinels.
	Err error
}

// Error implements error.
func (e *LinkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Err)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *LinkError) Unwrap() error {
	return e.Err
}

// DispatchError reports a failed alert step.
type DispatchError struct {
	// Step names the failed step ("notice", "location", "call", "last_resort").
	Step string
	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Step, e.Err)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsPermission reports whether err is a PermissionError.
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
