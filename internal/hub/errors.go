package hub

import "errors"

// Domain-specific errors for hub operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when a serial port cannot be opened
	// or the device does not answer the initial probe. Fatal at startup.
	ErrConnectionFailed = errors.New("hub: connection failed")

	// ErrNoDevice is returned by Scan when no candidate port hosts a
	// responding hub. Fatal at startup.
	ErrNoDevice = errors.New("hub: no device found")

	// ErrDeviceFault is returned when a command round-trip fails after
	// the session was established: timeout, short or malformed frame,
	// checksum mismatch, or command echo mismatch.
	ErrDeviceFault = errors.New("hub: device fault")

	// ErrNotConnected is returned for operations on a closed driver.
	ErrNotConnected = errors.New("hub: not connected")
)
