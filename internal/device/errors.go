package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a hostname does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with a hostname
	// that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidHostname is returned when a hostname is empty or contains
	// MQTT topic separators.
	ErrInvalidHostname = errors.New("device: invalid hostname")
)
