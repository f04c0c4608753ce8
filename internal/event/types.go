package event

import "time"

// Kind classifies events flowing through the bus.
type Kind string

// Event kinds.
const (
	// KindDeviceOnline fires when a device transitions to online.
	KindDeviceOnline Kind = "device_online"

	// KindDeviceOffline fires when a device transitions to offline.
	KindDeviceOffline Kind = "device_offline"

	// KindDeviceRemoved fires when an operator removes a device.
	KindDeviceRemoved Kind = "device_removed"

	// KindAccess fires for every door access attempt a device reports.
	KindAccess Kind = "access"

	// KindCardDetected fires when a card-detection session captures a
	// scan.
	KindCardDetected Kind = "card_detected"

	// KindCommandResult fires when a device acknowledges a command.
	KindCommandResult Kind = "command_result"
)

// Event is a single notification published to the bus. Payload is an
// event-kind-specific JSON-serialisable value; subscribers must not
// mutate it.
type Event struct {
	Kind      Kind      `json:"kind"`
	Hostname  string    `json:"hostname,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}
