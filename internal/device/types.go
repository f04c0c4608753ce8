package device

import "time"

// Device represents a single door controller in the fleet, keyed by its
// MQTT hostname. This matches the database schema in
// migrations/20260301_000000_initial_schema.up.sql.
type Device struct {
	// Hostname is the device's unique identifier, taken from the MQTT
	// topic it publishes on.
	Hostname string `json:"hostname"`

	// IPAddress is the device's last reported IP, kept as an opaque
	// string for display.
	IPAddress string `json:"ip_address"`

	// Status is the derived liveness state.
	Status Status `json:"status"`

	// LastSeen is the timestamp of the most recent message from the
	// device. Nil until the first message arrives.
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// OfflineCount is how many times the device has been marked offline.
	// Useful for spotting flaky installations.
	OfflineCount int `json:"offline_count"`

	// Uptime is the device's self-reported uptime in seconds, opaque
	// metadata from the last heartbeat.
	Uptime int64 `json:"uptime"`

	// Firmware is the device's self-reported firmware version, if any.
	Firmware string `json:"firmware,omitempty"`

	// DoorNames lists the doors this controller drives. Most devices
	// drive one door named after the hostname.
	DoorNames []string `json:"door_names,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Device.
// Slice and pointer fields are cloned so modifications to the copy
// do not affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	if d.LastSeen != nil {
		t := *d.LastSeen
		cpy.LastSeen = &t
	}

	if d.DoorNames != nil {
		cpy.DoorNames = make([]string, len(d.DoorNames))
		copy(cpy.DoorNames, d.DoorNames)
	}

	return &cpy
}

// Status represents the derived liveness state of a device.
type Status string

// Status constants.
const (
	// StatusOnline means a message arrived within the offline timeout.
	StatusOnline Status = "online"

	// StatusOffline means the device has been silent past the timeout.
	StatusOffline Status = "offline"

	// StatusUnknown means the device is known from the database but has
	// not been heard from since the manager started.
	StatusUnknown Status = "unknown"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline, StatusUnknown}
}

// Observation is a single sighting of a device, extracted from any
// message it publishes. The registry folds observations into Device
// records, taking the newest LastSeen even if messages arrive out of
// order.
type Observation struct {
	Hostname  string
	IPAddress string
	Seen      time.Time

	// Optional heartbeat metadata. Zero values leave the stored fields
	// unchanged.
	Uptime    int64
	Firmware  string
	DoorNames []string
}
