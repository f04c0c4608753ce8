package accesslog

import "time"

// Entry is a single door access attempt as reported by a device.
// Entries are append-only; devices are the authority on whether the
// door actually opened.
type Entry struct {
	ID int64 `json:"id"`

	// Hostname is the reporting device.
	Hostname string `json:"hostname"`

	// DoorName is the door the event happened at. Devices that drive a
	// single door usually report their hostname here.
	DoorName string `json:"door_name,omitempty"`

	// Username as resolved by the device, or "unknown" for cards it has
	// not been told about.
	Username string `json:"username"`

	// CardUID is the scanned card, when the device included it.
	CardUID string `json:"card_uid,omitempty"`

	// Granted reports whether the device opened the door.
	Granted bool `json:"granted"`

	// KnownCard reports whether the device recognised the card.
	KnownCard bool `json:"known_card"`

	// EventTime is the device-reported event timestamp.
	EventTime time.Time `json:"event_time"`

	// SourceTopic is the MQTT topic the event arrived on.
	SourceTopic string `json:"source_topic,omitempty"`

	// RawPayload preserves the original message for auditing.
	RawPayload string `json:"raw_payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows List queries. Zero values match everything.
type Filter struct {
	// Hostname restricts to one device.
	Hostname string

	// Since restricts to events at or after this time.
	Since time.Time

	// Limit caps the number of returned entries. Zero applies
	// DefaultLimit.
	Limit int
}

// DefaultLimit bounds unfiltered List calls.
const DefaultLimit = 200
