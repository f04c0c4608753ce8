package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Device message types carried in the "type" field on the send topic.
const (
	messageTypeHeartbeat = "heartbeat"
	messageTypeBoot      = "boot"
	messageTypeAccess    = "access"
)

// unknownUsername is recorded for access events that arrive without a
// username field. The event is still logged rather than dropped.
const unknownUsername = "unknown"

// minValidEpoch is 2000-01-01T00:00:00Z. Devices that boot before NTP
// sync report epoch values near zero; anything earlier than this is
// treated as an unset clock and replaced with the receive time.
const minValidEpoch = 946684800

// flexString decodes a JSON value that devices send inconsistently as
// either a string or a number. Firmware versions disagree on the access
// and time field encodings.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*f = ""
			return nil
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		*f = ""
		return nil
	}
	*f = flexString(n.String())
	return nil
}

// flexInt64 decodes a JSON value sent as either a number or a numeric
// string. Unparsable values decode to zero rather than failing the
// whole message.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	var s flexString
	_ = s.UnmarshalJSON(data)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		// Some firmware sends floats for uptime.
		fl, ferr := strconv.ParseFloat(string(s), 64)
		if ferr != nil {
			*f = 0
			return nil
		}
		n = int64(fl)
	}
	*f = flexInt64(n)
	return nil
}

// deviceMessage is the superset of fields a device publishes on its
// send topic. Individual message types populate different subsets;
// decoding is tolerant and missing fields degrade to zero values.
type deviceMessage struct {
	Type     string     `json:"type"`
	Time     flexInt64  `json:"time"`
	Uptime   flexInt64  `json:"uptime"`
	IP       string     `json:"ip"`
	Hostname string     `json:"hostname"`
	IsKnown  flexString `json:"isKnown"`
	Access   flexString `json:"access"`
	Username string     `json:"username"`
	UID      flexString `json:"uid"`
	DoorName string     `json:"doorName"`
	Cmd      string     `json:"cmd"`
}

// tagMessage is the raw card read published on the tag topic. It has no
// type discriminator; the topic shape alone identifies it.
type tagMessage struct {
	UID      flexString `json:"uid"`
	Hostname string     `json:"hostname"`
}

func parseDeviceMessage(payload []byte) (deviceMessage, error) {
	var msg deviceMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return deviceMessage{}, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return msg, nil
}

func parseTagMessage(payload []byte) (tagMessage, error) {
	var msg tagMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return tagMessage{}, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return msg, nil
}

// normalizeTimestamp converts a device-reported epoch-seconds value to
// a time, falling back to the receive time when the device clock is
// unset or the value is implausible. Normalisation happens here, at
// ingestion, so later liveness evaluation never re-interprets raw
// device timestamps.
func normalizeTimestamp(epoch int64, receivedAt time.Time) time.Time {
	if epoch < minValidEpoch {
		return receivedAt.UTC()
	}
	return time.Unix(epoch, 0).UTC()
}

// accessGranted derives the granted/denied outcome from the access
// field. Devices report the matched access class name on success and a
// rejection reason otherwise.
func accessGranted(isKnown, access flexString) bool {
	if isKnown != "true" {
		return false
	}
	switch access {
	case "Denied", "Disabled", "Expired", "":
		return false
	}
	return true
}
