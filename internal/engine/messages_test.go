package engine

import (
	"testing"
	"time"
)

func TestParseDeviceMessage_FieldEncodingVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, msg deviceMessage)
	}{
		{
			name:    "heartbeat with numeric time",
			payload: `{"type":"heartbeat","time":1756400000,"uptime":86400,"ip":"10.0.0.5","hostname":"door1"}`,
			check: func(t *testing.T, msg deviceMessage) {
				if msg.Type != "heartbeat" || int64(msg.Time) != 1756400000 || int64(msg.Uptime) != 86400 {
					t.Errorf("unexpected decode: %+v", msg)
				}
			},
		},
		{
			name:    "heartbeat with string time",
			payload: `{"type":"heartbeat","time":"1756400000","hostname":"door1"}`,
			check: func(t *testing.T, msg deviceMessage) {
				if int64(msg.Time) != 1756400000 {
					t.Errorf("Time = %d, want 1756400000", int64(msg.Time))
				}
			},
		},
		{
			name:    "float uptime degrades to whole seconds",
			payload: `{"type":"heartbeat","uptime":12.75,"hostname":"door1"}`,
			check: func(t *testing.T, msg deviceMessage) {
				if int64(msg.Uptime) != 12 {
					t.Errorf("Uptime = %d, want 12", int64(msg.Uptime))
				}
			},
		},
		{
			name:    "numeric uid coerced to string",
			payload: `{"type":"access","uid":1234567890,"hostname":"door1"}`,
			check: func(t *testing.T, msg deviceMessage) {
				if string(msg.UID) != "1234567890" {
					t.Errorf("UID = %q, want %q", msg.UID, "1234567890")
				}
			},
		},
		{
			name:    "garbage time degrades to zero",
			payload: `{"type":"heartbeat","time":"soon","hostname":"door1"}`,
			check: func(t *testing.T, msg deviceMessage) {
				if int64(msg.Time) != 0 {
					t.Errorf("Time = %d, want 0", int64(msg.Time))
				}
			},
		},
		{
			name:    "missing fields degrade to defaults",
			payload: `{"type":"access","hostname":"door1"}`,
			check: func(t *testing.T, msg deviceMessage) {
				if msg.Username != "" || string(msg.UID) != "" || string(msg.IsKnown) != "" {
					t.Errorf("unexpected defaults: %+v", msg)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := parseDeviceMessage([]byte(tt.payload))
			if err != nil {
				t.Fatalf("parseDeviceMessage() error = %v", err)
			}
			tt.check(t, msg)
		})
	}
}

func TestParseDeviceMessage_MalformedJSON(t *testing.T) {
	if _, err := parseDeviceMessage([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	received := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		epoch int64
		want  time.Time
	}{
		{"valid epoch", 1756400000, time.Unix(1756400000, 0).UTC()},
		{"zero uses receive time", 0, received},
		{"negative uses receive time", -5, received},
		{"pre-2000 clock uses receive time", 86400, received},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeTimestamp(tt.epoch, received); !got.Equal(tt.want) {
				t.Errorf("normalizeTimestamp(%d) = %v, want %v", tt.epoch, got, tt.want)
			}
		})
	}
}

func TestAccessGranted(t *testing.T) {
	tests := []struct {
		isKnown string
		access  string
		want    bool
	}{
		{"true", "Always", true},
		{"true", "Admin", true},
		{"true", "Denied", false},
		{"true", "Disabled", false},
		{"true", "Expired", false},
		{"true", "", false},
		{"false", "Always", false},
		{"", "Always", false},
	}

	for _, tt := range tests {
		got := accessGranted(flexString(tt.isKnown), flexString(tt.access))
		if got != tt.want {
			t.Errorf("accessGranted(%q, %q) = %v, want %v", tt.isKnown, tt.access, got, tt.want)
		}
	}
}
