package mqtt

import "fmt"

// DefaultTopicPrefix is the conventional root of the esp-rfid topic
// hierarchy. Fleets can override it via fleet.topic_prefix.
const DefaultTopicPrefix = "esprfid"

// Topics builds doorhub MQTT topic strings under a configurable prefix.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Devices publish to {prefix}/{hostname}/send (heartbeats, boot
// notifications, access events) and to {prefix}/{hostname}/tag (raw
// card scans). The manager publishes commands to {prefix}/{hostname}/cmd
// and its own status to {prefix}/manager/status.
//
//	topics := mqtt.NewTopics("esprfid")
//	cmdTopic := topics.DeviceCommand("front-door")
//	// Returns: "esprfid/front-door/cmd"
type Topics struct {
	prefix string
}

// NewTopics returns a Topics builder rooted at the given prefix.
// An empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the configured topic prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// DeviceSend returns the topic a device publishes its messages on.
//
// Example: esprfid/front-door/send
func (t Topics) DeviceSend(hostname string) string {
	return fmt.Sprintf("%s/%s/send", t.prefix, hostname)
}

// DeviceTag returns the topic a device publishes raw card scans on.
//
// Example: esprfid/front-door/tag
func (t Topics) DeviceTag(hostname string) string {
	return fmt.Sprintf("%s/%s/tag", t.prefix, hostname)
}

// DeviceCommand returns the topic the manager publishes commands on.
//
// Example: esprfid/front-door/cmd
func (t Topics) DeviceCommand(hostname string) string {
	return fmt.Sprintf("%s/%s/cmd", t.prefix, hostname)
}

// LegacySend returns the shared send topic older firmware publishes on.
// Messages here carry the hostname in the payload instead of the topic.
//
// Example: esprfid/send
func (t Topics) LegacySend() string {
	return fmt.Sprintf("%s/send", t.prefix)
}

// ManagerStatus returns the manager's own status topic, used for the
// retained online/offline announcements and the LWT.
//
// Example: esprfid/manager/status
func (t Topics) ManagerStatus() string {
	return fmt.Sprintf("%s/manager/status", t.prefix)
}

// AllDeviceSends returns a pattern matching every per-device send topic.
//
// Pattern: esprfid/+/send
func (t Topics) AllDeviceSends() string {
	return fmt.Sprintf("%s/+/send", t.prefix)
}

// AllDeviceTags returns a pattern matching every per-device tag topic.
//
// Pattern: esprfid/+/tag
func (t Topics) AllDeviceTags() string {
	return fmt.Sprintf("%s/+/tag", t.prefix)
}
