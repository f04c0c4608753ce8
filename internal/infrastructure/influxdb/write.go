package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteAccessEvent records a door access attempt.
//
// The write is non-blocking; points are batched and sent asynchronously.
//
// Parameters:
//   - hostname: Device that reported the event
//   - doorName: Door the event happened at (may equal hostname)
//   - username: Name reported by the device ("unknown" for unknown cards)
//   - granted: Whether the door opened
//   - eventTime: When the device says the event happened
func (c *Client) WriteAccessEvent(hostname, doorName, username string, granted bool, eventTime time.Time) {
	if !c.IsConnected() {
		return
	}

	grantedVal := 0
	grantedTag := "false"
	if granted {
		grantedVal = 1
		grantedTag = "true"
	}

	point := write.NewPoint(
		"access_events",
		map[string]string{
			"hostname":  hostname,
			"door_name": doorName,
			"granted":   grantedTag,
		},
		map[string]interface{}{
			"username": username,
			"granted":  grantedVal,
		},
		eventTime,
	)

	c.writeAPI.WritePoint(point)
}

// WriteLivenessTransition records a device going online or offline.
//
// Parameters:
//   - hostname: Device identifier
//   - online: true for a transition to online, false for offline
func (c *Client) WriteLivenessTransition(hostname string, online bool) {
	if !c.IsConnected() {
		return
	}

	onlineVal := 0
	if online {
		onlineVal = 1
	}

	point := write.NewPoint(
		"device_liveness",
		map[string]string{
			"hostname": hostname,
		},
		map[string]interface{}{
			"online": onlineVal,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteFleetGauge records fleet-wide device counts.
//
// Written by the liveness monitor after each sweep so dashboards can
// graph fleet health over time.
func (c *Client) WriteFleetGauge(online, offline, unknown int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fleet",
		nil,
		map[string]interface{}{
			"online":  online,
			"offline": offline,
			"unknown": unknown,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceUptime records a device's self-reported uptime from a heartbeat.
func (c *Client) WriteDeviceUptime(hostname string, uptimeSeconds int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_uptime",
		map[string]string{
			"hostname": hostname,
		},
		map[string]interface{}{
			"uptime_seconds": uptimeSeconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
