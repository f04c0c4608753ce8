// Package influxdb provides optional time-series telemetry for DoorHub.
//
// When enabled in config, the engine records access events, device
// liveness transitions, per-sweep fleet gauges, and device uptime
// samples. Writes are batched and non-blocking; a broker outage or
// slow InfluxDB never delays message processing.
//
// The package is entirely optional. When influxdb.enabled is false,
// Connect returns ErrDisabled and callers run without telemetry.
package influxdb
