// Package device provides the Device Registry for DoorHub Core.
//
// The registry is the authoritative catalogue of every door controller
// the manager has ever heard from, keyed by MQTT hostname. Devices are
// discovered passively: any message on a device topic registers the
// hostname, and no explicit enrolment step exists.
//
// # Key Types
//
//   - Device: A door controller with derived liveness and heartbeat metadata
//   - Observation: A single sighting folded into the registry
//   - Registry: In-memory authoritative view with SQLite write-through
//   - Monitor: Timeout-based liveness sweeps
//
// # Liveness
//
// A device is online while messages keep arriving and offline once it
// has been silent for the configured multiple of its heartbeat
// interval. The monitor sweeps on its own period, so detection latency
// is bounded by timeout + period. Devices loaded from the database at
// startup are StatusUnknown until their first message or sweep.
//
// Transitions are edge-triggered: the registry fires its hook exactly
// once per online/offline flip, never on repeated heartbeats or
// repeated sweeps.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	monitor := device.NewMonitor(registry, cfg.Fleet.OfflineTimeout(), cfg.Fleet.GetMonitorPeriod())
//	monitor.Start(ctx)
//	defer monitor.Stop()
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected
// by a read-write mutex, and returned devices are deep copies.
package device
