// Package event provides the in-process notification bus connecting
// the fleet engine to its consumers (the websocket relay, tests, and
// anything else that wants a live feed).
//
// The bus is deliberately lossy: subscribers get a buffered channel,
// and a subscriber that falls too far behind has events dropped rather
// than back-pressuring the publisher. Message handling and liveness
// sweeps must never stall on a slow websocket.
package event
