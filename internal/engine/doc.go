// Package engine is the device-state and command-synchronisation core.
//
// It folds the asynchronous message traffic of a fleet of door
// controllers into a consistent view and pushes state the other way:
//
//   - Router: classifies inbound messages by topic shape, decodes them
//     tolerantly, and dispatches to the device registry, the access
//     log, the detection session, and the event fan-out.
//   - DetectionSession: transient capture mode that surfaces the most
//     recent unenrolled card UID to an enrollment form.
//   - Dispatcher: builds per-device commands (enroll, revoke, open
//     door, list users) with per-target outcomes, so multi-device
//     calls report partial success instead of a single boolean.
//   - Engine: lifecycle glue tying the above to the transport and the
//     liveness monitor.
//
// Devices are unreliable peers: messages arrive out of order,
// duplicated, and delayed, with timestamps from unset clocks. The
// router normalises timestamps at ingestion and the registry applies
// last-observed-wins semantics, so decode tolerance lives here and
// nowhere downstream.
package engine
