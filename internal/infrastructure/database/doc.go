// Package database provides SQLite connection management and schema
// migrations for the doorhub persistence layer.
//
// The database runs in WAL mode with a single writer connection, which
// is sufficient for the fleet sizes doorhub targets and sidesteps
// SQLITE_BUSY contention entirely. Migrations are embedded into the
// binary via the migrations package and applied at startup.
package database
