// Package auth provides operator authentication for DoorHub Core.
//
// The deployment model is a single operator account configured at
// startup, not a multi-user directory: the account's Argon2id password
// hash lives in configuration and logins mint short-lived HS256 JWTs.
// Websocket clients authenticate with single-use tickets traded for a
// valid JWT, since browsers cannot attach headers to an upgrade
// request.
package auth
