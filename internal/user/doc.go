// Package user manages card holders and their per-door permissions.
//
// A user's AccessClass is the default pushed to every device during
// enrolment; a Permission row overrides it on a single device. The
// class values (0 disabled, 1 always, 99 admin) are the esp-rfid wire
// format and are enforced by the devices themselves, as is the
// validity window.
//
// Card UIDs are unique across users: enrolling a card that belongs to
// someone else fails with ErrUIDConflict rather than silently moving
// the card.
package user
