package user

import "errors"

// Domain errors for the user package.
var (
	// ErrUserNotFound is returned when a user ID does not exist.
	ErrUserNotFound = errors.New("user: not found")

	// ErrUIDConflict is returned when enrolling a card UID that already
	// belongs to another user.
	ErrUIDConflict = errors.New("user: card uid already enrolled")

	// ErrInvalidUser is returned when user validation fails.
	ErrInvalidUser = errors.New("user: invalid")

	// ErrInvalidAccessClass is returned when an access class value is
	// not recognised.
	ErrInvalidAccessClass = errors.New("user: invalid access class")

	// ErrPermissionNotFound is returned when a per-device permission
	// row does not exist.
	ErrPermissionNotFound = errors.New("user: permission not found")
)
