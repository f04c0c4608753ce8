package user

import "time"

// User is a card holder managed by doorhub. A user may exist before a
// card is enrolled, so CardUID is nullable; once set it is unique
// across all users.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// CardUID is the RFID card identifier as reported by the readers,
	// an opaque uppercase hex string. Nil until a card is enrolled.
	CardUID *string `json:"card_uid,omitempty"`

	// AccessClass is the default class pushed to devices that have no
	// per-door permission row for this user.
	AccessClass AccessClass `json:"access_class"`

	// Validity window for time-limited access. Nil means unbounded on
	// that side. Devices enforce the window themselves; doorhub passes
	// it through on enrolment.
	ValidSince *time.Time `json:"valid_since,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCard reports whether a card is enrolled for this user.
func (u *User) HasCard() bool {
	return u.CardUID != nil && *u.CardUID != ""
}

// DeepCopy creates an independent copy of the User.
func (u *User) DeepCopy() *User {
	if u == nil {
		return nil
	}

	cpy := *u

	if u.CardUID != nil {
		s := *u.CardUID
		cpy.CardUID = &s
	}
	if u.ValidSince != nil {
		t := *u.ValidSince
		cpy.ValidSince = &t
	}
	if u.ValidUntil != nil {
		t := *u.ValidUntil
		cpy.ValidUntil = &t
	}

	return &cpy
}

// AccessClass mirrors the esp-rfid firmware's integer access types.
type AccessClass int

// AccessClass constants. The values are part of the device wire format
// and must not change.
const (
	// ClassDisabled denies access without removing the card record.
	ClassDisabled AccessClass = 0

	// ClassAlways grants access within the validity window.
	ClassAlways AccessClass = 1

	// ClassAdmin grants access and device admin functions.
	ClassAdmin AccessClass = 99
)

// Valid reports whether the class is one of the recognised values.
func (c AccessClass) Valid() bool {
	switch c {
	case ClassDisabled, ClassAlways, ClassAdmin:
		return true
	default:
		return false
	}
}

// Permission overrides a user's default access class on one device.
// Absence of a row means the user's AccessClass applies.
type Permission struct {
	UserID         string      `json:"user_id"`
	DeviceHostname string      `json:"device_hostname"`
	AccessClass    AccessClass `json:"access_class"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
