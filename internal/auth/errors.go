package auth

import "errors"

var (
	// ErrInvalidCredentials covers bad usernames and bad passwords
	// alike, so login failures never reveal which half was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid indicates a token failed signature or claim
	// validation, including expiry.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTicketInvalid indicates a websocket ticket was unknown,
	// already used, or expired.
	ErrTicketInvalid = errors.New("auth: invalid ticket")
)
