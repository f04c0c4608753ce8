package engine

import "errors"

var (
	// ErrDecodeFailed indicates a message payload could not be parsed.
	// Decode failures are contained at the router boundary: the message
	// is logged and dropped, never propagated to the transport.
	ErrDecodeFailed = errors.New("engine: cannot decode message")

	// ErrUnknownHostname indicates a message carried no resolvable
	// device hostname, in the topic or the payload.
	ErrUnknownHostname = errors.New("engine: message has no device hostname")

	// ErrNoTargets indicates a multi-device command was invoked with an
	// empty target set.
	ErrNoTargets = errors.New("engine: no target devices")

	// ErrAlreadyStarted indicates Start was called on a running engine.
	ErrAlreadyStarted = errors.New("engine: already started")

	// ErrNotStarted indicates Stop was called on an engine that never
	// started.
	ErrNotStarted = errors.New("engine: not started")
)
