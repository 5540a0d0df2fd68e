package ime

import "errors"

var (
	// ErrOutOfRange is returned by index-based lookups against the
	// candidate list.
	ErrOutOfRange = errors.New("candidate index out of range")

	// ErrInvalidTransition marks a host event that is not valid in the
	// session's current state. It is logged and absorbed, never returned
	// across the host boundary.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnavailableCapability means the client lacks an optional host
	// feature. The dependent behavior is skipped.
	ErrUnavailableCapability = errors.New("capability unavailable")
)
