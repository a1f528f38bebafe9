package portguard

import "errors"

// Error kinds surfaced to callers. Internal kinds (TransientVetFailure,
// DiagnosticMismatch) never escape the engine.
var (
	// ErrInvalidArgument is returned when a port is out of [0,65535], lies in the
	// restricted set, or a count argument is invalid.
	ErrInvalidArgument = errors.New("portguard: invalid argument")

	// ErrExhausted is returned when a full two-direction bit scan finds no
	// reservable port.
	ErrExhausted = errors.New("portguard: no reservable port available")

	// ErrPermanentFailure is returned when the cross-process lock file cannot be
	// opened or used at all.
	ErrPermanentFailure = errors.New("portguard: lock file unusable")

	// errTransientVet drives the internal scan; it must never be returned from a
	// public Engine method.
	errTransientVet = errors.New("portguard: candidate failed vetting")
)
