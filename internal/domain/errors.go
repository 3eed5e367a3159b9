package domain

import "errors"

// Domain errors represent error conditions in the pixdaq domain.
// These errors are wrapped by callers and can be checked with errors.Is.
var (
	// ErrInvalidConfig is returned when run configuration validation fails.
	ErrInvalidConfig = errors.New("pixdaq: invalid configuration")

	// ErrDevice wraps any failure reported by the device session.
	ErrDevice = errors.New("pixdaq: device error")

	// ErrFrameLog wraps failures writing or reading the raw frame log.
	ErrFrameLog = errors.New("pixdaq: frame log error")

	// ErrPhaseTransition is returned when a run phase change is not allowed.
	ErrPhaseTransition = errors.New("pixdaq: invalid phase transition")

	// ErrNotComplete is returned when a run's frame log is not closed yet.
	ErrNotComplete = errors.New("pixdaq: run not complete")
)
