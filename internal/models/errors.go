package models

import "errors"

var (
	// ErrInvalidInput is returned before any state change for empty or malformed input
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransportUnreachable means the primary media failed before the first frame
	ErrTransportUnreachable = errors.New("stream is unreachable")
	// ErrFallbackUnreachable means the fallback transport failed as well
	ErrFallbackUnreachable = errors.New("fallback mode failed, stream is unreachable")
	// ErrBlankSignal is a per-tick condition: the frame carries no usable image
	ErrBlankSignal = errors.New("no valid video feed detected")
	// ErrDetectorFailure wraps a failed detector call; the tick yields no result
	ErrDetectorFailure = errors.New("detector failure")
	// ErrDetectorNotReady is returned while the detector is still warming up
	ErrDetectorNotReady = errors.New("detector is not ready")
	// ErrAlreadyConnected is returned when connecting from a connecting/connected state
	ErrAlreadyConnected = errors.New("stream session already active")
	// ErrSessionClosed is returned when a session was disconnected while an operation was pending
	ErrSessionClosed = errors.New("stream session closed")
	// ErrNoPixelAccess is returned by media handles that only expose a rendered view
	ErrNoPixelAccess = errors.New("media handle has no pixel access")
	// ErrNotFound is returned for unknown demo streams or upload jobs
	ErrNotFound = errors.New("not found")
)
