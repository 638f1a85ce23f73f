package transport

import "errors"

var (
	// ErrChannelHeld indicates another worker already holds the
	// Bluetooth channel for the requested direction. The caller must
	// not start a worker.
	ErrChannelHeld = errors.New("bluetooth channel already held")

	// ErrReleased indicates the connection reached its terminal
	// released condition; reuse requires a fresh Transport.
	ErrReleased = errors.New("connection has been released")

	// ErrNoEndpoint indicates a required endpoint descriptor was not
	// attached before worker start.
	ErrNoEndpoint = errors.New("endpoint descriptor not attached")

	// ErrBadMTU indicates a non-positive negotiated MTU.
	ErrBadMTU = errors.New("invalid negotiated MTU")
)
