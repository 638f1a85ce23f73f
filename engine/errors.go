package engine

import "errors"

var (
	// ErrStopTimeout indicates a worker failed to exit within the
	// bounded join timeout even after the forced fallback.
	ErrStopTimeout = errors.New("worker did not stop within timeout")

	// ErrShortWrite indicates a wire frame was not written
	// atomically. Treated as link loss.
	ErrShortWrite = errors.New("short write of wire frame")

	// ErrUnsupportedProfile indicates a profile the engine cannot
	// run workers for.
	ErrUnsupportedProfile = errors.New("unsupported profile")
)
