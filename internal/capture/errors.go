package capture

import "errors"

var (
	// ErrInvalidRequest is returned synchronously for malformed requests:
	// missing callbacks, stream types that do not fit the track, or a
	// request that asks for nothing.
	ErrInvalidRequest = errors.New("capture: invalid request")

	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("capture: missing dependency")

	// ErrStopped is returned by blocking queries once the coordinator has shut down.
	ErrStopped = errors.New("capture: coordinator stopped")

	// ErrNotFound is returned by queries that match no live request or device.
	ErrNotFound = errors.New("capture: not found")
)
