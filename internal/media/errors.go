package media

import "errors"

var (
	// ErrUnknownStreamType is returned when a stream type name or value is not recognised.
	ErrUnknownStreamType = errors.New("media: unknown stream type")

	// ErrUnknownResult is returned when a result name or value is not recognised.
	ErrUnknownResult = errors.New("media: unknown result code")

	// ErrInvalidOrigin is returned when an origin cannot be serialized.
	ErrInvalidOrigin = errors.New("media: invalid security origin")

	// ErrInvalidSurfaceID is returned when a desktop surface id cannot be parsed.
	ErrInvalidSurfaceID = errors.New("media: invalid surface id")
)
