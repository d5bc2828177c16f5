package salt

import "errors"

var (
	// ErrNotFound is returned when an origin has no salts yet.
	ErrNotFound = errors.New("salt: not found")

	// ErrOpaqueOrigin is returned for origins that cannot hold salts.
	ErrOpaqueOrigin = errors.New("salt: opaque origin")
)
