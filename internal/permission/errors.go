package permission

import "errors"

var (
	// ErrUnknownKind is returned for a permission kind outside the capture set.
	ErrUnknownKind = errors.New("permission: unknown kind")

	// ErrUnknownStatus is returned for a status name that cannot be parsed.
	ErrUnknownStatus = errors.New("permission: unknown status")

	// ErrOpaqueOrigin is returned when a decision is stored for an opaque origin.
	ErrOpaqueOrigin = errors.New("permission: opaque origin")
)
