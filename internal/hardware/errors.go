package hardware

import "errors"

var (
	// ErrInvalidDevice is returned for a catalog entry that cannot be used.
	ErrInvalidDevice = errors.New("hardware: invalid catalog device")

	// ErrUnknownDevice is returned when a raw id is not in the catalog.
	ErrUnknownDevice = errors.New("hardware: unknown device")
)
