package prompt

import "errors"

var (
	// ErrNotFound is returned when no pending prompt has the label.
	ErrNotFound = errors.New("prompt: no pending prompt")

	// ErrUnknownTab is returned when a tab capture id cannot be resolved.
	ErrUnknownTab = errors.New("prompt: unknown tab capture id")

	// ErrDeviceNotOffered is returned when a decision picks a device the
	// prompt did not list.
	ErrDeviceNotOffered = errors.New("prompt: device not offered")

	// ErrUnknownMode is returned by New for an unrecognised mode.
	ErrUnknownMode = errors.New("prompt: unknown mode")
)
