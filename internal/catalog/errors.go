package catalog

import "errors"

// Sentinel errors for catalog values.
var (
	// ErrInvalidKey is returned when a string is not of the form name@revision.
	ErrInvalidKey = errors.New("invalid module key")
)
