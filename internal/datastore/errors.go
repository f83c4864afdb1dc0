package datastore

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for datastore operations.
var (
	// ErrUnreachable is returned when the datastore could not be reached
	// within the retry budget.
	ErrUnreachable = errors.New("datastore unreachable")

	// ErrMalformedResponse is returned when a response body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed datastore response")
)

// RejectionError is returned when the datastore refuses a write.
type RejectionError struct {
	Status int
	Body   string
	Keys   []string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("datastore rejected %s (status %d): %s", strings.Join(e.Keys, ", "), e.Status, e.Body)
}

// IsRejection reports whether err is a *RejectionError.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}
