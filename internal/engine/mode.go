package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidMode is returned for a mode other than incremental or full.
var ErrInvalidMode = errors.New("invalid run mode")

// Mode selects how much of the catalog a run reprocesses.
type Mode string

const (
	// ModeIncremental processes the given modules and the records they touch.
	ModeIncremental Mode = "incremental"
	// ModeFull processes every catalog record.
	ModeFull Mode = "full"
)

// ParseMode validates s.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeIncremental, ModeFull:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}
