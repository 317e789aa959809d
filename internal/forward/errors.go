package forward

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrUnknownLevel reports use of a level index that is not live: a stale
	// index, a double release or use after exit. It is a caller bug.
	ErrUnknownLevel = errors.New("unknown forward AD level")

	// ErrUndefinedValue is returned when storing an undefined tensor.
	ErrUndefinedValue = errors.New("cannot store an undefined forward gradient")

	// ErrForwardADDisabled is returned when entering a dual level while forward AD is off.
	ErrForwardADDisabled = errors.New("forward AD is disabled")

	// ErrTangentMismatch is returned when a tangent's layout differs from its primal.
	ErrTangentMismatch = errors.New("tangent does not match primal")
)

// LevelError describes a failed operation against a level index.
type LevelError struct {
	Op    string // Operation that failed (e.g. "set", "release")
	Level uint64 // Level index involved
	Err   error  // Underlying error, usually ErrUnknownLevel
}

// Error implements the error interface.
func (e *LevelError) Error() string {
	return fmt.Sprintf("forward %s: level %d: %v", e.Op, e.Level, e.Err)
}

// Unwrap returns the underlying error.
func (e *LevelError) Unwrap() error {
	return e.Err
}

func unknownLevel(op string, idx uint64) error {
	return &LevelError{Op: op, Level: idx, Err: ErrUnknownLevel}
}
