package plan

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPlan is returned when the board has no pins.
	ErrEmptyPlan = errors.New("plan: board has no pins")

	// ErrBoundary is returned by Next and Previous at the ends of the
	// sequence. The cursor does not move.
	ErrBoundary = errors.New("plan: cursor is at the boundary")

	// ErrNoCurve is returned when the current pin has no captured curve.
	ErrNoCurve = errors.New("plan: no curve captured at the current pin")
)

// OutOfRangeError reports a pin index outside [0, Len).
type OutOfRangeError struct {
	Index int
	Len   int
}

// Error implements the error interface.
func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("plan: index %d out of range [0, %d)", e.Index, e.Len)
}

// IsOutOfRange reports whether err is an OutOfRangeError.
func IsOutOfRange(err error) bool {
	var oe *OutOfRangeError
	return errors.As(err, &oe)
}
