package board

import (
	"errors"
	"fmt"
)

// StructuralError reports a required field that is missing or malformed.
// Path uses the document notation, e.g. "elements[0].pins[2].x".
type StructuralError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("structural error: %s", e.Message)
	}
	return fmt.Sprintf("structural error at %s: %s", e.Path, e.Message)
}

// LengthMismatchError reports an IV curve whose voltage and current
// sequences disagree in length or are too short.
type LengthMismatchError struct {
	Path     string
	Voltages int
	Currents int
}

// Error implements the error interface.
func (e *LengthMismatchError) Error() string {
	if e.Voltages != e.Currents {
		return fmt.Sprintf("length mismatch at %s: %d voltages, %d currents", e.pathOrCurve(), e.Voltages, e.Currents)
	}
	return fmt.Sprintf("length mismatch at %s: %d samples, need at least %d", e.pathOrCurve(), e.Voltages, MinSamples)
}

func (e *LengthMismatchError) pathOrCurve() string {
	if e.Path == "" {
		return "curve"
	}
	return e.Path
}

// IsStructuralError reports whether err (or anything it wraps) is a StructuralError.
func IsStructuralError(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsLengthMismatch reports whether err (or anything it wraps) is a LengthMismatchError.
func IsLengthMismatch(err error) bool {
	var le *LengthMismatchError
	return errors.As(err, &le)
}

func structural(path, format string, args ...any) *StructuralError {
	return &StructuralError{Path: path, Message: fmt.Sprintf(format, args...)}
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	if child == "" {
		return parent
	}
	if child[0] == '[' {
		return parent + child
	}
	return parent + "." + child
}
