package schema

import (
	"errors"
	"fmt"
)

// Violation codes.
const (
	CodeConstraint  = "E201" // value does not satisfy a constraint
	CodeNotAllowed  = "E202" // field not allowed by a closed definition
	CodeRequired    = "E203" // required field missing
	CodeMalformed   = "E204" // document is not valid JSON
	CodeSchemaError = "E205" // schema itself does not compile
)

// Violation is one failed constraint.
type Violation struct {
	Path       string `json:"path"`
	Constraint string `json:"constraint"`
	Code       string `json:"code"`
	Line       int    `json:"line,omitempty"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Constraint
	}
	return fmt.Sprintf("%s: %s", v.Path, v.Constraint)
}

// ViolationError is returned when a document fails its schema.
type ViolationError struct {
	Violations []Violation
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	switch len(e.Violations) {
	case 0:
		return "schema violation"
	case 1:
		return "schema violation at " + e.Violations[0].String()
	default:
		return fmt.Sprintf("schema violation at %s (and %d more)", e.Violations[0], len(e.Violations)-1)
	}
}

// IsViolation reports whether err is a ViolationError.
func IsViolation(err error) bool {
	var ve *ViolationError
	return errors.As(err, &ve)
}
