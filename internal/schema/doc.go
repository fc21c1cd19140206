// Package schema validates board documents against CUE definitions of the
// universal and legacy JSON dialects.
//
// The definitions are embedded (universal.cue, legacy.cue). Validation
// reports every violation with its document path in the notation used by
// the rest of EPCore, e.g. "elements[0].pins[1].iv_curves[0].currents".
// An external JSON Schema can be imported with CompileJSONSchema and used
// in place of the embedded definitions.
package schema
