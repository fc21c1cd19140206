package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/EPC-MSU/EPCore/internal/board"
	"github.com/EPC-MSU/EPCore/internal/measure"
	"github.com/EPC-MSU/EPCore/internal/plan"
	"github.com/EPC-MSU/EPCore/internal/schema"
)

// Error codes for command failures. Schema violations carry their own
// E20x codes from the schema package.
const (
	CodeGeneric        = "E001"
	CodeNotFound       = "E005"
	CodeWriteFailed    = "E007"
	CodeConfig         = "E008"
	CodeDevice         = "E009"
	CodeStructural     = "E210"
	CodeLengthMismatch = "E211"
)

// failure is a classified error ready to be reported.
type failure struct {
	code    string
	exit    int
	details any
}

// classify maps a domain error to its response code, exit code and details.
func classify(err error) failure {
	var (
		ve  *schema.ViolationError
		se  *board.StructuralError
		le  *board.LengthMismatchError
		si  *measure.SettingsInconsistencyError
		uo  *measure.UnknownOutputError
		dt  *measure.DeviceTimeoutError
		de  *measure.DeviceError
		oor *plan.OutOfRangeError
	)
	switch {
	case errors.As(err, &ve):
		code := schema.CodeConstraint
		if len(ve.Violations) > 0 {
			code = ve.Violations[0].Code
		}
		return failure{code: code, exit: ExitFailure, details: ve.Violations}
	case errors.As(err, &le):
		return failure{code: CodeLengthMismatch, exit: ExitFailure, details: map[string]any{
			"path":     le.Path,
			"voltages": le.Voltages,
			"currents": le.Currents,
		}}
	case errors.As(err, &se):
		return failure{code: CodeStructural, exit: ExitFailure, details: map[string]string{"path": se.Path}}
	case errors.As(err, &si):
		return failure{code: CodeDevice, exit: ExitFailure, details: si.Fields}
	case errors.As(err, &uo):
		return failure{code: CodeDevice, exit: ExitFailure, details: map[string]int{
			"module_number":  uo.Output.ModuleNumber,
			"channel_number": uo.Output.ChannelNumber,
		}}
	case errors.As(err, &dt):
		return failure{code: CodeDevice, exit: ExitFailure, details: map[string]string{"device": dt.Device}}
	case errors.As(err, &de):
		return failure{code: CodeDevice, exit: ExitFailure, details: map[string]string{"device": de.Device, "op": de.Op}}
	case errors.As(err, &oor), errors.Is(err, plan.ErrEmptyPlan):
		return failure{code: CodeStructural, exit: ExitFailure}
	case errors.Is(err, fs.ErrNotExist):
		return failure{code: CodeNotFound, exit: ExitCommandError}
	}
	return failure{code: CodeGeneric, exit: ExitFailure}
}

// report writes err through the formatter and returns the matching
// ExitError. message prefixes the error text.
func report(f *OutputFormatter, message string, err error) error {
	fl := classify(err)
	return reportAs(f, fl, message, err)
}

// reportAs is report with an explicit classification.
func reportAs(f *OutputFormatter, fl failure, message string, err error) error {
	text := message
	if err != nil {
		text = fmt.Sprintf("%s: %v", message, err)
	}
	if outErr := f.Error(fl.code, text, fl.details); outErr != nil {
		return outErr
	}
	var ve *schema.ViolationError
	if f.Format != "json" && errors.As(err, &ve) {
		for _, v := range ve.Violations {
			fmt.Fprintf(f.Writer, "  %s [%s]\n", v, v.Code)
		}
	}
	return WrapExitError(fl.exit, message, err)
}

// commandError reports a usage or environment problem with exit code 2.
func commandError(f *OutputFormatter, code, message string, err error) error {
	return reportAs(f, failure{code: code, exit: ExitCommandError}, message, err)
}
