package measure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/EPC-MSU/EPCore/internal/board"
)

var (
	// ErrUnsupportedParameter is returned by a ParameterSetter that does
	// not know the key.
	ErrUnsupportedParameter = errors.New("measure: unsupported parameter")

	// ErrNotReady is returned by LastCurve before a measurement finished.
	ErrNotReady = errors.New("measure: measurement is not ready")

	// ErrNoMeasurers is returned by operations that need at least one measurer.
	ErrNoMeasurers = errors.New("measure: no measurers configured")

	// ErrUnknownDevice is returned when a device ID names no configured device.
	ErrUnknownDevice = errors.New("measure: unknown device")
)

// SettingsInconsistencyError reports measurers that do not share one
// configuration. Fields maps each differing setting name to the value
// reported by every device, keyed by device ID. The key "requested"
// holds the value that was asked for when the error comes from ApplySettings.
type SettingsInconsistencyError struct {
	Fields map[string]map[string]float64
}

// Error implements the error interface.
func (e *SettingsInconsistencyError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		values := e.Fields[name]
		ids := make([]string, 0, len(values))
		for id := range values {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		kv := make([]string, 0, len(ids))
		for _, id := range ids {
			kv = append(kv, fmt.Sprintf("%s=%g", id, values[id]))
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, strings.Join(kv, ", ")))
	}
	return "settings inconsistency: " + strings.Join(parts, "; ")
}

// UnknownOutputError reports a multiplexer output whose module no
// multiplexer owns.
type UnknownOutputError struct {
	Output board.MultiplexerOutput
}

// Error implements the error interface.
func (e *UnknownOutputError) Error() string {
	return fmt.Sprintf("unknown output: no multiplexer owns module %d (%s)", e.Output.ModuleNumber, e.Output)
}

// DeviceTimeoutError reports a device that did not finish before the
// context was cancelled or its transport timed out.
type DeviceTimeoutError struct {
	Device string
	Err    error
}

// Error implements the error interface.
func (e *DeviceTimeoutError) Error() string {
	return fmt.Sprintf("device %s timed out: %v", e.Device, e.Err)
}

func (e *DeviceTimeoutError) Unwrap() error {
	return e.Err
}

// DeviceError reports a failed operation on one device.
type DeviceError struct {
	Device string
	Op     string
	Err    error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.Device, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsSettingsInconsistency reports whether err is a SettingsInconsistencyError.
func IsSettingsInconsistency(err error) bool {
	var se *SettingsInconsistencyError
	return errors.As(err, &se)
}

// IsUnknownOutput reports whether err is an UnknownOutputError.
func IsUnknownOutput(err error) bool {
	var ue *UnknownOutputError
	return errors.As(err, &ue)
}

// IsDeviceTimeout reports whether err is a DeviceTimeoutError.
func IsDeviceTimeout(err error) bool {
	var te *DeviceTimeoutError
	return errors.As(err, &te)
}

func isUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedParameter)
}

// deviceErr classifies err from device id. Cancellation and deadline
// errors become DeviceTimeoutError.
func deviceErr(id, op string, err error) error {
	if err == nil {
		return nil
	}
	var te *DeviceTimeoutError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return &DeviceTimeoutError{Device: id, Err: err}
	}
	return &DeviceError{Device: id, Op: op, Err: err}
}
