// Package measure aggregates IV measurers and analog multiplexers behind
// one measurement contract.
//
// Devices are described by small capability interfaces. Measurer and
// Multiplexer are mandatory; ParameterSetter, Calibrator and Freezer are
// optional and discovered with type assertions. A device that does not
// recognise a custom parameter returns ErrUnsupportedParameter, which the
// System treats as a normal outcome.
//
// System fans settings and capture calls out to every measurer and fails
// the whole call when any device fails or when the devices disagree. The
// active multiplexer channel is state owned by System and changed only by
// SetActiveChannel; channel selection and capture never overlap.
//
// VirtualMeasurer and VirtualMultiplexer are in-memory devices used for
// development and tests.
package measure
