package measure

import (
	"context"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// TriggerMode selects who starts a measurement.
type TriggerMode int

const (
	// TriggerAuto devices are triggered by CaptureAll.
	TriggerAuto TriggerMode = iota
	// TriggerManual devices are started only by TriggerManual.
	TriggerManual
)

func (m TriggerMode) String() string {
	if m == TriggerManual {
		return "manual"
	}
	return "auto"
}

// DeviceKind distinguishes measurers from multiplexers in listings.
type DeviceKind string

const (
	KindMeasurer    DeviceKind = "measurer"
	KindMultiplexer DeviceKind = "multiplexer"
)

// DeviceInfo is the identity a device reports about itself.
type DeviceInfo struct {
	ID           string     `json:"id"`
	Kind         DeviceKind `json:"kind"`
	Manufacturer string     `json:"manufacturer"`
	Product      string     `json:"product"`
	Controller   string     `json:"controller,omitempty"`
	Hardware     [3]int     `json:"hardware_version"`
	Firmware     [3]int     `json:"firmware_version"`
	Serial       string     `json:"serial,omitempty"`
}

// Measurer applies a probe signal and captures IV curves. Trigger may run
// while another goroutine polls Ready.
type Measurer interface {
	ID() string
	Info() DeviceInfo
	TriggerMode() TriggerMode

	SetSettings(ctx context.Context, s board.MeasureSettings) error
	Settings(ctx context.Context) (board.MeasureSettings, error)

	// Trigger starts a measurement. Ready reports when it has finished and
	// LastCurve returns its result.
	Trigger(ctx context.Context) error
	Ready(ctx context.Context) (bool, error)
	LastCurve(ctx context.Context) (board.IVCurve, error)
}

// ModuleType describes one module of a multiplexer chain.
type ModuleType int

const (
	ModuleNone ModuleType = iota
	ModuleTypeA
	ModuleTypeAB
)

// Multiplexer routes one probe line to the measurer's input.
type Multiplexer interface {
	ID() string
	Info() DeviceInfo

	// Chain lists the module types in chain order. Module numbers are
	// 1-based positions in this list.
	Chain() []ModuleType

	Connect(ctx context.Context, out board.MultiplexerOutput) error
	Connected(ctx context.Context) (*board.MultiplexerOutput, error)
	DisconnectAll(ctx context.Context) error
}

// ParameterSetter accepts vendor-specific tunables.
type ParameterSetter interface {
	SetParameter(key string, value any) error
}

// Calibrator is implemented by devices that can calibrate themselves.
type Calibrator interface {
	Calibrate(ctx context.Context) error
}

// Freezer is implemented by measurers that can hold their last result.
// A frozen measurer keeps returning its cached curve.
type Freezer interface {
	Freeze()
	Unfreeze()
	Frozen() bool
}

// Owns reports whether mux has a module at position module.
func Owns(mux Multiplexer, module int) bool {
	chain := mux.Chain()
	if module < 1 || module > len(chain) {
		return false
	}
	return chain[module-1] != ModuleNone
}
