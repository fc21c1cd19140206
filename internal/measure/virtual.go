package measure

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// Virtual measurer component models.
const (
	ModelResistor  = "resistor"
	ModelCapacitor = "capacitor"
)

// Custom parameter keys understood by VirtualMeasurer.
const (
	ParamModel       = "model"
	ParamNominal     = "nominal"
	ParamNoiseFactor = "noise_factor"
	ParamPhase       = "phase"
)

// DefaultVirtualSettings are applied when a virtual measurer is created.
var DefaultVirtualSettings = board.MeasureSettings{
	SamplingRate:         10000,
	InternalResistance:   4750,
	MaxVoltage:           5,
	ProbeSignalFrequency: 100,
}

// OperationHook is called before every device operation of a virtual
// measurer. A non-nil error fails the operation.
type OperationHook func(op string) error

// VirtualMeasurer simulates a measurer connected to a resistor or a
// capacitor. Results are noisy, resampled to NormalPoints and smoothed.
type VirtualMeasurer struct {
	mu sync.Mutex

	id       string
	trigger  TriggerMode
	clock    Clock
	rng      *rand.Rand
	settings board.MeasureSettings

	model       string
	nominal     float64
	noiseFactor float64
	noiseAmp    NoiseAmplitudeFunc
	phase       float64

	// OnOperation, when set, runs before each operation.
	OnOperation OperationHook
	reconnect   func()

	raw     *board.IVCurve
	cached  *board.IVCurve
	readyAt time.Time
	frozen  bool
}

// VirtualOption configures a VirtualMeasurer.
type VirtualOption func(*VirtualMeasurer)

// WithClock sets the clock used for readiness.
func WithClock(c Clock) VirtualOption {
	return func(v *VirtualMeasurer) { v.clock = c }
}

// WithSeed makes the noise reproducible.
func WithSeed(seed uint64) VirtualOption {
	return func(v *VirtualMeasurer) { v.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithModel sets the simulated component and its nominal value (ohms or farads).
func WithModel(model string, nominal float64) VirtualOption {
	return func(v *VirtualMeasurer) {
		v.model = model
		v.nominal = nominal
	}
}

// WithNoiseFactor sets the relative noise amplitude.
func WithNoiseFactor(f float64) VirtualOption {
	return func(v *VirtualMeasurer) { v.noiseFactor = f }
}

// NoiseAmplitudeFunc returns the absolute voltage and current noise
// amplitudes for a configuration.
type NoiseAmplitudeFunc func(s board.MeasureSettings) (volts, amps float64)

// WithNoiseAmplitude replaces the relative noise model with absolute
// amplitudes looked up per configuration.
func WithNoiseAmplitude(fn NoiseAmplitudeFunc) VirtualOption {
	return func(v *VirtualMeasurer) { v.noiseAmp = fn }
}

// WithTriggerMode sets the trigger mode.
func WithTriggerMode(m TriggerMode) VirtualOption {
	return func(v *VirtualMeasurer) { v.trigger = m }
}

// WithFailChance makes every operation fail with probability p. Once an
// operation failed, all following ones fail until Reconnect.
func WithFailChance(p float64) VirtualOption {
	return func(v *VirtualMeasurer) {
		failed := false
		v.OnOperation = func(op string) error {
			if v.rng.Float64() < p {
				failed = true
			}
			if failed {
				return fmt.Errorf("virtual connection lost during %s", op)
			}
			return nil
		}
		v.reconnect = func() { failed = false }
	}
}

// NewVirtualMeasurer creates a virtual measurer. An empty id gets a
// generated one.
func NewVirtualMeasurer(id string, opts ...VirtualOption) *VirtualMeasurer {
	if id == "" {
		id = "virtual-" + uuid.Must(uuid.NewV7()).String()
	}
	v := &VirtualMeasurer{
		id:          id,
		clock:       SystemClock,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		settings:    DefaultVirtualSettings,
		model:       ModelResistor,
		nominal:     100,
		noiseFactor: 0.05,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ID implements Measurer.
func (v *VirtualMeasurer) ID() string { return v.id }

// TriggerMode implements Measurer.
func (v *VirtualMeasurer) TriggerMode() TriggerMode { return v.trigger }

// Info implements Measurer.
func (v *VirtualMeasurer) Info() DeviceInfo {
	return DeviceInfo{
		ID:           v.id,
		Kind:         KindMeasurer,
		Manufacturer: "EPC MSU",
		Product:      "Virtual IV Measurer",
		Controller:   "EyePoint virtual device",
	}
}

func (v *VirtualMeasurer) hook(op string) error {
	if v.OnOperation == nil {
		return nil
	}
	return v.OnOperation(op)
}

// SetSettings implements Measurer.
func (v *VirtualMeasurer) SetSettings(_ context.Context, s board.MeasureSettings) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.hook("set_settings"); err != nil {
		return err
	}
	if s.ProbeSignalFrequency <= 0 || s.SamplingRate < 2*s.ProbeSignalFrequency {
		return fmt.Errorf("sampling rate %g must be at least twice the probe frequency %g",
			s.SamplingRate, s.ProbeSignalFrequency)
	}
	v.settings = s
	return nil
}

// Settings implements Measurer.
func (v *VirtualMeasurer) Settings(context.Context) (board.MeasureSettings, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.hook("get_settings"); err != nil {
		return board.MeasureSettings{}, err
	}
	return v.settings, nil
}

// Trigger implements Measurer. A frozen measurer ignores triggers.
func (v *VirtualMeasurer) Trigger(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.hook("trigger"); err != nil {
		return err
	}
	if v.frozen {
		return nil
	}
	var (
		c   board.IVCurve
		err error
	)
	switch v.model {
	case ModelResistor:
		c, err = v.resistorCurve()
	case ModelCapacitor:
		c, err = v.capacitorCurve()
	default:
		err = fmt.Errorf("unknown virtual model %q", v.model)
	}
	if err != nil {
		return err
	}
	v.raw = &c
	period := time.Duration(2 / v.settings.ProbeSignalFrequency * float64(time.Second))
	v.readyAt = v.clock.Now().Add(period)
	return nil
}

// Ready implements Measurer. A frozen measurer is never ready.
func (v *VirtualMeasurer) Ready(context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.hook("ready"); err != nil {
		return false, err
	}
	return v.readyLocked(), nil
}

func (v *VirtualMeasurer) readyLocked() bool {
	return !v.frozen && v.raw != nil && !v.clock.Now().Before(v.readyAt)
}

// LastCurve implements Measurer. While frozen it returns the cached curve.
func (v *VirtualMeasurer) LastCurve(context.Context) (board.IVCurve, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.hook("last_curve"); err != nil {
		return board.IVCurve{}, err
	}
	if v.frozen || !v.readyLocked() {
		if v.cached != nil && v.frozen {
			return v.cached.Clone(), nil
		}
		return board.IVCurve{}, ErrNotReady
	}
	c, err := Interpolate(*v.raw, NormalPoints)
	if err != nil {
		return board.IVCurve{}, err
	}
	if c, err = Smooth(c, SmoothingKernelSize); err != nil {
		return board.IVCurve{}, err
	}
	v.cached = &c
	return c.Clone(), nil
}

// Calibrate implements Calibrator. Virtual devices need no calibration.
func (v *VirtualMeasurer) Calibrate(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hook("calibrate")
}

// Freeze implements Freezer.
func (v *VirtualMeasurer) Freeze() {
	v.mu.Lock()
	v.frozen = true
	v.mu.Unlock()
}

// Unfreeze implements Freezer.
func (v *VirtualMeasurer) Unfreeze() {
	v.mu.Lock()
	v.frozen = false
	v.mu.Unlock()
}

// Frozen implements Freezer.
func (v *VirtualMeasurer) Frozen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frozen
}

// Reconnect clears an injected failure state.
func (v *VirtualMeasurer) Reconnect() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.reconnect != nil {
		v.reconnect()
	}
}

// SetParameter implements ParameterSetter.
func (v *VirtualMeasurer) SetParameter(key string, value any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch key {
	case ParamModel:
		s, ok := value.(string)
		if !ok || (s != ModelResistor && s != ModelCapacitor) {
			return fmt.Errorf("%s must be %q or %q, got %v", key, ModelResistor, ModelCapacitor, value)
		}
		v.model = s
	case ParamNominal, ParamNoiseFactor, ParamPhase:
		f, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("%s must be a number, got %T", key, value)
		}
		switch key {
		case ParamNominal:
			if f <= 0 {
				return fmt.Errorf("%s must be positive, got %g", key, f)
			}
			v.nominal = f
		case ParamNoiseFactor:
			v.noiseFactor = f
		case ParamPhase:
			v.phase = f
		}
	default:
		return ErrUnsupportedParameter
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	switch x := value.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// timeGrid returns one probe period sampled at the sampling rate.
func (v *VirtualMeasurer) timeGrid() ([]float64, error) {
	f := v.settings.ProbeSignalFrequency
	n := int(math.Floor(v.settings.SamplingRate / f))
	if n < 2 {
		return nil, fmt.Errorf("sampling rate %g gives %d points per period", v.settings.SamplingRate, n)
	}
	t := make([]float64, n)
	floats.Span(t, 0, 1/f)
	return t, nil
}

func (v *VirtualMeasurer) resistorCurve() (board.IVCurve, error) {
	t, err := v.timeGrid()
	if err != nil {
		return board.IVCurve{}, err
	}
	f := v.settings.ProbeSignalFrequency
	r := v.settings.InternalResistance
	volts := make([]float64, len(t))
	amps := make([]float64, len(t))
	for k, tk := range t {
		vin := v.settings.MaxVoltage * math.Sin(v.phase+2*math.Pi*f*tk)
		volts[k] = vin * v.nominal / (v.nominal + r)
		amps[k] = volts[k] / v.nominal
	}
	return v.withNoise(volts, amps), nil
}

func (v *VirtualMeasurer) capacitorCurve() (board.IVCurve, error) {
	t, err := v.timeGrid()
	if err != nil {
		return board.IVCurve{}, err
	}
	f := v.settings.ProbeSignalFrequency
	c := v.nominal
	r := v.settings.InternalResistance
	w := 2 * math.Pi * f
	z := math.Sqrt(math.Pow(w*c, -2) + r*r)
	q0 := v.settings.MaxVoltage / (w * z)
	phi := math.Atan(w * c * r)
	volts := make([]float64, len(t))
	amps := make([]float64, len(t))
	for k, tk := range t {
		arg := v.phase + w*tk - phi
		volts[k] = q0 / c * math.Cos(arg)
		amps[k] = w * q0 * math.Sin(arg)
	}
	return v.withNoise(volts, amps), nil
}

func (v *VirtualMeasurer) withNoise(volts, amps []float64) board.IVCurve {
	vAmp := v.settings.MaxVoltage * v.noiseFactor
	iAmp := v.settings.MaxVoltage / (v.settings.InternalResistance + 100) * v.noiseFactor
	if v.noiseAmp != nil {
		vAmp, iAmp = v.noiseAmp(v.settings)
	}
	for k := range volts {
		volts[k] += vAmp * (2*v.rng.Float64() - 1)
	}
	for k := range amps {
		amps[k] += iAmp * (2*v.rng.Float64() - 1)
	}
	return board.IVCurve{Voltages: volts, Currents: amps, Settings: v.settings}
}
