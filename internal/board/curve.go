package board

// MinSamples is the minimum number of samples an IV curve must carry.
const MinSamples = 4

// MeasureSettings describes the probe signal used to capture an IV curve.
type MeasureSettings struct {
	SamplingRate         float64  `json:"sampling_rate"`
	InternalResistance   float64  `json:"internal_resistance"`
	MaxVoltage           float64  `json:"max_voltage"`
	ProbeSignalFrequency float64  `json:"probe_signal_frequency"`
	PrechargeDelay       *float64 `json:"precharge_delay,omitempty"`
}

// Equal reports whether both settings describe the same configuration.
func (s MeasureSettings) Equal(o MeasureSettings) bool {
	if s.SamplingRate != o.SamplingRate ||
		s.InternalResistance != o.InternalResistance ||
		s.MaxVoltage != o.MaxVoltage ||
		s.ProbeSignalFrequency != o.ProbeSignalFrequency {
		return false
	}
	switch {
	case s.PrechargeDelay == nil && o.PrechargeDelay == nil:
		return true
	case s.PrechargeDelay == nil || o.PrechargeDelay == nil:
		return false
	default:
		return *s.PrechargeDelay == *o.PrechargeDelay
	}
}

// Fields returns the numeric settings keyed by their JSON names. A nil
// precharge delay is omitted.
func (s MeasureSettings) Fields() map[string]float64 {
	fields := map[string]float64{
		"sampling_rate":          s.SamplingRate,
		"internal_resistance":    s.InternalResistance,
		"max_voltage":            s.MaxVoltage,
		"probe_signal_frequency": s.ProbeSignalFrequency,
	}
	if s.PrechargeDelay != nil {
		fields["precharge_delay"] = *s.PrechargeDelay
	}
	return fields
}

// IVCurve is one captured current-voltage measurement.
//
// Curves are values: Pin copies them on attach and on read, so a curve
// handed out by the model cannot be used to corrupt it.
type IVCurve struct {
	Voltages    []float64       `json:"voltages"`
	Currents    []float64       `json:"currents"`
	Settings    MeasureSettings `json:"measurement_settings"`
	IsReference bool            `json:"is_reference"`
	IsDynamic   bool            `json:"is_dynamic,omitempty"`
	Comment     string          `json:"comment,omitempty"`
}

// NewIVCurve builds a validated curve from sample slices. The slices are copied.
func NewIVCurve(voltages, currents []float64, settings MeasureSettings) (IVCurve, error) {
	c := IVCurve{
		Voltages: append([]float64(nil), voltages...),
		Currents: append([]float64(nil), currents...),
		Settings: settings,
	}
	if err := c.Validate(""); err != nil {
		return IVCurve{}, err
	}
	return c, nil
}

// Validate checks the length invariant. path prefixes the reported location.
func (c IVCurve) Validate(path string) error {
	nv, ni := len(c.Voltages), len(c.Currents)
	if nv != ni || nv < MinSamples {
		return &LengthMismatchError{Path: path, Voltages: nv, Currents: ni}
	}
	return nil
}

// Len returns the number of samples.
func (c IVCurve) Len() int {
	return len(c.Voltages)
}

// Clone returns a deep copy.
func (c IVCurve) Clone() IVCurve {
	out := c
	out.Voltages = append([]float64(nil), c.Voltages...)
	out.Currents = append([]float64(nil), c.Currents...)
	if c.Settings.PrechargeDelay != nil {
		d := *c.Settings.PrechargeDelay
		out.Settings.PrechargeDelay = &d
	}
	return out
}
