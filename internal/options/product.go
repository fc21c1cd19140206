package options

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// Product maps between measurement settings and the presets of a
// document and answers per-mode display and noise questions.
type Product struct {
	doc    *Document
	logger *zap.Logger
}

// NewProduct wraps doc. A nil logger discards warnings.
func NewProduct(doc *Document, logger *zap.Logger) *Product {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Product{doc: doc, logger: logger}
}

// Document returns the underlying document.
func (p *Product) Document() *Document {
	return p.doc
}

// isClose mirrors the usual absolute-plus-relative float tolerance.
func (p *Product) isClose(a, b float64) bool {
	return math.Abs(a-b) <= p.doc.Precision+1e-5*math.Abs(b)
}

// CurrentOptions names the preset matching each parameter of s.
// Parameters without a matching preset are left out and logged.
func (p *Product) CurrentOptions(s board.MeasureSettings) map[Parameter]string {
	out := make(map[Parameter]string, len(Parameters))

	for _, o := range p.doc.Parameters[Frequency].Options {
		if o.Value[0] == s.ProbeSignalFrequency && o.Value[1] == s.SamplingRate {
			out[Frequency] = o.Name
		}
	}
	if _, ok := out[Frequency]; !ok {
		p.logger.Warn("unknown device frequency and sampling rate",
			zap.Float64("probe_signal_frequency", s.ProbeSignalFrequency),
			zap.Float64("sampling_rate", s.SamplingRate))
	}

	for _, o := range p.doc.Parameters[Sensitive].Options {
		if p.isClose(o.Value[0], s.InternalResistance) {
			out[Sensitive] = o.Name
		}
	}
	if _, ok := out[Sensitive]; !ok {
		p.logger.Warn("unknown device internal resistance", zap.Float64("internal_resistance", s.InternalResistance))
	}

	for _, o := range p.doc.Parameters[Voltage].Options {
		if p.isClose(o.Value[0], s.MaxVoltage) {
			out[Voltage] = o.Name
		}
	}
	if _, ok := out[Voltage]; !ok {
		p.logger.Warn("unknown device max voltage", zap.Float64("max_voltage", s.MaxVoltage))
	}
	return out
}

// SettingsFromOptions applies the named presets to s. Parameters absent
// from selected keep their value in s.
func (p *Product) SettingsFromOptions(selected map[Parameter]string, s board.MeasureSettings) (board.MeasureSettings, error) {
	for param, name := range selected {
		spec, ok := p.doc.Parameters[param]
		if !ok {
			return s, fmt.Errorf("unknown parameter %q", param)
		}
		o, ok := spec.Find(name)
		if !ok {
			return s, fmt.Errorf("unknown %s option %q", param, name)
		}
		switch param {
		case Frequency:
			s.ProbeSignalFrequency, s.SamplingRate = o.Value[0], o.Value[1]
		case Voltage:
			s.MaxVoltage = o.Value[0]
		case Sensitive:
			s.InternalResistance = o.Value[0]
		}
	}
	return s, nil
}

func (p *Product) lookup(table []ModeEntry, s board.MeasureSettings) (ModeEntry, bool) {
	for _, e := range table {
		if p.isClose(s.MaxVoltage, e.Voltage) && p.isClose(s.InternalResistance, e.Resistance) {
			return e, true
		}
	}
	return ModeEntry{}, false
}

// PlotScale returns the voltage (V) and current (A) plot ranges for s.
// Modes missing from the scale table get 1.2 times the signal maxima.
func (p *Product) PlotScale(s board.MeasureSettings) (volts, amps float64) {
	if e, ok := p.lookup(p.doc.Scale, s); ok {
		return e.X, e.Y
	}
	if s.InternalResistance == 0 {
		return s.MaxVoltage * 1.2, 0
	}
	return s.MaxVoltage * 1.2, s.MaxVoltage / s.InternalResistance * 1.2
}

// PlotBorders returns the voltage and current plot borders for s. A
// value missing from its table yields 0.
func (p *Product) PlotBorders(s board.MeasureSettings) (volts, amps float64) {
	for _, b := range p.doc.Borders.Voltage {
		if p.isClose(b.Value, s.MaxVoltage) {
			volts = b.Border
			break
		}
	}
	for _, b := range p.doc.Borders.Current {
		if p.isClose(b.Value, s.InternalResistance) {
			amps = b.Border
			break
		}
	}
	return volts, amps
}

// NoiseAmplitude returns the voltage and current noise amplitudes for s.
// Modes missing from the noise table get a twentieth of the signal maxima.
func (p *Product) NoiseAmplitude(s board.MeasureSettings) (volts, amps float64) {
	if e, ok := p.lookup(p.doc.Noise, s); ok {
		return e.V, e.I
	}
	if s.InternalResistance == 0 {
		return s.MaxVoltage / 20, 0
	}
	return s.MaxVoltage / 20, s.MaxVoltage / s.InternalResistance / 20
}
