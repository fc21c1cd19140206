package config

import (
	"go.uber.org/zap"

	"github.com/EPC-MSU/EPCore/internal/measure"
)

// BuildOption tweaks every virtual measurer built from the configuration.
type BuildOption = measure.VirtualOption

var defaultNominal = map[string]float64{
	measure.ModelResistor:  100,
	measure.ModelCapacitor: 1e-6,
}

// NewSystem builds the configured devices and wraps them in a
// measurement system.
func (c *Config) NewSystem(logger *zap.Logger, opts ...BuildOption) *measure.System {
	measurers := make([]measure.Measurer, 0, len(c.Measurers))
	for _, m := range c.Measurers {
		measurers = append(measurers, c.newMeasurer(m, opts))
	}
	multiplexers := make([]measure.Multiplexer, 0, len(c.Multiplexers))
	for _, m := range c.Multiplexers {
		multiplexers = append(multiplexers, measure.NewVirtualMultiplexer(m.ID, m.Modules))
	}

	sysOpts := []measure.Option{measure.WithLogger(logger)}
	if c.PollInterval > 0 {
		sysOpts = append(sysOpts, measure.WithPollInterval(c.PollInterval))
	}
	if c.CaptureTimeout > 0 {
		sysOpts = append(sysOpts, measure.WithCaptureTimeout(c.CaptureTimeout))
	}
	return measure.NewSystem(measurers, multiplexers, sysOpts...)
}

func (c *Config) newMeasurer(m MeasurerConfig, extra []BuildOption) measure.Measurer {
	var opts []measure.VirtualOption
	model, nominal := m.Model, m.Nominal
	if model == "" {
		model = measure.ModelResistor
	}
	if nominal == 0 {
		nominal = defaultNominal[model]
	}
	opts = append(opts, measure.WithModel(model, nominal))
	if m.Trigger == "manual" {
		opts = append(opts, measure.WithTriggerMode(measure.TriggerManual))
	}
	if m.NoiseFactor > 0 {
		opts = append(opts, measure.WithNoiseFactor(m.NoiseFactor))
	}
	if m.Seed != nil {
		opts = append(opts, measure.WithSeed(*m.Seed))
	}
	opts = append(opts, extra...)
	return measure.NewVirtualMeasurer(m.ID, opts...)
}
