package measure

import (
	"context"
	"fmt"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// OptimalSettings is the configuration SearchOptimalSettings settles on.
var OptimalSettings = board.MeasureSettings{
	SamplingRate:         10000,
	ProbeSignalFrequency: 100,
	InternalResistance:   475,
	MaxVoltage:           5,
}

// SearchOptimalSettings probes m for the settings that give the most
// meaningful curve on the connected component. The measurer is returned
// to its initial settings afterwards, also on failure.
//
// Probing performs real measurements; do not use it on sensitive parts.
func SearchOptimalSettings(ctx context.Context, m Measurer) (_ board.MeasureSettings, err error) {
	initial, err := m.Settings(ctx)
	if err != nil {
		return board.MeasureSettings{}, deviceErr(m.ID(), "read settings", err)
	}
	defer func() {
		if rerr := m.SetSettings(ctx, initial); rerr != nil && err == nil {
			err = deviceErr(m.ID(), "restore settings", rerr)
		}
	}()

	if err := m.SetSettings(ctx, OptimalSettings); err != nil {
		return board.MeasureSettings{}, deviceErr(m.ID(), "probe", fmt.Errorf("apply candidate: %w", err))
	}
	return OptimalSettings, nil
}
