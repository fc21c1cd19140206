package convert

import (
	"fmt"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// ToLegacy builds a legacy document from a board. Each pin keeps its
// first reference curve and its first working curve; further curves have
// no legacy representation.
func ToLegacy(b *board.Board) (*LegacyDocument, error) {
	doc := &LegacyDocument{Version: b.Version}
	for i, c := range b.Components {
		path := fmt.Sprintf("elements[%d]", i)
		if len(c.Pins) == 0 {
			return nil, structuralAt(path+".pins", "legacy documents need at least one pin per component")
		}
		el := &LegacyElement{
			Name:        c.Name,
			IsManual:    ptr(!c.SetAutomatically),
			Probability: c.Probability,
			Width:       c.Width,
			Height:      c.Height,
		}
		if c.Center != nil {
			center := [2]float64(*c.Center)
			el.Center = &center
		}
		if c.Rotation != nil {
			el.Rotation = ptr(float64(*c.Rotation))
		}
		for _, v := range c.BoundingZone {
			el.BoundingZone = append(el.BoundingZone, [2]float64{v[1], v[0]})
		}
		if c.Layout != nil {
			el.HPins, el.WPins, el.SideIndexes = c.Layout.HPins, c.Layout.WPins, c.Layout.SideIndexes
		}
		for _, p := range c.Pins {
			el.Pins = append(el.Pins, toLegacyPin(p))
		}
		doc.Elements = append(doc.Elements, el)
	}
	return doc, nil
}

func toLegacyPin(p *board.Pin) *LegacyPin {
	lp := &LegacyPin{
		X:         p.X,
		Y:         p.Y,
		IsDynamic: p.Dynamic,
		ClusterID: p.ClusterID,
		Score:     p.Score,
	}
	dynamic := false
	for _, c := range p.Curves() {
		dynamic = dynamic || c.IsDynamic
		switch {
		case c.IsReference && lp.ReferenceIVC == nil:
			lp.ReferenceIVC = toLegacyCurve(c)
		case !c.IsReference && lp.IVC == nil:
			lp.IVC = toLegacyCurve(c)
		}
	}
	if lp.IsDynamic == nil {
		lp.IsDynamic = ptr(dynamic)
	}
	return lp
}

func toLegacyCurve(c board.IVCurve) *LegacyCurve {
	s := c.Settings
	maxCurrent := 0.0
	if s.InternalResistance > 0 {
		maxCurrent = s.MaxVoltage / s.InternalResistance
	}
	return &LegacyCurve{
		Voltage: c.Voltages,
		Current: c.Currents,
		Settings: LegacySettings{
			DescFrequency:        s.SamplingRate,
			Flags:                flagsFromResistance(s.InternalResistance),
			MaxCurrent:           maxCurrent,
			MaxVoltage:           s.MaxVoltage,
			ProbeSignalFrequency: s.ProbeSignalFrequency,
			NPoints:              float64(c.Len()),
		},
	}
}

func ptr[T any](v T) *T {
	return &v
}
