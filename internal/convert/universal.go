package convert

import (
	"fmt"
	"math"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// Options controls a legacy to universal conversion.
type Options struct {
	// ForceReference marks every emitted curve as a reference curve.
	ForceReference bool

	// Version is written when the source carries none. Empty means
	// board.Version.
	Version string

	// Variant selects the legacy flavour of the source.
	Variant Variant
}

// flag values of the legacy settings mapped to internal resistance in ohms.
var flagResistance = map[float64]float64{
	3: 475,
	2: 4750,
	1: 47500,
}

func resistanceFromFlags(flags float64) float64 {
	return flagResistance[flags]
}

func flagsFromResistance(r float64) float64 {
	for flag, res := range flagResistance {
		if res == r {
			return flag
		}
	}
	return 0
}

// ToUniversal builds a board from a legacy document. The reference curve
// of each pin is emitted before its working curve.
func ToUniversal(doc *LegacyDocument, opts Options) (*board.Board, error) {
	b := board.New()
	switch {
	case doc.Version != "":
		b.Version = doc.Version
	case opts.Version != "":
		b.Version = opts.Version
	}

	for i, el := range doc.Elements {
		path := fmt.Sprintf("elements[%d]", i)
		c, err := toComponent(path, el, opts)
		if err != nil {
			return nil, err
		}
		if err := b.AddComponent(c); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func toComponent(path string, el *LegacyElement, opts Options) (*board.Component, error) {
	c := &board.Component{
		Name:             el.Name,
		SetAutomatically: el.IsManual != nil && !*el.IsManual && (el.ManualName == nil || *el.ManualName == ""),
		Probability:      el.Probability,
		Width:            el.Width,
		Height:           el.Height,
		Layout: &board.PinLayout{
			HPins:       el.HPins,
			WPins:       el.WPins,
			SideIndexes: el.SideIndexes,
		},
	}
	if el.Center != nil {
		center := board.Point(*el.Center)
		c.Center = &center
	}
	if el.Rotation != nil {
		r := *el.Rotation
		if r != math.Trunc(r) {
			return nil, structuralAt(path+".rotation", "must be an integer, got %g", r)
		}
		rot := int(r)
		c.Rotation = &rot
	}
	for _, v := range el.BoundingZone {
		c.BoundingZone = append(c.BoundingZone, board.Point{v[1], v[0]})
	}

	for i, lp := range el.Pins {
		p, err := toPin(fmt.Sprintf("%s.pins[%d]", path, i), lp, opts)
		if err != nil {
			return nil, err
		}
		c.Pins = append(c.Pins, p)
	}
	return c, nil
}

func toPin(path string, lp *LegacyPin, opts Options) (*board.Pin, error) {
	p := board.NewPin(lp.X, lp.Y)
	p.Dynamic = lp.IsDynamic
	dynamic := lp.IsDynamic != nil && *lp.IsDynamic

	curves := []struct {
		src       *LegacyCurve
		reference bool
		key       string
	}{
		{lp.ReferenceIVC, true, "reference_ivc"},
		{lp.IVC, opts.ForceReference, "ivc"},
	}
	for _, cv := range curves {
		if cv.src == nil {
			continue
		}
		curve, err := board.NewIVCurve(cv.src.Voltage, cv.src.Current, toSettings(cv.src.Settings))
		if err != nil {
			return nil, withPath(err, path+"."+cv.key)
		}
		curve.IsReference = cv.reference
		curve.IsDynamic = dynamic
		if err := p.AttachCurve(curve); err != nil {
			return nil, withPath(err, path+"."+cv.key)
		}
	}
	return p, nil
}

func toSettings(s LegacySettings) board.MeasureSettings {
	return board.MeasureSettings{
		SamplingRate:         s.DescFrequency,
		InternalResistance:   resistanceFromFlags(s.Flags),
		MaxVoltage:           s.MaxVoltage,
		ProbeSignalFrequency: s.ProbeSignalFrequency,
	}
}

// withPath fills in the location of a length mismatch raised on a
// detached curve.
func withPath(err error, path string) error {
	if le, ok := err.(*board.LengthMismatchError); ok && le.Path == "" {
		out := *le
		out.Path = path
		return &out
	}
	return err
}
