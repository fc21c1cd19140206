package convert

import (
	"encoding/json"
)

// LegacyDocument is a parsed legacy (P10) board document.
type LegacyDocument struct {
	Elements []*LegacyElement
	Version  string

	// Extra holds unrecognised top-level keys verbatim.
	Extra map[string]json.RawMessage
}

// LegacyElement is one component of a legacy document.
type LegacyElement struct {
	Name         string
	IsManual     *bool
	ManualName   *string
	Probability  *float64
	Pins         []*LegacyPin
	Rotation     *float64
	Center       *[2]float64
	BoundingZone [][2]float64
	Width        *float64
	Height       *float64
	HPins        json.RawMessage
	WPins        json.RawMessage
	SideIndexes  json.RawMessage

	Extra map[string]json.RawMessage
}

// LegacyPin holds at most one working and one reference curve.
type LegacyPin struct {
	X            float64
	Y            float64
	IVC          *LegacyCurve
	ReferenceIVC *LegacyCurve
	IsDynamic    *bool
	ClusterID    *int
	Score        *float64

	Extra map[string]json.RawMessage
}

// LegacyCurve is a legacy IV curve.
type LegacyCurve struct {
	Voltage  []float64
	Current  []float64
	Settings LegacySettings

	Extra map[string]json.RawMessage
}

// LegacySettings is the legacy measurement descriptor. Reserved and any
// unknown keys are carried through unchanged.
type LegacySettings struct {
	DescFrequency        float64
	Flags                float64
	MaxCurrent           float64
	MaxVoltage           float64
	ProbeSignalFrequency float64
	NPoints              float64
	NChargePoints        float64
	Reserved             json.RawMessage

	Extra map[string]json.RawMessage
}

// withExtra encodes known fields merged over extra keys.
func withExtra(known map[string]any, extra map[string]json.RawMessage) ([]byte, error) {
	out := make(map[string]any, len(known)+len(extra))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range known {
		out[k] = v
	}
	return json.Marshal(out)
}

// rawOrNull returns raw, or JSON null when raw is empty.
func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// MarshalJSON implements json.Marshaler.
func (d *LegacyDocument) MarshalJSON() ([]byte, error) {
	elements := d.Elements
	if elements == nil {
		elements = []*LegacyElement{}
	}
	known := map[string]any{"elements": elements}
	if d.Version != "" {
		known["version"] = d.Version
	}
	return withExtra(known, d.Extra)
}

// MarshalJSON implements json.Marshaler.
func (e *LegacyElement) MarshalJSON() ([]byte, error) {
	zone := e.BoundingZone
	if zone == nil {
		zone = [][2]float64{}
	}
	pins := e.Pins
	if pins == nil {
		pins = []*LegacyPin{}
	}
	return withExtra(map[string]any{
		"name":          e.Name,
		"is_manual":     e.IsManual,
		"manual_name":   e.ManualName,
		"probability":   e.Probability,
		"pins":          pins,
		"rotation":      e.Rotation,
		"center":        e.Center,
		"bounding_zone": zone,
		"width":         e.Width,
		"height":        e.Height,
		"h_pins":        rawOrNull(e.HPins),
		"w_pins":        rawOrNull(e.WPins),
		"side_indexes":  rawOrNull(e.SideIndexes),
	}, e.Extra)
}

// MarshalJSON implements json.Marshaler.
func (p *LegacyPin) MarshalJSON() ([]byte, error) {
	return withExtra(map[string]any{
		"x":             p.X,
		"y":             p.Y,
		"ivc":           p.IVC,
		"reference_ivc": p.ReferenceIVC,
		"is_dynamic":    p.IsDynamic,
		"cluster_id":    p.ClusterID,
		"score":         p.Score,
	}, p.Extra)
}

// MarshalJSON implements json.Marshaler.
func (c *LegacyCurve) MarshalJSON() ([]byte, error) {
	return withExtra(map[string]any{
		"voltage":          c.Voltage,
		"current":          c.Current,
		"measure_settings": &c.Settings,
	}, c.Extra)
}

// MarshalJSON implements json.Marshaler.
func (s *LegacySettings) MarshalJSON() ([]byte, error) {
	return withExtra(map[string]any{
		"desc_frequency":         s.DescFrequency,
		"flags":                  s.Flags,
		"max_current":            s.MaxCurrent,
		"max_voltage":            s.MaxVoltage,
		"probe_signal_frequency": s.ProbeSignalFrequency,
		"n_points":               s.NPoints,
		"n_charge_points":        s.NChargePoints,
		"reserved":               rawOrNull(s.Reserved),
	}, s.Extra)
}
