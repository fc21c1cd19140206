package convert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// Variant selects the flavour of legacy document being read.
type Variant string

const (
	// P10 is the original legacy layout.
	P10 Variant = "p10"

	// P10v2 spells the sample counters number_points and
	// number_charge_points.
	P10v2 Variant = "p10v2"
)

// ParseVariant maps a user supplied name to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(s)); v {
	case "", P10:
		return P10, nil
	case P10v2:
		return P10v2, nil
	default:
		return "", fmt.Errorf("unknown variant %q (valid: p10, p10v2)", s)
	}
}

var p10v2Renames = map[string]string{
	"number_points":        "n_points",
	"number_charge_points": "n_charge_points",
}

// RenameP10v2Keys rewrites the P10v2 counter names to their P10 spelling
// in every object of the document.
func RenameP10v2Keys(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, &board.StructuralError{Message: fmt.Sprintf("malformed document: %v", err)}
	}
	return json.Marshal(renameKeys(tree))
}

func renameKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if to, ok := p10v2Renames[k]; ok {
				k = to
			}
			out[k] = renameKeys(elem)
		}
		return out
	case []any:
		for i, elem := range val {
			val[i] = renameKeys(elem)
		}
		return val
	default:
		return v
	}
}

// object is a decoded JSON object that tracks which keys were consumed,
// so the rest can be carried as extras.
type object struct {
	path   string
	fields map[string]json.RawMessage
	used   map[string]bool
}

func newObject(path string, raw json.RawMessage) (*object, error) {
	var fields map[string]json.RawMessage
	if isNull(raw) {
		return nil, structuralAt(path, "must be an object, got null")
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, structuralAt(path, "must be an object")
	}
	return &object{path: path, fields: fields, used: make(map[string]bool)}, nil
}

func (o *object) at(key string) string {
	if o.path == "" {
		return key
	}
	return o.path + "." + key
}

// raw returns the value of a required key.
func (o *object) raw(key string) (json.RawMessage, error) {
	v, ok := o.fields[key]
	if !ok {
		return nil, structuralAt(o.at(key), "required field missing")
	}
	o.used[key] = true
	return v, nil
}

// required decodes a required key that must not be null.
func (o *object) required(key string, dst any) error {
	v, err := o.raw(key)
	if err != nil {
		return err
	}
	if isNull(v) {
		return structuralAt(o.at(key), "must not be null")
	}
	return o.decode(key, v, dst)
}

// nullable decodes a required key whose value may be null. dst must be a
// pointer to a pointer or to a raw message.
func (o *object) nullable(key string, dst any) error {
	v, err := o.raw(key)
	if err != nil {
		return err
	}
	return o.decode(key, v, dst)
}

// optional decodes key when present.
func (o *object) optional(key string, dst any) error {
	v, ok := o.fields[key]
	if !ok {
		return nil
	}
	o.used[key] = true
	return o.decode(key, v, dst)
}

func (o *object) decode(key string, v json.RawMessage, dst any) error {
	if err := json.Unmarshal(v, dst); err != nil {
		return structuralAt(o.at(key), "invalid value: %s", describe(err))
	}
	return nil
}

// extras returns the keys that were never consumed.
func (o *object) extras() map[string]json.RawMessage {
	var out map[string]json.RawMessage
	for k, v := range o.fields {
		if o.used[k] {
			continue
		}
		if out == nil {
			out = make(map[string]json.RawMessage)
		}
		out[k] = v
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func describe(err error) string {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		return fmt.Sprintf("expected %s, got %s", te.Type, te.Value)
	}
	return err.Error()
}

func structuralAt(path, format string, args ...any) *board.StructuralError {
	return &board.StructuralError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// ParseLegacy decodes a legacy document. Missing or malformed required
// fields fail with a *board.StructuralError naming the path, and curves
// whose sequences disagree fail with a *board.LengthMismatchError.
func ParseLegacy(data []byte) (*LegacyDocument, error) {
	if !json.Valid(data) {
		return nil, structuralAt("", "document is not valid JSON")
	}
	root, err := newObject("", data)
	if err != nil {
		return nil, err
	}

	doc := &LegacyDocument{}
	var elements []json.RawMessage
	if err := root.required("elements", &elements); err != nil {
		return nil, err
	}
	if err := root.optional("version", &doc.Version); err != nil {
		return nil, err
	}
	doc.Extra = root.extras()

	doc.Elements = make([]*LegacyElement, 0, len(elements))
	for i, raw := range elements {
		el, err := parseElement(fmt.Sprintf("elements[%d]", i), raw)
		if err != nil {
			return nil, err
		}
		doc.Elements = append(doc.Elements, el)
	}
	return doc, nil
}

func parseElement(path string, raw json.RawMessage) (*LegacyElement, error) {
	o, err := newObject(path, raw)
	if err != nil {
		return nil, err
	}
	el := &LegacyElement{}
	var pins []json.RawMessage
	var zone [][]float64
	steps := []error{
		o.required("name", &el.Name),
		o.nullable("is_manual", &el.IsManual),
		o.nullable("manual_name", &el.ManualName),
		o.nullable("probability", &el.Probability),
		o.required("pins", &pins),
		o.nullable("rotation", &el.Rotation),
		o.nullable("center", &el.Center),
		o.nullable("bounding_zone", &zone),
		o.nullable("width", &el.Width),
		o.nullable("height", &el.Height),
		o.nullable("h_pins", &el.HPins),
		o.nullable("w_pins", &el.WPins),
		o.nullable("side_indexes", &el.SideIndexes),
	}
	for _, err := range steps {
		if err != nil {
			return nil, err
		}
	}
	el.Extra = o.extras()

	for i, vertex := range zone {
		if len(vertex) != 2 {
			return nil, structuralAt(fmt.Sprintf("%s.bounding_zone[%d]", path, i),
				"vertex must have 2 coordinates, got %d", len(vertex))
		}
		el.BoundingZone = append(el.BoundingZone, [2]float64{vertex[0], vertex[1]})
	}

	if len(pins) == 0 {
		return nil, structuralAt(path+".pins", "component must have at least one pin")
	}
	el.Pins = make([]*LegacyPin, 0, len(pins))
	for i, raw := range pins {
		p, err := parsePin(fmt.Sprintf("%s.pins[%d]", path, i), raw)
		if err != nil {
			return nil, err
		}
		el.Pins = append(el.Pins, p)
	}
	return el, nil
}

func parsePin(path string, raw json.RawMessage) (*LegacyPin, error) {
	o, err := newObject(path, raw)
	if err != nil {
		return nil, err
	}
	p := &LegacyPin{}
	var ivc, ref json.RawMessage
	steps := []error{
		o.required("x", &p.X),
		o.required("y", &p.Y),
		o.nullable("ivc", &ivc),
		o.nullable("reference_ivc", &ref),
		o.nullable("is_dynamic", &p.IsDynamic),
		o.nullable("cluster_id", &p.ClusterID),
		o.nullable("score", &p.Score),
	}
	for _, err := range steps {
		if err != nil {
			return nil, err
		}
	}
	p.Extra = o.extras()

	if !isNull(ivc) {
		if p.IVC, err = parseCurve(path+".ivc", ivc); err != nil {
			return nil, err
		}
	}
	if !isNull(ref) {
		if p.ReferenceIVC, err = parseCurve(path+".reference_ivc", ref); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func parseCurve(path string, raw json.RawMessage) (*LegacyCurve, error) {
	o, err := newObject(path, raw)
	if err != nil {
		return nil, err
	}
	c := &LegacyCurve{}
	var settings json.RawMessage
	steps := []error{
		o.required("voltage", &c.Voltage),
		o.required("current", &c.Current),
		o.required("measure_settings", &settings),
	}
	for _, err := range steps {
		if err != nil {
			return nil, err
		}
	}
	c.Extra = o.extras()

	nv, ni := len(c.Voltage), len(c.Current)
	if nv != ni || nv < board.MinSamples {
		return nil, &board.LengthMismatchError{Path: path, Voltages: nv, Currents: ni}
	}

	s, err := parseSettings(path+".measure_settings", settings)
	if err != nil {
		return nil, err
	}
	c.Settings = *s
	return c, nil
}

func parseSettings(path string, raw json.RawMessage) (*LegacySettings, error) {
	o, err := newObject(path, raw)
	if err != nil {
		return nil, err
	}
	s := &LegacySettings{}
	steps := []error{
		o.required("desc_frequency", &s.DescFrequency),
		o.required("flags", &s.Flags),
		o.required("max_current", &s.MaxCurrent),
		o.required("max_voltage", &s.MaxVoltage),
		o.required("probe_signal_frequency", &s.ProbeSignalFrequency),
		o.required("n_points", &s.NPoints),
		o.required("n_charge_points", &s.NChargePoints),
		o.nullable("reserved", &s.Reserved),
	}
	for _, err := range steps {
		if err != nil {
			return nil, err
		}
	}
	// Same bounds as the universal measurement_settings.
	switch {
	case s.DescFrequency <= 0:
		return nil, structuralAt(o.at("desc_frequency"), "must be > 0, got %g", s.DescFrequency)
	case s.MaxVoltage < 0:
		return nil, structuralAt(o.at("max_voltage"), "must be >= 0, got %g", s.MaxVoltage)
	case s.ProbeSignalFrequency <= 0:
		return nil, structuralAt(o.at("probe_signal_frequency"), "must be > 0, got %g", s.ProbeSignalFrequency)
	}
	s.Extra = o.extras()
	return s, nil
}
