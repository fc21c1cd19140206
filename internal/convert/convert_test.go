package convert

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EPC-MSU/EPCore/internal/board"
	"github.com/EPC-MSU/EPCore/internal/schema"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func newTestConverter(t *testing.T) *Converter {
	t.Helper()
	v, err := schema.New()
	require.NoError(t, err)
	return NewConverter(v)
}

// mutate decodes the fixture, applies fn and re-encodes it.
func mutate(t *testing.T, name string, fn func(doc map[string]any)) []byte {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(readFixture(t, name), &doc))
	fn(doc)
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	return out
}

func firstPin(doc map[string]any) map[string]any {
	el := doc["elements"].([]any)[0].(map[string]any)
	return el["pins"].([]any)[0].(map[string]any)
}

func TestConvert_SingleWorkingCurve(t *testing.T) {
	res, err := newTestConverter(t).Convert(readFixture(t, "scenario_a.json"), Options{})
	require.NoError(t, err)

	pin := res.Board.Components[0].Pins[0]
	curves := pin.Curves()
	require.Len(t, curves, 1)
	assert.False(t, curves[0].IsReference)

	newGolden(t).Assert(t, "scenario_a", res.Document)
}

func TestConvert_ForceReference(t *testing.T) {
	res, err := newTestConverter(t).Convert(readFixture(t, "scenario_a.json"), Options{ForceReference: true})
	require.NoError(t, err)

	curves := res.Board.Components[0].Pins[0].Curves()
	require.Len(t, curves, 1)
	assert.True(t, curves[0].IsReference)

	newGolden(t).Assert(t, "scenario_b", res.Document)
}

func TestConvert_P10v2ReferenceFirst(t *testing.T) {
	src := readFixture(t, "p10v2_two_curves.json")

	_, err := newTestConverter(t).Convert(src, Options{})
	require.Error(t, err, "p10v2 spelling must not parse as p10")
	assert.True(t, board.IsStructuralError(err))

	res, err := newTestConverter(t).Convert(src, Options{Variant: P10v2})
	require.NoError(t, err)

	curves := res.Board.Components[0].Pins[0].Curves()
	require.Len(t, curves, 2)
	assert.True(t, curves[0].IsReference)
	assert.False(t, curves[1].IsReference)
	assert.True(t, curves[0].IsDynamic)
	assert.True(t, curves[1].IsDynamic)
	assert.Equal(t, 475.0, curves[0].Settings.InternalResistance)

	newGolden(t).Assert(t, "p10v2_two_curves", res.Document)
}

func TestConvert_MissingFieldNamesPath(t *testing.T) {
	src := mutate(t, "scenario_a.json", func(doc map[string]any) {
		ivc := firstPin(doc)["ivc"].(map[string]any)
		delete(ivc, "voltage")
	})

	res, err := newTestConverter(t).Convert(src, Options{})
	require.Error(t, err)
	assert.Nil(t, res)

	var se *board.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "elements[0].pins[0].ivc.voltage", se.Path)
}

func TestConvert_LengthMismatch(t *testing.T) {
	src := mutate(t, "scenario_a.json", func(doc map[string]any) {
		ivc := firstPin(doc)["ivc"].(map[string]any)
		ivc["current"] = []any{1, 2, 3}
	})

	_, err := newTestConverter(t).Convert(src, Options{})
	var le *board.LengthMismatchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "elements[0].pins[0].ivc", le.Path)
	assert.Equal(t, 4, le.Voltages)
	assert.Equal(t, 3, le.Currents)
}

func TestConvert_SettingsBounds(t *testing.T) {
	v, err := schema.New()
	require.NoError(t, err)

	tests := []struct {
		name  string
		key   string
		value float64
		ok    bool
	}{
		{"zero sampling rate", "desc_frequency", 0, false},
		{"negative sampling rate", "desc_frequency", -1, false},
		{"tiny sampling rate", "desc_frequency", 1e-9, true},
		{"zero signal frequency", "probe_signal_frequency", 0, false},
		{"tiny signal frequency", "probe_signal_frequency", 1e-9, true},
		{"negative voltage", "max_voltage", -0.5, false},
		{"zero voltage", "max_voltage", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := mutate(t, "scenario_a.json", func(doc map[string]any) {
				ivc := firstPin(doc)["ivc"].(map[string]any)
				ivc["measure_settings"].(map[string]any)[tt.key] = tt.value
			})

			// The legacy schema and the converter must agree on every document.
			legacyErr := v.Validate(schema.Legacy, src)
			res, err := newTestConverter(t).Convert(src, Options{})
			if tt.ok {
				require.NoError(t, legacyErr)
				require.NoError(t, err)
				assert.NoError(t, v.Validate(schema.Universal, res.Document))
				return
			}
			assert.True(t, schema.IsViolation(legacyErr))
			assert.Nil(t, res)
			var se *board.StructuralError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "elements[0].pins[0].ivc.measure_settings."+tt.key, se.Path)
		})
	}
}

func TestConvert_ExtraSchema(t *testing.T) {
	v, err := schema.New()
	require.NoError(t, err)
	extra, err := schema.CompileJSONSchema([]byte(`{
		"type": "object",
		"properties": {"version": {"type": "string", "enum": ["9.9.9"]}}
	}`))
	require.NoError(t, err)

	_, err = NewConverter(v, WithSchema(extra)).Convert(readFixture(t, "scenario_a.json"), Options{})
	require.Error(t, err)
	assert.True(t, schema.IsViolation(err))
}

func TestConvert_VersionDefaults(t *testing.T) {
	src := mutate(t, "scenario_a.json", func(doc map[string]any) {
		delete(doc, "version")
	})

	res, err := newTestConverter(t).Convert(src, Options{Version: "2.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", res.Board.Version)

	res, err = newTestConverter(t).Convert(src, Options{})
	require.NoError(t, err)
	assert.Equal(t, board.Version, res.Board.Version)
}

func TestParseLegacy_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		path string
	}{
		{"not json", `{"elements": [`, ""},
		{"not an object", `[1, 2]`, ""},
		{"missing elements", `{"version": "1"}`, "elements"},
		{"null elements", `{"elements": null}`, "elements"},
		{"element not object", `{"elements": [3]}`, "elements[0]"},
		{"missing name", `{"elements": [{}]}`, "elements[0].name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLegacy([]byte(tt.src))
			var se *board.StructuralError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.path, se.Path)
		})
	}
}

func TestParseLegacy_CarriesUnknownKeys(t *testing.T) {
	src := mutate(t, "scenario_a.json", func(doc map[string]any) {
		doc["producer"] = "eplab"
		ivc := firstPin(doc)["ivc"].(map[string]any)
		ivc["measure_settings"].(map[string]any)["firmware_mode"] = 7
	})

	doc, err := ParseLegacy(src)
	require.NoError(t, err)
	assert.JSONEq(t, `"eplab"`, string(doc.Extra["producer"]))

	s := doc.Elements[0].Pins[0].IVC.Settings
	assert.JSONEq(t, `[0, 0]`, string(s.Reserved))
	assert.JSONEq(t, `7`, string(s.Extra["firmware_mode"]))

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"firmware_mode":7`)
	assert.Contains(t, string(out), `"reserved":[0,0]`)
	assert.Contains(t, string(out), `"producer":"eplab"`)
}

func TestRenameP10v2Keys_AllDepths(t *testing.T) {
	out, err := RenameP10v2Keys([]byte(`{"number_points": 1, "a": [{"b": {"number_charge_points": 2}}]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n_points": 1, "a": [{"b": {"n_charge_points": 2}}]}`, string(out))
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, P10, v)

	v, err = ParseVariant("P10v2")
	require.NoError(t, err)
	assert.Equal(t, P10v2, v)

	_, err = ParseVariant("p11")
	assert.Error(t, err)
}

func TestSetAutomatically(t *testing.T) {
	tests := []struct {
		name       string
		isManual   any
		manualName any
		want       bool
	}{
		{"automatic", false, nil, true},
		{"automatic empty override", false, "", true},
		{"manual", true, nil, false},
		{"override name", false, "R5", false},
		{"unknown", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := mutate(t, "scenario_a.json", func(doc map[string]any) {
				el := doc["elements"].([]any)[0].(map[string]any)
				el["is_manual"] = tt.isManual
				el["manual_name"] = tt.manualName
			})
			doc, err := ParseLegacy(src)
			require.NoError(t, err)
			b, err := ToUniversal(doc, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Components[0].SetAutomatically)
		})
	}
}

func TestToUniversal_FlagsToResistance(t *testing.T) {
	tests := []struct {
		flags float64
		want  float64
	}{
		{3, 475},
		{2, 4750},
		{1, 47500},
		{0, 0},
		{9, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resistanceFromFlags(tt.flags), "flags=%v", tt.flags)
	}
}

func TestToUniversal_RejectsFractionalRotation(t *testing.T) {
	src := mutate(t, "scenario_a.json", func(doc map[string]any) {
		doc["elements"].([]any)[0].(map[string]any)["rotation"] = 1.5
	})
	doc, err := ParseLegacy(src)
	require.NoError(t, err)

	_, err = ToUniversal(doc, Options{})
	var se *board.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "elements[0].rotation", se.Path)
}

func TestToLegacy_RoundTrip(t *testing.T) {
	res, err := newTestConverter(t).Convert(readFixture(t, "p10v2_two_curves.json"), Options{Variant: P10v2})
	require.NoError(t, err)

	doc, err := ToLegacy(res.Board)
	require.NoError(t, err)
	require.Len(t, doc.Elements, 1)

	lp := doc.Elements[0].Pins[0]
	require.NotNil(t, lp.ReferenceIVC)
	require.NotNil(t, lp.IVC)
	if diff := cmp.Diff([]float64{0, 2, 4, 6, 8}, lp.ReferenceIVC.Voltage); diff != "" {
		t.Errorf("reference voltage mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3.0, lp.IVC.Settings.Flags)
	assert.Equal(t, 100000.0, lp.IVC.Settings.DescFrequency)
	assert.Equal(t, 5.0, lp.IVC.Settings.NPoints)
	assert.True(t, *lp.IsDynamic)

	// The legacy encoding must satisfy the legacy schema and convert back
	// to the same board.
	out, err := MarshalLegacy(res.Board)
	require.NoError(t, err)
	v, err := schema.New()
	require.NoError(t, err)
	require.NoError(t, v.Validate(schema.Legacy, out))

	again, err := NewConverter(v).Convert(out, Options{})
	require.NoError(t, err)
	assert.Equal(t, string(res.Document), string(again.Document))
}

func TestToLegacy_BoundingZoneSwapsBack(t *testing.T) {
	res, err := newTestConverter(t).Convert(readFixture(t, "scenario_a.json"), Options{})
	require.NoError(t, err)

	doc, err := ToLegacy(res.Board)
	require.NoError(t, err)
	want := [][2]float64{{20, 10}, {20, 30}, {40, 30}, {40, 10}}
	if diff := cmp.Diff(want, doc.Elements[0].BoundingZone); diff != "" {
		t.Errorf("bounding zone mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2.0, doc.Elements[0].Pins[0].IVC.Settings.Flags)
}

func TestToLegacy_RejectsComponentWithoutPins(t *testing.T) {
	b := board.New()
	require.NoError(t, b.AddComponent(&board.Component{Name: "U1"}))

	_, err := ToLegacy(b)
	var se *board.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "elements[0].pins", se.Path)
}
