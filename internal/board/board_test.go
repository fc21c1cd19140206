package board

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() MeasureSettings {
	return MeasureSettings{
		SamplingRate:         10000,
		InternalResistance:   4750,
		MaxVoltage:           5,
		ProbeSignalFrequency: 100,
	}
}

func testCurve(t *testing.T, n int) IVCurve {
	t.Helper()
	v := make([]float64, n)
	i := make([]float64, n)
	for k := range v {
		v[k] = float64(k)
		i[k] = float64(k) / 1000
	}
	c, err := NewIVCurve(v, i, testSettings())
	require.NoError(t, err)
	return c
}

func TestNewIVCurve_LengthMismatch(t *testing.T) {
	_, err := NewIVCurve([]float64{1, 2, 3, 4}, []float64{1, 2, 3}, testSettings())
	require.Error(t, err)
	assert.True(t, IsLengthMismatch(err))

	var le *LengthMismatchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 4, le.Voltages)
	assert.Equal(t, 3, le.Currents)
	assert.Contains(t, err.Error(), "4 voltages, 3 currents")
}

func TestNewIVCurve_TooShort(t *testing.T) {
	_, err := NewIVCurve([]float64{1, 2, 3}, []float64{1, 2, 3}, testSettings())
	require.Error(t, err)
	assert.True(t, IsLengthMismatch(err))
	assert.Contains(t, err.Error(), "need at least 4")
}

func TestNewIVCurve_CopiesInput(t *testing.T) {
	v := []float64{1, 2, 3, 4}
	i := []float64{5, 6, 7, 8}
	c, err := NewIVCurve(v, i, testSettings())
	require.NoError(t, err)

	v[0] = 100
	assert.Equal(t, 1.0, c.Voltages[0])
}

func TestMeasureSettings_Equal(t *testing.T) {
	a := testSettings()
	b := testSettings()
	assert.True(t, a.Equal(b))

	d := 0.5
	b.PrechargeDelay = &d
	assert.False(t, a.Equal(b))

	d2 := 0.5
	a.PrechargeDelay = &d2
	assert.True(t, a.Equal(b))

	b.MaxVoltage = 12
	assert.False(t, a.Equal(b))
}

func TestPin_AttachCurveRejectsMismatch(t *testing.T) {
	p := NewPin(1, 2)
	err := p.AttachCurve(IVCurve{Voltages: []float64{1, 2, 3, 4}, Currents: []float64{1}})
	require.Error(t, err)
	assert.True(t, IsLengthMismatch(err))
	assert.Equal(t, 0, p.CurveCount(), "nothing is attached on failure")
}

func TestPin_CurvesAreCopies(t *testing.T) {
	p := NewPin(0, 0)
	require.NoError(t, p.AttachCurve(testCurve(t, 4)))

	curves := p.Curves()
	curves[0].Voltages[0] = 42
	curves[0].IsReference = true

	last, ok := p.LastCurve()
	require.True(t, ok)
	assert.Equal(t, 0.0, last.Voltages[0])
	assert.False(t, last.IsReference)
}

func TestPin_ReferenceAndTest(t *testing.T) {
	p := NewPin(0, 0)
	_, ok := p.Reference()
	assert.False(t, ok)

	ref := testCurve(t, 4)
	ref.IsReference = true
	require.NoError(t, p.AttachCurve(ref))
	require.NoError(t, p.AttachCurve(testCurve(t, 5)))

	got, ok := p.Reference()
	require.True(t, ok)
	assert.Equal(t, 4, got.Len())

	got, ok = p.Test()
	require.True(t, ok)
	assert.Equal(t, 5, got.Len())
}

func TestPin_SetScore(t *testing.T) {
	p := NewPin(0, 0)
	require.NoError(t, p.AttachCurve(testCurve(t, 4)))

	err := p.SetScore(0.5)
	require.Error(t, err, "score needs a reference curve")
	assert.True(t, IsStructuralError(err))

	ref := testCurve(t, 4)
	ref.IsReference = true
	require.NoError(t, p.AttachCurve(ref))

	require.Error(t, p.SetScore(1.5))
	require.NoError(t, p.SetScore(0.25))
	require.NotNil(t, p.Score)
	assert.Equal(t, 0.25, *p.Score)
}

func TestPin_Validate(t *testing.T) {
	cluster := 3
	p := &Pin{
		Multiplexer: &MultiplexerOutput{ModuleNumber: 1, ChannelNumber: 65},
		ClusterID:   &cluster,
	}
	errs := p.Validate("elements[0].pins[1]")
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "elements[0].pins[1].multiplexer_output.channel_number")
	assert.Contains(t, errs[1].Error(), "elements[0].pins[1].cluster_id")
}

func TestMultiplexerOutput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		out     MultiplexerOutput
		wantErr bool
	}{
		{"lowest", MultiplexerOutput{ModuleNumber: 1, ChannelNumber: 1}, false},
		{"highest channel", MultiplexerOutput{ModuleNumber: 7, ChannelNumber: 64}, false},
		{"module zero", MultiplexerOutput{ModuleNumber: 0, ChannelNumber: 1}, true},
		{"channel zero", MultiplexerOutput{ModuleNumber: 1, ChannelNumber: 0}, true},
		{"channel 65", MultiplexerOutput{ModuleNumber: 1, ChannelNumber: 65}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.out.Validate("multiplexer_output")
			if tt.wantErr {
				assert.True(t, IsStructuralError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestComponent_Validate(t *testing.T) {
	rot := 4
	prob := 1.5
	c := &Component{
		Rotation:     &rot,
		Probability:  &prob,
		BoundingZone: make([]Point, 5),
	}
	errs := c.Validate("elements[2]")
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0].Error(), "elements[2].probability")
	assert.Contains(t, errs[1].Error(), "elements[2].rotation")
	assert.Contains(t, errs[2].Error(), "elements[2].bounding_zone")
}

func TestComponent_BoundingZoneSizes(t *testing.T) {
	for _, n := range []int{0, 4, 12} {
		c := &Component{BoundingZone: make([]Point, n)}
		assert.Empty(t, c.Validate(""), "size %d", n)
	}
	for _, n := range []int{1, 3, 5, 11, 13} {
		c := &Component{BoundingZone: make([]Point, n)}
		assert.Len(t, c.Validate(""), 1, "size %d", n)
	}
}

func TestBoard_LocateAndPin(t *testing.T) {
	b := New()
	require.NoError(t, b.AddComponent(&Component{Name: "R1", Pins: []*Pin{NewPin(0, 0), NewPin(1, 0)}}))
	require.NoError(t, b.AddComponent(&Component{Name: "MH1"}))
	require.NoError(t, b.AddComponent(&Component{Name: "C1", Pins: []*Pin{NewPin(2, 0)}}))

	assert.Equal(t, 3, b.PinCount())

	ref, ok := b.Locate(2)
	require.True(t, ok)
	assert.Equal(t, PinRef{Component: 2, Pin: 0}, ref, "zero-pin components are skipped")

	p, ok := b.Pin(ref)
	require.True(t, ok)
	assert.Equal(t, 2.0, p.X)

	_, ok = b.Locate(3)
	assert.False(t, ok)
	_, ok = b.Locate(-1)
	assert.False(t, ok)
}

func TestBoard_AddComponentValidates(t *testing.T) {
	b := New()
	rot := 7
	err := b.AddComponent(&Component{Rotation: &rot})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elements[0].rotation")
	assert.Empty(t, b.Components)
}

func TestBoard_RemovePin(t *testing.T) {
	b := New()
	require.NoError(t, b.AddComponent(&Component{Pins: []*Pin{NewPin(0, 0), NewPin(1, 1)}}))

	require.NoError(t, b.RemovePin(PinRef{Component: 0, Pin: 0}))
	require.Equal(t, 1, b.PinCount())
	assert.Equal(t, 1.0, b.Components[0].Pins[0].X)

	err := b.RemovePin(PinRef{Component: 0, Pin: 5})
	assert.True(t, IsStructuralError(err))
}

func TestBoard_JSONShape(t *testing.T) {
	b := New()
	res := 12.5
	b.PCB = &PCBInfo{Name: "demo", ImagePath: "demo.png", ImageResolution: &res}
	p := NewPin(3, 4)
	p.Multiplexer = &MultiplexerOutput{ModuleNumber: 1, ChannelNumber: 2}
	cluster := 0
	p.ClusterID = &cluster
	require.NoError(t, p.AttachCurve(testCurve(t, 4)))
	require.NoError(t, b.AddComponent(&Component{Name: "R1", Pins: []*Pin{p}}))

	data, err := json.Marshal(b)
	require.NoError(t, err)
	s := string(data)

	assert.Contains(t, s, `"PCB"`)
	assert.Contains(t, s, `"pcb_image_path":"demo.png"`)
	assert.Contains(t, s, `"elements"`)
	assert.Contains(t, s, `"version":"1.1.2"`)
	assert.Contains(t, s, `"iv_curves"`)
	assert.Contains(t, s, `"measurement_settings"`)
	assert.Contains(t, s, `"multiplexer_output":{"module_number":1,"channel_number":2}`)
	assert.NotContains(t, s, "cluster_id")

	var back Board
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, 1, back.PinCount())
	got := back.Components[0].Pins[0]
	assert.Equal(t, 3.0, got.X)
	assert.Equal(t, 1, got.CurveCount())
	assert.Equal(t, *p.Multiplexer, *got.Multiplexer)
}

func TestPin_UnmarshalRejectsBadCurve(t *testing.T) {
	data := []byte(`{"iv_curves":[{"voltages":[1,2,3,4],"currents":[1,2],"measurement_settings":{}}]}`)
	var p Pin
	err := json.Unmarshal(data, &p)
	require.Error(t, err)
	assert.True(t, IsLengthMismatch(err))
}

func TestPin_MarshalEmptyCurves(t *testing.T) {
	data, err := json.Marshal(NewPin(0, 0))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"iv_curves":[]`)
}
