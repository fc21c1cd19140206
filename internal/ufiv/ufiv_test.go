package ufiv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EPC-MSU/EPCore/internal/board"
)

func TestCanonicalize_SortsKeysAndIndents(t *testing.T) {
	out, err := Canonicalize([]byte(`{"b":1,"a":{"d":[1,2.5],"c":"x"}}`))
	require.NoError(t, err)
	want := "{\n \"a\": {\n  \"c\": \"x\",\n  \"d\": [\n   1,\n   2.5\n  ]\n },\n \"b\": 1\n}\n"
	assert.Equal(t, want, string(out))
}

func TestCanonicalize_KeepsNumberText(t *testing.T) {
	out, err := Canonicalize([]byte(`{"v":0.30000000000000004,"w":1e-7}`))
	require.NoError(t, err)
	assert.Contains(t, string(out), "0.30000000000000004")
	assert.Contains(t, string(out), "1e-7")
}

func TestCanonicalize_NFCAndNoHTMLEscape(t *testing.T) {
	// "e" followed by a combining acute accent becomes the precomposed form.
	out, err := Canonicalize([]byte("{\"name\":\"Re\u0301sistor <R1>\"}"))
	require.NoError(t, err)
	assert.Equal(t, "{\n \"name\": \"R\u00e9sistor <R1>\"\n}\n", string(out))
}

func TestCanonicalize_RejectsTrailingData(t *testing.T) {
	_, err := Canonicalize([]byte(`{} {}`))
	assert.Error(t, err)
}

func TestMarshal_Deterministic(t *testing.T) {
	b := board.New()
	require.NoError(t, b.AddComponent(&board.Component{Name: "R1", Pins: []*board.Pin{board.NewPin(1, 2)}}))

	first, err := Marshal(b)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Marshal(b)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.json")

	b := board.New()
	p := board.NewPin(3, 4)
	c, err := board.NewIVCurve([]float64{0, 1, 2, 3}, []float64{0, 1, 2, 3}, board.MeasureSettings{
		SamplingRate: 10000, InternalResistance: 4750, MaxVoltage: 5, ProbeSignalFrequency: 100,
	})
	require.NoError(t, err)
	require.NoError(t, p.AttachCurve(c))
	require.NoError(t, b.AddComponent(&board.Component{Name: "R1", Pins: []*board.Pin{p}}))

	require.NoError(t, Save(path, b))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.PinCount())
	assert.Equal(t, board.Version, loaded.Version)
	assert.Equal(t, 1, loaded.Components[0].Pins[0].CurveCount())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteFile_FailsWithoutTouchingDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "board.json")
	err := WriteFile(path, []byte("{}"))
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDecode_RejectsBrokenInvariants(t *testing.T) {
	_, err := Decode([]byte(`{"version":"1.1.2","elements":[{"rotation":9}]}`))
	require.Error(t, err)
	assert.True(t, board.IsStructuralError(err))

	_, err = Decode([]byte(`{"version":"1.1.2","elements":[{"pins":[{"iv_curves":[{"voltages":[1,2,3,4],"currents":[1],"measurement_settings":{}}]}]}]}`))
	require.Error(t, err)
	assert.True(t, board.IsLengthMismatch(err))
}
