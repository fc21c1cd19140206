package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EPC-MSU/EPCore/internal/board"
	"github.com/EPC-MSU/EPCore/internal/testutil"
)

// createTestStore creates a new store in a temporary directory with
// predictable ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(testutil.NewSequentialIDs("id")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSettings() board.MeasureSettings {
	return board.MeasureSettings{
		SamplingRate:         10000,
		InternalResistance:   4750,
		MaxVoltage:           5,
		ProbeSignalFrequency: 100,
	}
}

func testCurve(t *testing.T, scale float64) board.IVCurve {
	t.Helper()
	c, err := board.NewIVCurve(
		[]float64{-1 * scale, 0, scale, 0},
		[]float64{-0.1 * scale, 0, 0.1 * scale, 0},
		testSettings(),
	)
	require.NoError(t, err)
	return c
}

// createTestBoard builds a board with one component of two pins.
func createTestBoard(t *testing.T) *board.Board {
	t.Helper()
	b := board.New()
	b.PCB = &board.PCBInfo{Name: "demo", ImagePath: "demo.png"}
	p1 := board.NewPin(1, 2)
	require.NoError(t, p1.AttachCurve(testCurve(t, 1)))
	p2 := board.NewPin(3, 4)
	p2.Multiplexer = &board.MultiplexerOutput{ModuleNumber: 1, ChannelNumber: 7}
	require.NoError(t, b.AddComponent(&board.Component{Name: "R1", Pins: []*board.Pin{p1, p2}}))
	return b
}
