package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EPC-MSU/EPCore/internal/board"
)

func TestBeginSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.SaveBoard(ctx, createTestBoard(t))
	require.NoError(t, err)

	first, err := s.BeginSession(ctx, id, testSettings(), true)
	require.NoError(t, err)
	second, err := s.BeginSession(ctx, id, testSettings(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)

	sessions, err := s.Sessions(ctx, id)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].Reference)
	assert.False(t, sessions[1].Reference)
	assert.True(t, sessions[0].Settings.Equal(testSettings()))
}

func TestBeginSession_UnknownBoard(t *testing.T) {
	s := createTestStore(t)

	_, err := s.BeginSession(context.Background(), "nope", testSettings(), false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordCaptures_OrderedBySeqThenDevice(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.SaveBoard(ctx, createTestBoard(t))
	require.NoError(t, err)
	sess, err := s.BeginSession(ctx, id, testSettings(), false)
	require.NoError(t, err)

	out := &board.MultiplexerOutput{ModuleNumber: 1, ChannelNumber: 7}
	seq, err := s.RecordCaptures(ctx, sess.ID, board.PinRef{Component: 0, Pin: 1}, out, map[string]board.IVCurve{
		"m2": testCurve(t, 2),
		"m1": testCurve(t, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	seq, err = s.RecordCaptures(ctx, sess.ID, board.PinRef{Component: 0, Pin: 0}, nil, map[string]board.IVCurve{
		"m1": testCurve(t, 3),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)

	captures, err := s.Captures(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, captures, 3)

	var devices []string
	for _, c := range captures {
		devices = append(devices, c.DeviceID)
	}
	if diff := cmp.Diff([]string{"m1", "m2", "m1"}, devices); diff != "" {
		t.Errorf("device order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, *out, *captures[0].Output)
	assert.Nil(t, captures[2].Output)
	if diff := cmp.Diff(testCurve(t, 2), captures[1].Curve); diff != "" {
		t.Errorf("curve mismatch (-want +got):\n%s", diff)
	}

	history, err := s.PinHistory(ctx, sess.ID, board.PinRef{Component: 0, Pin: 0})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(2), history[0].Seq)
}

func TestRecordCaptures_AllOrNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.SaveBoard(ctx, createTestBoard(t))
	require.NoError(t, err)
	sess, err := s.BeginSession(ctx, id, testSettings(), false)
	require.NoError(t, err)

	bad := board.IVCurve{Voltages: []float64{1, 2}, Currents: []float64{1}}
	_, err = s.RecordCaptures(ctx, sess.ID, board.PinRef{}, nil, map[string]board.IVCurve{
		"m1": testCurve(t, 1),
		"m2": bad,
	})
	require.Error(t, err)
	assert.True(t, board.IsLengthMismatch(err))

	captures, err := s.Captures(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, captures)
}

func TestRecordCaptures_UnknownSession(t *testing.T) {
	s := createTestStore(t)

	_, err := s.RecordCaptures(context.Background(), "nope", board.PinRef{}, nil, map[string]board.IVCurve{
		"m1": testCurve(t, 1),
	})
	assert.Error(t, err, "foreign key must reject captures of unknown sessions")
}
