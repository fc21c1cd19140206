package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// Session is one walk of a board's test plan.
type Session struct {
	ID        string
	BoardID   string
	Settings  board.MeasureSettings
	Reference bool
	Seq       int64
}

// Capture is one curve recorded during a session.
type Capture struct {
	ID        int64
	SessionID string
	Seq       int64
	Pin       board.PinRef
	DeviceID  string
	Output    *board.MultiplexerOutput
	Curve     board.IVCurve
}

// BeginSession opens a capture session for the stored board boardID.
// reference marks sessions that record reference curves.
func (s *Store) BeginSession(ctx context.Context, boardID string, settings board.MeasureSettings, reference bool) (*Session, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin session: begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM boards WHERE id = ?`, boardID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("begin session: board %s: %w", boardID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}

	seq, err := nextSeq(ctx, tx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM sessions WHERE board_id = ?`, boardID)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}

	sess := &Session{ID: s.ids.Generate(), BoardID: boardID, Settings: settings, Reference: reference, Seq: seq}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, board_id, settings, reference, seq)
		VALUES (?, ?, ?, ?, ?)
	`, sess.ID, boardID, string(raw), reference, seq)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("begin session: commit: %w", err)
	}
	return sess, nil
}

// Sessions returns the sessions of a board in the order they were opened.
func (s *Store) Sessions(ctx context.Context, boardID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, settings, reference, seq
		FROM sessions
		WHERE board_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var raw string
		if err := rows.Scan(&sess.ID, &sess.BoardID, &raw, &sess.Reference, &sess.Seq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &sess.Settings); err != nil {
			return nil, fmt.Errorf("session %s settings: %w", sess.ID, err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// RecordCaptures stores the curves of one capture step, keyed by device
// id, and returns the step's seq. All curves are written or none are.
func (s *Store) RecordCaptures(ctx context.Context, sessionID string, pin board.PinRef, out *board.MultiplexerOutput, curves map[string]board.IVCurve) (int64, error) {
	ids := make([]string, 0, len(curves))
	for id := range curves {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("record captures: begin tx: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM captures WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("record captures: %w", err)
	}

	var module, channel sql.NullInt64
	if out != nil {
		module = sql.NullInt64{Int64: int64(out.ModuleNumber), Valid: true}
		channel = sql.NullInt64{Int64: int64(out.ChannelNumber), Valid: true}
	}

	for _, id := range ids {
		c := curves[id]
		if err := c.Validate(id); err != nil {
			return 0, fmt.Errorf("record captures: %w", err)
		}
		raw, err := json.Marshal(c)
		if err != nil {
			return 0, fmt.Errorf("record captures: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO captures
			(session_id, seq, component, pin, device_id, module_number, channel_number, curve)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, sessionID, seq, pin.Component, pin.Pin, id, module, channel, string(raw))
		if err != nil {
			return 0, fmt.Errorf("record captures: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("record captures: commit: %w", err)
	}
	return seq, nil
}

// Captures returns every capture of a session in recording order.
func (s *Store) Captures(ctx context.Context, sessionID string) ([]Capture, error) {
	return s.queryCaptures(ctx, `
		SELECT id, session_id, seq, component, pin, device_id, module_number, channel_number, curve
		FROM captures
		WHERE session_id = ?
		ORDER BY seq ASC, id ASC
	`, sessionID)
}

// PinHistory returns the captures of one pin within a session.
func (s *Store) PinHistory(ctx context.Context, sessionID string, pin board.PinRef) ([]Capture, error) {
	return s.queryCaptures(ctx, `
		SELECT id, session_id, seq, component, pin, device_id, module_number, channel_number, curve
		FROM captures
		WHERE session_id = ? AND component = ? AND pin = ?
		ORDER BY seq ASC, id ASC
	`, sessionID, pin.Component, pin.Pin)
}

func (s *Store) queryCaptures(ctx context.Context, query string, args ...any) ([]Capture, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	captures := []Capture{}
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate captures: %w", err)
	}
	return captures, nil
}

func scanCapture(rows *sql.Rows) (Capture, error) {
	var c Capture
	var module, channel sql.NullInt64
	var raw string
	err := rows.Scan(&c.ID, &c.SessionID, &c.Seq, &c.Pin.Component, &c.Pin.Pin, &c.DeviceID, &module, &channel, &raw)
	if err != nil {
		return Capture{}, fmt.Errorf("scan capture: %w", err)
	}
	if module.Valid && channel.Valid {
		c.Output = &board.MultiplexerOutput{ModuleNumber: int(module.Int64), ChannelNumber: int(channel.Int64)}
	}
	if err := json.Unmarshal([]byte(raw), &c.Curve); err != nil {
		return Capture{}, fmt.Errorf("capture %d curve: %w", c.ID, err)
	}
	return c, nil
}
