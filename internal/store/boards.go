package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/EPC-MSU/EPCore/internal/board"
	"github.com/EPC-MSU/EPCore/internal/ufiv"
)

// BoardRecord describes a stored board without decoding it.
type BoardRecord struct {
	ID      string
	Name    string
	Version string
	Seq     int64
}

func boardName(b *board.Board) string {
	if b.PCB == nil {
		return ""
	}
	return b.PCB.Name
}

// SaveBoard stores b under a new id and returns the id.
func (s *Store) SaveBoard(ctx context.Context, b *board.Board) (string, error) {
	doc, err := ufiv.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("save board: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("save board: begin tx: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM boards`)
	if err != nil {
		return "", fmt.Errorf("save board: %w", err)
	}

	id := s.ids.Generate()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO boards (id, name, version, document, seq)
		VALUES (?, ?, ?, ?, ?)
	`, id, boardName(b), b.Version, string(doc), seq)
	if err != nil {
		return "", fmt.Errorf("save board: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("save board: commit: %w", err)
	}
	return id, nil
}

// UpdateBoard replaces the document stored under id.
func (s *Store) UpdateBoard(ctx context.Context, id string, b *board.Board) error {
	doc, err := ufiv.Marshal(b)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE boards SET name = ?, version = ?, document = ? WHERE id = ?
	`, boardName(b), b.Version, string(doc), id)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update board %s: %w", id, ErrNotFound)
	}
	return nil
}

// LoadBoard decodes and validates the board stored under id.
func (s *Store) LoadBoard(ctx context.Context, id string) (*board.Board, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM boards WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load board %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}
	b, err := ufiv.Decode([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", id, err)
	}
	return b, nil
}

// BoardDocument returns the canonical document stored under id.
func (s *Store) BoardDocument(ctx context.Context, id string) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM boards WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("board %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("board document: %w", err)
	}
	return []byte(doc), nil
}

// ListBoards returns every stored board in insertion order.
//
// Returns an empty slice (not nil) when the store has no boards.
func (s *Store) ListBoards(ctx context.Context) ([]BoardRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, version, seq
		FROM boards
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query boards: %w", err)
	}
	defer rows.Close()

	records := []BoardRecord{}
	for rows.Next() {
		var r BoardRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Version, &r.Seq); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return records, nil
}

// DeleteBoard removes a board together with its sessions and captures.
func (s *Store) DeleteBoard(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete board %s: %w", id, ErrNotFound)
	}
	return nil
}
