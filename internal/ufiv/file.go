package ufiv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// WriteFile writes data to path through a temporary file in the same
// directory and a rename, so readers see either the old file or the
// complete new one.
func WriteFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// Decode parses a universal document and checks every board invariant.
func Decode(data []byte) (*board.Board, error) {
	var b board.Board
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}
	if b.Components == nil {
		b.Components = []*board.Component{}
	}
	if errs := b.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}
	return &b, nil
}

// Load reads and decodes the universal document at path.
func Load(path string) (*board.Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Save writes b to path in the deterministic layout.
func Save(path string, b *board.Board) error {
	data, err := Marshal(b)
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	return WriteFile(path, data)
}
