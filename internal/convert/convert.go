package convert

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/EPC-MSU/EPCore/internal/board"
	"github.com/EPC-MSU/EPCore/internal/schema"
	"github.com/EPC-MSU/EPCore/internal/ufiv"
)

// Converter turns legacy documents into validated universal documents.
type Converter struct {
	validator *schema.Validator
	extra     *schema.Schema
	logger    *zap.Logger
}

// ConverterOption configures a Converter.
type ConverterOption func(*Converter)

// WithSchema adds a caller supplied schema that output must also satisfy.
func WithSchema(s *schema.Schema) ConverterOption {
	return func(c *Converter) {
		c.extra = s
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) ConverterOption {
	return func(c *Converter) {
		c.logger = l
	}
}

// NewConverter returns a Converter checking output against the embedded
// universal schema of v.
func NewConverter(v *schema.Validator, opts ...ConverterOption) *Converter {
	c := &Converter{validator: v, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is a successful conversion.
type Result struct {
	Board    *board.Board
	Document []byte
}

// Convert parses src as a legacy document, converts it and validates the
// encoded result. On any failure no document is returned; schema failures
// are reported as *schema.ViolationError.
func (c *Converter) Convert(src []byte, opts Options) (*Result, error) {
	if opts.Variant == P10v2 {
		renamed, err := RenameP10v2Keys(src)
		if err != nil {
			return nil, err
		}
		src = renamed
	}

	doc, err := ParseLegacy(src)
	if err != nil {
		return nil, err
	}
	b, err := ToUniversal(doc, opts)
	if err != nil {
		return nil, err
	}
	out, err := ufiv.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode board: %w", err)
	}

	if err := c.validator.Validate(schema.Universal, out); err != nil {
		return nil, err
	}
	if c.extra != nil {
		if err := c.extra.Validate(out); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("converted document",
		zap.Int("components", len(b.Components)),
		zap.Int("pins", b.PinCount()),
		zap.Bool("force_reference", opts.ForceReference),
		zap.String("variant", string(opts.Variant)))
	return &Result{Board: b, Document: out}, nil
}

// Convert is a one-shot conversion using the embedded schemas.
func Convert(src []byte, opts Options) (*Result, error) {
	v, err := schema.New()
	if err != nil {
		return nil, err
	}
	return NewConverter(v).Convert(src, opts)
}

// MarshalLegacy encodes a board as a legacy document in the deterministic
// layout.
func MarshalLegacy(b *board.Board) ([]byte, error) {
	doc, err := ToLegacy(b)
	if err != nil {
		return nil, err
	}
	return ufiv.Marshal(doc)
}
