package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/EPC-MSU/EPCore/internal/convert"
	"github.com/EPC-MSU/EPCore/internal/schema"
	"github.com/EPC-MSU/EPCore/internal/ufiv"
)

// Conversion targets.
const (
	targetUniversal = "universal"
	targetLegacy    = "legacy"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	Source      string
	Destination string
	Validate    string // extra JSON Schema the output must satisfy
	Reference   bool
	Variant     string
	To          string
}

// ConvertResult is the success payload of the convert command.
type ConvertResult struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Target      string `json:"target"`
	Version     string `json:"version"`
	Components  int    `json:"components"`
	Pins        int    `json:"pins"`
}

func (r ConvertResult) String() string {
	return fmt.Sprintf("✓ Converted %s to %s (%s): %d components, %d pins",
		r.Source, r.Destination, r.Target, r.Components, r.Pins)
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a legacy board document to the universal format",
		Long: `Convert reads a legacy (P10) board document, converts it to the
universal format, validates the result and writes it to the destination.
Nothing is written when conversion or validation fails.

With --to legacy the source is a universal document and the output is
the legacy format.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "source document")
	cmd.Flags().StringVar(&opts.Destination, "destination", "", "destination document")
	cmd.Flags().StringVar(&opts.Validate, "validate", "", "JSON Schema the output must also satisfy")
	cmd.Flags().BoolVar(&opts.Reference, "reference", false, "mark every converted curve as a reference")
	cmd.Flags().StringVar(&opts.Variant, "variant", string(convert.P10), "legacy key variant (p10|p10v2)")
	cmd.Flags().StringVar(&opts.To, "to", targetUniversal, "output format (universal|legacy)")

	return cmd
}

func runConvert(cmd *cobra.Command, opts *ConvertOptions) error {
	formatter := newFormatter(cmd, opts.RootOptions)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, zapcore.WarnLevel)
	defer func() { _ = logger.Sync() }()

	if opts.Source == "" || opts.Destination == "" {
		return commandError(formatter, CodeGeneric, "--source and --destination are required", nil)
	}
	if opts.To != targetUniversal && opts.To != targetLegacy {
		return commandError(formatter, CodeGeneric, fmt.Sprintf("invalid --to %q: must be universal or legacy", opts.To), nil)
	}
	variant, err := convert.ParseVariant(opts.Variant)
	if err != nil {
		return commandError(formatter, CodeGeneric, "invalid --variant", err)
	}

	src, err := os.ReadFile(opts.Source)
	if err != nil {
		return commandError(formatter, CodeNotFound, "cannot read source", err)
	}
	formatter.VerboseLog("Read %d bytes from %s", len(src), opts.Source)

	v, err := schema.New()
	if err != nil {
		return report(formatter, "cannot compile schemas", err)
	}

	var extra *schema.Schema
	if opts.Validate != "" {
		data, err := os.ReadFile(opts.Validate)
		if err != nil {
			return commandError(formatter, CodeNotFound, "cannot read schema", err)
		}
		if extra, err = schema.CompileJSONSchema(data); err != nil {
			return report(formatter, "invalid schema "+opts.Validate, err)
		}
	}

	var (
		out    []byte
		result = ConvertResult{Source: opts.Source, Destination: opts.Destination, Target: opts.To}
	)
	switch opts.To {
	case targetUniversal:
		conv := convert.NewConverter(v, convert.WithSchema(extra), convert.WithLogger(logger))
		res, err := conv.Convert(src, convert.Options{ForceReference: opts.Reference, Variant: variant})
		if err != nil {
			return report(formatter, "conversion failed", err)
		}
		out = res.Document
		result.Version = res.Board.Version
		result.Components = len(res.Board.Components)
		result.Pins = res.Board.PinCount()
	case targetLegacy:
		b, err := ufiv.Decode(src)
		if err != nil {
			return report(formatter, "invalid universal document", err)
		}
		if out, err = convert.MarshalLegacy(b); err != nil {
			return report(formatter, "conversion failed", err)
		}
		if err := v.Validate(schema.Legacy, out); err != nil {
			return report(formatter, "conversion failed", err)
		}
		if extra != nil {
			if err := extra.Validate(out); err != nil {
				return report(formatter, "conversion failed", err)
			}
		}
		result.Version = b.Version
		result.Components = len(b.Components)
		result.Pins = b.PinCount()
	}

	if err := ufiv.WriteFile(opts.Destination, out); err != nil {
		return commandError(formatter, CodeWriteFailed, "cannot write destination", err)
	}
	logger.Info("converted",
		zap.String("source", opts.Source),
		zap.String("destination", opts.Destination),
		zap.Int("pins", result.Pins))

	return formatter.Success(result)
}
