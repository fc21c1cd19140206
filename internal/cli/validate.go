package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EPC-MSU/EPCore/internal/convert"
	"github.com/EPC-MSU/EPCore/internal/schema"
	"github.com/EPC-MSU/EPCore/internal/ufiv"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Dialect string
	Schema  string // JSON Schema used instead of the embedded dialect schema
}

// ValidateResult is the success payload of the validate command.
type ValidateResult struct {
	File    string `json:"file"`
	Dialect string `json:"dialect"`
	Schema  string `json:"schema,omitempty"`
	Valid   bool   `json:"valid"`
}

func (r ValidateResult) String() string {
	if r.Schema != "" {
		return fmt.Sprintf("✓ %s satisfies %s", r.File, r.Schema)
	}
	return fmt.Sprintf("✓ %s is a valid %s document", r.File, r.Dialect)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a board document",
		Long: `Validate checks a board document against the schema of its dialect
and the structural rules of the board model. Every violation is
reported with the path of the offending value.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", string(schema.Universal), "document dialect (universal|legacy)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "validate against this JSON Schema instead")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions, file string) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	dialect := schema.Dialect(opts.Dialect)
	if dialect != schema.Universal && dialect != schema.Legacy {
		return commandError(formatter, CodeGeneric, fmt.Sprintf("invalid --dialect %q: must be universal or legacy", opts.Dialect), nil)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return commandError(formatter, CodeNotFound, "cannot read document", err)
	}

	if opts.Schema != "" {
		raw, err := os.ReadFile(opts.Schema)
		if err != nil {
			return commandError(formatter, CodeNotFound, "cannot read schema", err)
		}
		s, err := schema.CompileJSONSchema(raw)
		if err != nil {
			return report(formatter, "invalid schema "+opts.Schema, err)
		}
		if err := s.Validate(data); err != nil {
			return report(formatter, "✗ Validation failed", err)
		}
		return formatter.Success(ValidateResult{File: file, Dialect: opts.Dialect, Schema: opts.Schema, Valid: true})
	}

	v, err := schema.New()
	if err != nil {
		return report(formatter, "cannot compile schemas", err)
	}
	formatter.VerboseLog("Validating %s as %s", file, dialect)
	if err := v.Validate(dialect, data); err != nil {
		return report(formatter, "✗ Validation failed", err)
	}

	// The schema cannot express every rule, such as equal curve lengths.
	switch dialect {
	case schema.Universal:
		_, err = ufiv.Decode(data)
	case schema.Legacy:
		_, err = convert.ParseLegacy(data)
	}
	if err != nil {
		return report(formatter, "✗ Validation failed", err)
	}

	return formatter.Success(ValidateResult{File: file, Dialect: opts.Dialect, Valid: true})
}
