package schema

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	"cuelang.org/go/encoding/jsonschema"
)

// Dialect names a document format.
type Dialect string

const (
	Universal Dialect = "universal"
	Legacy    Dialect = "legacy"
)

//go:embed universal.cue
var universalCUE []byte

//go:embed legacy.cue
var legacyCUE []byte

const documentFile = "document.json"

// Schema is a compiled root constraint that documents are checked against.
type Schema struct {
	ctx  *cue.Context
	root cue.Value
}

// Validator holds the compiled embedded schemas. It is safe for
// concurrent use.
type Validator struct {
	mu      sync.Mutex
	ctx     *cue.Context
	schemas map[Dialect]*Schema
}

// New compiles the embedded dialect definitions.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	v := &Validator{ctx: ctx, schemas: make(map[Dialect]*Schema)}

	sources := []struct {
		dialect Dialect
		file    string
		src     []byte
		def     string
	}{
		{Universal, "universal.cue", universalCUE, "#Document"},
		{Legacy, "legacy.cue", legacyCUE, "#LegacyDocument"},
	}
	for _, s := range sources {
		val := ctx.CompileBytes(s.src, cue.Filename(s.file))
		if err := val.Err(); err != nil {
			return nil, fmt.Errorf("compile %s: %w", s.file, err)
		}
		def := val.LookupPath(cue.ParsePath(s.def))
		if err := def.Err(); err != nil {
			return nil, fmt.Errorf("lookup %s in %s: %w", s.def, s.file, err)
		}
		v.schemas[s.dialect] = &Schema{ctx: ctx, root: def}
	}
	return v, nil
}

// Schema returns the compiled schema for d.
func (v *Validator) Schema(d Dialect) (*Schema, error) {
	s, ok := v.schemas[d]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q", d)
	}
	return s, nil
}

// Validate checks the JSON document data against dialect d.
func (v *Validator) Validate(d Dialect, data []byte) error {
	s, err := v.Schema(d)
	if err != nil {
		return err
	}
	// cue.Context is not safe for concurrent use.
	v.mu.Lock()
	defer v.mu.Unlock()
	return s.Validate(data)
}

// CompileJSONSchema imports a JSON Schema document as a Schema.
func CompileJSONSchema(data []byte) (*Schema, error) {
	ctx := cuecontext.New()
	expr, err := cuejson.Extract("schema.json", data)
	if err != nil {
		return nil, &ViolationError{Violations: []Violation{{Constraint: err.Error(), Code: CodeSchemaError}}}
	}
	raw := ctx.BuildExpr(expr)
	if err := raw.Err(); err != nil {
		return nil, fmt.Errorf("build JSON Schema: %w", err)
	}
	file, err := jsonschema.Extract(raw, &jsonschema.Config{})
	if err != nil {
		return nil, fmt.Errorf("import JSON Schema: %w", err)
	}
	root := ctx.BuildFile(file)
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile JSON Schema: %w", err)
	}
	return &Schema{ctx: ctx, root: root}, nil
}

// Validate checks the JSON document data against s. Every violation is
// reported; the result is a *ViolationError.
func (s *Schema) Validate(data []byte) error {
	expr, err := cuejson.Extract(documentFile, data)
	if err != nil {
		return &ViolationError{Violations: []Violation{{Constraint: err.Error(), Code: CodeMalformed}}}
	}
	doc := s.ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return &ViolationError{Violations: []Violation{{Constraint: err.Error(), Code: CodeMalformed}}}
	}
	unified := doc.Unify(s.root)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return toViolations(err)
	}
	return nil
}

func toViolations(err error) *ViolationError {
	seen := make(map[string]bool)
	var out []Violation
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		v := Violation{
			Path:       formatPath(e.Path()),
			Constraint: msg,
			Code:       classify(msg),
			Line:       documentLine(e),
		}
		key := v.Path + "\x00" + v.Constraint
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return &ViolationError{Violations: out}
}

func classify(msg string) string {
	switch {
	case strings.Contains(msg, "field not allowed"):
		return CodeNotAllowed
	case strings.Contains(msg, "required"):
		return CodeRequired
	default:
		return CodeConstraint
	}
}

// formatPath turns CUE selectors into "a.b[0].c". Definition names are dropped.
func formatPath(sel []string) string {
	var b strings.Builder
	for _, s := range sel {
		if strings.HasPrefix(s, "#") {
			continue
		}
		if _, err := strconv.Atoi(s); err == nil {
			b.WriteString("[" + s + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s)
	}
	return b.String()
}

func documentLine(e cueerrors.Error) int {
	for _, p := range cueerrors.Positions(e) {
		if p.Filename() == documentFile {
			return p.Line()
		}
	}
	return 0
}
