// Package options loads the options configuration document: the
// selectable measurement presets and the per-mode tables used to scale
// plots and synthesise noise.
package options

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed default_options.yaml
var defaultOptions []byte

// Parameter names a selectable measurement parameter.
type Parameter string

const (
	Frequency Parameter = "frequency"
	Voltage   Parameter = "voltage"
	Sensitive Parameter = "sensitive"
)

// Parameters lists every parameter a document must define.
var Parameters = []Parameter{Frequency, Voltage, Sensitive}

// ErrInvalidOptions is returned for documents that do not describe the
// expected parameters.
var ErrInvalidOptions = errors.New("invalid options document")

// Labels are localised display names.
type Labels struct {
	En string `yaml:"en"`
	Ru string `yaml:"ru"`
}

// Value is a preset value. Frequency presets carry a pair (probe signal
// frequency, sampling rate); the others a single number.
type Value []float64

// UnmarshalYAML accepts a scalar or a sequence of numbers.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		*v = Value{f}
		return nil
	case yaml.SequenceNode:
		var fs []float64
		if err := node.Decode(&fs); err != nil {
			return err
		}
		*v = Value(fs)
		return nil
	default:
		return fmt.Errorf("line %d: value must be a number or a list of numbers", node.Line)
	}
}

// MarshalYAML writes single values as scalars.
func (v Value) MarshalYAML() (any, error) {
	if len(v) == 1 {
		return v[0], nil
	}
	return []float64(v), nil
}

// Option is one selectable preset.
type Option struct {
	Name   string `yaml:"name"`
	Value  Value  `yaml:"value"`
	Labels Labels `yaml:"labels"`
}

// ParameterSpec is a parameter with its presets.
type ParameterSpec struct {
	Labels  Labels   `yaml:"labels"`
	Options []Option `yaml:"options"`
}

// Find returns the option called name.
func (p ParameterSpec) Find(name string) (Option, bool) {
	for _, o := range p.Options {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// ModeEntry maps a (max voltage, internal resistance) mode to a pair of
// values.
type ModeEntry struct {
	Voltage    float64 `yaml:"voltage"`
	Resistance float64 `yaml:"resistance"`
	X          float64 `yaml:"x,omitempty"`
	Y          float64 `yaml:"y,omitempty"`
	V          float64 `yaml:"v,omitempty"`
	I          float64 `yaml:"i,omitempty"`
}

// Border is a plot border for one voltage or resistance value.
type Border struct {
	Value  float64 `yaml:"value"`
	Border float64 `yaml:"border"`
}

// Borders holds voltage and current border tables.
type Borders struct {
	Voltage []Border `yaml:"voltage"`
	Current []Border `yaml:"current"`
}

// Document is the options configuration document.
type Document struct {
	Precision  float64                     `yaml:"precision"`
	Parameters map[Parameter]ParameterSpec `yaml:"parameters"`
	Scale      []ModeEntry                 `yaml:"scale"`
	Borders    Borders                     `yaml:"borders"`
	Noise      []ModeEntry                 `yaml:"noise"`
}

// Default returns the embedded document.
func Default() *Document {
	doc, err := Parse(defaultOptions)
	if err != nil {
		panic(fmt.Sprintf("embedded options: %v", err))
	}
	return doc
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes and validates a document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if doc.Precision == 0 {
		doc.Precision = 0.01
	}
	return &doc, nil
}

// Validate checks that exactly the known parameters are defined and that
// every preset value has the right arity.
func (d *Document) Validate() error {
	if len(d.Parameters) == 0 {
		return fmt.Errorf("%w: no parameters", ErrInvalidOptions)
	}
	known := make(map[Parameter]bool, len(Parameters))
	for _, p := range Parameters {
		known[p] = true
		if _, ok := d.Parameters[p]; !ok {
			return fmt.Errorf("%w: parameter %q missing", ErrInvalidOptions, p)
		}
	}
	names := make([]string, 0, len(d.Parameters))
	for p := range d.Parameters {
		names = append(names, string(p))
	}
	sort.Strings(names)
	for _, name := range names {
		p := Parameter(name)
		if !known[p] {
			return fmt.Errorf("%w: unknown parameter %q", ErrInvalidOptions, p)
		}
		arity := 1
		if p == Frequency {
			arity = 2
		}
		seen := make(map[string]bool)
		for i, o := range d.Parameters[p].Options {
			if o.Name == "" {
				return fmt.Errorf("%w: %s option %d has no name", ErrInvalidOptions, p, i)
			}
			if seen[o.Name] {
				return fmt.Errorf("%w: %s option %q defined twice", ErrInvalidOptions, p, o.Name)
			}
			seen[o.Name] = true
			if len(o.Value) != arity {
				return fmt.Errorf("%w: %s option %q needs %d value(s), got %d",
					ErrInvalidOptions, p, o.Name, arity, len(o.Value))
			}
		}
	}
	if d.Precision < 0 {
		return fmt.Errorf("%w: negative precision", ErrInvalidOptions)
	}
	return nil
}
