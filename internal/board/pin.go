package board

import (
	"encoding/json"
	"fmt"
)

// Multiplexer address limits.
const (
	MinModuleNumber  = 1
	MinChannelNumber = 1
	MaxChannelNumber = 64
)

// FixedClusterID is the only cluster identifier currently accepted.
const FixedClusterID = 0

// MultiplexerOutput addresses one probe line: a module in the multiplexer
// chain and a channel inside it.
type MultiplexerOutput struct {
	ModuleNumber  int `json:"module_number"`
	ChannelNumber int `json:"channel_number"`
}

// Validate checks the address ranges.
func (o MultiplexerOutput) Validate(path string) error {
	if o.ModuleNumber < MinModuleNumber {
		return structural(joinPath(path, "module_number"), "must be >= %d, got %d", MinModuleNumber, o.ModuleNumber)
	}
	if o.ChannelNumber < MinChannelNumber || o.ChannelNumber > MaxChannelNumber {
		return structural(joinPath(path, "channel_number"), "must be in [%d, %d], got %d",
			MinChannelNumber, MaxChannelNumber, o.ChannelNumber)
	}
	return nil
}

func (o MultiplexerOutput) String() string {
	return fmt.Sprintf("module %d channel %d", o.ModuleNumber, o.ChannelNumber)
}

// Pin is a single testable point of a component.
type Pin struct {
	X       float64
	Y       float64
	Comment string

	// Multiplexer is the stored output address, nil when unassigned.
	Multiplexer *MultiplexerOutput

	// Legacy-only attributes. They have no universal representation and
	// are not written by MarshalJSON.
	ClusterID *int
	Dynamic   *bool
	Score     *float64

	curves []IVCurve
}

// NewPin creates a pin with no curves.
func NewPin(x, y float64) *Pin {
	return &Pin{X: x, Y: y}
}

// Curves returns copies of the pin's curves in capture order.
func (p *Pin) Curves() []IVCurve {
	out := make([]IVCurve, len(p.curves))
	for i, c := range p.curves {
		out[i] = c.Clone()
	}
	return out
}

// CurveCount returns the number of attached curves.
func (p *Pin) CurveCount() int {
	return len(p.curves)
}

// AttachCurve appends a copy of c after checking its length invariant.
func (p *Pin) AttachCurve(c IVCurve) error {
	if err := c.Validate(fmt.Sprintf("iv_curves[%d]", len(p.curves))); err != nil {
		return err
	}
	p.curves = append(p.curves, c.Clone())
	return nil
}

// LastCurve returns the most recently attached curve.
func (p *Pin) LastCurve() (IVCurve, bool) {
	if len(p.curves) == 0 {
		return IVCurve{}, false
	}
	return p.curves[len(p.curves)-1].Clone(), true
}

// SetCurveRole changes the reference flag of the curve at index i.
func (p *Pin) SetCurveRole(i int, reference bool) error {
	if i < 0 || i >= len(p.curves) {
		return structural(fmt.Sprintf("iv_curves[%d]", i), "no such curve (pin has %d)", len(p.curves))
	}
	p.curves[i].IsReference = reference
	return nil
}

// Reference returns the first curve flagged as reference.
func (p *Pin) Reference() (IVCurve, bool) {
	for _, c := range p.curves {
		if c.IsReference {
			return c.Clone(), true
		}
	}
	return IVCurve{}, false
}

// Test returns the most recent curve that is not a reference.
func (p *Pin) Test() (IVCurve, bool) {
	for i := len(p.curves) - 1; i >= 0; i-- {
		if !p.curves[i].IsReference {
			return p.curves[i].Clone(), true
		}
	}
	return IVCurve{}, false
}

// SetScore stores a comparison score. It requires both a test and a
// reference curve and a value in [0, 1].
func (p *Pin) SetScore(score float64) error {
	if score < 0 || score > 1 {
		return structural("score", "must be in [0, 1], got %g", score)
	}
	if _, ok := p.Reference(); !ok {
		return structural("score", "pin has no reference curve")
	}
	if _, ok := p.Test(); !ok {
		return structural("score", "pin has no test curve")
	}
	p.Score = &score
	return nil
}

// Validate checks every pin invariant and returns all violations.
func (p *Pin) Validate(path string) []error {
	var errs []error
	if p.Multiplexer != nil {
		if err := p.Multiplexer.Validate(joinPath(path, "multiplexer_output")); err != nil {
			errs = append(errs, err)
		}
	}
	if p.ClusterID != nil && *p.ClusterID != FixedClusterID {
		errs = append(errs, structural(joinPath(path, "cluster_id"), "must be %d, got %d", FixedClusterID, *p.ClusterID))
	}
	if p.Score != nil {
		_, hasRef := p.Reference()
		_, hasTest := p.Test()
		switch {
		case *p.Score < 0 || *p.Score > 1:
			errs = append(errs, structural(joinPath(path, "score"), "must be in [0, 1], got %g", *p.Score))
		case !hasRef || !hasTest:
			errs = append(errs, structural(joinPath(path, "score"), "requires both a test and a reference curve"))
		}
	}
	for i, c := range p.curves {
		if err := c.Validate(joinPath(path, fmt.Sprintf("iv_curves[%d]", i))); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

type pinJSON struct {
	Comment     string             `json:"comment,omitempty"`
	IVCurves    []IVCurve          `json:"iv_curves"`
	Multiplexer *MultiplexerOutput `json:"multiplexer_output,omitempty"`
	X           float64            `json:"x"`
	Y           float64            `json:"y"`
}

// MarshalJSON writes the universal dialect representation.
func (p *Pin) MarshalJSON() ([]byte, error) {
	curves := p.curves
	if curves == nil {
		curves = []IVCurve{}
	}
	return json.Marshal(pinJSON{
		Comment:     p.Comment,
		IVCurves:    curves,
		Multiplexer: p.Multiplexer,
		X:           p.X,
		Y:           p.Y,
	})
}

// UnmarshalJSON reads the universal dialect representation. Curves are
// attached one by one so the length invariant holds after decoding.
func (p *Pin) UnmarshalJSON(data []byte) error {
	var raw pinJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Pin{X: raw.X, Y: raw.Y, Comment: raw.Comment, Multiplexer: raw.Multiplexer}
	for _, c := range raw.IVCurves {
		if err := p.AttachCurve(c); err != nil {
			return err
		}
	}
	return nil
}
