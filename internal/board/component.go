package board

import (
	"encoding/json"
	"fmt"
)

// Allowed bounding polygon sizes: none, a rectangle, or a twelve-corner
// outline for multi-corner packages.
var boundingZoneSizes = map[int]bool{0: true, 4: true, 12: true}

// Point is an (x, y) image coordinate, encoded as a two-element array.
type Point [2]float64

// PinLayout is the legacy pin-row metadata of gridded packages. The
// values are producer specific and kept as raw JSON.
type PinLayout struct {
	HPins       json.RawMessage
	WPins       json.RawMessage
	SideIndexes json.RawMessage
}

// Component is an electrical component mounted on the board.
type Component struct {
	Name string `json:"name,omitempty"`

	// SetAutomatically is true when the component came from automated
	// recognition rather than manual entry.
	SetAutomatically bool `json:"set_automatically,omitempty"`

	// Probability is the recognition confidence; nil for manual components.
	Probability *float64 `json:"-"`

	Pins         []*Pin   `json:"pins,omitempty"`
	Package      string   `json:"package,omitempty"`
	Center       *Point   `json:"center,omitempty"`
	BoundingZone []Point  `json:"bounding_zone,omitempty"`
	Rotation     *int     `json:"rotation,omitempty"`
	Width        *float64 `json:"width,omitempty"`
	Height       *float64 `json:"height,omitempty"`

	Layout *PinLayout `json:"-"`
}

// AppendPin adds p at the end of the component's pins.
func (c *Component) AppendPin(p *Pin) error {
	if p == nil {
		return structural(fmt.Sprintf("pins[%d]", len(c.Pins)), "pin is nil")
	}
	if errs := p.Validate(fmt.Sprintf("pins[%d]", len(c.Pins))); len(errs) > 0 {
		return errs[0]
	}
	c.Pins = append(c.Pins, p)
	return nil
}

// Validate checks the component's own invariants and those of its pins.
func (c *Component) Validate(path string) []error {
	var errs []error
	if c.Probability != nil && (*c.Probability < 0 || *c.Probability > 1) {
		errs = append(errs, structural(joinPath(path, "probability"), "must be in [0, 1], got %g", *c.Probability))
	}
	if c.Rotation != nil && (*c.Rotation < 0 || *c.Rotation > 3) {
		errs = append(errs, structural(joinPath(path, "rotation"), "must be one of 0, 1, 2, 3, got %d", *c.Rotation))
	}
	if !boundingZoneSizes[len(c.BoundingZone)] {
		errs = append(errs, structural(joinPath(path, "bounding_zone"),
			"must have 0, 4 or 12 vertices, got %d", len(c.BoundingZone)))
	}
	for i, p := range c.Pins {
		pinPath := joinPath(path, fmt.Sprintf("pins[%d]", i))
		if p == nil {
			errs = append(errs, structural(pinPath, "pin is nil"))
			continue
		}
		errs = append(errs, p.Validate(pinPath)...)
	}
	return errs
}
