package board

import (
	"encoding/json"
	"fmt"
)

// PCBInfo holds data about the bare board rather than its components.
type PCBInfo struct {
	Name            string   `json:"pcb_name,omitempty"`
	ImagePath       string   `json:"pcb_image_path,omitempty"`
	ImageResolution *float64 `json:"image_resolution_ppcm,omitempty"`
	Comment         string   `json:"comment,omitempty"`
}

// Board is the root aggregate. It owns its components exclusively.
type Board struct {
	PCB        *PCBInfo     `json:"PCB,omitempty"`
	Components []*Component `json:"elements"`
	Version    string       `json:"version"`
}

// MarshalJSON writes the board with an elements array even when it has
// no components.
func (b *Board) MarshalJSON() ([]byte, error) {
	type plain Board
	out := plain(*b)
	if out.Components == nil {
		out.Components = []*Component{}
	}
	return json.Marshal(out)
}

// PinRef addresses a pin positionally.
type PinRef struct {
	Component int
	Pin       int
}

func (r PinRef) String() string {
	return fmt.Sprintf("elements[%d].pins[%d]", r.Component, r.Pin)
}

// New returns an empty board stamped with the current dialect version.
func New() *Board {
	return &Board{Components: []*Component{}, Version: Version}
}

// AddComponent validates c and appends it.
func (b *Board) AddComponent(c *Component) error {
	path := fmt.Sprintf("elements[%d]", len(b.Components))
	if c == nil {
		return structural(path, "component is nil")
	}
	if errs := c.Validate(path); len(errs) > 0 {
		return errs[0]
	}
	b.Components = append(b.Components, c)
	return nil
}

// PinCount returns the number of pins across all components.
func (b *Board) PinCount() int {
	n := 0
	for _, c := range b.Components {
		n += len(c.Pins)
	}
	return n
}

// Locate maps a flat component-then-pin index to its positional reference.
func (b *Board) Locate(index int) (PinRef, bool) {
	if index < 0 {
		return PinRef{}, false
	}
	for ci, c := range b.Components {
		if index < len(c.Pins) {
			return PinRef{Component: ci, Pin: index}, true
		}
		index -= len(c.Pins)
	}
	return PinRef{}, false
}

// Pin returns the pin at ref.
func (b *Board) Pin(ref PinRef) (*Pin, bool) {
	if ref.Component < 0 || ref.Component >= len(b.Components) {
		return nil, false
	}
	pins := b.Components[ref.Component].Pins
	if ref.Pin < 0 || ref.Pin >= len(pins) {
		return nil, false
	}
	return pins[ref.Pin], true
}

// RemovePin deletes the pin at ref. The component is kept even if it
// becomes empty.
func (b *Board) RemovePin(ref PinRef) error {
	if _, ok := b.Pin(ref); !ok {
		return structural(ref.String(), "no such pin")
	}
	c := b.Components[ref.Component]
	c.Pins = append(c.Pins[:ref.Pin], c.Pins[ref.Pin+1:]...)
	return nil
}

// Validate checks every invariant of the board and returns all violations.
func (b *Board) Validate() []error {
	var errs []error
	if b.Version == "" {
		errs = append(errs, structural("version", "is required"))
	}
	if b.PCB != nil && b.PCB.ImageResolution != nil && *b.PCB.ImageResolution <= 0 {
		errs = append(errs, structural("PCB.image_resolution_ppcm", "must be positive, got %g", *b.PCB.ImageResolution))
	}
	for i, c := range b.Components {
		path := fmt.Sprintf("elements[%d]", i)
		if c == nil {
			errs = append(errs, structural(path, "component is nil"))
			continue
		}
		errs = append(errs, c.Validate(path)...)
	}
	return errs
}
