package plan

import (
	"context"
	"fmt"
	"iter"
	"sort"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// Capturer is the part of the measurement system a plan needs to measure
// the pin under the cursor.
type Capturer interface {
	SetActiveChannel(ctx context.Context, out board.MultiplexerOutput) error
	CaptureAll(ctx context.Context) (map[string]board.IVCurve, error)
}

// MultiplexerSelector is implemented by capturers that can route a channel
// through one named multiplexer. Measure uses it once a default
// multiplexer is assigned.
type MultiplexerSelector interface {
	SetActiveChannelOn(ctx context.Context, multiplexer string, out board.MultiplexerOutput) error
}

// Plan is an ordered view over a board's pins.
type Plan struct {
	board  *board.Board
	cursor int

	measurer    string
	multiplexer string
	overrides   map[*board.Pin]board.MultiplexerOutput
}

// New creates a plan over b with the cursor on the first pin.
func New(b *board.Board) *Plan {
	return &Plan{
		board:     b,
		overrides: make(map[*board.Pin]board.MultiplexerOutput),
	}
}

// Board returns the underlying board.
func (p *Plan) Board() *board.Board {
	return p.board
}

// Len returns the number of pins in the plan.
func (p *Plan) Len() int {
	return p.board.PinCount()
}

// Index returns the cursor position. When pins were removed behind the
// plan's back, the cursor is clamped to the last pin.
func (p *Plan) Index() int {
	n := p.Len()
	if p.cursor >= n && n > 0 {
		p.cursor = n - 1
	}
	return p.cursor
}

// Current returns the pin at the cursor.
func (p *Plan) Current() (*board.Pin, error) {
	if p.Len() == 0 {
		return nil, ErrEmptyPlan
	}
	return p.PinAt(p.Index())
}

// PinAt returns the pin at flat index i without moving the cursor.
func (p *Plan) PinAt(i int) (*board.Pin, error) {
	ref, ok := p.board.Locate(i)
	if !ok {
		return nil, &OutOfRangeError{Index: i, Len: p.Len()}
	}
	pin, _ := p.board.Pin(ref)
	return pin, nil
}

// Seek moves the cursor to flat index i. On an empty board every index is
// out of range.
func (p *Plan) Seek(i int) error {
	if i < 0 || i >= p.Len() {
		return &OutOfRangeError{Index: i, Len: p.Len()}
	}
	p.cursor = i
	return nil
}

// Next advances the cursor. At the last pin it returns ErrBoundary.
func (p *Plan) Next() error {
	n := p.Len()
	if n == 0 {
		return ErrEmptyPlan
	}
	if p.Index() == n-1 {
		return ErrBoundary
	}
	p.cursor++
	return nil
}

// Previous moves the cursor back. At the first pin it returns ErrBoundary.
func (p *Plan) Previous() error {
	if p.Len() == 0 {
		return ErrEmptyPlan
	}
	if p.Index() == 0 {
		return ErrBoundary
	}
	p.cursor--
	return nil
}

// AppendPoint appends pin to the board's last component, creating an
// unnamed placeholder component when the board has none, and moves the
// cursor to it.
func (p *Plan) AppendPoint(pin *board.Pin) error {
	if len(p.board.Components) == 0 {
		if err := p.board.AddComponent(&board.Component{Pins: []*board.Pin{}}); err != nil {
			return err
		}
	}
	last := p.board.Components[len(p.board.Components)-1]
	if err := last.AppendPin(pin); err != nil {
		return fmt.Errorf("append point: %w", err)
	}
	p.cursor = p.Len() - 1
	return nil
}

// RemoveCurrent deletes the pin under the cursor from the board. The
// cursor stays at the same index, or moves to the new last pin.
func (p *Plan) RemoveCurrent() error {
	pin, err := p.Current()
	if err != nil {
		return err
	}
	ref, _ := p.board.Locate(p.Index())
	if err := p.board.RemovePin(ref); err != nil {
		return err
	}
	delete(p.overrides, pin)
	if p.cursor > 0 && p.cursor >= p.Len() {
		p.cursor = p.Len() - 1
	}
	return nil
}

// SetComment sets the comment of the pin at flat index i.
func (p *Plan) SetComment(i int, text string) error {
	pin, err := p.PinAt(i)
	if err != nil {
		return err
	}
	pin.Comment = text
	return nil
}

// AttachCurrent attaches c to the pin under the cursor.
func (p *Plan) AttachCurrent(c board.IVCurve) error {
	pin, err := p.Current()
	if err != nil {
		return err
	}
	return pin.AttachCurve(c)
}

// MarkLastAsReference makes the most recent curve of the current pin its
// reference. Any other reference curve on the pin becomes a test curve.
func (p *Plan) MarkLastAsReference() error {
	pin, last, err := p.lastCurveIndex()
	if err != nil {
		return err
	}
	for i, c := range pin.Curves() {
		if i != last && c.IsReference {
			if err := pin.SetCurveRole(i, false); err != nil {
				return err
			}
		}
	}
	return pin.SetCurveRole(last, true)
}

// MarkLastAsTest makes the most recent curve of the current pin a test curve.
func (p *Plan) MarkLastAsTest() error {
	pin, last, err := p.lastCurveIndex()
	if err != nil {
		return err
	}
	return pin.SetCurveRole(last, false)
}

func (p *Plan) lastCurveIndex() (*board.Pin, int, error) {
	pin, err := p.Current()
	if err != nil {
		return nil, 0, err
	}
	if pin.CurveCount() == 0 {
		return nil, 0, ErrNoCurve
	}
	return pin, pin.CurveCount() - 1, nil
}

// AssignMeasurer sets the device whose curve is kept by Measure.
func (p *Plan) AssignMeasurer(id string) {
	p.measurer = id
}

// Measurer returns the assigned default measurer, or "".
func (p *Plan) Measurer() string {
	return p.measurer
}

// AssignMultiplexer sets the multiplexer Measure routes channels through.
// An empty id selects every multiplexer that owns the output's module.
func (p *Plan) AssignMultiplexer(id string) {
	p.multiplexer = id
}

// Multiplexer returns the assigned default multiplexer, or "".
func (p *Plan) Multiplexer() string {
	return p.multiplexer
}

// OverrideOutput assigns out to the pin at flat index i without touching
// the pin's stored address. The override follows the pin if other pins
// are inserted or removed.
func (p *Plan) OverrideOutput(i int, out board.MultiplexerOutput) error {
	pin, err := p.PinAt(i)
	if err != nil {
		return err
	}
	if err := out.Validate("multiplexer_output"); err != nil {
		return err
	}
	p.overrides[pin] = out
	return nil
}

// OutputFor returns the multiplexer output used for the pin at flat index
// i: the plan override if any, otherwise the pin's stored address.
func (p *Plan) OutputFor(i int) (board.MultiplexerOutput, bool, error) {
	pin, err := p.PinAt(i)
	if err != nil {
		return board.MultiplexerOutput{}, false, err
	}
	if out, ok := p.overrides[pin]; ok {
		return out, true, nil
	}
	if pin.Multiplexer != nil {
		return *pin.Multiplexer, true, nil
	}
	return board.MultiplexerOutput{}, false, nil
}

// UnassignedMultiplexerPoints yields the flat index and pin of every pin
// that has neither a stored multiplexer address nor a plan override. The
// sequence is lazy and can be ranged over again to restart it.
func (p *Plan) UnassignedMultiplexerPoints() iter.Seq2[int, *board.Pin] {
	return func(yield func(int, *board.Pin) bool) {
		i := 0
		for _, c := range p.board.Components {
			for _, pin := range c.Pins {
				_, overridden := p.overrides[pin]
				if pin.Multiplexer == nil && !overridden {
					if !yield(i, pin) {
						return
					}
				}
				i++
			}
		}
	}
}

// Measure selects the current pin's multiplexer output when it has one,
// captures on every measurer and attaches the curve of the assigned
// measurer to the pin. Without an assignment the device with the
// lexicographically smallest ID is used.
func (p *Plan) Measure(ctx context.Context, c Capturer) (board.IVCurve, error) {
	pin, err := p.Current()
	if err != nil {
		return board.IVCurve{}, err
	}
	out, ok, err := p.OutputFor(p.Index())
	if err != nil {
		return board.IVCurve{}, err
	}
	if ok {
		if err := p.selectChannel(ctx, c, out); err != nil {
			return board.IVCurve{}, fmt.Errorf("select %s: %w", out, err)
		}
	}
	curves, err := c.CaptureAll(ctx)
	if err != nil {
		return board.IVCurve{}, err
	}
	curve, err := p.pick(curves)
	if err != nil {
		return board.IVCurve{}, err
	}
	if err := pin.AttachCurve(curve); err != nil {
		return board.IVCurve{}, err
	}
	return curve, nil
}

func (p *Plan) selectChannel(ctx context.Context, c Capturer, out board.MultiplexerOutput) error {
	if p.multiplexer == "" {
		return c.SetActiveChannel(ctx, out)
	}
	sel, ok := c.(MultiplexerSelector)
	if !ok {
		return fmt.Errorf("plan: capturer cannot route through multiplexer %q", p.multiplexer)
	}
	return sel.SetActiveChannelOn(ctx, p.multiplexer, out)
}

func (p *Plan) pick(curves map[string]board.IVCurve) (board.IVCurve, error) {
	if p.measurer != "" {
		c, ok := curves[p.measurer]
		if !ok {
			return board.IVCurve{}, fmt.Errorf("plan: assigned measurer %q returned no curve", p.measurer)
		}
		return c, nil
	}
	if len(curves) == 0 {
		return board.IVCurve{}, fmt.Errorf("plan: no measurer returned a curve")
	}
	ids := make([]string, 0, len(curves))
	for id := range curves {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return curves[ids[0]], nil
}
