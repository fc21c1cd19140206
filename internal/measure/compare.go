package measure

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// Comparator scores how different a test curve is from a reference.
// Scores are in [0, 1]: 0 for identical curves, 1 for unrelated ones.
type Comparator struct {
	// MinVarV and MinVarC floor the voltage and current scales so that
	// noise on a flat curve does not read as a large difference.
	MinVarV float64
	MinVarC float64
}

// NewComparator returns a comparator with the given noise floors.
func NewComparator(minVarV, minVarC float64) *Comparator {
	return &Comparator{MinVarV: minVarV, MinVarC: minVarC}
}

// Compare returns the difference score of test against ref. Curves of
// different lengths are resampled to the longer length first.
func (c *Comparator) Compare(test, ref board.IVCurve) (float64, error) {
	if err := test.Validate("test"); err != nil {
		return 0, err
	}
	if err := ref.Validate("reference"); err != nil {
		return 0, err
	}
	n := max(test.Len(), ref.Len())
	var err error
	if test.Len() != n {
		if test, err = Interpolate(test, n); err != nil {
			return 0, fmt.Errorf("compare: %w", err)
		}
	}
	if ref.Len() != n {
		if ref, err = Interpolate(ref, n); err != nil {
			return 0, fmt.Errorf("compare: %w", err)
		}
	}

	vScale := math.Max(stat.StdDev(ref.Voltages, nil), c.MinVarV)
	iScale := math.Max(stat.StdDev(ref.Currents, nil), c.MinVarC)
	dv := rmsDiff(test.Voltages, ref.Voltages)
	di := rmsDiff(test.Currents, ref.Currents)

	var score float64
	switch {
	case vScale == 0 && iScale == 0:
		if dv != 0 || di != 0 {
			score = 1
		}
	case vScale == 0:
		score = di / iScale / 2
	case iScale == 0:
		score = dv / vScale / 2
	default:
		score = math.Hypot(dv/vScale, di/iScale) / (2 * math.Sqrt2)
	}
	return math.Min(1, score), nil
}

// Score compares the pin's test curve with its reference and stores the result.
func (c *Comparator) Score(p *board.Pin) (float64, error) {
	test, ok := p.Test()
	if !ok {
		return 0, fmt.Errorf("compare: pin has no test curve")
	}
	ref, ok := p.Reference()
	if !ok {
		return 0, fmt.Errorf("compare: pin has no reference curve")
	}
	score, err := c.Compare(test, ref)
	if err != nil {
		return 0, err
	}
	return score, p.SetScore(score)
}

func rmsDiff(a, b []float64) float64 {
	d := make([]float64, len(a))
	floats.SubTo(d, a, b)
	return floats.Norm(d, 2) / math.Sqrt(float64(len(d)))
}
