package measure

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// Output shape of processed virtual curves.
const (
	NormalPoints        = 100
	SmoothingKernelSize = 5
)

// Interpolate resamples c to n points, linear in sample index.
func Interpolate(c board.IVCurve, n int) (board.IVCurve, error) {
	if n < 2 {
		return board.IVCurve{}, fmt.Errorf("interpolate: need at least 2 output points, got %d", n)
	}
	if c.Len() < 2 || len(c.Currents) != c.Len() {
		return board.IVCurve{}, fmt.Errorf("interpolate: need at least 2 matched input samples, got %d/%d",
			len(c.Voltages), len(c.Currents))
	}
	src := make([]float64, c.Len())
	floats.Span(src, 0, 1)
	dst := make([]float64, n)
	floats.Span(dst, 0, 1)

	out := c.Clone()
	var err error
	if out.Voltages, err = resample(src, c.Voltages, dst); err != nil {
		return board.IVCurve{}, err
	}
	if out.Currents, err = resample(src, c.Currents, dst); err != nil {
		return board.IVCurve{}, err
	}
	return out, nil
}

func resample(xs, ys, at []float64) ([]float64, error) {
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}
	out := make([]float64, len(at))
	for i, x := range at {
		out[i] = pl.Predict(x)
	}
	return out, nil
}

// Smooth applies a moving average of odd width kernel to both sample
// sequences. The signal is treated as periodic at the edges.
func Smooth(c board.IVCurve, kernel int) (board.IVCurve, error) {
	if kernel%2 == 0 || kernel < 1 {
		return board.IVCurve{}, fmt.Errorf("smooth: kernel size must be odd and positive, got %d", kernel)
	}
	out := c.Clone()
	out.Voltages = movingAverage(c.Voltages, kernel)
	out.Currents = movingAverage(c.Currents, kernel)
	return out, nil
}

func movingAverage(line []float64, kernel int) []float64 {
	n := len(line)
	if n == 0 {
		return nil
	}
	half := kernel / 2
	out := make([]float64, n)
	window := make([]float64, kernel)
	for i := range line {
		for k := -half; k <= half; k++ {
			window[k+half] = line[((i+k)%n+n)%n]
		}
		out[i] = floats.Sum(window) / float64(kernel)
	}
	return out
}
