package measure

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"
)

// MonotonicLinear fits a monotonic piecewise-linear function through the
// given samples. Non-monotonic measurement noise is flattened with isotonic
// regression first; outside the sample range the end segments are extended.
func MonotonicLinear(xs, ys []float64) (func(float64) float64, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("measure: got %d x values and %d y values", len(xs), len(ys))
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("measure: need at least 2 samples, got %d", len(xs))
	}

	type sample struct{ x, y float64 }
	samples := make([]sample, len(xs))
	for i := range xs {
		samples[i] = sample{xs[i], ys[i]}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].x < samples[j].x })

	sx := make([]float64, len(samples))
	sy := make([]float64, len(samples))
	for i, s := range samples {
		sx[i] = s.x
		sy[i] = s.y
	}

	increasing := stat.Correlation(sx, sy, nil) >= 0
	mono := isotonic(sy, increasing)

	// collapse runs of equal y so the interpolant keeps a usable slope
	fx := []float64{sx[0]}
	fy := []float64{mono[0]}
	for i := 1; i < len(mono); i++ {
		if mono[i] == fy[len(fy)-1] {
			continue
		}
		if sx[i] == fx[len(fx)-1] {
			return nil, fmt.Errorf("measure: duplicate x value %g", sx[i])
		}
		fx = append(fx, sx[i])
		fy = append(fy, mono[i])
	}

	if len(fx) < 2 {
		return nil, fmt.Errorf("measure: samples are constant, no slope to fit")
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(fx, fy); err != nil {
		return nil, err
	}

	lo, hi := fx[0], fx[len(fx)-1]
	loSlope := (fy[1] - fy[0]) / (fx[1] - fx[0])
	hiSlope := (fy[len(fy)-1] - fy[len(fy)-2]) / (fx[len(fx)-1] - fx[len(fx)-2])

	return func(x float64) float64 {
		switch {
		case x < lo:
			return fy[0] + (x-lo)*loSlope
		case x > hi:
			return fy[len(fy)-1] + (x-hi)*hiSlope
		default:
			return pl.Predict(x)
		}
	}, nil
}

// isotonic is pool-adjacent-violators with equal weights.
func isotonic(ys []float64, increasing bool) []float64 {
	type block struct {
		sum   float64
		count int
	}

	sign := 1.0
	if !increasing {
		sign = -1.0
	}

	blocks := make([]block, 0, len(ys))
	for _, y := range ys {
		blocks = append(blocks, block{sum: sign * y, count: 1})
		for len(blocks) > 1 {
			last := len(blocks) - 1
			if blocks[last-1].sum/float64(blocks[last-1].count) <= blocks[last].sum/float64(blocks[last].count) {
				break
			}
			blocks[last-1].sum += blocks[last].sum
			blocks[last-1].count += blocks[last].count
			blocks = blocks[:last]
		}
	}

	out := make([]float64, 0, len(ys))
	for _, b := range blocks {
		mean := sign * b.sum / float64(b.count)
		for i := 0; i < b.count; i++ {
			out = append(out, mean)
		}
	}
	return out
}
