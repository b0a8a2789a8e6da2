package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// minRelativeVariance is the variance, relative to the squared peak
// magnitude, below which a series is treated as constant
const minRelativeVariance = 1e-24

// Pearson computes the Pearson correlation coefficient between two series.
//
// The coefficient is undefined when either series is constant; ok is false in
// that case and when the inputs are empty or of different lengths, so callers
// can tell "no linear relation" (0) apart from "cannot be measured".
//
// References:
// - Pearson, K. (1895). "Notes on regression and inheritance in the case of two parents"
func Pearson(a, b []float64) (r float64, ok bool) {
	if len(a) != len(b) || len(a) < 2 {
		return 0.0, false
	}

	if isConstant(a) || isConstant(b) {
		return 0.0, false
	}

	r = stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		return 0.0, false
	}

	// rounding can push a perfect match a hair past 1
	return math.Max(-1.0, math.Min(1.0, r)), true
}

// isConstant checks variance against the series' own scale, so the result
// does not depend on the units the series is measured in
func isConstant(x []float64) bool {
	peak := math.Max(math.Abs(floats.Max(x)), math.Abs(floats.Min(x)))
	if peak == 0 {
		return true
	}
	return stat.Variance(x, nil) <= minRelativeVariance*peak*peak
}
