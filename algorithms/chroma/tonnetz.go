package chroma

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"gonum.org/v1/gonum/floats"
)

// TonalCentroid is a point in the 6-D tonnetz space: the projection of a
// profile onto the circles of fifths, minor thirds and major thirds
// (sin and cos coordinate for each circle).
//
// References:
// - Harte, C., Sandler, M., Gasser, M. (2006). "Detecting harmonic change in musical audio"
type TonalCentroid [6]float64

// circle radii, fifths weighted strongest and major thirds weakest
const (
	fifthsRadius      = 1.0
	minorThirdsRadius = 1.0
	majorThirdsRadius = 0.5
)

// tonnetzBasis holds the 6x12 transform, one row per coordinate
var tonnetzBasis = func() [6][pitch.NumPitchClasses]float64 {
	var basis [6][pitch.NumPitchClasses]float64
	circles := []struct {
		radius float64
		angle  float64
	}{
		{fifthsRadius, 7.0 * math.Pi / 6.0},
		{minorThirdsRadius, 3.0 * math.Pi / 2.0},
		{majorThirdsRadius, 2.0 * math.Pi / 3.0},
	}

	for c, circle := range circles {
		for pc := 0; pc < pitch.NumPitchClasses; pc++ {
			basis[2*c][pc] = circle.radius * math.Sin(float64(pc)*circle.angle)
			basis[2*c+1][pc] = circle.radius * math.Cos(float64(pc)*circle.angle)
		}
	}
	return basis
}()

// Tonnetz projects an L1-normalized profile into tonnetz space.
// A silent profile maps to the origin.
func Tonnetz(p PitchClassProfile) TonalCentroid {
	var tc TonalCentroid
	n := p.Normalized()
	for d := range tc {
		tc[d] = floats.Dot(tonnetzBasis[d][:], n[:])
	}
	return tc
}

// MeanTonnetz averages the per-frame tonal centroids of a chromagram
func MeanTonnetz(frames [][]float64) (TonalCentroid, error) {
	var mean TonalCentroid
	if len(frames) == 0 {
		return mean, nil
	}

	for i, frame := range frames {
		if err := checkFrame(frame); err != nil {
			return mean, fmt.Errorf("frame %d: %w", i, err)
		}
		var p PitchClassProfile
		copy(p[:], frame)
		tc := Tonnetz(p)
		floats.Add(mean[:], tc[:])
	}
	floats.Scale(1.0/float64(len(frames)), mean[:])

	return mean, nil
}

// Distance is the Euclidean distance between two centroids, the harmonic
// change measure between adjacent windows
func (tc TonalCentroid) Distance(other TonalCentroid) float64 {
	return floats.Distance(tc[:], other[:], 2)
}
