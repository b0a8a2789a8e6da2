package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Vector helpers shared by the pitch class profiles and chord templates, backed by gonum

// Sum returns the sum of all values
func Sum(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Sum(data)
}

// SumNormalize returns a copy scaled so the values sum to 1.
// Data summing to (almost) zero is returned as an all-zero copy.
func SumNormalize(data []float64) []float64 {
	normalized := make([]float64, len(data))
	total := Sum(data)
	if math.Abs(total) < 1e-12 {
		return normalized
	}
	copy(normalized, data)
	floats.Scale(1.0/total, normalized)
	return normalized
}

// CosineSimilarity returns the cosine of the angle between a and b,
// 0 when either vector has no energy
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA < 1e-12 || normB < 1e-12 {
		return 0.0
	}

	return floats.Dot(a, b) / (normA * normB)
}

// ArgMax returns the index of the largest value (first one on ties), -1 when empty
func ArgMax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	return floats.MaxIdx(data)
}
