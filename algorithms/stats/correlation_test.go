package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPearson(t *testing.T) {
	tests := []struct {
		name   string
		a, b   []float64
		want   float64
		wantOK bool
	}{
		{"identical", []float64{1, 2, 3, 4}, []float64{1, 2, 3, 4}, 1, true},
		{"scaled", []float64{1, 2, 3, 4}, []float64{10, 20, 30, 40}, 1, true},
		{"inverted", []float64{1, 2, 3, 4}, []float64{4, 3, 2, 1}, -1, true},
		{"constant series", []float64{1, 1, 1}, []float64{1, 2, 3}, 0, false},
		{"tiny magnitudes", []float64{1e-12, 2e-12, 3e-12}, []float64{1, 2, 3}, 1, true},
		{"all zero", []float64{0, 0, 0}, []float64{1, 2, 3}, 0, false},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0, false},
		{"too short", []float64{1}, []float64{1}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := Pearson(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, r, 1e-12)
		})
	}
}
