package windowing

import (
	"fmt"

	"github.com/mjibson/go-dsp/window"
)

// Hann is a Hann window with precomputed coefficients
type Hann struct {
	size         int
	symmetric    bool
	coefficients []float64
}

// NewHann creates a new Hann window. The periodic form (symmetric=false) is
// the one to use for STFT frames.
func NewHann(size int, symmetric bool) *Hann {
	h := &Hann{
		size:      size,
		symmetric: symmetric,
	}
	h.generate()
	return h
}

func (h *Hann) generate() {
	if h.size <= 0 {
		h.coefficients = []float64{}
		return
	}
	if h.size == 1 {
		h.coefficients = []float64{1.0}
		return
	}

	if h.symmetric {
		h.coefficients = window.Hann(h.size)
		return
	}

	// periodic: drop the last point of a window one sample longer
	h.coefficients = window.Hann(h.size + 1)[:h.size]
}

// Apply applies the window to a signal (creates new array)
func (h *Hann) Apply(signal []float64) []float64 {
	windowed := make([]float64, len(signal))
	copy(windowed, signal)
	if err := h.ApplyInPlace(windowed); err != nil {
		return nil
	}
	return windowed
}

// ApplyInPlace applies the window to a signal in-place
func (h *Hann) ApplyInPlace(signal []float64) error {
	if len(signal) != h.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), h.size)
	}

	for i := 0; i < h.size; i++ {
		signal[i] *= h.coefficients[i]
	}

	return nil
}

// GetCoefficients returns a copy of the window coefficients
func (h *Hann) GetCoefficients() []float64 {
	coeffs := make([]float64, len(h.coefficients))
	copy(coeffs, h.coefficients)
	return coeffs
}

// GetSize returns the window size
func (h *Hann) GetSize() int {
	return h.size
}
