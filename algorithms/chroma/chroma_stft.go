package chroma

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/algorithms/spectral"
	"github.com/RyanBlaney/sonido-harmony/algorithms/windowing"
)

// ChromaSTFT computes a chromagram from PCM using the Short-Time Fourier Transform.
//
// Spectral bins are mapped to the nearest equal-tempered semitone (relative
// to the tuning frequency) and folded into 12 pitch class bins. Frames keep
// their energy (magnitude squared) so that louder passages weigh more when
// frames are summed into a profile.
type ChromaSTFT struct {
	sampleRate int
	stft       *spectral.STFT
	tuningFreq float64 // A4 frequency (default 440 Hz)
	minFreq    float64 // Minimum frequency to consider
	maxFreq    float64 // Maximum frequency to consider
}

// ChromaResult is a chromagram with its frame timing
type ChromaResult struct {
	Frames        [][]float64 `json:"frames"`
	FrameDuration float64     `json:"frame_duration"` // seconds between frame starts
}

// NewChromaSTFT creates a new STFT-based chromagram calculator
func NewChromaSTFT(sampleRate int, tuningFreq float64) *ChromaSTFT {
	if tuningFreq <= 0 {
		tuningFreq = 440.0
	}
	return &ChromaSTFT{
		sampleRate: sampleRate,
		stft:       spectral.NewSTFT(),
		tuningFreq: tuningFreq,
		minFreq:    80.0,   // Approximate E2
		maxFreq:    8000.0, // High enough for harmonics
	}
}

// NewChromaSTFTDefault creates chromagram with standard A4=440Hz tuning
func NewChromaSTFTDefault(sampleRate int) *ChromaSTFT {
	return NewChromaSTFT(sampleRate, 440.0)
}

// SetFrequencyRange restricts which spectral bins contribute
func (cs *ChromaSTFT) SetFrequencyRange(minFreq, maxFreq float64) error {
	if minFreq <= 0 || maxFreq <= minFreq {
		return fmt.Errorf("%w: frequency range %.1f-%.1f Hz", pitch.ErrInvalidInput, minFreq, maxFreq)
	}
	cs.minFreq = minFreq
	cs.maxFreq = maxFreq
	return nil
}

// ComputeChroma computes the chromagram of a mono signal with a periodic Hann window
func (cs *ChromaSTFT) ComputeChroma(signal []float64, windowSize, hopSize int) (*ChromaResult, error) {
	if len(signal) == 0 {
		return &ChromaResult{FrameDuration: float64(hopSize) / float64(max(cs.sampleRate, 1))}, nil
	}

	// a signal shorter than one window is zero padded to a single frame
	if len(signal) < windowSize {
		padded := make([]float64, windowSize)
		copy(padded, signal)
		signal = padded
	}

	stftResult, err := cs.stft.ComputeWithWindow(signal, windowSize, hopSize, cs.sampleRate, windowing.NewHann(windowSize, false))
	if err != nil {
		return nil, fmt.Errorf("stft: %w", err)
	}

	return &ChromaResult{
		Frames:        cs.convertSTFTToChroma(stftResult),
		FrameDuration: stftResult.TimeResolution,
	}, nil
}

func (cs *ChromaSTFT) convertSTFTToChroma(stftResult *spectral.STFTResult) [][]float64 {
	chromagram := make([][]float64, stftResult.TimeFrames)

	chromaMapping := cs.calculateChromaMapping(stftResult.FreqBins, stftResult.FreqResolution)

	for t := 0; t < stftResult.TimeFrames; t++ {
		chromagram[t] = make([]float64, pitch.NumPitchClasses)

		for f := 0; f < stftResult.FreqBins; f++ {
			chromaBin := chromaMapping[f]
			if chromaBin < 0 {
				continue
			}
			magnitude := stftResult.Magnitude[t][f]
			chromagram[t][chromaBin] += magnitude * magnitude
		}
	}

	return chromagram
}

// calculateChromaMapping maps FFT bins to chroma bins, -1 outside the frequency range
func (cs *ChromaSTFT) calculateChromaMapping(freqBins int, freqResolution float64) []int {
	mapping := make([]int, freqBins)

	for f := 0; f < freqBins; f++ {
		frequency := float64(f) * freqResolution

		if frequency < cs.minFreq || frequency > cs.maxFreq {
			mapping[f] = -1
			continue
		}

		midiNote := int(math.Round(cs.frequencyToMIDI(frequency)))
		mapping[f] = pitch.Mod12(midiNote)
	}

	return mapping
}

// frequencyToMIDI converts frequency to MIDI note number (A4 = 69 at the tuning frequency)
func (cs *ChromaSTFT) frequencyToMIDI(frequency float64) float64 {
	if frequency <= 0 {
		return 0
	}

	return 69.0 + 12.0*math.Log2(frequency/cs.tuningFreq)
}

// GetTuning returns the current tuning frequency
func (cs *ChromaSTFT) GetTuning() float64 {
	return cs.tuningFreq
}
