package analysis

import (
	"fmt"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/algorithms/tonal"
)

// AudioOptions holds the chromagram and windowing settings of the audio regime
type AudioOptions struct {
	WindowSize int        `json:"window_size"`
	HopSize    int        `json:"hop_size"`
	TuningHz   float64    `json:"tuning_hz"`
	FreqRange  [2]float64 `json:"freq_range"` // [min, max] Hz

	// WindowFrames groups chroma frames into local windows for local keys
	// and coarse chords. Zero reports the global key only.
	WindowFrames  int     `json:"window_frames"`
	MinChordScore float64 `json:"min_chord_score"`
}

// Options holds configuration for harmonic analysis
type Options struct {
	KeyProfile     tonal.KeyProfile  `json:"key_profile"`
	FigureStyle    tonal.FigureStyle `json:"figure_style"`
	MergeRepeated  bool              `json:"merge_repeated"`
	DropRests      bool              `json:"drop_rests"`
	DropIncomplete bool              `json:"drop_incomplete"`

	// LocalKeyWindow estimates a key per window of this many beats and
	// labels each chord in the key of the window holding its onset.
	// Zero labels everything in the global key.
	LocalKeyWindow pitch.Time `json:"local_key_window"`

	Audio AudioOptions `json:"audio"`
}

// DefaultOptions returns default analysis options
func DefaultOptions() *Options {
	return &Options{
		KeyProfile:  tonal.KeyProfileKrumhansl,
		FigureStyle: tonal.FigureStyleSlashed,
		Audio: AudioOptions{
			WindowSize:    4096,
			HopSize:       2048,
			TuningHz:      440.0,
			FreqRange:     [2]float64{80.0, 5000.0},
			WindowFrames:  0,
			MinChordScore: tonal.DefaultMinChordScore,
		},
	}
}

// Validate checks the options for values the analyzers cannot work with
func (o *Options) Validate() error {
	if o.LocalKeyWindow.Sign() < 0 {
		return fmt.Errorf("%w: local key window %s is negative", pitch.ErrInvalidInput, o.LocalKeyWindow)
	}
	a := o.Audio
	if a.WindowSize <= 0 || a.HopSize <= 0 {
		return fmt.Errorf("%w: window size %d and hop size %d must be positive", pitch.ErrInvalidInput, a.WindowSize, a.HopSize)
	}
	if a.HopSize > a.WindowSize {
		return fmt.Errorf("%w: hop size %d exceeds window size %d", pitch.ErrInvalidInput, a.HopSize, a.WindowSize)
	}
	if a.FreqRange[0] <= 0 || a.FreqRange[1] <= a.FreqRange[0] {
		return fmt.Errorf("%w: frequency range %v", pitch.ErrInvalidInput, a.FreqRange)
	}
	if a.WindowFrames < 0 {
		return fmt.Errorf("%w: window frames %d is negative", pitch.ErrInvalidInput, a.WindowFrames)
	}
	if a.MinChordScore < 0 || a.MinChordScore > 1 {
		return fmt.Errorf("%w: min chord score %.2f outside 0-1", pitch.ErrInvalidInput, a.MinChordScore)
	}
	return nil
}
