package analysis

import (
	"github.com/RyanBlaney/sonido-harmony/algorithms/chroma"
	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/algorithms/tonal"
)

// EntryStatus tells how a segment came out of labeling
type EntryStatus string

const (
	StatusLabeled    EntryStatus = "labeled"
	StatusRest       EntryStatus = "rest"
	StatusIncomplete EntryStatus = "incomplete"
)

// Figures written for segments that have no Roman numeral
const (
	RestFigure       = "-"
	IncompleteFigure = "?"
)

// LabelEntry is one segment of the progression
type LabelEntry struct {
	Chord  tonal.ChordSimultaneity  `json:"chord"`
	Key    tonal.Key                `json:"key"` // key the chord was read in
	Status EntryStatus              `json:"status"`
	Figure string                   `json:"figure"`
	Label  *tonal.RomanNumeralLabel `json:"label,omitempty"`
}

// LocalKey is the key estimated over one time window
type LocalKey struct {
	Start    pitch.Time         `json:"start"`
	End      pitch.Time         `json:"end"`
	Estimate *tonal.KeyEstimate `json:"estimate,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// SymbolicResult is the harmonic reading of a note stream
type SymbolicResult struct {
	Key       *tonal.KeyEstimate       `json:"key"`
	Profile   chroma.PitchClassProfile `json:"profile"`
	Entries   []LabelEntry             `json:"entries"`
	LocalKeys []LocalKey               `json:"local_keys,omitempty"`
}

// Figures returns the figure of every entry in order
func (r *SymbolicResult) Figures() []string {
	figures := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		figures[i] = e.Figure
	}
	return figures
}

// ChordCount counts the entries where something sounds
func (r *SymbolicResult) ChordCount() int {
	n := 0
	for _, e := range r.Entries {
		if e.Status != StatusRest {
			n++
		}
	}
	return n
}

// AudioWindow is the coarse harmonic reading of one chunk of chroma frames
type AudioWindow struct {
	Index    int                   `json:"index"`
	Start    float64               `json:"start"` // seconds
	End      float64               `json:"end"`
	Key      *tonal.KeyEstimate    `json:"key,omitempty"`
	KeyError string                `json:"key_error,omitempty"`
	Chord    *tonal.ChordCandidate `json:"chord,omitempty"`
	Status   EntryStatus           `json:"status"`
	Figure   string                `json:"figure"`
}

// AudioResult is the harmonic reading of a chromagram
type AudioResult struct {
	Key        *tonal.KeyEstimate       `json:"key"`
	ChromaMean chroma.PitchClassProfile `json:"chroma_mean"`
	// Strongest is the loudest pitch class, a crude tonic guess kept for comparison with Key
	Strongest pitch.PitchClass     `json:"strongest_pitch_class"`
	Tonnetz   chroma.TonalCentroid `json:"tonnetz_mean"`
	Duration  float64              `json:"duration"` // seconds
	Frames    int                  `json:"frames"`
	Windows   []AudioWindow        `json:"windows,omitempty"`
	Stats     chroma.ProfileStats  `json:"profile_stats"`
}

// Figures returns the figure of every window in order
func (r *AudioResult) Figures() []string {
	figures := make([]string, len(r.Windows))
	for i, w := range r.Windows {
		figures[i] = w.Figure
	}
	return figures
}
