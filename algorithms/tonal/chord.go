package tonal

import (
	"fmt"
	"slices"
	"strings"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
)

// ChordQuality represents the quality/type of a tertian chord
type ChordQuality int

const (
	ChordMajor ChordQuality = iota
	ChordMinor
	ChordDiminished
	ChordAugmented
	ChordDom7
	ChordMaj7
	ChordMin7
	ChordHalfDim7
	ChordDim7
	ChordMinMaj7
	ChordAug7
)

// ChordTemplate is one row of the quality table
type ChordTemplate struct {
	Quality   ChordQuality `json:"quality"`
	Name      string       `json:"name"`      // quality name
	Symbol    string       `json:"symbol"`    // lead-sheet suffix
	Intervals []int        `json:"intervals"` // root, third, fifth[, seventh] in semitones above the root
}

// chordTemplates is ordered by tie-break preference
var chordTemplates = []ChordTemplate{
	{Quality: ChordMajor, Name: "major", Symbol: "", Intervals: []int{0, 4, 7}},
	{Quality: ChordMinor, Name: "minor", Symbol: "m", Intervals: []int{0, 3, 7}},
	{Quality: ChordDiminished, Name: "diminished", Symbol: "dim", Intervals: []int{0, 3, 6}},
	{Quality: ChordAugmented, Name: "augmented", Symbol: "aug", Intervals: []int{0, 4, 8}},
	{Quality: ChordDom7, Name: "dominant7", Symbol: "7", Intervals: []int{0, 4, 7, 10}},
	{Quality: ChordMaj7, Name: "major7", Symbol: "maj7", Intervals: []int{0, 4, 7, 11}},
	{Quality: ChordMin7, Name: "minor7", Symbol: "m7", Intervals: []int{0, 3, 7, 10}},
	{Quality: ChordHalfDim7, Name: "half-diminished7", Symbol: "m7b5", Intervals: []int{0, 3, 6, 10}},
	{Quality: ChordDim7, Name: "diminished7", Symbol: "dim7", Intervals: []int{0, 3, 6, 9}},
	{Quality: ChordMinMaj7, Name: "minor-major7", Symbol: "mMaj7", Intervals: []int{0, 3, 7, 11}},
	{Quality: ChordAug7, Name: "augmented7", Symbol: "aug7", Intervals: []int{0, 4, 8, 10}},
}

// ChordTemplates returns a copy of the quality table in tie-break order
func ChordTemplates() []ChordTemplate {
	out := make([]ChordTemplate, len(chordTemplates))
	copy(out, chordTemplates)
	return out
}

func (q ChordQuality) template() *ChordTemplate {
	if q < 0 || int(q) >= len(chordTemplates) {
		return nil
	}
	return &chordTemplates[q]
}

func (q ChordQuality) String() string {
	if t := q.template(); t != nil {
		return t.Name
	}
	return "unknown"
}

// MarshalText encodes the quality by name
func (q ChordQuality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText decodes a quality name
func (q *ChordQuality) UnmarshalText(text []byte) error {
	for _, t := range chordTemplates {
		if t.Name == string(text) {
			*q = t.Quality
			return nil
		}
	}
	return fmt.Errorf("%w: unknown chord quality %q", ErrInvalidInput, text)
}

// Intervals returns the semitones above the root that make up the chord
func (q ChordQuality) Intervals() []int {
	if t := q.template(); t != nil {
		return slices.Clone(t.Intervals)
	}
	return nil
}

// IsSeventh reports whether the quality has a seventh
func (q ChordQuality) IsSeventh() bool {
	return len(q.Intervals()) == 4
}

// GetSupportedChordQualities returns the quality names in table order
func GetSupportedChordQualities() []string {
	names := make([]string, len(chordTemplates))
	for i, t := range chordTemplates {
		names[i] = t.Name
	}
	return names
}

// ChordName returns a lead-sheet name such as "G7" or "F#m"
func ChordName(root pitch.PitchClass, quality ChordQuality) string {
	if t := quality.template(); t != nil {
		return root.String() + t.Symbol
	}
	return root.String() + "?"
}

// ChordSimultaneity is a maximal time span over which the set of sounding
// pitches is constant
type ChordSimultaneity struct {
	PitchClasses []pitch.PitchClass `json:"pitch_classes"` // sorted, unique; empty for a rest
	Bass         pitch.PitchClass   `json:"bass"`          // lowest sounding pitch, NoPitch for a rest
	Onset        pitch.Time         `json:"onset"`
	Duration     pitch.Time         `json:"duration"`
}

// NewChord builds a simultaneity from pitch classes in any order, with duplicates allowed
func NewChord(pitchClasses []pitch.PitchClass, bass pitch.PitchClass, onset, duration pitch.Time) ChordSimultaneity {
	pcs := slices.Clone(pitchClasses)
	slices.Sort(pcs)
	pcs = slices.Compact(pcs)
	if len(pcs) == 0 {
		bass = pitch.NoPitch
	}
	return ChordSimultaneity{
		PitchClasses: pcs,
		Bass:         bass,
		Onset:        onset,
		Duration:     duration,
	}
}

// IsRest reports whether nothing sounds
func (c ChordSimultaneity) IsRest() bool {
	return len(c.PitchClasses) == 0
}

// End returns onset + duration
func (c ChordSimultaneity) End() pitch.Time {
	return c.Onset.Add(c.Duration)
}

// Contains reports whether pc sounds in the chord
func (c ChordSimultaneity) Contains(pc pitch.PitchClass) bool {
	_, found := slices.BinarySearch(c.PitchClasses, pc)
	return found
}

// SameSonority reports whether both chords hold the same pitch classes over the same bass
func (c ChordSimultaneity) SameSonority(other ChordSimultaneity) bool {
	return c.Bass == other.Bass && slices.Equal(c.PitchClasses, other.PitchClasses)
}

func (c ChordSimultaneity) String() string {
	if c.IsRest() {
		return "rest"
	}
	names := make([]string, len(c.PitchClasses))
	for i, pc := range c.PitchClasses {
		names[i] = pc.String()
	}
	return "{" + strings.Join(names, " ") + "}/" + c.Bass.String()
}
