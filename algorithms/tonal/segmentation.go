package tonal

import (
	"slices"
	"sort"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/logging"
)

// SegmenterOptions tunes the harmonic segmenter
type SegmenterOptions struct {
	// MergeRepeated joins adjacent slices that hold the same pitch classes
	// over the same bass, e.g. a chord re-struck on the beat
	MergeRepeated bool `json:"merge_repeated"`
}

// HarmonicSegmenter cuts an event stream into chord simultaneities
type HarmonicSegmenter struct {
	opts   SegmenterOptions
	logger logging.Logger
}

// NewHarmonicSegmenter creates a segmenter
func NewHarmonicSegmenter(opts SegmenterOptions) *HarmonicSegmenter {
	return &HarmonicSegmenter{
		opts: opts,
		logger: logging.WithFields(logging.Fields{
			"component": "harmonic_segmenter",
		}),
	}
}

// Segment slices the timeline at every onset and offset of a sounding event.
// Each slice gathers every pitch sounding throughout it, whatever voice or
// track it came from. Slices where nothing sounds become rest chords, so the
// output is contiguous and covers exactly the span from the earliest onset to
// the latest end, rests included.
func (s *HarmonicSegmenter) Segment(events []pitch.PitchEvent) ([]ChordSimultaneity, error) {
	if err := pitch.ValidateEvents(events); err != nil {
		return nil, err
	}

	start, end, ok := pitch.Timespan(events)
	if !ok || !start.Before(end) {
		return nil, nil
	}

	boundaries := collectBoundaries(events, start, end)
	numSlices := len(boundaries) - 1

	// MIDI notes sounding in each slice
	sounding := make([][]int, numSlices)
	for _, e := range events {
		if !e.Sounds() {
			continue
		}
		first := searchTime(boundaries, e.Onset)
		last := searchTime(boundaries, e.End())
		for i := first; i < last; i++ {
			sounding[i] = append(sounding[i], e.MIDINote())
		}
	}

	chords := make([]ChordSimultaneity, 0, numSlices)
	for i := 0; i < numSlices; i++ {
		chord := buildChord(sounding[i], boundaries[i], boundaries[i+1].Sub(boundaries[i]))

		if s.opts.MergeRepeated && len(chords) > 0 && chords[len(chords)-1].SameSonority(chord) {
			prev := &chords[len(chords)-1]
			prev.Duration = prev.Duration.Add(chord.Duration)
			continue
		}
		chords = append(chords, chord)
	}

	s.logger.Debug("segmented events", logging.Fields{
		"events": len(events),
		"slices": numSlices,
		"chords": len(chords),
	})

	return chords, nil
}

// collectBoundaries returns the sorted, unique cut points
func collectBoundaries(events []pitch.PitchEvent, start, end pitch.Time) []pitch.Time {
	boundaries := []pitch.Time{start, end}
	for _, e := range events {
		if e.Sounds() {
			boundaries = append(boundaries, e.Onset, e.End())
		}
	}

	sort.Slice(boundaries, func(i, j int) bool {
		return boundaries[i].Before(boundaries[j])
	})
	return slices.CompactFunc(boundaries, pitch.Time.Equal)
}

// searchTime finds the index of t in the sorted boundaries
func searchTime(boundaries []pitch.Time, t pitch.Time) int {
	return sort.Search(len(boundaries), func(i int) bool {
		return !boundaries[i].Before(t)
	})
}

func buildChord(notes []int, onset, duration pitch.Time) ChordSimultaneity {
	if len(notes) == 0 {
		return ChordSimultaneity{
			PitchClasses: []pitch.PitchClass{},
			Bass:         pitch.NoPitch,
			Onset:        onset,
			Duration:     duration,
		}
	}

	pcs := make([]pitch.PitchClass, len(notes))
	for i, n := range notes {
		pcs[i] = pitch.PitchClass(pitch.Mod12(n))
	}
	bass := pitch.PitchClass(pitch.Mod12(slices.Min(notes)))

	return NewChord(pcs, bass, onset, duration)
}
