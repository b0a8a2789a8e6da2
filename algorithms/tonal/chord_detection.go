package tonal

import (
	"fmt"
	"sort"

	"github.com/RyanBlaney/sonido-harmony/algorithms/chroma"
	"github.com/RyanBlaney/sonido-harmony/algorithms/common"
	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/logging"
)

// ChordCandidate is a (root, quality) hypothesis scored against a chroma profile
type ChordCandidate struct {
	Root      pitch.PitchClass `json:"root"`
	Quality   ChordQuality     `json:"quality"`
	ChordName string           `json:"chord_name"`
	Score     float64          `json:"score"` // cosine similarity with the binary template, 0..1
}

// Simultaneity turns the candidate into a root-position chord spanning the given time
func (c ChordCandidate) Simultaneity(onset, duration pitch.Time) ChordSimultaneity {
	intervals := c.Quality.Intervals()
	pcs := make([]pitch.PitchClass, len(intervals))
	for i, iv := range intervals {
		pcs[i] = c.Root.Transpose(iv)
	}
	return NewChord(pcs, c.Root, onset, duration)
}

// ChordDetector matches window profiles against rotated chord templates.
// Audio carries no reliable bass, so detected chords are always root position.
type ChordDetector struct {
	minScore float64
	patterns [][]float64 // template index * 12 + root
	logger   logging.Logger
}

// DefaultMinChordScore is the lowest score accepted as a chord
const DefaultMinChordScore = 0.6

// NewChordDetector creates a detector rejecting matches below minScore
func NewChordDetector(minScore float64) *ChordDetector {
	cd := &ChordDetector{
		minScore: minScore,
		logger: logging.WithFields(logging.Fields{
			"component": "chord_detector",
		}),
	}
	cd.initializeTemplates()
	return cd
}

// initializeTemplates precomputes the binary pattern of every quality at every root
func (cd *ChordDetector) initializeTemplates() {
	cd.patterns = make([][]float64, 0, len(chordTemplates)*pitch.NumPitchClasses)
	for _, t := range chordTemplates {
		base := make([]float64, pitch.NumPitchClasses)
		for _, iv := range t.Intervals {
			base[iv] = 1.0
		}
		for root := 0; root < pitch.NumPitchClasses; root++ {
			cd.patterns = append(cd.patterns, rotatePattern(base, root))
		}
	}
}

// rotatePattern moves index 0 of the pattern onto the given root
func rotatePattern(pattern []float64, root int) []float64 {
	result := make([]float64, len(pattern))
	for i, val := range pattern {
		result[pitch.Mod12(i+root)] = val
	}
	return result
}

// Candidates scores every quality at every root, best first. Equal scores keep
// table order, then the lower root.
func (cd *ChordDetector) Candidates(profile chroma.PitchClassProfile) []ChordCandidate {
	input := profile.Slice()
	candidates := make([]ChordCandidate, 0, len(cd.patterns))

	for i, pattern := range cd.patterns {
		quality := chordTemplates[i/pitch.NumPitchClasses].Quality
		root := pitch.PitchClass(i % pitch.NumPitchClasses)
		candidates = append(candidates, ChordCandidate{
			Root:      root,
			Quality:   quality,
			ChordName: ChordName(root, quality),
			Score:     common.CosineSimilarity(input, pattern),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// Detect returns the best matching chord. A silent profile is
// ErrEmptySimultaneity; a best score under the threshold is ErrIncompleteChord.
func (cd *ChordDetector) Detect(profile chroma.PitchClassProfile) (*ChordCandidate, error) {
	if profile.IsSilent() {
		return nil, ErrEmptySimultaneity
	}

	best := cd.Candidates(profile)[0]
	if best.Score < cd.minScore {
		cd.logger.Debug("no chord above threshold", logging.Fields{
			"best":      best.ChordName,
			"score":     best.Score,
			"min_score": cd.minScore,
		})
		return nil, fmt.Errorf("%w: best match %s scores %.3f, below %.3f", ErrIncompleteChord, best.ChordName, best.Score, cd.minScore)
	}

	return &best, nil
}
