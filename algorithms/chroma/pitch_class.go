package chroma

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-harmony/algorithms/common"
	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"gonum.org/v1/gonum/floats"
)

// PitchClassProfile is a 12-bin pitch class distribution (index 0 = C).
// Weights are non-negative; the sum is the total pitch mass (beats or energy).
type PitchClassProfile [pitch.NumPitchClasses]float64

// WindowProfile is the profile of one time window
type WindowProfile struct {
	Start   pitch.Time        `json:"start"`
	End     pitch.Time        `json:"end"`
	Profile PitchClassProfile `json:"profile"`
}

// ProfileStats holds derived measures of a profile
type ProfileStats struct {
	Entropy    float64 `json:"entropy"`    // Shannon entropy (bits) of the normalized profile
	Centroid   float64 `json:"centroid"`   // circular centroid in pitch class units
	Spread     float64 `json:"spread"`     // spread around the centroid
	Uniformity float64 `json:"uniformity"` // 1 = perfectly flat
}

// Slice returns the profile as a slice sharing no memory with p
func (p PitchClassProfile) Slice() []float64 {
	out := make([]float64, len(p))
	copy(out, p[:])
	return out
}

// Sum returns the total mass
func (p PitchClassProfile) Sum() float64 {
	return common.Sum(p[:])
}

// IsSilent reports whether the profile carries no mass at all
func (p PitchClassProfile) IsSilent() bool {
	for _, v := range p {
		if v != 0 {
			return false
		}
	}
	return true
}

// Normalized returns the profile scaled to sum 1. A silent profile stays silent.
func (p PitchClassProfile) Normalized() PitchClassProfile {
	var out PitchClassProfile
	copy(out[:], common.SumNormalize(p[:]))
	return out
}

// Transpose moves every weight up by semitones
func (p PitchClassProfile) Transpose(semitones int) PitchClassProfile {
	var out PitchClassProfile
	for pc, v := range p {
		out[pitch.Mod12(pc+semitones)] = v
	}
	return out
}

// Add returns the bin-wise sum of two profiles
func (p PitchClassProfile) Add(other PitchClassProfile) PitchClassProfile {
	out := p
	floats.Add(out[:], other[:])
	return out
}

// Strongest returns the pitch class with the most mass, NoPitch when silent
func (p PitchClassProfile) Strongest() pitch.PitchClass {
	if p.IsSilent() {
		return pitch.NoPitch
	}
	return pitch.PitchClass(common.ArgMax(p[:]))
}

// ProfileEvents accumulates the duration of every sounding event into its
// pitch class bin. Rests and zero-length events add nothing, so an empty or
// all-rest input yields a silent profile.
func ProfileEvents(events []pitch.PitchEvent) (PitchClassProfile, error) {
	var profile PitchClassProfile
	if err := pitch.ValidateEvents(events); err != nil {
		return profile, err
	}

	for _, e := range events {
		if !e.Sounds() {
			continue
		}
		profile[e.PitchClass] += e.Duration.Float64()
	}

	return profile, nil
}

// ProfileWindows splits the timespan of the events into consecutive windows
// of the given length, starting at the earliest onset, and profiles each one.
// An event contributes only the part of its duration that overlaps a window.
// The last window is cut at the end of the timespan.
func ProfileWindows(events []pitch.PitchEvent, window pitch.Time) ([]WindowProfile, error) {
	if window.Sign() <= 0 {
		return nil, fmt.Errorf("%w: window length %s must be positive", pitch.ErrInvalidInput, window)
	}
	if err := pitch.ValidateEvents(events); err != nil {
		return nil, err
	}

	start, end, ok := pitch.Timespan(events)
	if !ok {
		return nil, nil
	}

	var windows []WindowProfile
	for ws := start; ws.Before(end); ws = ws.Add(window) {
		we := pitch.MinTime(ws.Add(window), end)
		wp := WindowProfile{Start: ws, End: we}

		for _, e := range events {
			if !e.Sounds() {
				continue
			}
			overlap := pitch.MinTime(e.End(), we).Sub(pitch.MaxTime(e.Onset, ws))
			if overlap.Sign() > 0 {
				wp.Profile[e.PitchClass] += overlap.Float64()
			}
		}

		windows = append(windows, wp)
	}

	return windows, nil
}

// ProfileChromagram sums the energy of 12-bin chroma frames into one profile.
// Frames must not be normalized beforehand or the energy weighting is lost.
func ProfileChromagram(frames [][]float64) (PitchClassProfile, error) {
	var profile PitchClassProfile
	for i, frame := range frames {
		if err := checkFrame(frame); err != nil {
			return profile, fmt.Errorf("frame %d: %w", i, err)
		}
		floats.Add(profile[:], frame)
	}
	return profile, nil
}

// ChunkChromagram groups framesPerWindow consecutive frames into one profile
// each. The final chunk may be shorter.
func ChunkChromagram(frames [][]float64, framesPerWindow int) ([]PitchClassProfile, error) {
	if framesPerWindow <= 0 {
		return nil, fmt.Errorf("%w: frames per window must be positive, got %d", pitch.ErrInvalidInput, framesPerWindow)
	}

	chunks := make([]PitchClassProfile, 0, (len(frames)+framesPerWindow-1)/framesPerWindow)
	for start := 0; start < len(frames); start += framesPerWindow {
		end := min(start+framesPerWindow, len(frames))
		profile, err := ProfileChromagram(frames[start:end])
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", len(chunks), err)
		}
		chunks = append(chunks, profile)
	}

	return chunks, nil
}

func checkFrame(frame []float64) error {
	if len(frame) != pitch.NumPitchClasses {
		return fmt.Errorf("%w: chroma frame has %d bins, want %d", pitch.ErrInvalidInput, len(frame), pitch.NumPitchClasses)
	}
	for _, v := range frame {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: chroma bin value %v", pitch.ErrInvalidInput, v)
		}
	}
	return nil
}

// Stats computes the derived measures of the normalized profile
func (p PitchClassProfile) Stats() ProfileStats {
	n := p.Normalized()
	centroid := calculateCentroid(n)
	return ProfileStats{
		Entropy:    calculateEntropy(n),
		Centroid:   centroid,
		Spread:     calculateSpread(n, centroid),
		Uniformity: calculateUniformity(n),
	}
}

// calculateEntropy calculates Shannon entropy of pitch class distribution
func calculateEntropy(profile PitchClassProfile) float64 {
	entropy := 0.0
	for _, prob := range profile {
		if prob > 1e-10 {
			entropy -= prob * math.Log2(prob)
		}
	}
	return entropy
}

// calculateCentroid uses the circular mean since pitch classes wrap around
func calculateCentroid(profile PitchClassProfile) float64 {
	sumSin := 0.0
	sumCos := 0.0

	for pc, weight := range profile {
		angle := 2.0 * math.Pi * float64(pc) / 12.0
		sumSin += weight * math.Sin(angle)
		sumCos += weight * math.Cos(angle)
	}

	centroidAngle := math.Atan2(sumSin, sumCos)
	if centroidAngle < 0 {
		centroidAngle += 2.0 * math.Pi
	}

	return centroidAngle * 12.0 / (2.0 * math.Pi)
}

func calculateSpread(profile PitchClassProfile, centroid float64) float64 {
	sumWeightedDistance := 0.0
	totalWeight := 0.0

	for pc, weight := range profile {
		// Circular distance
		distance := math.Min(
			math.Abs(float64(pc)-centroid),
			12.0-math.Abs(float64(pc)-centroid),
		)
		sumWeightedDistance += weight * distance * distance
		totalWeight += weight
	}

	if totalWeight > 1e-10 {
		return math.Sqrt(sumWeightedDistance / totalWeight)
	}
	return 0.0
}

// calculateUniformity is 1 minus the standard deviation relative to the flat distribution
func calculateUniformity(profile PitchClassProfile) float64 {
	mean := 1.0 / 12.0
	variance := 0.0

	for _, val := range profile {
		diff := val - mean
		variance += diff * diff
	}
	variance /= 12.0

	return 1.0 - math.Sqrt(variance/(mean*mean))
}
