package tonal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/RyanBlaney/sonido-harmony/algorithms/chroma"
	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/algorithms/stats"
	"github.com/RyanBlaney/sonido-harmony/logging"
)

// KeyProfile selects the key-profile templates
type KeyProfile int

const (
	KeyProfileKrumhansl KeyProfile = iota
	KeyProfileTemperley
	KeyProfileAardenEssen
	KeyProfileDiatonic
)

// KeyMode represents major or minor mode
type KeyMode int

const (
	KeyModeMajor KeyMode = iota
	KeyModeMinor
)

func (m KeyMode) String() string {
	if m == KeyModeMinor {
		return "minor"
	}
	return "major"
}

// MarshalText encodes the mode as "major" or "minor"
func (m KeyMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes "major" or "minor"
func (m *KeyMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "major", "maj":
		*m = KeyModeMajor
	case "minor", "min":
		*m = KeyModeMinor
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, text)
	}
	return nil
}

// Key is a tonal center: one of the 24 major/minor key hypotheses
type Key struct {
	Tonic pitch.PitchClass `json:"tonic"`
	Mode  KeyMode          `json:"mode"`
}

func (k Key) String() string {
	return k.Tonic.String() + " " + k.Mode.String()
}

// Relative returns the relative major/minor key
func (k Key) Relative() Key {
	if k.Mode == KeyModeMajor {
		return Key{Tonic: k.Tonic.Transpose(-3), Mode: KeyModeMinor}
	}
	return Key{Tonic: k.Tonic.Transpose(3), Mode: KeyModeMajor}
}

// Parallel returns the key on the same tonic in the other mode
func (k Key) Parallel() Key {
	if k.Mode == KeyModeMajor {
		return Key{Tonic: k.Tonic, Mode: KeyModeMinor}
	}
	return Key{Tonic: k.Tonic, Mode: KeyModeMajor}
}

// Dominant returns the key a fifth above in the same mode
func (k Key) Dominant() Key {
	return Key{Tonic: k.Tonic.Transpose(7), Mode: k.Mode}
}

// Subdominant returns the key a fifth below in the same mode
func (k Key) Subdominant() Key {
	return Key{Tonic: k.Tonic.Transpose(-7), Mode: k.Mode}
}

// IsCloselyRelated reports whether other is k itself or its relative,
// parallel, dominant or subdominant key
func (k Key) IsCloselyRelated(other Key) bool {
	for _, related := range []Key{k, k.Relative(), k.Parallel(), k.Dominant(), k.Subdominant()} {
		if other == related {
			return true
		}
	}
	return false
}

// ParseKey parses "C major", "f# minor", "Bb" (major) or "Am"/"am" (minor)
func ParseKey(s string) (Key, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return Key{}, fmt.Errorf("%w: cannot parse key %q", ErrInvalidInput, s)
	}

	tonicName := fields[0]
	mode := KeyModeMajor
	if len(fields) == 2 {
		if err := mode.UnmarshalText([]byte(fields[1])); err != nil {
			return Key{}, err
		}
	} else if len(tonicName) > 1 && strings.HasSuffix(tonicName, "m") {
		tonicName = strings.TrimSuffix(tonicName, "m")
		mode = KeyModeMinor
	}

	tonic, err := pitch.ParsePitchClass(tonicName)
	if err != nil {
		return Key{}, err
	}
	return Key{Tonic: tonic, Mode: mode}, nil
}

// AllKeys lists the 24 hypotheses in tie-break order: major C..B, then minor C..B
func AllKeys() []Key {
	keys := make([]Key, 0, 2*pitch.NumPitchClasses)
	for _, mode := range []KeyMode{KeyModeMajor, KeyModeMinor} {
		for tonic := 0; tonic < pitch.NumPitchClasses; tonic++ {
			keys = append(keys, Key{Tonic: pitch.PitchClass(tonic), Mode: mode})
		}
	}
	return keys
}

// KeyProfileTemplate holds major and minor weights with index 0 on the tonic
type KeyProfileTemplate struct {
	MajorProfile [pitch.NumPitchClasses]float64 `json:"major_profile"`
	MinorProfile [pitch.NumPitchClasses]float64 `json:"minor_profile"`
	Name         string                         `json:"name"`
	Description  string                         `json:"description"`
}

var keyProfiles = map[KeyProfile]*KeyProfileTemplate{
	KeyProfileKrumhansl: {
		MajorProfile: [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88},
		MinorProfile: [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17},
		Name:         "krumhansl",
		Description:  "Krumhansl-Kessler probe-tone ratings",
	},
	KeyProfileTemperley: {
		MajorProfile: [12]float64{5.0, 2.0, 3.5, 2.0, 4.5, 4.0, 2.0, 4.5, 2.0, 3.5, 1.5, 4.0},
		MinorProfile: [12]float64{5.0, 2.0, 3.5, 4.5, 2.0, 4.0, 2.0, 4.5, 3.5, 2.0, 1.5, 4.0},
		Name:         "temperley",
		Description:  "Temperley corpus-derived weights",
	},
	KeyProfileAardenEssen: {
		MajorProfile: [12]float64{17.7661, 0.145624, 14.9265, 0.160186, 19.8049, 11.3587, 0.291248, 22.062, 0.145624, 8.15494, 0.232998, 4.95122},
		MinorProfile: [12]float64{18.2648, 0.737619, 14.0499, 16.8599, 0.702494, 14.4362, 0.702494, 18.6161, 4.56621, 1.93186, 7.37619, 1.75623},
		Name:         "aarden-essen",
		Description:  "Aarden-Essen folk song corpus frequencies",
	},
	KeyProfileDiatonic: {
		MajorProfile: [12]float64{5.0, 0.0, 3.0, 0.0, 4.0, 3.5, 0.0, 4.5, 0.0, 3.0, 0.0, 2.0},
		MinorProfile: [12]float64{5.0, 0.0, 3.0, 3.5, 0.0, 3.5, 0.0, 4.5, 3.0, 0.0, 2.0, 0.0},
		Name:         "simple",
		Description:  "Simple diatonic scale weights",
	},
}

func (p KeyProfile) String() string {
	if t, ok := keyProfiles[p]; ok {
		return t.Name
	}
	return "unknown"
}

// ParseKeyProfile maps a configuration name to a profile
func ParseKeyProfile(name string) (KeyProfile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "krumhansl", "krumhansl-kessler", "krumhansl-schmuckler":
		return KeyProfileKrumhansl, nil
	case "temperley":
		return KeyProfileTemperley, nil
	case "aarden-essen", "aarden", "essen", "edma":
		return KeyProfileAardenEssen, nil
	case "simple", "diatonic":
		return KeyProfileDiatonic, nil
	default:
		return KeyProfileKrumhansl, fmt.Errorf("%w: unknown key profile %q", ErrInvalidInput, name)
	}
}

// GetSupportedProfiles returns the accepted profile names
func GetSupportedProfiles() []string {
	return []string{"krumhansl", "temperley", "aarden-essen", "simple"}
}

// Template returns the profile's template rotated so that index 0 of the
// template lands on the key's tonic: rotated[pc] = template[(pc - tonic) mod 12]
func (p KeyProfile) Template(key Key) [pitch.NumPitchClasses]float64 {
	t, ok := keyProfiles[p]
	if !ok {
		t = keyProfiles[KeyProfileKrumhansl]
	}
	base := t.MajorProfile
	if key.Mode == KeyModeMinor {
		base = t.MinorProfile
	}

	var rotated [pitch.NumPitchClasses]float64
	for pc := range rotated {
		rotated[pc] = base[pitch.Mod12(pc-int(key.Tonic))]
	}
	return rotated
}

// KeyCandidate is one scored key hypothesis
type KeyCandidate struct {
	Key         Key     `json:"key"`
	Correlation float64 `json:"correlation"`
}

// KeyEstimate is the winning key with its score
type KeyEstimate struct {
	Key         Key            `json:"key"`
	Name        string         `json:"name"`
	Correlation float64        `json:"correlation"` // Pearson r of the winner, in [-1, 1]
	Clarity     float64        `json:"clarity"`     // winner minus runner-up
	Profile     string         `json:"profile"`
	Candidates  []KeyCandidate `json:"candidates,omitempty"` // all 24, best first
}

// Confidence is the winning correlation
func (e *KeyEstimate) Confidence() float64 {
	return e.Correlation
}

// KeyEstimator correlates pitch class profiles with the 24 rotated key templates
type KeyEstimator struct {
	profile   KeyProfile
	templates [][pitch.NumPitchClasses]float64 // indexed like AllKeys
	keys      []Key
	logger    logging.Logger
}

// NewKeyEstimator creates an estimator for the given key profile
func NewKeyEstimator(profile KeyProfile) *KeyEstimator {
	if _, ok := keyProfiles[profile]; !ok {
		profile = KeyProfileKrumhansl
	}

	keys := AllKeys()
	templates := make([][pitch.NumPitchClasses]float64, len(keys))
	for i, key := range keys {
		templates[i] = profile.Template(key)
	}

	return &KeyEstimator{
		profile:   profile,
		templates: templates,
		keys:      keys,
		logger: logging.WithFields(logging.Fields{
			"component": "key_estimator",
			"profile":   profile.String(),
		}),
	}
}

// Profile returns the template family in use
func (ke *KeyEstimator) Profile() KeyProfile {
	return ke.profile
}

// Estimate returns the key whose rotated template correlates best with the
// profile. Exact ties resolve in AllKeys order (major before minor, then the
// lower tonic). A silent or perfectly flat profile is ErrUndeterminedKey.
func (ke *KeyEstimator) Estimate(profile chroma.PitchClassProfile) (*KeyEstimate, error) {
	if profile.IsSilent() {
		return nil, fmt.Errorf("%w: silent profile", ErrUndeterminedKey)
	}

	input := profile.Slice()
	candidates := make([]KeyCandidate, len(ke.keys))

	for i, key := range ke.keys {
		r, ok := stats.Pearson(input, ke.templates[i][:])
		if !ok {
			return nil, fmt.Errorf("%w: profile has no variance", ErrUndeterminedKey)
		}
		candidates[i] = KeyCandidate{Key: key, Correlation: r}
	}

	winner := candidates[bestCandidate(candidates)]

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Correlation > candidates[j].Correlation
	})

	estimate := &KeyEstimate{
		Key:         winner.Key,
		Name:        winner.Key.String(),
		Correlation: winner.Correlation,
		Clarity:     calculateClarity(candidates),
		Profile:     ke.profile.String(),
		Candidates:  candidates,
	}

	ke.logger.Debug("key estimated", logging.Fields{
		"key":         estimate.Name,
		"correlation": estimate.Correlation,
		"clarity":     estimate.Clarity,
	})

	return estimate, nil
}

// WindowKey is the local key of one window. Windows without usable evidence
// carry their error instead of an estimate.
type WindowKey struct {
	Index    int          `json:"index"`
	Estimate *KeyEstimate `json:"estimate,omitempty"`
	Err      error        `json:"-"`
}

// EstimateWindows estimates a key per window profile. An undetermined window
// does not stop the others.
func (ke *KeyEstimator) EstimateWindows(profiles []chroma.PitchClassProfile) []WindowKey {
	keys := make([]WindowKey, len(profiles))
	for i, p := range profiles {
		estimate, err := ke.Estimate(p)
		if estimate != nil {
			// the ranking is rarely wanted per window
			estimate.Candidates = nil
		}
		keys[i] = WindowKey{Index: i, Estimate: estimate, Err: err}
	}
	return keys
}

// bestCandidate returns the index of the highest correlation. Only a strictly
// greater score replaces the current best, so ties keep the earliest entry.
func bestCandidate(candidates []KeyCandidate) int {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Correlation > candidates[best].Correlation {
			best = i
		}
	}
	return best
}

// calculateClarity is the gap between the best and second best correlation.
// Candidates must already be sorted best first.
func calculateClarity(candidates []KeyCandidate) float64 {
	if len(candidates) < 2 {
		return 0.0
	}
	return candidates[0].Correlation - candidates[1].Correlation
}
