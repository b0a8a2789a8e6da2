package tonal

import (
	"fmt"
	"slices"
	"strings"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
)

// FigureStyle selects how inversion figures are written
type FigureStyle int

const (
	// FigureStyleSlashed writes "6/4", "6/5", "4/3", "4/2"
	FigureStyleSlashed FigureStyle = iota
	// FigureStyleCompact writes "64", "65", "43", "42"
	FigureStyleCompact
)

func (s FigureStyle) String() string {
	if s == FigureStyleCompact {
		return "compact"
	}
	return "slashed"
}

// ParseFigureStyle maps a configuration name to a style
func ParseFigureStyle(name string) (FigureStyle, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "slashed", "slash":
		return FigureStyleSlashed, nil
	case "compact":
		return FigureStyleCompact, nil
	default:
		return FigureStyleSlashed, fmt.Errorf("%w: unknown figure style %q", ErrInvalidInput, name)
	}
}

// RomanNumeralLabel is the functional reading of a chord within a key
type RomanNumeralLabel struct {
	ScaleDegree   int                `json:"scale_degree"` // 1..7
	Accidental    int                `json:"accidental"`   // -1 flat, 0, +1 sharp relative to the mode's degree
	Root          pitch.PitchClass   `json:"root"`
	Quality       ChordQuality       `json:"quality"`
	Inversion     int                `json:"inversion"` // 0 root position, 1 third, 2 fifth, 3 seventh in the bass
	Figure        string             `json:"figure"`
	NonChordTones []pitch.PitchClass `json:"non_chord_tones,omitempty"`
}

type degree struct {
	number     int
	accidental int
}

// scale degree of each root interval above the tonic
var majorDegrees = [pitch.NumPitchClasses]degree{
	0: {1, 0}, 1: {2, -1}, 2: {2, 0}, 3: {3, -1}, 4: {3, 0}, 5: {4, 0},
	6: {4, 1}, 7: {5, 0}, 8: {6, -1}, 9: {6, 0}, 10: {7, -1}, 11: {7, 0},
}

// in minor both the natural and the raised sixth and seventh are diatonic
var minorDegrees = [pitch.NumPitchClasses]degree{
	0: {1, 0}, 1: {2, -1}, 2: {2, 0}, 3: {3, 0}, 4: {3, 1}, 5: {4, 0},
	6: {4, 1}, 7: {5, 0}, 8: {6, 0}, 9: {6, 0}, 10: {7, 0}, 11: {7, 0},
}

var numerals = [...]string{"I", "II", "III", "IV", "V", "VI", "VII"}

var inversionFigures = map[FigureStyle][2][4]string{
	FigureStyleSlashed: {
		{"", "6", "6/4", ""},
		{"7", "6/5", "4/3", "4/2"},
	},
	FigureStyleCompact: {
		{"", "6", "64", ""},
		{"7", "65", "43", "42"},
	},
}

// RomanNumeralLabeler turns (chord, key) pairs into Roman numeral labels.
// It holds no state besides its style and is safe for concurrent use.
type RomanNumeralLabeler struct {
	style FigureStyle
}

// NewRomanNumeralLabeler creates a labeler writing figures in the given style
func NewRomanNumeralLabeler(style FigureStyle) *RomanNumeralLabeler {
	return &RomanNumeralLabeler{style: style}
}

var defaultLabeler = NewRomanNumeralLabeler(FigureStyleSlashed)

// Label labels a chord with the default slashed figure style
func Label(chord ChordSimultaneity, key Key) (*RomanNumeralLabel, error) {
	return defaultLabeler.Label(chord, key)
}

// Label finds the chord's root and quality, places the root on a scale
// degree of the key and writes the figure, e.g. "V6/5" or "vii°6".
//
// A bass of NoPitch on a sounding chord means the bass is unknown: the lowest
// pitch class wins root ties and the chord reads as root position.
func (l *RomanNumeralLabeler) Label(chord ChordSimultaneity, key Key) (*RomanNumeralLabel, error) {
	if !key.Tonic.Valid() || (key.Mode != KeyModeMajor && key.Mode != KeyModeMinor) {
		return nil, fmt.Errorf("%w: key %d/%d", ErrInvalidInput, key.Tonic, key.Mode)
	}

	pcs := slices.Clone(chord.PitchClasses)
	slices.Sort(pcs)
	pcs = slices.Compact(pcs)
	for _, pc := range pcs {
		if !pc.Valid() {
			return nil, fmt.Errorf("%w: pitch class %d out of range 0-11", ErrInvalidInput, pc)
		}
	}

	if len(pcs) == 0 {
		return nil, ErrEmptySimultaneity
	}
	if len(pcs) < 3 {
		return nil, fmt.Errorf("%w: only %d distinct pitch classes", ErrIncompleteChord, len(pcs))
	}

	bass := chord.Bass
	if bass != pitch.NoPitch && !slices.Contains(pcs, bass) {
		return nil, fmt.Errorf("%w: bass %s is not among the chord tones", ErrInvalidInput, bass)
	}

	root, tmpl, ok := findExactRoot(pcs, bass)
	if !ok {
		root, tmpl, ok = findBestFitRoot(pcs, bass)
		if !ok {
			return nil, fmt.Errorf("%w: no root explains three of %v", ErrIncompleteChord, pcs)
		}
	}

	label := &RomanNumeralLabel{
		Root:          root,
		Quality:       tmpl.Quality,
		Inversion:     inversionOf(root, bass, tmpl),
		NonChordTones: nonChordTones(pcs, root, tmpl),
	}

	degrees := majorDegrees
	if key.Mode == KeyModeMinor {
		degrees = minorDegrees
	}
	d := degrees[key.Tonic.IntervalTo(root)]
	label.ScaleDegree = d.number
	label.Accidental = d.accidental
	label.Figure = l.figure(d, tmpl.Quality, label.Inversion)

	return label, nil
}

// intervalSet returns the intervals of pcs above root as a bitmask
func intervalSet(pcs []pitch.PitchClass, root pitch.PitchClass) uint16 {
	var set uint16
	for _, pc := range pcs {
		set |= 1 << root.IntervalTo(pc)
	}
	return set
}

func templateSet(t *ChordTemplate) uint16 {
	var set uint16
	for _, iv := range t.Intervals {
		set |= 1 << iv
	}
	return set
}

// findExactRoot tries every chord tone as a root against the quality table.
// Symmetric chords qualify on several roots; the bass wins, else the lowest
// pitch class.
func findExactRoot(pcs []pitch.PitchClass, bass pitch.PitchClass) (pitch.PitchClass, *ChordTemplate, bool) {
	var (
		bestRoot pitch.PitchClass
		bestTmpl *ChordTemplate
	)
	for _, root := range pcs {
		set := intervalSet(pcs, root)
		for i := range chordTemplates {
			if templateSet(&chordTemplates[i]) != set {
				continue
			}
			if bestTmpl == nil || root == bass {
				bestRoot, bestTmpl = root, &chordTemplates[i]
			}
		}
	}
	return bestRoot, bestTmpl, bestTmpl != nil
}

// findBestFitRoot scores every (root, quality) pair as matched chord tones
// minus foreign tones, with at least three matched. Ties prefer the bass as
// root, then table order, then the lower pitch class.
func findBestFitRoot(pcs []pitch.PitchClass, bass pitch.PitchClass) (pitch.PitchClass, *ChordTemplate, bool) {
	type fit struct {
		root  pitch.PitchClass
		index int
		score int
	}

	better := func(a, b fit) bool {
		if a.score != b.score {
			return a.score > b.score
		}
		if (a.root == bass) != (b.root == bass) {
			return a.root == bass
		}
		if a.index != b.index {
			return a.index < b.index
		}
		return a.root < b.root
	}

	var best *fit
	for _, root := range pcs {
		set := intervalSet(pcs, root)
		for i := range chordTemplates {
			matched := popcount(set & templateSet(&chordTemplates[i]))
			if matched < 3 {
				continue
			}
			candidate := fit{root: root, index: i, score: matched - (len(pcs) - matched)}
			if best == nil || better(candidate, *best) {
				best = &candidate
			}
		}
	}

	if best == nil {
		return pitch.NoPitch, nil, false
	}
	return best.root, &chordTemplates[best.index], true
}

func popcount(set uint16) int {
	n := 0
	for ; set != 0; set &= set - 1 {
		n++
	}
	return n
}

// inversionOf is the position of the bass within the chord's stack of thirds.
// A bass outside the template reads as root position.
func inversionOf(root, bass pitch.PitchClass, tmpl *ChordTemplate) int {
	if !bass.Valid() {
		return 0
	}
	if idx := slices.Index(tmpl.Intervals, root.IntervalTo(bass)); idx > 0 {
		return idx
	}
	return 0
}

func nonChordTones(pcs []pitch.PitchClass, root pitch.PitchClass, tmpl *ChordTemplate) []pitch.PitchClass {
	var foreign []pitch.PitchClass
	for _, pc := range pcs {
		if !slices.Contains(tmpl.Intervals, root.IntervalTo(pc)) {
			foreign = append(foreign, pc)
		}
	}
	return foreign
}

func (l *RomanNumeralLabeler) figure(d degree, quality ChordQuality, inversion int) string {
	var b strings.Builder

	switch d.accidental {
	case -1:
		b.WriteString("♭")
	case 1:
		b.WriteString("♯")
	}

	numeral := numerals[d.number-1]
	switch quality {
	case ChordMajor, ChordAugmented, ChordDom7, ChordMaj7, ChordAug7:
		b.WriteString(numeral)
	default:
		b.WriteString(strings.ToLower(numeral))
	}

	switch quality {
	case ChordDiminished, ChordDim7:
		b.WriteString("°")
	case ChordHalfDim7:
		b.WriteString("ø")
	case ChordAugmented, ChordAug7:
		b.WriteString("+")
	}

	figures, ok := inversionFigures[l.style]
	if !ok {
		figures = inversionFigures[FigureStyleSlashed]
	}
	row := 0
	if quality.IsSeventh() {
		row = 1
	}
	b.WriteString(figures[row][inversion])

	return b.String()
}
