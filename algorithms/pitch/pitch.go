package pitch

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/constraints"
)

// ErrInvalidInput marks a malformed event: pitch class out of range,
// negative duration or negative onset.
var ErrInvalidInput = errors.New("invalid input")

// PitchClass is a pitch reduced modulo the octave (0=C, 1=C#, ..., 11=B)
type PitchClass int

// NoPitch is the bass of a segment where nothing sounds
const NoPitch PitchClass = -1

// NumPitchClasses is the size of the chromatic circle
const NumPitchClasses = 12

var pitchClassNames = [NumPitchClasses]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// flat spellings accepted by ParsePitchClass
var flatNames = map[string]PitchClass{
	"DB": 1, "EB": 3, "FB": 4, "GB": 6, "AB": 8, "BB": 10, "CB": 11,
	"E#": 5, "B#": 0,
}

// Valid reports whether pc is in 0..11
func (pc PitchClass) Valid() bool {
	return pc >= 0 && pc < NumPitchClasses
}

// Transpose moves the pitch class by semitones, wrapping around the octave
func (pc PitchClass) Transpose(semitones int) PitchClass {
	return PitchClass(Mod12(int(pc) + semitones))
}

// IntervalTo returns the ascending interval in semitones (0..11) from pc to other
func (pc PitchClass) IntervalTo(other PitchClass) int {
	return Mod12(int(other) - int(pc))
}

func (pc PitchClass) String() string {
	if !pc.Valid() {
		return "-"
	}
	return pitchClassNames[pc]
}

// ParsePitchClass parses names like "C", "F#", "Bb" or "eb"
func ParsePitchClass(name string) (PitchClass, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.NewReplacer("♯", "#", "♭", "B").Replace(n)
	for i, candidate := range pitchClassNames {
		if n == candidate {
			return PitchClass(i), nil
		}
	}
	if pc, ok := flatNames[n]; ok {
		return pc, nil
	}
	return NoPitch, fmt.Errorf("%w: unknown pitch class %q", ErrInvalidInput, name)
}

// Mod12 is a non-negative modulo 12
func Mod12[T constraints.Integer](n T) T {
	m := n % NumPitchClasses
	if m < 0 {
		m += NumPitchClasses
	}
	return m
}

// PitchEvent is a single note or rest on the timeline
type PitchEvent struct {
	PitchClass PitchClass `json:"pitch_class"`
	Octave     int        `json:"octave"`
	Onset      Time       `json:"onset"`
	Duration   Time       `json:"duration"`
	IsRest     bool       `json:"rest,omitempty"`
}

// FromMIDINote creates a sounding event from a MIDI key number (60 = C4)
func FromMIDINote[T constraints.Integer](note T, onset, duration Time) PitchEvent {
	n := int(note)
	octave := n/NumPitchClasses - 1
	if n < 0 && n%NumPitchClasses != 0 {
		octave--
	}
	return PitchEvent{
		PitchClass: PitchClass(Mod12(n)),
		Octave:     octave,
		Onset:      onset,
		Duration:   duration,
	}
}

// Rest creates a rest event
func Rest(onset, duration Time) PitchEvent {
	return PitchEvent{PitchClass: NoPitch, Onset: onset, Duration: duration, IsRest: true}
}

// End returns onset + duration
func (e PitchEvent) End() Time {
	return e.Onset.Add(e.Duration)
}

// MIDINote returns the absolute pitch as a MIDI key number
func (e PitchEvent) MIDINote() int {
	return (e.Octave+1)*NumPitchClasses + int(e.PitchClass)
}

// Sounds reports whether the event contributes pitch content
func (e PitchEvent) Sounds() bool {
	return !e.IsRest && e.Duration.Sign() > 0
}

// Validate checks the event invariants
func (e PitchEvent) Validate() error {
	if !e.IsRest && !e.PitchClass.Valid() {
		return fmt.Errorf("%w: pitch class %d out of range 0-11", ErrInvalidInput, e.PitchClass)
	}
	if e.Duration.Sign() < 0 {
		return fmt.Errorf("%w: negative duration %s", ErrInvalidInput, e.Duration)
	}
	if e.Onset.Sign() < 0 {
		return fmt.Errorf("%w: negative onset %s", ErrInvalidInput, e.Onset)
	}
	return nil
}

// ValidateEvents validates every event and reports the first failure with its index
func ValidateEvents(events []PitchEvent) error {
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	return nil
}

// Timespan returns the earliest onset and latest end over all events,
// rests included. ok is false for an empty input.
func Timespan(events []PitchEvent) (start, end Time, ok bool) {
	for i, e := range events {
		if i == 0 {
			start, end = e.Onset, e.End()
			continue
		}
		start = MinTime(start, e.Onset)
		end = MaxTime(end, e.End())
	}
	return start, end, len(events) > 0
}
