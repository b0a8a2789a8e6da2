package transcode

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"gitlab.com/gomidi/midi/v2/smf"
)

// drumChannel is General MIDI channel 10, zero-based
const drumChannel = 9

// MIDIOptions controls how a Standard MIDI File becomes pitch events
type MIDIOptions struct {
	// IncludeDrums keeps notes on the General MIDI percussion channel
	IncludeDrums bool `json:"include_drums"`
}

// IsMIDIFile reports whether the path looks like a Standard MIDI File
func IsMIDIFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mid", ".midi":
		return true
	}
	return false
}

// ReadMIDIFile loads a Standard MIDI File from disk
func ReadMIDIFile(path string, opts MIDIOptions) ([]pitch.PitchEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return ReadMIDI(bytes.NewReader(data), opts)
}

// ReadMIDI parses a Standard MIDI File. The parser can panic on corrupt
// input, so panics are turned into ErrDecodeFailed.
func ReadMIDI(r io.Reader, opts MIDIOptions) (events []pitch.PitchEvent, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			events = nil
			err = fmt.Errorf("%w: midi parser panic: %v", ErrDecodeFailed, rec)
		}
	}()

	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing midi: %w", ErrDecodeFailed, err)
	}
	return EventsFromSMF(s, opts), nil
}

type noteKey struct {
	channel uint8
	key     uint8
}

// EventsFromSMF flattens every track of s into pitch events sorted by onset
// then MIDI note. Metric files are timed in quarter-note beats (ticks over
// resolution, exact); SMPTE files in seconds. A note-on with velocity 0 is a
// note-off, overlapping notes on one key close first-in first-out, and notes
// still held at the end of their track close at the track's last tick.
func EventsFromSMF(s *smf.SMF, opts MIDIOptions) []pitch.PitchEvent {
	toTime := tickTimer(s)

	var events []pitch.PitchEvent
	for _, track := range s.Tracks {
		var absTicks int64
		held := make(map[noteKey][]int64)

		for _, event := range track {
			absTicks += int64(event.Delta)

			var channel, key, velocity uint8
			isOn := event.Message.GetNoteOn(&channel, &key, &velocity)
			isOff := false
			if isOn && velocity == 0 {
				isOn, isOff = false, true
			} else if !isOn {
				isOff = event.Message.GetNoteOff(&channel, &key, &velocity)
			}
			if (!isOn && !isOff) || (channel == drumChannel && !opts.IncludeDrums) {
				continue
			}

			nk := noteKey{channel: channel, key: key}
			if isOn {
				held[nk] = append(held[nk], absTicks)
				continue
			}
			starts := held[nk]
			if len(starts) == 0 {
				continue
			}
			held[nk] = starts[1:]
			events = append(events, noteEvent(key, starts[0], absTicks, toTime))
		}

		for nk, starts := range held {
			for _, start := range starts {
				events = append(events, noteEvent(nk.key, start, absTicks, toTime))
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if c := events[i].Onset.Cmp(events[j].Onset); c != 0 {
			return c < 0
		}
		return events[i].MIDINote() < events[j].MIDINote()
	})
	return events
}

func noteEvent(key uint8, startTick, endTick int64, toTime func(int64) pitch.Time) pitch.PitchEvent {
	onset := toTime(startTick)
	return pitch.FromMIDINote(key, onset, toTime(endTick).Sub(onset))
}

// tickTimer converts absolute ticks into timeline positions
func tickTimer(s *smf.SMF) func(int64) pitch.Time {
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok && mt.Resolution() > 0 {
		ppq := int64(mt.Resolution())
		return func(ticks int64) pitch.Time {
			return pitch.NewTime(ticks, ppq)
		}
	}
	return func(ticks int64) pitch.Time {
		return pitch.NewTime(s.TimeAt(ticks), 1_000_000) // microseconds
	}
}
