package analysis

import (
	"errors"
	"fmt"
	"sync"

	"github.com/RyanBlaney/sonido-harmony/algorithms/chroma"
	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/algorithms/tonal"
	"github.com/RyanBlaney/sonido-harmony/logging"
	"github.com/RyanBlaney/sonido-harmony/transcode"
)

// Analyzer runs the harmonic pipeline over symbolic or audio input.
// It holds no per-call state and is safe for concurrent use.
type Analyzer struct {
	opts      *Options
	estimator *tonal.KeyEstimator
	segmenter *tonal.HarmonicSegmenter
	labeler   *tonal.RomanNumeralLabeler
	detector  *tonal.ChordDetector
	logger    logging.Logger
}

// NewAnalyzer creates an analyzer; nil options mean DefaultOptions
func NewAnalyzer(opts *Options) (*Analyzer, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &Analyzer{
		opts:      opts,
		estimator: tonal.NewKeyEstimator(opts.KeyProfile),
		segmenter: tonal.NewHarmonicSegmenter(tonal.SegmenterOptions{MergeRepeated: opts.MergeRepeated}),
		labeler:   tonal.NewRomanNumeralLabeler(opts.FigureStyle),
		detector:  tonal.NewChordDetector(opts.Audio.MinChordScore),
		logger: logging.WithFields(logging.Fields{
			"component": "harmonic_analyzer",
		}),
	}, nil
}

// Options returns the analyzer's options
func (a *Analyzer) Options() Options {
	return *a.opts
}

// Label reads one chord in one key with the analyzer's figure style
func (a *Analyzer) Label(chord tonal.ChordSimultaneity, key tonal.Key) (*tonal.RomanNumeralLabel, error) {
	return a.labeler.Label(chord, key)
}

// Label reads one chord in one key with slashed figures
func Label(chord tonal.ChordSimultaneity, key tonal.Key) (*tonal.RomanNumeralLabel, error) {
	return tonal.Label(chord, key)
}

// AnalyzeSymbolic estimates the key of a note stream, cuts it into chord
// segments and labels every segment. Profiling and segmentation run
// concurrently. Rests become "-" entries and chords that cannot be read
// become "?" entries unless the options drop them.
func (a *Analyzer) AnalyzeSymbolic(events []pitch.PitchEvent) (*SymbolicResult, error) {
	if err := pitch.ValidateEvents(events); err != nil {
		return nil, err
	}

	logger := a.logger.WithFields(logging.Fields{
		"function": "AnalyzeSymbolic",
		"events":   len(events),
	})

	var (
		wg                      sync.WaitGroup
		profile                 chroma.PitchClassProfile
		chords                  []tonal.ChordSimultaneity
		windows                 []chroma.WindowProfile
		profileErr, segErr, wErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		profile, profileErr = chroma.ProfileEvents(events)
	}()
	go func() {
		defer wg.Done()
		chords, segErr = a.segmenter.Segment(events)
	}()
	if a.opts.LocalKeyWindow.Sign() > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			windows, wErr = chroma.ProfileWindows(events, a.opts.LocalKeyWindow)
		}()
	}
	wg.Wait()

	if err := errors.Join(profileErr, segErr, wErr); err != nil {
		return nil, err
	}

	key, err := a.estimator.Estimate(profile)
	if err != nil {
		logger.Debug("no key for event stream", logging.Fields{"error": err.Error()})
		return nil, err
	}

	result := &SymbolicResult{
		Key:     key,
		Profile: profile,
		Entries: make([]LabelEntry, 0, len(chords)),
	}

	if len(windows) > 0 {
		result.LocalKeys = a.localKeys(windows)
	}

	for _, chord := range chords {
		entry, err := a.labelEntry(chord, result.keyAt(chord.Onset))
		if err != nil {
			return nil, fmt.Errorf("labeling chord at %s: %w", chord.Onset, err)
		}
		if (entry.Status == StatusRest && a.opts.DropRests) ||
			(entry.Status == StatusIncomplete && a.opts.DropIncomplete) {
			continue
		}
		result.Entries = append(result.Entries, entry)
	}

	logger.Debug("symbolic analysis completed", logging.Fields{
		"key":        key.Name,
		"confidence": key.Correlation,
		"segments":   len(chords),
		"entries":    len(result.Entries),
	})

	return result, nil
}

func (a *Analyzer) localKeys(windows []chroma.WindowProfile) []LocalKey {
	profiles := make([]chroma.PitchClassProfile, len(windows))
	for i, w := range windows {
		profiles[i] = w.Profile
	}

	local := make([]LocalKey, len(windows))
	for i, wk := range a.estimator.EstimateWindows(profiles) {
		local[i] = LocalKey{Start: windows[i].Start, End: windows[i].End, Estimate: wk.Estimate}
		if wk.Err != nil {
			local[i].Error = wk.Err.Error()
		}
	}
	return local
}

// keyAt returns the local key of the window holding t, falling back to
// the global key when there is none or it is undetermined
func (r *SymbolicResult) keyAt(t pitch.Time) tonal.Key {
	for _, lk := range r.LocalKeys {
		if !t.Before(lk.Start) && t.Before(lk.End) {
			if lk.Estimate != nil {
				return lk.Estimate.Key
			}
			break
		}
	}
	return r.Key.Key
}

// labelEntry maps the labeler's rest and incomplete errors to marker entries
func (a *Analyzer) labelEntry(chord tonal.ChordSimultaneity, key tonal.Key) (LabelEntry, error) {
	entry := LabelEntry{Chord: chord, Key: key}

	label, err := a.labeler.Label(chord, key)
	switch {
	case err == nil:
		entry.Status = StatusLabeled
		entry.Figure = label.Figure
		entry.Label = label
	case errors.Is(err, tonal.ErrEmptySimultaneity):
		entry.Status = StatusRest
		entry.Figure = RestFigure
	case errors.Is(err, tonal.ErrIncompleteChord):
		entry.Status = StatusIncomplete
		entry.Figure = IncompleteFigure
	default:
		return entry, err
	}
	return entry, nil
}

// AnalyzeAudioProfile estimates the key of a chromagram whose frames start
// frameDuration seconds apart. With WindowFrames set, every chunk of frames
// also gets a local key and a coarse chord label.
func (a *Analyzer) AnalyzeAudioProfile(frames [][]float64, frameDuration float64) (*AudioResult, error) {
	if frameDuration < 0 {
		return nil, fmt.Errorf("%w: negative frame duration %v", pitch.ErrInvalidInput, frameDuration)
	}

	profile, err := chroma.ProfileChromagram(frames)
	if err != nil {
		return nil, err
	}

	key, err := a.estimator.Estimate(profile)
	if err != nil {
		return nil, err
	}

	tonnetz, err := chroma.MeanTonnetz(frames)
	if err != nil {
		return nil, err
	}

	mean := profile
	if len(frames) > 0 {
		for i := range mean {
			mean[i] /= float64(len(frames))
		}
	}

	result := &AudioResult{
		Key:        key,
		ChromaMean: mean,
		Strongest:  profile.Strongest(),
		Tonnetz:    tonnetz,
		Duration:   float64(len(frames)) * frameDuration,
		Frames:     len(frames),
		Stats:      profile.Stats(),
	}

	if n := a.opts.Audio.WindowFrames; n > 0 {
		windows, err := a.audioWindows(frames, frameDuration, n, key.Key)
		if err != nil {
			return nil, err
		}
		result.Windows = windows
	}

	a.logger.Debug("audio analysis completed", logging.Fields{
		"key":     key.Name,
		"frames":  len(frames),
		"windows": len(result.Windows),
	})

	return result, nil
}

func (a *Analyzer) audioWindows(frames [][]float64, frameDuration float64, framesPerWindow int, global tonal.Key) ([]AudioWindow, error) {
	chunks, err := chroma.ChunkChromagram(frames, framesPerWindow)
	if err != nil {
		return nil, err
	}

	windows := make([]AudioWindow, len(chunks))
	for i, wk := range a.estimator.EstimateWindows(chunks) {
		start := i * framesPerWindow
		end := min(start+framesPerWindow, len(frames))
		w := AudioWindow{
			Index: i,
			Start: float64(start) * frameDuration,
			End:   float64(end) * frameDuration,
			Key:   wk.Estimate,
		}

		key := global
		if wk.Err != nil {
			w.KeyError = wk.Err.Error()
		} else {
			key = wk.Estimate.Key
		}

		candidate, err := a.detector.Detect(chunks[i])
		switch {
		case errors.Is(err, tonal.ErrEmptySimultaneity):
			w.Status, w.Figure = StatusRest, RestFigure
		case errors.Is(err, tonal.ErrIncompleteChord):
			w.Status, w.Figure = StatusIncomplete, IncompleteFigure
		case err != nil:
			return nil, err
		default:
			w.Chord = candidate
			entry, err := a.labelEntry(candidate.Simultaneity(pitch.Time{}, pitch.Time{}), key)
			if err != nil {
				return nil, err
			}
			w.Status, w.Figure = entry.Status, entry.Figure
		}
		windows[i] = w
	}
	return windows, nil
}

// AnalyzeAudio computes the chromagram of decoded audio and analyzes it
func (a *Analyzer) AnalyzeAudio(audio *transcode.AudioData) (*AudioResult, error) {
	if audio == nil {
		return nil, fmt.Errorf("%w: audio data cannot be nil", pitch.ErrInvalidInput)
	}
	if audio.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", pitch.ErrInvalidInput, audio.SampleRate)
	}

	opts := a.opts.Audio
	cs := chroma.NewChromaSTFT(audio.SampleRate, opts.TuningHz)
	maxFreq := min(opts.FreqRange[1], float64(audio.SampleRate)/2)
	if err := cs.SetFrequencyRange(opts.FreqRange[0], maxFreq); err != nil {
		return nil, err
	}

	chromagram, err := cs.ComputeChroma(audio.PCM, opts.WindowSize, opts.HopSize)
	if err != nil {
		return nil, err
	}

	result, err := a.AnalyzeAudioProfile(chromagram.Frames, chromagram.FrameDuration)
	if err != nil {
		return nil, err
	}
	if audio.Duration > 0 {
		result.Duration = audio.Duration.Seconds()
	}
	return result, nil
}
