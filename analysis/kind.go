package analysis

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/transcode"
)

// Kind names an analysis pipeline
type Kind string

const (
	KindSymbolic     Kind = "symbolic"
	KindAudio        Kind = "audio"
	KindAudioProfile Kind = "audio-profile"
)

// Request carries the input for one kind of analysis. Only the fields the
// kind reads need to be set.
type Request struct {
	Kind          Kind                `json:"kind"`
	Events        []pitch.PitchEvent  `json:"events,omitempty"`
	Frames        [][]float64         `json:"frames,omitempty"`
	FrameDuration float64             `json:"frame_duration,omitempty"`
	Audio         *transcode.AudioData `json:"-"`
}

// Response holds the result of whichever pipeline ran
type Response struct {
	Kind     Kind            `json:"kind"`
	Source   string          `json:"source,omitempty"`
	Symbolic *SymbolicResult `json:"symbolic,omitempty"`
	Audio    *AudioResult    `json:"audio,omitempty"`
}

// Figures returns the progression of whichever result is set
func (r *Response) Figures() []string {
	switch {
	case r.Symbolic != nil:
		return r.Symbolic.Figures()
	case r.Audio != nil:
		return r.Audio.Figures()
	}
	return nil
}

// StatusCounts tallies entries (or audio windows) by status
func (r *Response) StatusCounts() map[EntryStatus]int {
	counts := make(map[EntryStatus]int)
	switch {
	case r.Symbolic != nil:
		for _, e := range r.Symbolic.Entries {
			counts[e.Status]++
		}
	case r.Audio != nil:
		for _, w := range r.Audio.Windows {
			counts[w.Status]++
		}
	}
	return counts
}

type handlerFunc func(a *Analyzer, req *Request) (*Response, error)

var handlers = map[Kind]handlerFunc{
	KindSymbolic: func(a *Analyzer, req *Request) (*Response, error) {
		res, err := a.AnalyzeSymbolic(req.Events)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: KindSymbolic, Symbolic: res}, nil
	},
	KindAudioProfile: func(a *Analyzer, req *Request) (*Response, error) {
		res, err := a.AnalyzeAudioProfile(req.Frames, req.FrameDuration)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: KindAudioProfile, Audio: res}, nil
	},
	KindAudio: func(a *Analyzer, req *Request) (*Response, error) {
		res, err := a.AnalyzeAudio(req.Audio)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: KindAudio, Audio: res}, nil
	},
}

// GetSupportedKinds returns the kinds Run accepts
func GetSupportedKinds() []Kind {
	return []Kind{KindSymbolic, KindAudio, KindAudioProfile}
}

// Run dispatches the request to the pipeline its kind names
func (a *Analyzer) Run(req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", pitch.ErrInvalidInput)
	}
	handler, ok := handlers[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown analysis kind %q", pitch.ErrInvalidInput, req.Kind)
	}
	return handler(a, req)
}

// KindForPath picks the pipeline for a file by its extension
func KindForPath(path string) (Kind, bool) {
	switch {
	case transcode.IsMIDIFile(path):
		return KindSymbolic, true
	case transcode.IsAudioFile(path):
		return KindAudio, true
	}
	return "", false
}

// FileLoader turns files into analysis requests
type FileLoader struct {
	MIDI    transcode.MIDIOptions
	Decoder *transcode.Decoder
}

// Load reads the file at path into a request of the matching kind
func (l *FileLoader) Load(ctx context.Context, path string) (*Request, error) {
	kind, ok := KindForPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type %s", pitch.ErrInvalidInput, path)
	}

	req := &Request{Kind: kind}
	switch kind {
	case KindSymbolic:
		events, err := transcode.ReadMIDIFile(path, l.MIDI)
		if err != nil {
			return nil, err
		}
		req.Events = events
	case KindAudio:
		decoder := l.Decoder
		if decoder == nil {
			decoder = transcode.NewDecoder(nil)
		}
		audio, err := decoder.DecodeFile(ctx, path)
		if err != nil {
			return nil, err
		}
		req.Audio = audio
	}
	return req, nil
}

// AnalyzeFile loads a MIDI or audio file and runs the matching pipeline
func (a *Analyzer) AnalyzeFile(ctx context.Context, loader *FileLoader, path string) (*Response, error) {
	req, err := loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := a.Run(req)
	if err != nil {
		return nil, err
	}
	resp.Source = path
	return resp, nil
}
