package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/algorithms/tonal"
	"github.com/RyanBlaney/sonido-harmony/analysis"
	"github.com/RyanBlaney/sonido-harmony/logging"
	"github.com/RyanBlaney/sonido-harmony/report"
	"github.com/RyanBlaney/sonido-harmony/storage"
	"github.com/gorilla/mux"
)

const recordIDHeader = "X-Record-Id"

// noteInput is a MIDI-numbered note, the compact alternative to full events
type noteInput struct {
	Note     int        `json:"note"`
	Onset    pitch.Time `json:"onset"`
	Duration pitch.Time `json:"duration"`
}

type symbolicRequest struct {
	Source string             `json:"source,omitempty"`
	Events []pitch.PitchEvent `json:"events,omitempty"`
	Notes  []noteInput        `json:"notes,omitempty"`
}

func (r *symbolicRequest) pitchEvents() ([]pitch.PitchEvent, error) {
	if len(r.Events) > 0 && len(r.Notes) > 0 {
		return nil, fmt.Errorf("%w: send events or notes, not both", pitch.ErrInvalidInput)
	}
	if len(r.Notes) == 0 {
		return r.Events, nil
	}

	events := make([]pitch.PitchEvent, len(r.Notes))
	for i, n := range r.Notes {
		if n.Note < 0 || n.Note > 127 {
			return nil, fmt.Errorf("%w: note %d out of MIDI range", pitch.ErrInvalidInput, n.Note)
		}
		events[i] = pitch.FromMIDINote(n.Note, n.Onset, n.Duration)
	}
	return events, nil
}

type audioProfileRequest struct {
	Source        string      `json:"source,omitempty"`
	Frames        [][]float64 `json:"frames"`
	FrameDuration float64     `json:"frame_duration"`
}

type labelRequest struct {
	PitchClasses []string `json:"pitch_classes"`
	Bass         string   `json:"bass,omitempty"`
	Key          string   `json:"key"`
}

type kindsResponse struct {
	Kinds       []analysis.Kind `json:"kinds"`
	Profiles    []string        `json:"profiles"`
	Qualities   []string        `json:"qualities"`
	ErrorKinds  []string        `json:"error_kinds"`
	FigureStyle string          `json:"figure_style"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := analysis.ErrorKind(err)
	if errors.Is(err, storage.ErrNotFound) {
		kind = "not_found"
	}
	writeJSON(w, statusForKind(kind), errorResponse{Code: kind, Message: err.Error()})
}

// statusForKind maps an error kind to its HTTP status
func statusForKind(kind string) int {
	switch kind {
	case analysis.ErrorKindInvalidInput:
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case analysis.ErrorKindUndeterminedKey,
		analysis.ErrorKindIncompleteChord,
		analysis.ErrorKindEmptySimultaneity,
		analysis.ErrorKindDecodeFailed:
		return http.StatusUnprocessableEntity
	case analysis.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON body into v; malformed input is ErrInvalidInput
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %w", pitch.ErrInvalidInput, err)
	}
	return nil
}

// handleHealth handles GET /healthz requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, kindsResponse{
		Kinds:       analysis.GetSupportedKinds(),
		Profiles:    tonal.GetSupportedProfiles(),
		Qualities:   tonal.GetSupportedChordQualities(),
		ErrorKinds:  analysis.ErrorKinds(),
		FigureStyle: s.analyzer.Options().FigureStyle.String(),
	})
}

func (s *Server) handleAnalyzeSymbolic(w http.ResponseWriter, r *http.Request) {
	var body symbolicRequest
	if err := s.decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	events, err := body.pitchEvents()
	if err != nil {
		writeError(w, err)
		return
	}

	s.runAnalysis(w, &analysis.Request{Kind: analysis.KindSymbolic, Events: events}, body.Source)
}

func (s *Server) handleAnalyzeAudioProfile(w http.ResponseWriter, r *http.Request) {
	var body audioProfileRequest
	if err := s.decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	s.runAnalysis(w, &analysis.Request{
		Kind:          analysis.KindAudioProfile,
		Frames:        body.Frames,
		FrameDuration: body.FrameDuration,
	}, body.Source)
}

// runAnalysis executes req, records the outcome and writes the response
func (s *Server) runAnalysis(w http.ResponseWriter, req *analysis.Request, source string) {
	start := time.Now()
	done := s.metrics.TrackInFlight()
	resp, err := s.analyzer.Run(req)
	done()
	elapsed := time.Since(start)

	if source == "" {
		source = "api:" + string(req.Kind)
	}

	if err != nil {
		kind := analysis.ErrorKind(err)
		s.metrics.RecordFailure(kind)
		if s.store != nil {
			if _, serr := s.store.SaveFailure("", source, kind, err, elapsed); serr != nil {
				s.logger.Error(serr, "Failed to store failure", logging.Fields{"source": source})
			}
		}
		writeError(w, err)
		return
	}

	resp.Source = source
	s.metrics.RecordAnalysis(string(resp.Kind), elapsed)
	for status, n := range resp.StatusCounts() {
		s.metrics.RecordLabels(string(status), n)
	}

	if s.store != nil {
		id, serr := s.store.SaveResult("", source, report.FromResponse(source, resp), elapsed)
		if serr != nil {
			s.logger.Error(serr, "Failed to store result", logging.Fields{"source": source})
		} else {
			w.Header().Set(recordIDHeader, id)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	var body labelRequest
	if err := s.decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	key, err := tonal.ParseKey(body.Key)
	if err != nil {
		writeError(w, err)
		return
	}

	pcs := make([]pitch.PitchClass, 0, len(body.PitchClasses))
	for _, name := range body.PitchClasses {
		pc, err := pitch.ParsePitchClass(name)
		if err != nil {
			writeError(w, err)
			return
		}
		pcs = append(pcs, pc)
	}

	bass := pitch.NoPitch
	if body.Bass != "" {
		if bass, err = pitch.ParsePitchClass(body.Bass); err != nil {
			writeError(w, err)
			return
		}
	}

	chord := tonal.NewChord(pcs, bass, pitch.Beats(0), pitch.Beats(1))
	label, err := s.analyzer.Label(chord, key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, label)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRecentResults lists stored results, or the latest one for ?path=
func (s *Server) handleRecentResults(w http.ResponseWriter, r *http.Request) {
	if path := r.URL.Query().Get("path"); path != "" {
		rec, err := s.store.Latest(path)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, []storage.AnalysisRecord{*rec})
		return
	}

	limit := defaultRecentResults
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxRecentResults {
			writeError(w, fmt.Errorf("%w: limit must be an integer from 1 to %d", pitch.ErrInvalidInput, maxRecentResults))
			return
		}
		limit = n
	}

	rows, err := s.store.Recent(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
