package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RyanBlaney/sonido-harmony/analysis"
	"github.com/RyanBlaney/sonido-harmony/metrics"
	"github.com/RyanBlaney/sonido-harmony/storage"
	. "github.com/smartystreets/goconvey/convey"
)

// cadenceNotes is I IV V7 I in C major, one beat per chord
const cadenceNotes = `{"source":"cadence","notes":[
	{"note":48,"onset":0,"duration":1},{"note":60,"onset":0,"duration":1},{"note":64,"onset":0,"duration":1},{"note":67,"onset":0,"duration":1},
	{"note":53,"onset":1,"duration":1},{"note":65,"onset":1,"duration":1},{"note":69,"onset":1,"duration":1},{"note":72,"onset":1,"duration":1},
	{"note":55,"onset":2,"duration":1},{"note":71,"onset":2,"duration":1},{"note":74,"onset":2,"duration":1},{"note":77,"onset":2,"duration":1},
	{"note":48,"onset":3,"duration":1},{"note":64,"onset":3,"duration":1},{"note":67,"onset":3,"duration":1},{"note":72,"onset":3,"duration":1}
]}`

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()

	analyzer, err := analysis.NewAnalyzer(analysis.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(New(analyzer, opts...).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func decodeError(t *testing.T, data []byte) errorResponse {
	t.Helper()

	var e errorResponse
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("decoding error body %q: %v", data, err)
	}
	return e
}

func TestHealthAndKinds(t *testing.T) {
	Convey("Given a running server", t, func() {
		ts := newTestServer(t)

		Convey("Health reports ok", func() {
			resp, data := get(t, ts.URL+"/healthz")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(string(data), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Kinds lists the pipelines and profiles", func() {
			resp, data := get(t, ts.URL+"/v1/kinds")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var body kindsResponse
			So(json.Unmarshal(data, &body), ShouldBeNil)
			So(body.Kinds, ShouldContain, analysis.KindSymbolic)
			So(body.Profiles, ShouldContain, "krumhansl")
			So(body.ErrorKinds, ShouldContain, analysis.ErrorKindUndeterminedKey)
			So(body.FigureStyle, ShouldEqual, "slashed")
		})

		Convey("Metrics are not routed without a manager", func() {
			resp, _ := get(t, ts.URL+"/metrics")
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestAnalyzeSymbolic(t *testing.T) {
	Convey("Given a server with metrics", t, func() {
		m := metrics.NewManager()
		ts := newTestServer(t, WithMetrics(m))

		Convey("A cadence given as MIDI notes is labeled", func() {
			resp, data := post(t, ts.URL+"/v1/analyze/symbolic", cadenceNotes)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var body analysis.Response
			So(json.Unmarshal(data, &body), ShouldBeNil)
			So(body.Kind, ShouldEqual, analysis.KindSymbolic)
			So(body.Source, ShouldEqual, "cadence")
			So(body.Figures(), ShouldResemble, []string{"I", "IV", "V7", "I"})
			So(body.Symbolic.Key.Name, ShouldEqual, "C major")

			Convey("And the request shows up in /metrics", func() {
				_, metricsBody := get(t, ts.URL+"/metrics")
				So(string(metricsBody), ShouldContainSubstring, `harmony_analysis_files_analyzed_total{kind="symbolic"} 1`)
				So(string(metricsBody), ShouldContainSubstring, `route="/v1/analyze/symbolic"`)
			})
		})

		Convey("An empty stream is an undetermined key", func() {
			resp, data := post(t, ts.URL+"/v1/analyze/symbolic", `{"events":[]}`)
			So(resp.StatusCode, ShouldEqual, http.StatusUnprocessableEntity)
			So(decodeError(t, data).Code, ShouldEqual, analysis.ErrorKindUndeterminedKey)
		})

		Convey("A negative duration is invalid input", func() {
			resp, data := post(t, ts.URL+"/v1/analyze/symbolic", `{"notes":[{"note":60,"onset":0,"duration":-1}]}`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			So(decodeError(t, data).Code, ShouldEqual, analysis.ErrorKindInvalidInput)
		})

		Convey("Malformed JSON is invalid input", func() {
			resp, data := post(t, ts.URL+"/v1/analyze/symbolic", `{"notes":`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			So(decodeError(t, data).Code, ShouldEqual, analysis.ErrorKindInvalidInput)
		})

		Convey("Unknown fields are rejected", func() {
			resp, _ := post(t, ts.URL+"/v1/analyze/symbolic", `{"chords":[]}`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Out of range notes are rejected", func() {
			resp, _ := post(t, ts.URL+"/v1/analyze/symbolic", `{"notes":[{"note":200,"onset":0,"duration":1}]}`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET is not allowed on analyze routes", func() {
			resp, _ := get(t, ts.URL+"/v1/analyze/symbolic")
			So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestAnalyzeAudioProfile(t *testing.T) {
	Convey("Given a server", t, func() {
		ts := newTestServer(t)

		Convey("C major triad frames read as C major", func() {
			frame := `[8,0,0,0,4,0,0,4,0,0,0,0]`
			body := `{"frames":[` + strings.Repeat(frame+",", 3) + frame + `],"frame_duration":0.1}`
			resp, data := post(t, ts.URL+"/v1/analyze/audio-profile", body)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var out analysis.Response
			So(json.Unmarshal(data, &out), ShouldBeNil)
			So(out.Audio.Key.Name, ShouldEqual, "C major")
			So(out.Audio.Frames, ShouldEqual, 4)
		})

		Convey("Short frames are invalid input", func() {
			resp, _ := post(t, ts.URL+"/v1/analyze/audio-profile", `{"frames":[[1,2,3]],"frame_duration":0.1}`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestLabel(t *testing.T) {
	Convey("Given a server", t, func() {
		ts := newTestServer(t)

		Convey("A first-inversion tonic triad reads I6", func() {
			resp, data := post(t, ts.URL+"/v1/label", `{"pitch_classes":["C","E","G"],"bass":"E","key":"C major"}`)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(string(data), ShouldContainSubstring, `"figure":"I6"`)
		})

		Convey("A dyad is an incomplete chord", func() {
			resp, data := post(t, ts.URL+"/v1/label", `{"pitch_classes":["C","G"],"key":"C major"}`)
			So(resp.StatusCode, ShouldEqual, http.StatusUnprocessableEntity)
			So(decodeError(t, data).Code, ShouldEqual, analysis.ErrorKindIncompleteChord)
		})

		Convey("An unknown key is invalid input", func() {
			resp, _ := post(t, ts.URL+"/v1/label", `{"pitch_classes":["C","E","G"],"key":"H major"}`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A bass outside the chord is invalid input", func() {
			resp, _ := post(t, ts.URL+"/v1/label", `{"pitch_classes":["C","E","G"],"bass":"D","key":"C major"}`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestStoredResults(t *testing.T) {
	Convey("Given a server with a store", t, func() {
		store, err := storage.Open(filepath.Join(t.TempDir(), "api.db"))
		So(err, ShouldBeNil)
		defer store.Close()
		ts := newTestServer(t, WithStore(store))

		resp, _ := post(t, ts.URL+"/v1/analyze/symbolic", cadenceNotes)
		id := resp.Header.Get(recordIDHeader)

		Convey("The analysis is stored and can be fetched by ID", func() {
			So(id, ShouldNotBeEmpty)

			resp, data := get(t, ts.URL+"/v1/results/"+id)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var rec storage.AnalysisRecord
			So(json.Unmarshal(data, &rec), ShouldBeNil)
			So(rec.Path, ShouldEqual, "cadence")
			So(rec.RomanNumerals, ShouldResemble, []string{"I", "IV", "V7", "I"})
		})

		Convey("The latest result for a source is listed", func() {
			resp, data := get(t, ts.URL+"/v1/results?path=cadence")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var recs []storage.AnalysisRecord
			So(json.Unmarshal(data, &recs), ShouldBeNil)
			So(len(recs), ShouldEqual, 1)
			So(recs[0].ID, ShouldEqual, id)
		})

		Convey("An unknown ID is not found", func() {
			resp, _ := get(t, ts.URL+"/v1/results/nope")
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("A bad limit is rejected", func() {
			resp, _ := get(t, ts.URL+"/v1/results?limit=-3")
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)

			resp, data := get(t, ts.URL+"/v1/results?limit=100000000")
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			So(string(data), ShouldContainSubstring, "invalid_input")

			resp, _ = get(t, ts.URL+"/v1/results?limit=500")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})
	})
}

func TestCORS(t *testing.T) {
	Convey("Given a server restricted to one origin", t, func() {
		ts := newTestServer(t, WithAllowedOrigins([]string{"https://scores.example"}))

		Convey("A preflight from that origin is allowed", func() {
			req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/v1/label", nil)
			req.Header.Set("Origin", "https://scores.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			resp, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.Header.Get("Access-Control-Allow-Origin"), ShouldEqual, "https://scores.example")
		})

		Convey("Another origin gets no CORS headers", func() {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
			req.Header.Set("Origin", "https://elsewhere.example")
			resp, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.Header.Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
		})
	})
}

func TestStatusForKind(t *testing.T) {
	Convey("Error kinds map to HTTP statuses", t, func() {
		So(statusForKind(analysis.ErrorKindInvalidInput), ShouldEqual, http.StatusBadRequest)
		So(statusForKind(analysis.ErrorKindUndeterminedKey), ShouldEqual, http.StatusUnprocessableEntity)
		So(statusForKind(analysis.ErrorKindTimeout), ShouldEqual, http.StatusGatewayTimeout)
		So(statusForKind(analysis.ErrorKindPanic), ShouldEqual, http.StatusInternalServerError)
		So(statusForKind("not_found"), ShouldEqual, http.StatusNotFound)
	})
}
