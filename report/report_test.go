package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/RyanBlaney/sonido-harmony/algorithms/chroma"
	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/algorithms/tonal"
	"github.com/RyanBlaney/sonido-harmony/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cMajorEstimate() *tonal.KeyEstimate {
	key := tonal.Key{Tonic: 0, Mode: tonal.KeyModeMajor}
	return &tonal.KeyEstimate{Key: key, Name: key.String(), Correlation: 0.87}
}

func symbolicResponse() *analysis.Response {
	return &analysis.Response{
		Kind: analysis.KindSymbolic,
		Symbolic: &analysis.SymbolicResult{
			Key: cMajorEstimate(),
			Entries: []analysis.LabelEntry{
				{Status: analysis.StatusLabeled, Figure: "I"},
				{Status: analysis.StatusRest, Figure: analysis.RestFigure},
				{Status: analysis.StatusLabeled, Figure: "V7"},
				{Status: analysis.StatusLabeled, Figure: "I"},
			},
		},
	}
}

func TestFromResponse(t *testing.T) {
	t.Run("symbolic", func(t *testing.T) {
		r := FromResponse("bach.mid", symbolicResponse())

		assert.Equal(t, "bach.mid", r.Filename)
		assert.Equal(t, "symbolic", r.Kind)
		assert.Equal(t, "C major", r.DetectedKey)
		assert.InDelta(t, 0.87, r.Confidence, 1e-12)
		assert.Equal(t, 3, r.ChordCount)
		assert.Equal(t, []string{"I", "-", "V7", "I"}, r.RomanNumerals)
		assert.Nil(t, r.ChromaMean)
	})

	t.Run("audio", func(t *testing.T) {
		var mean chroma.PitchClassProfile
		mean[0] = 1
		resp := &analysis.Response{
			Kind: analysis.KindAudio,
			Audio: &analysis.AudioResult{
				Key:        cMajorEstimate(),
				ChromaMean: mean,
				Duration:   2.5,
				Windows: []analysis.AudioWindow{
					{Status: analysis.StatusLabeled, Figure: "I"},
					{Status: analysis.StatusIncomplete, Figure: analysis.IncompleteFigure},
				},
			},
		}

		r := FromResponse("take.wav", resp)
		assert.Equal(t, "audio", r.Kind)
		assert.Equal(t, 2, r.ChordCount)
		assert.Equal(t, 2.5, r.Duration)
		assert.Len(t, r.ChromaMean, pitch.NumPitchClasses)
		assert.Len(t, r.Tonnetz, 6)
		assert.Equal(t, []string{"I", "?"}, r.RomanNumerals)
	})

	t.Run("no figures still encodes an empty list", func(t *testing.T) {
		resp := &analysis.Response{
			Kind:  analysis.KindAudioProfile,
			Audio: &analysis.AudioResult{Key: cMajorEstimate()},
		}
		data, err := json.Marshal(FromResponse("x", resp))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"roman_numerals":[]`)
	})
}

func TestFormatAnalysis(t *testing.T) {
	r := FromResponse("bach.mid", symbolicResponse())
	want := "File: bach.mid\n" +
		"Key: C major\n" +
		"Progression: I -> - -> V7 -> I\n" +
		"----------------------------------------\n"
	assert.Equal(t, want, FormatAnalysis(r))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "chorale", BaseName("/data/chorale.mid"))
	assert.Equal(t, "a.b", BaseName("a.b.wav"))
	assert.Equal(t, "plain", BaseName("plain"))
}

func TestWriter(t *testing.T) {
	dir := t.TempDir()
	resultDir := filepath.Join(dir, "result")
	analysisDir := filepath.Join(dir, "analysis")
	w := NewWriter(resultDir, analysisDir)

	first := FromResponse("one.mid", symbolicResponse())
	second := FromResponse("two.mid", symbolicResponse())
	second.RomanNumerals = []string{"ii6/5", "V", "I"}

	paths, err := w.Write("/data/one.mid", first)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resultDir, "one_result.json"), paths.Result)
	assert.Equal(t, filepath.Join(analysisDir, "one_analysis.txt"), paths.Analysis)

	data, err := os.ReadFile(paths.Result)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "one.mid", decoded["filename"])
	assert.Equal(t, "C major", decoded["detected_key"])
	assert.EqualValues(t, 3, decoded["chord_count"])
	assert.Contains(t, string(data), "\n    \"filename\"")

	text, err := os.ReadFile(paths.Analysis)
	require.NoError(t, err)
	assert.Equal(t, FormatAnalysis(first), string(text))

	summary, err := w.WriteSummary([]*FileResult{first, second})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(analysisDir, FullReportName), summary)

	full, err := os.ReadFile(summary)
	require.NoError(t, err)
	assert.Equal(t, FormatAnalysis(first)+FormatAnalysis(second), string(full))
}

func TestWriterSameBaseName(t *testing.T) {
	dir := t.TempDir()
	resultDir := filepath.Join(dir, "result")
	w := NewWriter(resultDir, filepath.Join(dir, "analysis"))

	w.Reserve("b/song.mid", "a/song.mid")

	midi, err := w.Write("a/song.mid", FromResponse("song.mid", symbolicResponse()))
	require.NoError(t, err)
	other, err := w.Write("b/song.mid", FromResponse("song.mid", symbolicResponse()))
	require.NoError(t, err)
	wav, err := w.Write("a/song.wav", FromResponse("song.wav", symbolicResponse()))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(resultDir, "song_2_result.json"), midi.Result)
	assert.Equal(t, filepath.Join(resultDir, "song_result.json"), other.Result)
	assert.Equal(t, filepath.Join(resultDir, "song_3_result.json"), wav.Result)

	again, err := w.Write("a/song.wav", FromResponse("song.wav", symbolicResponse()))
	require.NoError(t, err)
	assert.Equal(t, wav.Result, again.Result, "rewriting a source reuses its name")

	data, err := os.ReadFile(midi.Result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"filename": "song.mid"`)
	data, err = os.ReadFile(wav.Result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"filename": "song.wav"`)
}

func TestWriterUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	w := NewWriter(filepath.Join(blocker, "result"), filepath.Join(dir, "analysis"))
	_, err := w.Write("x.mid", FromResponse("x.mid", symbolicResponse()))
	assert.Error(t, err)
}
