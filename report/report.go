// Package report writes analysis results to disk: one JSON result and one
// text summary per input, plus a combined full report for a batch.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/RyanBlaney/sonido-harmony/analysis"
	"github.com/RyanBlaney/sonido-harmony/logging"
)

// FullReportName is the file that collects every per-file analysis text
const FullReportName = "full_report.txt"

const separatorWidth = 40

// FileResult is the per-file record written as <base>_result.json
type FileResult struct {
	Filename      string   `json:"filename"`
	Kind          string   `json:"kind"`
	DetectedKey   string   `json:"detected_key"`
	Confidence    float64  `json:"confidence"`
	ChordCount    int      `json:"chord_count"`
	RomanNumerals []string `json:"roman_numerals"`

	// audio only
	Duration   float64   `json:"duration,omitempty"`
	ChromaMean []float64 `json:"chroma_mean,omitempty"`
	Tonnetz    []float64 `json:"tonnetz_mean,omitempty"`
}

// FromResponse flattens an analysis response into a FileResult.
// filename is recorded as given; callers normally pass the base name.
func FromResponse(filename string, resp *analysis.Response) *FileResult {
	r := &FileResult{
		Filename:      filename,
		Kind:          string(resp.Kind),
		RomanNumerals: resp.Figures(),
	}
	if r.RomanNumerals == nil {
		r.RomanNumerals = []string{}
	}

	switch {
	case resp.Symbolic != nil:
		if k := resp.Symbolic.Key; k != nil {
			r.DetectedKey = k.Key.String()
			r.Confidence = k.Confidence()
		}
		r.ChordCount = resp.Symbolic.ChordCount()
	case resp.Audio != nil:
		if k := resp.Audio.Key; k != nil {
			r.DetectedKey = k.Key.String()
			r.Confidence = k.Confidence()
		}
		for _, w := range resp.Audio.Windows {
			if w.Status != analysis.StatusRest {
				r.ChordCount++
			}
		}
		r.Duration = resp.Audio.Duration
		r.ChromaMean = resp.Audio.ChromaMean[:]
		r.Tonnetz = resp.Audio.Tonnetz[:]
	}
	return r
}

// Progression joins the figures the way the text report prints them
func (r *FileResult) Progression() string {
	return strings.Join(r.RomanNumerals, " -> ")
}

// FormatAnalysis renders the text block for one file
func FormatAnalysis(r *FileResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", r.Filename)
	fmt.Fprintf(&b, "Key: %s\n", r.DetectedKey)
	fmt.Fprintf(&b, "Progression: %s\n", r.Progression())
	b.WriteString(strings.Repeat("-", separatorWidth))
	b.WriteString("\n")
	return b.String()
}

// Writer stores results under a result directory (JSON) and an analysis
// directory (text). Both are created on first write.
//
// Every source file owns one output name for the writer's lifetime. Sources
// sharing a base name (a/x.mid and b/x.mid, or x.mid and x.wav) get numbered
// names (x, x_2, ...) instead of overwriting each other.
type Writer struct {
	resultDir   string
	analysisDir string
	logger      logging.Logger

	mu       sync.Mutex
	bySource map[string]string
	taken    map[string]string
}

// NewWriter returns a writer for the two output directories
func NewWriter(resultDir, analysisDir string) *Writer {
	return &Writer{
		resultDir:   resultDir,
		analysisDir: analysisDir,
		bySource:    make(map[string]string),
		taken:       make(map[string]string),
		logger: logging.WithFields(logging.Fields{
			"component": "report_writer",
		}),
	}
}

// Paths are the files written for one result
type Paths struct {
	Result   string `json:"result"`
	Analysis string `json:"analysis"`
}

// BaseName strips directory and extension from a file name
func BaseName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Reserve assigns output names to sources in the given order, so that which
// of two same-named files gets the plain name does not depend on which
// finishes first. Sources already named keep their name.
func (w *Writer) Reserve(sources ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, source := range sources {
		w.claim(source)
	}
}

// OutputName returns the base name the source's files are written under
func (w *Writer) OutputName(source string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.claim(source)
}

func (w *Writer) claim(source string) string {
	source = filepath.Clean(source)
	if name, ok := w.bySource[source]; ok {
		return name
	}

	base := BaseName(source)
	name := base
	for n := 2; ; n++ {
		if _, used := w.taken[name]; !used {
			break
		}
		name = fmt.Sprintf("%s_%d", base, n)
	}
	w.bySource[source] = name
	w.taken[name] = source
	return name
}

// Write stores <name>_result.json and <name>_analysis.txt for the file at
// source, where name is the source's output name
func (w *Writer) Write(source string, r *FileResult) (*Paths, error) {
	if err := w.ensureDirs(); err != nil {
		return nil, err
	}

	base := w.OutputName(source)
	paths := &Paths{
		Result:   filepath.Join(w.resultDir, base+"_result.json"),
		Analysis: filepath.Join(w.analysisDir, base+"_analysis.txt"),
	}

	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result for %s: %w", r.Filename, err)
	}
	if err := os.WriteFile(paths.Result, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", paths.Result, err)
	}
	if err := os.WriteFile(paths.Analysis, []byte(FormatAnalysis(r)), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", paths.Analysis, err)
	}

	w.logger.Debug("Wrote result files", logging.Fields{
		"file":     r.Filename,
		"result":   paths.Result,
		"analysis": paths.Analysis,
	})
	return paths, nil
}

// WriteSummary writes full_report.txt with the text block of every result, in order
func (w *Writer) WriteSummary(results []*FileResult) (string, error) {
	if err := w.ensureDirs(); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, r := range results {
		b.WriteString(FormatAnalysis(r))
	}

	path := filepath.Join(w.analysisDir, FullReportName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	w.logger.Info("Wrote full report", logging.Fields{
		"path":  path,
		"files": len(results),
	})
	return path, nil
}

func (w *Writer) ensureDirs() error {
	for _, dir := range []string{w.resultDir, w.analysisDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	return nil
}
