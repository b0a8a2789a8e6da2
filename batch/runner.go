// Package batch analyzes many files with a bounded worker pool. One file's
// failure, panic or timeout is recorded and never stops the run.
package batch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-harmony/analysis"
	"github.com/RyanBlaney/sonido-harmony/logging"
	"github.com/RyanBlaney/sonido-harmony/metrics"
	"github.com/RyanBlaney/sonido-harmony/report"
	"github.com/RyanBlaney/sonido-harmony/storage"
	"github.com/google/uuid"
)

// FileOutcome is what happened to one file
type FileOutcome struct {
	Path      string             `json:"path"`
	Result    *report.FileResult `json:"result,omitempty"`
	Response  *analysis.Response `json:"-"`
	Err       error              `json:"-"`
	ErrorKind string             `json:"error_kind,omitempty"`
	Error     string             `json:"error,omitempty"`
	Elapsed   time.Duration      `json:"elapsed"`
	RecordID  string             `json:"record_id,omitempty"`
	Paths     *report.Paths      `json:"paths,omitempty"`
}

// OK reports whether the file was analyzed
func (o *FileOutcome) OK() bool {
	return o.Err == nil
}

// Summary describes a finished run
type Summary struct {
	RunID          string         `json:"run_id"`
	Started        time.Time      `json:"started"`
	Elapsed        time.Duration  `json:"elapsed"`
	Files          int            `json:"files"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	FailuresByKind map[string]int `json:"failures_by_kind"`
	Outcomes       []FileOutcome  `json:"outcomes"`
	ReportPath     string         `json:"report_path,omitempty"`
}

type analyzeFunc func(ctx context.Context, path string) (*analysis.Response, error)

// Runner fans files out to workers that each run the analyzer
type Runner struct {
	analyze  analyzeFunc
	workers  int
	timeout  time.Duration
	writer   *report.Writer
	store    *storage.Store
	metrics  *metrics.Manager
	progress func(FileOutcome)
	logger   logging.Logger
}

// NewRunner creates a runner that loads files with loader and analyzes them with analyzer
func NewRunner(analyzer *analysis.Analyzer, loader *analysis.FileLoader, opts ...Option) *Runner {
	r := &Runner{
		analyze: func(ctx context.Context, path string) (*analysis.Response, error) {
			return analyzer.AnalyzeFile(ctx, loader, path)
		},
		workers: max(1, runtime.NumCPU()/2),
		logger: logging.WithFields(logging.Fields{
			"component": "batch_runner",
		}),
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CollectFiles lists the MIDI and audio files under root in lexical order.
// A root that is itself a file is returned as the only entry.
func CollectFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := analysis.KindForPath(path); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}

// Run analyzes every path and returns the summary once all are done.
// Cancelling ctx marks the files not yet started as timed out; the returned
// error is then ctx.Err().
func (r *Runner) Run(ctx context.Context, paths []string) (*Summary, error) {
	summary := &Summary{
		RunID:          uuid.NewString(),
		Started:        time.Now(),
		Files:          len(paths),
		FailuresByKind: make(map[string]int),
		Outcomes:       make([]FileOutcome, 0, len(paths)),
	}

	logger := r.logger.WithFields(logging.Fields{
		"run_id":  summary.RunID,
		"files":   len(paths),
		"workers": r.workers,
	})
	logger.Info("Starting batch run")

	if r.writer != nil {
		ordered := slices.Clone(paths)
		slices.Sort(ordered)
		r.writer.Reserve(ordered...)
	}

	jobs := make(chan string, len(paths))
	results := make(chan FileOutcome, len(paths))

	var wg sync.WaitGroup
	for i := 0; i < min(r.workers, max(1, len(paths))); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- r.process(ctx, summary.RunID, path)
			}
		}()
	}

	for _, p := range paths {
		jobs <- p
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for outcome := range results {
		if outcome.OK() {
			summary.Succeeded++
		} else {
			summary.Failed++
			summary.FailuresByKind[outcome.ErrorKind]++
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
		if r.progress != nil {
			r.progress(outcome)
		}
	}

	slices.SortFunc(summary.Outcomes, func(a, b FileOutcome) int {
		return strings.Compare(a.Path, b.Path)
	})

	if r.writer != nil {
		succeeded := make([]*report.FileResult, 0, summary.Succeeded)
		for _, o := range summary.Outcomes {
			if o.Result != nil {
				succeeded = append(succeeded, o.Result)
			}
		}
		path, err := r.writer.WriteSummary(succeeded)
		if err != nil {
			logger.Error(err, "Failed to write full report")
		} else {
			summary.ReportPath = path
		}
	}

	summary.Elapsed = time.Since(summary.Started)
	r.metrics.RecordBatchRun(summary.Elapsed)

	logger.Info("Batch run complete", logging.Fields{
		"succeeded":  summary.Succeeded,
		"failed":     summary.Failed,
		"elapsed_ms": summary.Elapsed.Milliseconds(),
	})

	return summary, ctx.Err()
}

// AnalyzeOne runs a single file through the same path a batch worker uses
func (r *Runner) AnalyzeOne(ctx context.Context, path string) FileOutcome {
	return r.process(ctx, "", path)
}

func (r *Runner) process(ctx context.Context, runID, path string) FileOutcome {
	start := time.Now()
	outcome := FileOutcome{Path: path}

	resp, err := r.analyzeWithTimeout(ctx, path)
	outcome.Elapsed = time.Since(start)

	if err == nil {
		outcome.Response = resp
		outcome.Result = report.FromResponse(filepath.Base(path), resp)
		if r.writer != nil {
			paths, werr := r.writer.Write(path, outcome.Result)
			if werr != nil {
				r.logger.Error(werr, "Failed to write result files", logging.Fields{"file": path})
			}
			outcome.Paths = paths
		}
		r.metrics.RecordAnalysis(string(resp.Kind), outcome.Elapsed)
		for status, n := range resp.StatusCounts() {
			r.metrics.RecordLabels(string(status), n)
		}
	} else {
		outcome.Err = err
		outcome.ErrorKind = analysis.ErrorKind(err)
		outcome.Error = err.Error()
		r.metrics.RecordFailure(outcome.ErrorKind)
		r.logger.Warn("Analysis failed", logging.Fields{
			"file":       path,
			"error_kind": outcome.ErrorKind,
			"error":      err.Error(),
		})
	}

	if r.store != nil {
		var id string
		var serr error
		if outcome.OK() {
			id, serr = r.store.SaveResult(runID, path, outcome.Result, outcome.Elapsed)
		} else {
			id, serr = r.store.SaveFailure(runID, path, outcome.ErrorKind, err, outcome.Elapsed)
		}
		if serr != nil {
			r.logger.Error(serr, "Failed to store outcome", logging.Fields{"file": path})
		}
		outcome.RecordID = id
	}

	return outcome
}

type analyzeResult struct {
	resp *analysis.Response
	err  error
}

// analyzeWithTimeout runs the analysis under the per-file deadline. The
// analyzer itself does not watch ctx, so on timeout its goroutine is left to
// finish into a buffered channel.
func (r *Runner) analyzeWithTimeout(ctx context.Context, path string) (*analysis.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s not started: %w", path, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := r.metrics.TrackInFlight()
	defer done()

	ch := make(chan analyzeResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- analyzeResult{err: fmt.Errorf("%w: %v", analysis.ErrPanic, rec)}
			}
		}()
		resp, err := r.analyze(ctx, path)
		ch <- analyzeResult{resp: resp, err: err}
	}()

	select {
	case res := <-ch:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("analyzing %s: %w", path, ctx.Err())
	}
}
