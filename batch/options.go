package batch

import (
	"time"

	"github.com/RyanBlaney/sonido-harmony/metrics"
	"github.com/RyanBlaney/sonido-harmony/report"
	"github.com/RyanBlaney/sonido-harmony/storage"
)

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithWorkers sets how many files are analyzed at once.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithFileTimeout caps the time spent on one file; zero means no limit.
func WithFileTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.timeout = d
		}
	}
}

// WithWriter writes per-file results and the full report.
func WithWriter(w *report.Writer) Option {
	return func(r *Runner) {
		r.writer = w
	}
}

// WithStore persists every outcome.
func WithStore(s *storage.Store) Option {
	return func(r *Runner) {
		r.store = s
	}
}

// WithMetrics records analysis metrics.
func WithMetrics(m *metrics.Manager) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithProgress registers a callback invoked once per finished file.
// It is called from the collecting goroutine, never concurrently.
func WithProgress(fn func(FileOutcome)) Option {
	return func(r *Runner) {
		r.progress = fn
	}
}
