// Package watch re-analyzes MIDI and audio files as they change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-harmony/analysis"
	"github.com/RyanBlaney/sonido-harmony/batch"
	"github.com/RyanBlaney/sonido-harmony/logging"
	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// DefaultQuietPeriod is how long a directory must stay quiet before changed files are analyzed
const DefaultQuietPeriod = 500 * time.Millisecond

// FileAnalyzer analyzes one file; *batch.Runner satisfies it
type FileAnalyzer interface {
	AnalyzeOne(ctx context.Context, path string) batch.FileOutcome
}

// Watcher collects file changes under a directory and analyzes them in
// bursts once writes settle.
type Watcher struct {
	analyzer    FileAnalyzer
	quietPeriod time.Duration
	onOutcome   func(batch.FileOutcome)
	logger      logging.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

// Option applies a configuration option to the Watcher.
type Option func(*Watcher)

// WithQuietPeriod sets the debounce interval.
func WithQuietPeriod(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.quietPeriod = d
		}
	}
}

// WithOutcomeHandler is called for every analyzed file, one at a time.
func WithOutcomeHandler(fn func(batch.FileOutcome)) Option {
	return func(w *Watcher) {
		w.onOutcome = fn
	}
}

// New creates a watcher that hands changed files to analyzer
func New(analyzer FileAnalyzer, opts ...Option) *Watcher {
	w := &Watcher{
		analyzer:    analyzer,
		quietPeriod: DefaultQuietPeriod,
		pending:     make(map[string]struct{}),
		logger: logging.WithFields(logging.Fields{
			"component": "watcher",
		}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches root and its subdirectories until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, root string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := addTree(fsw, root); err != nil {
		return err
	}

	flushCh := make(chan struct{}, 1)
	debounced := debounce.New(w.quietPeriod)
	trigger := func() {
		select {
		case flushCh <- struct{}{}:
		default:
		}
	}

	w.logger.Info("Watching for changes", logging.Fields{
		"root":         root,
		"quiet_period": w.quietPeriod.String(),
	})

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(fsw, event) {
				debounced(trigger)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err, "Watcher error")

		case <-flushCh:
			w.flush(ctx)
		}
	}
}

// handleEvent records an analyzable file change; new directories are watched too
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addTree(fsw, event.Name); err != nil {
				w.logger.Warn("Cannot watch new directory", logging.Fields{"dir": event.Name, "error": err.Error()})
			}
			// a directory moved or copied in arrives with its files already written
			files, err := batch.CollectFiles(event.Name)
			if err != nil {
				w.logger.Warn("Cannot list new directory", logging.Fields{"dir": event.Name, "error": err.Error()})
			}
			w.enqueue(files...)
			return len(files) > 0
		}
	}

	if _, ok := analysis.KindForPath(event.Name); !ok {
		return false
	}
	w.enqueue(event.Name)
	return true
}

func (w *Watcher) enqueue(paths ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range paths {
		w.pending[p] = struct{}{}
	}
}

// flush analyzes every pending file in path order
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	w.mu.Unlock()

	slices.Sort(paths)
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		outcome := w.analyzer.AnalyzeOne(ctx, path)
		if w.onOutcome != nil {
			w.onOutcome(outcome)
		}
	}
}

func addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
