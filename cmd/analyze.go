package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-harmony/batch"
	"github.com/RyanBlaney/sonido-harmony/logging"
	"github.com/RyanBlaney/sonido-harmony/report"
	"github.com/RyanBlaney/sonido-harmony/transcode"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// defaultInputDir is analyzed when no path is given
const defaultInputDir = "data"

type analyzeFlags struct {
	workers  int
	timeout  time.Duration
	noReport bool
	progress bool
	asJSON   bool
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze [file or directory ...]",
		Short: "Analyze MIDI and audio files",
		Long: `Analyze every MIDI and audio file under the given paths (default "data").
Each file gets <name>_result.json in the output directory and <name>_analysis.txt
in the analysis directory (x_2, x_3 ... when names clash); full_report.txt
collects the progressions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{defaultInputDir}
			}
			return runAnalyze(cmd, a, f, args)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&f.workers, "workers", "w", 0, "files analyzed at once (default from config)")
	flags.DurationVar(&f.timeout, "timeout", 0, "time limit per file (default from config)")
	flags.StringVarP(&a.outputDir, "out", "o", "", "result JSON directory (default from config)")
	flags.StringVar(&a.analysisDir, "analysis-dir", "", "analysis text directory (default from config)")
	flags.BoolVar(&f.noReport, "no-report", false, "do not write result files")
	flags.BoolVar(&f.progress, "progress", true, "show a progress bar")
	flags.BoolVar(&f.asJSON, "json", false, "print the run summary as JSON")
	return cmd
}

func runAnalyze(cmd *cobra.Command, a *app, f analyzeFlags, args []string) error {
	var paths []string
	for _, arg := range args {
		files, err := batch.CollectFiles(arg)
		if err != nil {
			return err
		}
		paths = append(paths, files...)
	}
	if len(paths) == 0 {
		return errors.New("no MIDI or audio files found")
	}

	analyzer, err := a.analyzer()
	if err != nil {
		return err
	}
	loader := a.cfg.FileLoader()
	if needsFFmpeg(paths) {
		if err := loader.Decoder.CheckFFmpeg(); err != nil {
			logging.Warn("Compressed audio will fail to decode", logging.Fields{"error": err.Error()})
		}
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	workers := a.cfg.Workers
	if f.workers > 0 {
		workers = f.workers
	}
	timeout := a.cfg.FileTimeout
	if f.timeout > 0 {
		timeout = f.timeout
	}

	opts := []batch.Option{
		batch.WithWorkers(workers),
		batch.WithFileTimeout(timeout),
		batch.WithStore(store),
	}
	if !f.noReport {
		opts = append(opts, batch.WithWriter(a.reportWriter()))
	}

	var (
		progress *mpb.Progress
		bar      *mpb.Bar
	)
	if f.progress && !f.asJSON {
		progress, bar = newProgressBar(cmd.ErrOrStderr(), len(paths))
		opts = append(opts, batch.WithProgress(func(o batch.FileOutcome) {
			bar.EwmaIncrement(o.Elapsed)
		}))
	}

	runner := batch.NewRunner(analyzer, loader, opts...)
	summary, err := runner.Run(cmd.Context(), paths)
	if progress != nil {
		if err != nil {
			bar.Abort(false)
		}
		progress.Wait()
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	for _, o := range summary.Outcomes {
		printOutcome(out, o)
	}
	fmt.Fprintf(out, "Analyzed %d files: %d ok, %d failed (run %s)\n",
		summary.Files, summary.Succeeded, summary.Failed, summary.RunID)

	if summary.Succeeded == 0 {
		return fmt.Errorf("all %d files failed", summary.Failed)
	}
	return nil
}

// needsFFmpeg reports whether any path is audio that cannot be read natively
func needsFFmpeg(paths []string) bool {
	for _, p := range paths {
		if transcode.IsAudioFile(p) && !strings.EqualFold(filepath.Ext(p), ".wav") {
			return true
		}
	}
	return false
}

func (a *app) reportWriter() *report.Writer {
	resultDir, analysisDir := a.cfg.OutputDir, a.cfg.AnalysisDir
	if a.outputDir != "" {
		resultDir = a.outputDir
	}
	if a.analysisDir != "" {
		analysisDir = a.analysisDir
	}
	return report.NewWriter(resultDir, analysisDir)
}

func newProgressBar(w io.Writer, total int) (*mpb.Progress, *mpb.Bar) {
	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(w))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name("Analyzing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)
	return p, bar
}

// printOutcome writes one line per file: the key and progression, or the error
func printOutcome(w io.Writer, o batch.FileOutcome) {
	name := filepath.Base(o.Path)
	if !o.OK() {
		fmt.Fprintf(w, "%s: error [%s]: %s\n", name, o.ErrorKind, o.Error)
		return
	}
	fmt.Fprintf(w, "%s: %s: %s\n", name, o.Result.DetectedKey, o.Result.Progression())
}
