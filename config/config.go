// Package config defines the harmony tool's configuration and how it maps
// onto the analysis, decoder and logging settings.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/algorithms/tonal"
	"github.com/RyanBlaney/sonido-harmony/analysis"
	"github.com/RyanBlaney/sonido-harmony/logging"
	"github.com/RyanBlaney/sonido-harmony/transcode"
)

// Sentinel error kinds for this package
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// AudioConfig holds the audio front end settings
type AudioConfig struct {
	// SampleRate is the rate ffmpeg resamples to. WAV files keep their own.
	SampleRate int     `koanf:"sample_rate"`
	WindowSize int     `koanf:"window_size"`
	HopSize    int     `koanf:"hop_size"`
	TuningHz   float64 `koanf:"tuning_hz"`
	MinFreq    float64 `koanf:"min_freq"`
	MaxFreq    float64 `koanf:"max_freq"`

	// WindowFrames groups chroma frames for local keys and coarse chords; 0 disables
	WindowFrames  int     `koanf:"window_frames"`
	MinChordScore float64 `koanf:"min_chord_score"`

	// MaxDuration truncates long recordings; 0 keeps everything
	MaxDuration time.Duration `koanf:"max_duration"`
}

// Config contains process configuration
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// KeyProfile names the key template family: krumhansl, temperley, aarden-essen, simple.
	KeyProfile string `koanf:"key_profile"`

	// FigureStyle is "slashed" (V6/5) or "compact" (V65).
	FigureStyle string `koanf:"figure_style"`

	MergeRepeated  bool `koanf:"merge_repeated"`
	DropRests      bool `koanf:"drop_rests"`
	DropIncomplete bool `koanf:"drop_incomplete"`
	IncludeDrums   bool `koanf:"include_drums"`

	// LocalKeyWindow is a window length in beats such as "4" or "3/2"; "0" disables local keys.
	LocalKeyWindow string `koanf:"local_key_window"`

	// Workers bounds concurrent file analyses in batch and watch mode.
	Workers int `koanf:"workers"`

	// FileTimeout caps the time spent on one file.
	FileTimeout time.Duration `koanf:"file_timeout"`

	// OutputDir receives the per-file result JSON.
	OutputDir string `koanf:"output_dir"`

	// AnalysisDir receives the per-file analysis text and full_report.txt.
	AnalysisDir string `koanf:"analysis_dir"`

	// DBPath is the SQLite database for stored results; empty disables storage.
	DBPath string `koanf:"db_path"`

	// Addr configures the HTTP listen address, e.g. ":8090".
	Addr string `koanf:"addr"`

	// AllowedOrigins lists CORS origins for the HTTP API; empty allows any.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// WatchQuietPeriod is how long watch mode waits for writes to settle.
	WatchQuietPeriod time.Duration `koanf:"watch_quiet_period"`

	FFmpegPath  string `koanf:"ffmpeg_path"`
	FFprobePath string `koanf:"ffprobe_path"`

	Audio AudioConfig `koanf:"audio"`
}

// New creates a Config with defaults
func New() *Config {
	return &Config{
		LogLevel:         "info",
		KeyProfile:       tonal.KeyProfileKrumhansl.String(),
		FigureStyle:      tonal.FigureStyleSlashed.String(),
		LocalKeyWindow:   "0",
		Workers:          max(1, runtime.NumCPU()/2),
		FileTimeout:      2 * time.Minute,
		OutputDir:        "result",
		AnalysisDir:      "analysis",
		Addr:             ":8090",
		WatchQuietPeriod: 500 * time.Millisecond,
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		Audio: AudioConfig{
			SampleRate:    22050,
			WindowSize:    4096,
			HopSize:       2048,
			TuningHz:      440.0,
			MinFreq:       80.0,
			MaxFreq:       5000.0,
			WindowFrames:  0,
			MinChordScore: tonal.DefaultMinChordScore,
		},
	}
}

// Validate checks every field that can be checked without touching the filesystem
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.FileTimeout < 0 {
		return fmt.Errorf("%w: file_timeout must not be negative", ErrInvalidConfig)
	}
	if c.WatchQuietPeriod <= 0 {
		return fmt.Errorf("%w: watch_quiet_period must be positive", ErrInvalidConfig)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("%w: audio.sample_rate must be positive", ErrInvalidConfig)
	}
	if _, err := c.AnalysisOptions(); err != nil {
		return err
	}
	if err := transcode.NewDecoder(c.DecoderConfig()).ValidateConfig(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Level returns the parsed log level, defaulting to info
func (c *Config) Level() logging.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// AnalysisOptions converts the config into analyzer options
func (c *Config) AnalysisOptions() (*analysis.Options, error) {
	profile, err := tonal.ParseKeyProfile(c.KeyProfile)
	if err != nil {
		return nil, fmt.Errorf("%w: key_profile: %w", ErrInvalidConfig, err)
	}
	style, err := tonal.ParseFigureStyle(c.FigureStyle)
	if err != nil {
		return nil, fmt.Errorf("%w: figure_style: %w", ErrInvalidConfig, err)
	}

	window := pitch.Beats(0)
	if c.LocalKeyWindow != "" {
		window, err = pitch.ParseTime(c.LocalKeyWindow)
		if err != nil {
			return nil, fmt.Errorf("%w: local_key_window: %w", ErrInvalidConfig, err)
		}
	}

	opts := &analysis.Options{
		KeyProfile:     profile,
		FigureStyle:    style,
		MergeRepeated:  c.MergeRepeated,
		DropRests:      c.DropRests,
		DropIncomplete: c.DropIncomplete,
		LocalKeyWindow: window,
		Audio: analysis.AudioOptions{
			WindowSize:    c.Audio.WindowSize,
			HopSize:       c.Audio.HopSize,
			TuningHz:      c.Audio.TuningHz,
			FreqRange:     [2]float64{c.Audio.MinFreq, c.Audio.MaxFreq},
			WindowFrames:  c.Audio.WindowFrames,
			MinChordScore: c.Audio.MinChordScore,
		},
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return opts, nil
}

// DecoderConfig converts the config into audio decoder settings
func (c *Config) DecoderConfig() *transcode.DecoderConfig {
	dc := transcode.DefaultDecoderConfig()
	dc.TargetSampleRate = c.Audio.SampleRate
	dc.MaxDuration = c.Audio.MaxDuration
	dc.FFmpegPath = c.FFmpegPath
	dc.FFprobePath = c.FFprobePath
	if c.FileTimeout > 0 {
		dc.Timeout = c.FileTimeout
	}
	return dc
}

// FileLoader builds the loader that turns files into analysis requests
func (c *Config) FileLoader() *analysis.FileLoader {
	return &analysis.FileLoader{
		MIDI:    transcode.MIDIOptions{IncludeDrums: c.IncludeDrums},
		Decoder: transcode.NewDecoder(c.DecoderConfig()),
	}
}
