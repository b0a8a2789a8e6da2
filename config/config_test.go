package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/algorithms/tonal"
	"github.com/RyanBlaney/sonido-harmony/config"
	"github.com/RyanBlaney/sonido-harmony/logging"
	"github.com/smartystreets/goconvey/convey"
)

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, config.EnvPrefix) {
			_ = os.Unsetenv(name)
		}
	}
}

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "harmony.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load("")

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.KeyProfile, convey.ShouldEqual, "krumhansl")
				convey.So(cfg.FigureStyle, convey.ShouldEqual, "slashed")
				convey.So(cfg.Addr, convey.ShouldEqual, ":8090")
				convey.So(cfg.Workers, convey.ShouldBeGreaterThan, 0)
				convey.So(cfg.Audio.HopSize, convey.ShouldEqual, 2048)
				convey.So(cfg.Level(), convey.ShouldEqual, logging.InfoLevel)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("HARMONY_KEY_PROFILE", "temperley")
			_ = os.Setenv("HARMONY_FIGURE_STYLE", "compact")
			_ = os.Setenv("HARMONY_WORKERS", "3")
			_ = os.Setenv("HARMONY_DROP_RESTS", "true")
			_ = os.Setenv("HARMONY_FILE_TIMEOUT", "45s")
			_ = os.Setenv("HARMONY_AUDIO_HOP_SIZE", "1024")
			_ = os.Setenv("HARMONY_AUDIO_WINDOW_FRAMES", "16")
			_ = os.Setenv("HARMONY_ALLOWED_ORIGINS", "https://a.example,https://b.example")
			_ = os.Setenv("HARMONY_WATCH_QUIET_PERIOD", "2s")

			cfg, err := config.Load("")

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.KeyProfile, convey.ShouldEqual, "temperley")
				convey.So(cfg.FigureStyle, convey.ShouldEqual, "compact")
				convey.So(cfg.Workers, convey.ShouldEqual, 3)
				convey.So(cfg.DropRests, convey.ShouldBeTrue)
				convey.So(cfg.FileTimeout, convey.ShouldEqual, 45*time.Second)
				convey.So(cfg.Audio.HopSize, convey.ShouldEqual, 1024)
				convey.So(cfg.Audio.WindowFrames, convey.ShouldEqual, 16)
				convey.So(cfg.Audio.WindowSize, convey.ShouldEqual, 4096)
				convey.So(cfg.AllowedOrigins, convey.ShouldResemble, []string{"https://a.example", "https://b.example"})
				convey.So(cfg.WatchQuietPeriod, convey.ShouldEqual, 2*time.Second)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			path := writeConfigFile(t, `
log_level: debug
key_profile: aarden-essen
local_key_window: "3/2"
merge_repeated: true
db_path: /tmp/harmony.db
audio:
  tuning_hz: 415
  min_chord_score: 0.7
`)
			_ = os.Setenv("HARMONY_ADDR", ":9999")

			cfg, err := config.Load(path)

			convey.Convey("Then file values apply and env vars still win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Level(), convey.ShouldEqual, logging.DebugLevel)
				convey.So(cfg.KeyProfile, convey.ShouldEqual, "aarden-essen")
				convey.So(cfg.MergeRepeated, convey.ShouldBeTrue)
				convey.So(cfg.DBPath, convey.ShouldEqual, "/tmp/harmony.db")
				convey.So(cfg.Audio.TuningHz, convey.ShouldEqual, 415.0)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9999")
			})

			convey.Convey("And the analysis options follow", func() {
				opts, err := cfg.AnalysisOptions()
				convey.So(err, convey.ShouldBeNil)
				convey.So(opts.KeyProfile, convey.ShouldEqual, tonal.KeyProfileAardenEssen)
				convey.So(opts.LocalKeyWindow.Equal(pitch.NewTime(3, 2)), convey.ShouldBeTrue)
				convey.So(opts.Audio.MinChordScore, convey.ShouldEqual, 0.7)
				convey.So(opts.MergeRepeated, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the config file is named by HARMONY_CONFIG", func() {
			path := writeConfigFile(t, "workers: 7\n")
			_ = os.Setenv(config.EnvConfigFile, path)

			cfg, err := config.Load("")

			convey.Convey("Then it is read", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Workers, convey.ShouldEqual, 7)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))

			convey.Convey("Then loading fails", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a value is invalid", func() {
			_ = os.Setenv("HARMONY_KEY_PROFILE", "bach")

			_, err := config.Load("")

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestConfigValidate(t *testing.T) {
	convey.Convey("Given the default config", t, func() {
		cfg := config.New()

		convey.Convey("It validates", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("A zero worker count is rejected", func() {
			cfg.Workers = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("An unknown log level is rejected", func() {
			cfg.LogLevel = "chatty"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("A hop longer than the window is rejected", func() {
			cfg.Audio.HopSize = cfg.Audio.WindowSize + 1
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("A malformed local key window is rejected", func() {
			cfg.LocalKeyWindow = "four"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("The decoder settings follow the audio section", func() {
			cfg.Audio.SampleRate = 16000
			cfg.FFmpegPath = "/opt/ffmpeg"
			dc := cfg.DecoderConfig()
			convey.So(dc.TargetSampleRate, convey.ShouldEqual, 16000)
			convey.So(dc.FFmpegPath, convey.ShouldEqual, "/opt/ffmpeg")
			convey.So(dc.Timeout, convey.ShouldEqual, cfg.FileTimeout)
		})
	})
}
