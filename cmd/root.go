// Package cmd implements the harmony command line.
package cmd

import (
	"fmt"
	"io"

	"github.com/RyanBlaney/sonido-harmony/analysis"
	"github.com/RyanBlaney/sonido-harmony/config"
	"github.com/RyanBlaney/sonido-harmony/logging"
	"github.com/RyanBlaney/sonido-harmony/storage"
	"github.com/spf13/cobra"
)

// app carries what every subcommand shares once the root has loaded config
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config

	// output directory overrides shared by analyze and watch
	outputDir   string
	analysisDir string
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "harmony",
		Short: "Key and Roman numeral analysis of MIDI and audio",
		Long: `harmony estimates the key of MIDI scores and audio recordings and labels
their chord progressions with Roman numerals (I, V6/5, vii°7 ...).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (default $"+config.EnvConfigFile+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newAnalyzeCmd(a),
		newServeCmd(a),
		newLabelCmd(a),
		newWatchCmd(a),
	)
	return root
}

// Execute runs the root command
func Execute() {
	cobra.CheckErr(NewRootCmd().Execute())
}

func (a *app) setup(logOut io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	// stdout is kept for results
	logger := logging.NewDefaultLoggerWithWriters(logOut, logOut, false)
	logger.SetLevel(cfg.Level())
	logging.SetGlobalLogger(logger)
	return nil
}

func (a *app) analyzer() (*analysis.Analyzer, error) {
	opts, err := a.cfg.AnalysisOptions()
	if err != nil {
		return nil, err
	}
	return analysis.NewAnalyzer(opts)
}

// openStore opens the configured database, or returns nil when storage is off
func (a *app) openStore() (*storage.Store, error) {
	if a.cfg.DBPath == "" {
		return nil, nil
	}
	store, err := storage.Open(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening result store: %w", err)
	}
	return store, nil
}
