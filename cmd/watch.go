package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RyanBlaney/sonido-harmony/batch"
	"github.com/RyanBlaney/sonido-harmony/watch"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var quietPeriod time.Duration

	cmd := &cobra.Command{
		Use:   "watch [directory]",
		Short: "Re-analyze MIDI and audio files as they change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if quietPeriod <= 0 {
				quietPeriod = a.cfg.WatchQuietPeriod
			}
			root := defaultInputDir
			if len(args) == 1 {
				root = args[0]
			}

			analyzer, err := a.analyzer()
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runner := batch.NewRunner(analyzer, a.cfg.FileLoader(),
				batch.WithFileTimeout(a.cfg.FileTimeout),
				batch.WithWriter(a.reportWriter()),
				batch.WithStore(store),
			)

			out := cmd.OutOrStdout()
			w := watch.New(runner,
				watch.WithQuietPeriod(quietPeriod),
				watch.WithOutcomeHandler(func(o batch.FileOutcome) {
					printOutcome(out, o)
				}),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl-C to stop)\n", root)
			return w.Run(ctx, root)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&a.outputDir, "out", "o", "", "result JSON directory (default from config)")
	flags.StringVar(&a.analysisDir, "analysis-dir", "", "analysis text directory (default from config)")
	flags.DurationVar(&quietPeriod, "quiet-period", 0, "wait this long after the last write (default from config)")
	return cmd
}
