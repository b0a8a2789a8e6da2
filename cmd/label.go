package cmd

import (
	"fmt"

	"github.com/RyanBlaney/sonido-harmony/algorithms/pitch"
	"github.com/RyanBlaney/sonido-harmony/algorithms/tonal"
	"github.com/spf13/cobra"
)

func newLabelCmd(a *app) *cobra.Command {
	var (
		keyName string
		bassArg string
		style   string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "label <pitch class> <pitch class> <pitch class> ...",
		Short: "Label one chord with a Roman numeral",
		Example: `  harmony label C E G --key "C major" --bass E      # I6
  harmony label G B D F --key "C major" --bass B    # V6/5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if style != "" {
				a.cfg.FigureStyle = style
			}
			analyzer, err := a.analyzer()
			if err != nil {
				return err
			}

			key, err := tonal.ParseKey(keyName)
			if err != nil {
				return err
			}

			pcs := make([]pitch.PitchClass, 0, len(args))
			for _, arg := range args {
				pc, err := pitch.ParsePitchClass(arg)
				if err != nil {
					return err
				}
				pcs = append(pcs, pc)
			}

			bass := pitch.NoPitch
			if bassArg != "" {
				if bass, err = pitch.ParsePitchClass(bassArg); err != nil {
					return err
				}
			}

			label, err := analyzer.Label(tonal.NewChord(pcs, bass, pitch.Beats(0), pitch.Beats(1)), key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !verbose {
				fmt.Fprintln(out, label.Figure)
				return nil
			}
			fmt.Fprintf(out, "%s in %s: root %s, %s, inversion %d\n",
				label.Figure, key, label.Root, label.Quality, label.Inversion)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&keyName, "key", "k", "C major", `key such as "C major" or "F# minor"`)
	flags.StringVarP(&bassArg, "bass", "b", "", "bass pitch class (default: lowest pitch class, root position)")
	flags.StringVar(&style, "style", "", "figure style: slashed or compact (default from config)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print root, quality and inversion")
	return cmd
}
