package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/RyanBlaney/sonido-harmony/metrics"
	"github.com/RyanBlaney/sonido-harmony/server"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		Long: `Serve symbolic, chroma profile and single chord analysis over HTTP.
Prometheus metrics are exposed on /metrics; stored results on /v1/results
when a database is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Addr
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

			srv := server.New(analyzer,
				server.WithMetrics(metrics.NewManager()),
				server.WithStore(store),
				server.WithAllowedOrigins(a.cfg.AllowedOrigins),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
