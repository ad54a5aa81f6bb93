package commands

import (
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/polysignal/internal/app"
	"github.com/alanyoungcy/polysignal/internal/config"
)

func newServeCmd(g *globals) *cobra.Command {
	var (
		port   int
		apiKey string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve analyses over HTTP (GET /api/analyze, /api/health, /metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, g, func(cfg *config.Config) {
				if cmd.Flags().Changed("port") {
					cfg.Server.Port = port
				}
				if cmd.Flags().Changed("api-key") {
					cfg.Server.APIKey = apiKey
				}
			})
			if err != nil {
				return err
			}

			a := app.New(cfg, logger)
			defer a.Close()
			deps, err := a.Wire(cmd.Context(), app.Options{NoCache: g.noCache})
			if err != nil {
				return err
			}
			return a.Serve(cmd.Context(), deps)
		},
	}
	cmd.Flags().IntVar(&port, "port", config.Defaults().Server.Port, "listen port")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "require this key on /api/analyze (Bearer or X-API-Key)")
	return cmd
}
