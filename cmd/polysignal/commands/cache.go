package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/polysignal/internal/app"
	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/alanyoungcy/polysignal/internal/pipeline"
)

func newCacheCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "clear",
			Short: "Delete every cached response",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCache(cmd, g, func(store domain.ResponseCache, backend string, logger *slog.Logger) error {
					if err := store.Clear(cmd.Context()); err != nil {
						return fmt.Errorf("cache clear: %w", err)
					}
					fmt.Fprintf(g.stdout, "cache cleared (%s)\n", backend)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "prune",
			Short: "Delete expired cached responses",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCache(cmd, g, func(store domain.ResponseCache, backend string, logger *slog.Logger) error {
					p, ok := store.(domain.CachePruner)
					if !ok {
						fmt.Fprintf(g.stdout, "nothing to prune: %s expires entries itself\n", backend)
						return nil
					}
					n, err := pipeline.NewPruner(p, "", logger).Run(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(g.stdout, "pruned %d expired entries (%s)\n", n, backend)
					return nil
				})
			},
		},
	)
	return cmd
}

// withCache opens the configured backend, ignoring --no-cache, and closes it
// after fn.
func withCache(cmd *cobra.Command, g *globals, fn func(domain.ResponseCache, string, *slog.Logger) error) error {
	cfg, logger, err := setup(cmd, g, nil)
	if err != nil {
		return err
	}
	store, err := app.OpenCache(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("cache: open %s: %w", cfg.Cache.Backend, err)
	}
	defer store.Close()
	return fn(store, cfg.Cache.Backend, logger)
}
