// Package commands implements the polysignal command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/polysignal/internal/app"
	"github.com/alanyoungcy/polysignal/internal/config"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// exitError carries a process exit code without an extra message.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	debug      bool
	cacheDir   string
	noCache    bool
	ttlGamma   int
	ttlData    int

	stdout io.Writer
	stderr io.Writer
}

// Execute runs the CLI with args and returns the process exit code: 0 for
// success (including StayOut and event listings), 1 for any failure.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	g := &globals{stdout: stdout, stderr: stderr}
	root := newRootCmd(g)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}

func newRootCmd(g *globals) *cobra.Command {
	af := &analyzeFlags{}
	root := &cobra.Command{
		Use:   "polysignal [analyze] <market-or-event-url>",
		Short: "Smart-money consensus signal for Polymarket markets",
		Long: `polysignal profiles the top holders of a Polymarket market, keeps the
wallets with a proven track record and recommends the outcome they agree on,
or STAY OUT when there is no clear consensus.`,
		Version:       Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runAnalyze(cmd, g, af, args[0])
		},
	}
	af.bind(root)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default ~/"+config.DefaultFileName+")")
	pf.BoolVar(&g.debug, "debug", false, "print request/cache stats and diagnostics; log at debug level")
	pf.StringVar(&g.cacheDir, "cache-dir", "", "disk cache directory (default ~/.polysignal-cache)")
	pf.BoolVar(&g.noCache, "no-cache", false, "disable cache reads and writes (does not delete the cache)")
	pf.IntVar(&g.ttlGamma, "ttl-gamma", 0, "Gamma API cache TTL in seconds (default 21600)")
	pf.IntVar(&g.ttlData, "ttl-data", 0, "Data API cache TTL in seconds (default 300)")

	root.AddCommand(
		newAnalyzeCmd(g),
		newServeCmd(g),
		newCacheCmd(g),
		newDoctorCmd(g),
	)
	return root
}

// setup loads and validates the configuration with flag overrides applied,
// and builds the stderr logger. extra runs before validation.
func setup(cmd *cobra.Command, g *globals, extra func(*config.Config)) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir = config.ExpandHome(g.cacheDir)
	}
	if flags.Changed("ttl-gamma") {
		cfg.Cache.TTLGamma.Duration = time.Duration(g.ttlGamma) * time.Second
	}
	if flags.Changed("ttl-data") {
		cfg.Cache.TTLData.Duration = time.Duration(g.ttlData) * time.Second
	}
	if g.debug {
		cfg.LogLevel = "debug"
	}
	if extra != nil {
		extra(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(g.stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
