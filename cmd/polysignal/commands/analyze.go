package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/polysignal/internal/app"
	"github.com/alanyoungcy/polysignal/internal/config"
	"github.com/alanyoungcy/polysignal/internal/render"
	"github.com/alanyoungcy/polysignal/internal/service"
)

// analyzeFlags are the per-run knobs. Unset flags keep the configured value.
type analyzeFlags struct {
	marketIndex         int
	all                 bool
	clearCache          bool
	jsonOut             bool
	noColor             bool
	minProfit           float64
	concurrency         int
	holdersLimit        int
	minBalance          float64
	maxClosed           int
	closedPageSize      int
	consensusThreshold  float64
	whaleThreshold      float64
	minQualifiedWallets int
}

func (f *analyzeFlags) bind(cmd *cobra.Command) {
	d := config.Defaults().Analysis
	fs := cmd.Flags()
	fs.IntVar(&f.marketIndex, "market-index", -1, "for an event URL, analyze the market at this 0-based index")
	fs.BoolVar(&f.all, "all", false, "for an event URL, analyze every market (slow)")
	fs.BoolVar(&f.clearCache, "clear-cache", false, "clear the cache before running")
	fs.BoolVar(&f.jsonOut, "json", false, "emit the analysis as JSON")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colored output")
	fs.Float64Var(&f.minProfit, "min-profit", d.MinProfit, "only count wallets with at least this all-time PnL (USD)")
	fs.IntVar(&f.concurrency, "concurrency", d.Concurrency, "max concurrent wallet profiles")
	fs.IntVar(&f.holdersLimit, "holders-limit", d.HoldersLimit, "top holders to consider (the API caps at 20)")
	fs.Float64Var(&f.minBalance, "min-balance", d.MinBalance, "min token balance in the holders list")
	fs.IntVar(&f.maxClosed, "max-closed", d.MaxClosed, "max closed positions scanned per wallet")
	fs.IntVar(&f.closedPageSize, "closed-page-size", d.ClosedPageSize, "closed positions page size (max 50)")
	fs.Float64Var(&f.consensusThreshold, "consensus-threshold", d.ConsensusThreshold, "top outcome share required for BUY")
	fs.Float64Var(&f.whaleThreshold, "whale-threshold", d.WhaleThreshold, "STAY OUT when one wallet holds at least this share")
	fs.IntVar(&f.minQualifiedWallets, "min-qualified-wallets", d.MinQualifiedWallets, "minimum qualified wallets for BUY")
}

// apply copies explicitly set flags onto cfg.
func (f *analyzeFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	a := &cfg.Analysis
	for name, set := range map[string]func(){
		"min-profit":            func() { a.MinProfit = f.minProfit },
		"concurrency":           func() { a.Concurrency = f.concurrency },
		"holders-limit":         func() { a.HoldersLimit = f.holdersLimit },
		"min-balance":           func() { a.MinBalance = f.minBalance },
		"max-closed":            func() { a.MaxClosed = f.maxClosed },
		"closed-page-size":      func() { a.ClosedPageSize = f.closedPageSize },
		"consensus-threshold":   func() { a.ConsensusThreshold = f.consensusThreshold },
		"whale-threshold":       func() { a.WhaleThreshold = f.whaleThreshold },
		"min-qualified-wallets": func() { a.MinQualifiedWallets = f.minQualifiedWallets },
	} {
		if fs.Changed(name) {
			set()
		}
	}
}

func (f *analyzeFlags) selection(cmd *cobra.Command) service.Selection {
	sel := service.NoSelection()
	if cmd.Flags().Changed("market-index") {
		sel.Index = f.marketIndex
	}
	sel.All = f.all
	return sel
}

func newAnalyzeCmd(g *globals) *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze <market-or-event-url>",
		Short: "Analyze a market or event (the default command)",
		Example: `  polysignal analyze https://polymarket.com/event/fed-decision-in-june
  polysignal analyze event:fed-decision-in-june --market-index 2
  polysignal analyze market:will-it-rain --min-profit 0 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, g, f, args[0])
		},
	}
	f.bind(cmd)
	return cmd
}

func runAnalyze(cmd *cobra.Command, g *globals, f *analyzeFlags, ref string) error {
	if cmd.Flags().Changed("market-index") && f.marketIndex < 0 {
		return fmt.Errorf("invalid --market-index %d: must be >= 0", f.marketIndex)
	}
	cfg, logger, err := setup(cmd, g, func(cfg *config.Config) { f.apply(cmd, cfg) })
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a := app.New(cfg, logger)
	defer a.Close()
	deps, err := a.Wire(ctx, app.Options{NoCache: g.noCache, ClearCache: f.clearCache})
	if err != nil {
		return err
	}

	report, err := deps.Analyzer.Analyze(ctx, service.Request{Ref: ref, Selection: f.selection(cmd)})
	if err != nil {
		return err
	}

	if f.jsonOut {
		err = render.JSON(g.stdout, report)
	} else {
		err = render.Text(g.stdout, report, render.Options{
			Debug: g.debug,
			Color: colorEnabled(g, f.noColor),
		})
	}
	if err != nil {
		return err
	}
	if report.Failed() {
		return &exitError{code: 1}
	}
	return nil
}

// colorEnabled honours --no-color, NO_COLOR and non-terminal output.
func colorEnabled(g *globals, noColor bool) bool {
	if noColor {
		return false
	}
	out, ok := g.stdout.(*os.File)
	return ok && out == os.Stdout && !color.NoColor
}
