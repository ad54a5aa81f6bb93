package commands

import (
	"fmt"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/polysignal/internal/app"
	"github.com/alanyoungcy/polysignal/internal/config"
)

func newDoctorCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Print the effective config and probe both APIs and the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, g, nil)
			if err != nil {
				return err
			}
			out := g.stdout

			path := g.configPath
			if path == "" {
				path = config.DefaultPath() + " (default)"
			}
			fmt.Fprintln(out, "polysignal doctor")
			fmt.Fprintf(out, "version   %s\n", Version)
			fmt.Fprintf(out, "go        %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "config    %s\n\n", path)

			redacted := config.RedactedConfig(cfg)
			if err := toml.NewEncoder(out).Encode(redacted); err != nil {
				return fmt.Errorf("doctor: encode config: %w", err)
			}
			fmt.Fprintln(out)

			a := app.New(cfg, logger)
			defer a.Close()
			deps, err := a.Wire(cmd.Context(), app.Options{NoCache: g.noCache})
			if err != nil {
				return err
			}

			failed := false
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CHECK\tSTATUS\tTIME\tDETAIL")
			for _, p := range a.Doctor(cmd.Context(), deps) {
				status, detail := "ok", p.Detail
				if !p.OK() {
					status, detail, failed = "FAIL", p.Err.Error(), true
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s (%s)\n", p.Name, status, p.Elapsed.Round(time.Millisecond), detail, p.Target)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failed {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}
