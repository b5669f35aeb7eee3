package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewMetricsCommand creates the metrics command.
func NewMetricsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print store gauges in Prometheus text format",
		Long: `Open the configured stores, count their contents and print the
Prometheus text exposition. Metrics are collected even when
metrics.enabled is false in the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *rootOpts.Config
			cfg.Metrics.Enabled = true
			opts := *rootOpts
			opts.Config = &cfg

			e, err := newEnv(&opts)
			if err != nil {
				return err
			}
			if err := collectCounts(cmd.Context(), e); err != nil {
				return err
			}
			return e.prom.WriteText(cmd.OutOrStdout())
		},
	}
}

func collectCounts(ctx context.Context, e *env) error {
	gs, err := e.openGraphStore()
	if err != nil {
		return err
	}
	defer gs.Close()
	if _, err := gs.Counts(ctx); err != nil {
		return err
	}

	as, err := e.openAttrStore()
	if err != nil {
		return err
	}
	defer as.Close()
	_, err = as.Count(ctx)
	return err
}
