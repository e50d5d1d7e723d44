package main

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "causality-engine",
		Short: "Aggregates probable causes and pages the evidence behind them",
		Long: `causality-engine groups the probable causes detected for an item of evidence into
aggregates, picks which of them are shown by default, and serves the result over gRPC.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file (defaults to $MIRADOR_CAUSALITY_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newAggregateCommand(opts))
	return cmd
}
