package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-causality/internal/api"
	"github.com/miradorstack/mirador-causality/internal/config"
	"github.com/miradorstack/mirador-causality/internal/models"
	"github.com/miradorstack/mirador-causality/internal/utils"
)

type aggregateOptions struct {
	fixture    string
	evidenceID int
	timeSpan   int
	raw        bool
}

func newAggregateCommand(root *rootOptions) *cobra.Command {
	opts := &aggregateOptions{}
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate the probable causes of one item of evidence from a fixture file",
		Example: `  causality-engine aggregate --fixture causes.json --evidence-id 42
  causality-engine aggregate --fixture causes.json --evidence-id 42 --raw`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAggregate(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.fixture, "fixture", "", "JSON fixture holding evidence and probable causes")
	cmd.Flags().IntVar(&opts.evidenceID, "evidence-id", 0, "Evidence id to aggregate")
	cmd.Flags().IntVar(&opts.timeSpan, "time-span", 0, "Only consider causes within this many seconds of the evidence")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print the unaggregated probable causes instead")
	_ = cmd.MarkFlagRequired("fixture")
	_ = cmd.MarkFlagRequired("evidence-id")
	return cmd
}

func runAggregate(cmd *cobra.Command, root *rootOptions, opts *aggregateOptions) error {
	cfg := config.Default()
	if root.configPath != "" {
		loaded, err := config.Load(root.configPath)
		if err != nil {
			return err
		}
		cfg = *loaded
	}
	cfg.Repository.Driver = config.DriverFixture
	cfg.Repository.Fixture = opts.fixture
	cfg.Cache.Backend = ""
	if root.logLevel != "" {
		cfg.Logging.Level = root.logLevel
	}

	logger := utils.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.JSON)
	ctx := cmd.Context()

	store, err := openStore(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	pipeline := newPipeline(&cfg, store, logger)
	req := models.AggregationRequest{EvidenceID: opts.evidenceID, TimeSpanSeconds: opts.timeSpan}

	var out *structpb.Struct
	if opts.raw {
		records, err := pipeline.ProbableCauses(ctx, req)
		if err != nil {
			return err
		}
		out, err = api.ToProbableCausesResponse(records)
		if err != nil {
			return err
		}
	} else {
		groups, err := pipeline.Aggregate(ctx, req)
		if err != nil {
			return err
		}
		out, err = api.ToAggregatesResponse(req.EvidenceID, groups)
		if err != nil {
			return err
		}
		logger.Debug("aggregation complete", slog.Int("aggregates", len(groups)))
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func writeJSON(w io.Writer, msg *structpb.Struct) error {
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
