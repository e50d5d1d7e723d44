package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-causality/internal/metrics"
	"github.com/miradorstack/mirador-causality/internal/models"
)

// CauseRepository defines the probable cause store behaviour used by the pipeline.
type CauseRepository interface {
	FetchProbableCauses(ctx context.Context, evidenceID, timeSpanSecs int) ([]models.RawCause, error)
	FetchEvidence(ctx context.Context, evidenceID int) (models.Evidence, error)
}

// RepositoryLookup resolves severity by loading the evidence row from a CauseRepository.
type RepositoryLookup struct {
	Repo CauseRepository
}

// Severity implements EvidenceLookup.
func (l RepositoryLookup) Severity(ctx context.Context, evidenceID int) (models.Severity, error) {
	if l.Repo == nil {
		return "", fmt.Errorf("cause repository not configured")
	}
	ev, err := l.Repo.FetchEvidence(ctx, evidenceID)
	if err != nil {
		return "", err
	}
	return ev.Severity, nil
}

// Options tune the aggregation pipeline.
type Options struct {
	// DisplayLimit is the number of time series collections shown by default.
	DisplayLimit int
	// Parallelism bounds concurrent aggregate building.
	Parallelism int
	// TimeSeriesDescription, when set, is a fmt pattern applied to the metric name of every
	// time series cause before grouping, e.g. "Features in %s".
	TimeSeriesDescription string
	// CrossTypeNormalization rescales aggregates per source type name after building.
	CrossTypeNormalization bool
}

// Pipeline orchestrates fetch, normalisation, grouping, aggregation and display selection.
type Pipeline struct {
	logger  *slog.Logger
	repo    CauseRepository
	builder *AggregateBuilder
	opts    Options
}

// NewPipeline constructs a pipeline. A nil lookup resolves severity through repo.
func NewPipeline(logger *slog.Logger, repo CauseRepository, lookup EvidenceLookup, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if lookup == nil && repo != nil {
		lookup = RepositoryLookup{Repo: repo}
	}
	if opts.DisplayLimit <= 0 {
		opts.DisplayLimit = DefaultDisplayLimit
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	return &Pipeline{
		logger:  logger,
		repo:    repo,
		builder: NewAggregateBuilder(lookup, opts.Parallelism),
		opts:    opts,
	}
}

// Aggregate returns the aggregated probable causes of an item of evidence, in grouping
// order, with default visibility flagged.
func (p *Pipeline) Aggregate(ctx context.Context, req models.AggregationRequest) ([]models.AggregateGroup, error) {
	start := time.Now()
	groups, err := p.aggregate(ctx, req)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveAggregation(time.Since(start), outcome)
	if err != nil {
		return nil, err
	}
	metrics.ObserveAggregates(groups)
	return groups, nil
}

func (p *Pipeline) aggregate(ctx context.Context, req models.AggregationRequest) ([]models.AggregateGroup, error) {
	causes, err := p.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("aggregating probable causes", slog.Int("evidence_id", req.EvidenceID), slog.Int("count", len(causes)))
	if len(causes) == 0 {
		return []models.AggregateGroup{}, nil
	}

	causes = p.describe(causes)
	causes = NormalizeByTypeMetric(causes)

	groups, err := p.builder.Build(ctx, GroupCauses(causes), req.EvidenceID)
	if err != nil {
		return nil, err
	}
	if p.opts.CrossTypeNormalization {
		groups = NormalizeByTypeName(groups)
	}
	SelectForDisplay(groups, req.EvidenceID, p.opts.DisplayLimit)

	p.logger.Debug("aggregated probable causes", slog.Int("evidence_id", req.EvidenceID), slog.Int("aggregates", len(groups)))
	return groups, nil
}

// ProbableCauses returns the unaggregated probable causes as display records.
func (p *Pipeline) ProbableCauses(ctx context.Context, req models.AggregationRequest) ([]models.CauseRecord, error) {
	causes, err := p.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	records := make([]models.CauseRecord, 0, len(causes))
	for _, cause := range causes {
		records = append(records, models.NewCauseRecord(cause))
	}
	return records, nil
}

// PeakValues returns the raw peak value per time series type+metric id, used to set up chart axes.
func (p *Pipeline) PeakValues(ctx context.Context, req models.AggregationRequest) (map[int]float64, error) {
	causes, err := p.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return PeakValuesByTypeMetric(causes), nil
}

func (p *Pipeline) fetch(ctx context.Context, req models.AggregationRequest) ([]models.RawCause, error) {
	if p.repo == nil {
		return nil, fmt.Errorf("cause repository not configured")
	}
	causes, err := p.repo.FetchProbableCauses(ctx, req.EvidenceID, req.TimeSpanSeconds)
	if err != nil {
		return nil, fmt.Errorf("fetch probable causes: %w", err)
	}
	return causes, nil
}

// describe applies the generic time series description so that every feature of a metric
// within a source type aggregates into one collection.
func (p *Pipeline) describe(causes []models.RawCause) []models.RawCause {
	if p.opts.TimeSeriesDescription == "" {
		return causes
	}
	out := make([]models.RawCause, len(causes))
	for i, cause := range causes {
		out[i] = cause
		if cause.SourceType.IsTimeSeries() {
			out[i].Description = fmt.Sprintf(p.opts.TimeSeriesDescription, cause.Metric)
		}
	}
	return out
}
