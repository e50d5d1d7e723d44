package engine

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-causality/internal/models"
	"github.com/miradorstack/mirador-causality/internal/utils"
)

// EvidenceLookup resolves the severity of a single item of evidence.
type EvidenceLookup interface {
	Severity(ctx context.Context, evidenceID int) (models.Severity, error)
}

// AggregateBuilder converts grouped causes into display-ready collections.
type AggregateBuilder struct {
	lookup      EvidenceLookup
	parallelism int
}

// NewAggregateBuilder constructs a builder resolving notification severity through lookup.
// Groups are built concurrently, at most parallelism at a time.
func NewAggregateBuilder(lookup EvidenceLookup, parallelism int) *AggregateBuilder {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &AggregateBuilder{lookup: lookup, parallelism: parallelism}
}

// Build produces one aggregate per group, preserving group order. Any severity lookup
// failure aborts the whole build.
func (b *AggregateBuilder) Build(ctx context.Context, groups []CauseGroup, evidenceID int) ([]models.AggregateGroup, error) {
	out := make([]models.AggregateGroup, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for i := range groups {
		g.Go(func() error {
			aggregate, err := b.buildOne(gctx, groups[i], evidenceID)
			if err != nil {
				return err
			}
			out[i] = aggregate
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *AggregateBuilder) buildOne(ctx context.Context, group CauseGroup, evidenceID int) (models.AggregateGroup, error) {
	causes := slices.Clone(group.Causes)
	if len(causes) > 1 {
		slices.SortStableFunc(causes, TimeOrder)
	}

	aggregate := models.AggregateGroup{
		SourceType:  group.SourceType,
		Description: group.Description,
		Size:        len(causes),
	}

	sources := make(map[string]struct{}, len(causes))
	for _, cause := range causes {
		aggregate.Count += cause.Count
		sources[cause.Source] = struct{}{}
	}
	aggregate.SourceCount = len(sources)

	if group.SourceType.IsTimeSeries() {
		aggregate.Members = make([]models.CauseRecord, 0, len(causes))
		for _, cause := range causes {
			aggregate.Members = append(aggregate.Members, models.NewCauseRecord(cause))
		}
		slices.SortStableFunc(aggregate.Members, MagnitudeOrder(evidenceID))
		return aggregate, nil
	}

	// Notifications only keep the earliest and latest occurrence.
	aggregate.Members = []models.CauseRecord{models.NewCauseRecord(causes[0])}
	if len(causes) > 1 {
		aggregate.Members = append(aggregate.Members, models.NewCauseRecord(causes[len(causes)-1]))
	}

	if b.lookup == nil {
		return models.AggregateGroup{}, utils.NewAppError("build aggregate", "evidence lookup not configured", nil)
	}
	severityID := aggregate.Members[0].EvidenceID
	severity, err := b.lookup.Severity(ctx, severityID)
	if err != nil {
		return models.AggregateGroup{}, utils.NewAppError("build aggregate", fmt.Sprintf("resolve severity for evidence %d", severityID), err)
	}
	aggregate.Severity = severity
	return aggregate, nil
}
