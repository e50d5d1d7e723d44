package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/miradorstack/mirador-causality/internal/models"
)

// IncidentSource loads incident level data for the causality explorer.
type IncidentSource interface {
	FetchIncident(ctx context.Context, evidenceID int) (models.Incident, error)
	FetchCausalityData(ctx context.Context, q models.CausalityDataQuery) ([]models.CausalityData, error)
	FetchAttributeValues(ctx context.Context, evidenceID int, name string) ([]string, error)
}

// Explorer serves the causality view set-up, the causality data grid and its column
// filter values.
type Explorer struct {
	logger   *slog.Logger
	source   IncidentSource
	pipeline *Pipeline
	lang     language.Tag
}

// NewExplorer constructs an explorer. Peak values for the view configuration come from
// pipeline.
func NewExplorer(logger *slog.Logger, source IncidentSource, pipeline *Pipeline) *Explorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Explorer{logger: logger, source: source, pipeline: pipeline, lang: language.English}
}

// ViewConfiguration returns the metric path, per type+metric peak values and the
// anomaly score of the incident containing the requested evidence.
func (e *Explorer) ViewConfiguration(ctx context.Context, req models.AggregationRequest) (models.ViewConfiguration, error) {
	if e.source == nil || e.pipeline == nil {
		return models.ViewConfiguration{}, fmt.Errorf("explorer not configured")
	}
	incident, err := e.source.FetchIncident(ctx, req.EvidenceID)
	if err != nil {
		return models.ViewConfiguration{}, fmt.Errorf("fetch incident: %w", err)
	}
	peaks, err := e.pipeline.PeakValues(ctx, req)
	if err != nil {
		return models.ViewConfiguration{}, err
	}

	path := incident.MetricPath
	if len(path) == 0 {
		path = DefaultMetricPath(incident.AttributeNames)
	}
	return models.ViewConfiguration{
		EvidenceID:           req.EvidenceID,
		MetricPath:           path,
		PeakValues:           peaks,
		ActivityAnomalyScore: incident.AnomalyScore,
	}, nil
}

// DefaultMetricPath builds a type, source, attributes path for incidents whose evidence
// spans more than one data type and so has no stored metric path.
func DefaultMetricPath(attributeNames []string) []models.MetricPathNode {
	path := []models.MetricPathNode{
		{Name: models.FieldType, Prefix: models.MetricPathTypePrefix},
		{Name: models.FieldSource, Prefix: models.MetricPathSourcePrefix},
	}
	for _, name := range attributeNames {
		switch name {
		case models.FieldType, models.FieldSource, models.FieldDescription:
			continue
		}
		path = append(path, models.MetricPathNode{Name: name, Prefix: models.MetricPathAttributePrefix})
	}
	return path
}

// CausalityDataPage loads the causality data matching q, sorts it and returns the
// requested window.
func (e *Explorer) CausalityDataPage(ctx context.Context, q models.CausalityDataQuery) (models.CausalityDataPage, error) {
	if e.source == nil {
		return models.CausalityDataPage{}, fmt.Errorf("explorer not configured")
	}
	rows, err := e.source.FetchCausalityData(ctx, q)
	if err != nil {
		return models.CausalityDataPage{}, fmt.Errorf("fetch causality data: %w", err)
	}
	for i := range rows {
		rows[i].Magnitude = math.Floor(rows[i].Magnitude + 0.5)
	}
	SortCausalityData(rows, q.SortField, q.SortDescending)

	page := WindowCausalityData(rows, q.Offset, q.Limit)
	e.logger.Debug("causality data page",
		slog.Int("evidence_id", q.EvidenceID),
		slog.Int("total", page.Total),
		slog.Int("returned", len(page.Rows)))
	return page, nil
}

// SortCausalityData sorts rows ascending on field and reverses the result for a
// descending sort. An empty field leaves the order untouched. Rows missing the field
// sort first.
func SortCausalityData(rows []models.CausalityData, field string, descending bool) {
	if field == "" {
		return
	}
	slices.SortStableFunc(rows, causalityDataOrder(field))
	if descending {
		slices.Reverse(rows)
	}
}

func causalityDataOrder(field string) func(a, b models.CausalityData) int {
	switch field {
	case models.SortStartTime:
		return func(a, b models.CausalityData) int { return a.StartTime.Compare(b.StartTime) }
	case models.SortEndTime:
		return func(a, b models.CausalityData) int { return a.EndTime.Compare(b.EndTime) }
	case models.SortCount:
		return func(a, b models.CausalityData) int { return cmp.Compare(a.Count, b.Count) }
	case models.SortSignificance:
		return func(a, b models.CausalityData) int { return cmp.Compare(a.Significance, b.Significance) }
	case models.SortMagnitude:
		return func(a, b models.CausalityData) int { return cmp.Compare(a.Magnitude, b.Magnitude) }
	}
	return func(a, b models.CausalityData) int {
		av, aok := a.Value(field)
		bv, bok := b.Value(field)
		switch {
		case !aok && !bok:
			return 0
		case !aok:
			return -1
		case !bok:
			return 1
		}
		return cmp.Compare(av, bv)
	}
}

// WindowCausalityData returns rows[offset:offset+limit]. When every row fits within
// limit, or limit is not positive, the whole list is returned.
func WindowCausalityData(rows []models.CausalityData, offset, limit int) models.CausalityDataPage {
	total := len(rows)
	if limit <= 0 || total <= limit {
		return models.CausalityDataPage{Rows: rows, Offset: offset, Total: total}
	}
	offset = max(offset, 0)
	if offset >= total {
		return models.CausalityDataPage{Rows: []models.CausalityData{}, Offset: offset, Total: total}
	}
	end := min(offset+limit, total)
	return models.CausalityDataPage{Rows: rows[offset:end], Offset: offset, Total: total}
}

// ColumnValues returns the distinct values of an attribute across the incident containing
// evidenceID, in alphabetical order.
func (e *Explorer) ColumnValues(ctx context.Context, evidenceID int, name string) ([]string, error) {
	if e.source == nil {
		return nil, fmt.Errorf("explorer not configured")
	}
	values, err := e.source.FetchAttributeValues(ctx, evidenceID, name)
	if err != nil {
		return nil, fmt.Errorf("fetch %s values: %w", name, err)
	}
	values = slices.Clone(values)
	collate.New(e.lang).SortStrings(values)
	return values, nil
}
