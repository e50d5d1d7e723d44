package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/miradorstack/mirador-causality/internal/models"
)

// pageFunctions maps page directions onto the evidence paging stored functions.
var pageFunctions = map[models.PageDirection]string{
	models.PageFirst:    "evidence_first_page",
	models.PageLast:     "evidence_last_page",
	models.PageNext:     "evidence_next_page",
	models.PagePrevious: "evidence_previous_page",
	models.PageAtTime:   "evidence_at_time",
}

const (
	probableCausesQuery = `SELECT source_type, category, description, source, event_time, count,
	significance, magnitude, evidence_id, severity, type_metric_id, metric, peak_value,
	attribute_names, attribute_values
FROM probable_causes($1, $2)`

	evidenceColumns = `id, event_time, type, description, source, severity, attribute_names, attribute_values`

	evidenceQuery = `SELECT ` + evidenceColumns + ` FROM evidence_single_complete($1)`

	incidentQuery = `SELECT anomaly_score FROM incident_for_evidence($1)`

	metricPathQuery = `SELECT name, prefix FROM incident_metric_path($1)`

	attributeNamesQuery = `SELECT attribute_name FROM incident_attribute_names($1)`

	attributeValuesQuery = `SELECT attribute_value FROM incident_attribute_values($1, $2)`

	causalityDataQuery = `SELECT source_type, category, description, source, attribute_names, attribute_values,
	start_time, end_time, count, significance, magnitude, type_metric_id
FROM causality_data($1, $2, $3, $4, $5, $6, $7)`

	// Every paging function shares one signature; unused arguments are NULL.
	evidencePageQuery = `SELECT ` + evidenceColumns + ` FROM %s($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
)

// PostgresStore reads probable causes and evidence through the causality stored functions.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgresStore connects using a lib/pq DSN and verifies connectivity.
func OpenPostgresStore(ctx context.Context, dsn string, maxOpenConns int) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FetchProbableCauses loads the probable causes detected for evidenceID.
func (s *PostgresStore) FetchProbableCauses(ctx context.Context, evidenceID, timeSpanSecs int) ([]models.RawCause, error) {
	rows, err := s.db.QueryContext(ctx, probableCausesQuery, evidenceID, timeSpanSecs)
	if err != nil {
		return nil, fmt.Errorf("query probable causes: %w", err)
	}
	defer rows.Close()

	var causes []models.RawCause
	for rows.Next() {
		var (
			c                     models.RawCause
			typeName, category    string
			severity, metric      sql.NullString
			typeMetricID          sql.NullInt64
			peak                  sql.NullFloat64
			attrNames, attrValues []string
		)
		if err := rows.Scan(&typeName, &category, &c.Description, &c.Source, &c.Time, &c.Count,
			&c.Significance, &c.Magnitude, &c.EvidenceID, &severity, &typeMetricID, &metric, &peak,
			pq.Array(&attrNames), pq.Array(&attrValues)); err != nil {
			return nil, fmt.Errorf("scan probable cause: %w", err)
		}
		c.SourceType = models.SourceType{Name: typeName, Category: parseCategory(category)}
		c.Severity = causeSeverity(severity.String)
		c.TypeMetricID = int(typeMetricID.Int64)
		c.Metric = metric.String
		c.PeakValue = peak.Float64
		c.ScalingFactor = 1
		c.Attributes = zipAttributes(attrNames, attrValues)
		causes = append(causes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate probable causes: %w", err)
	}
	return causes, nil
}

// FetchEvidence loads one complete evidence row.
func (s *PostgresStore) FetchEvidence(ctx context.Context, evidenceID int) (models.Evidence, error) {
	ev, err := scanEvidence(s.db.QueryRowContext(ctx, evidenceQuery, evidenceID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Evidence{}, fmt.Errorf("evidence %d: %w", evidenceID, models.ErrEvidenceNotFound)
	}
	if err != nil {
		return models.Evidence{}, fmt.Errorf("query evidence %d: %w", evidenceID, err)
	}
	return ev, nil
}

// FetchEvidencePage calls the paging function for q.Direction.
func (s *PostgresStore) FetchEvidencePage(ctx context.Context, q models.PageQuery) ([]models.Evidence, error) {
	fn, ok := pageFunctions[q.Direction]
	if !ok {
		return nil, fmt.Errorf("unknown page direction %q", q.Direction)
	}
	args := pageArgs(q)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(evidencePageQuery, fn), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", fn, err)
	}
	defer rows.Close()

	var page []models.Evidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", fn, err)
		}
		page = append(page, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", fn, err)
	}
	return page, nil
}

// FetchIncident loads the anomaly score, metric path and attribute names of the incident
// containing evidenceID.
func (s *PostgresStore) FetchIncident(ctx context.Context, evidenceID int) (models.Incident, error) {
	incident := models.Incident{EvidenceID: evidenceID}
	err := s.db.QueryRowContext(ctx, incidentQuery, evidenceID).Scan(&incident.AnomalyScore)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Incident{}, fmt.Errorf("evidence %d: %w", evidenceID, models.ErrEvidenceNotFound)
	}
	if err != nil {
		return models.Incident{}, fmt.Errorf("query incident %d: %w", evidenceID, err)
	}

	rows, err := s.db.QueryContext(ctx, metricPathQuery, evidenceID)
	if err != nil {
		return models.Incident{}, fmt.Errorf("query metric path: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var node models.MetricPathNode
		if err := rows.Scan(&node.Name, &node.Prefix); err != nil {
			return models.Incident{}, fmt.Errorf("scan metric path: %w", err)
		}
		incident.MetricPath = append(incident.MetricPath, node)
	}
	if err := rows.Err(); err != nil {
		return models.Incident{}, fmt.Errorf("iterate metric path: %w", err)
	}

	if incident.AttributeNames, err = s.queryStrings(ctx, attributeNamesQuery, evidenceID); err != nil {
		return models.Incident{}, err
	}
	return incident, nil
}

// FetchCausalityData calls causality_data with the query's return attributes and filters.
func (s *PostgresStore) FetchCausalityData(ctx context.Context, q models.CausalityDataQuery) ([]models.CausalityData, error) {
	rows, err := s.db.QueryContext(ctx, causalityDataQuery, causalityDataArgs(q)...)
	if err != nil {
		return nil, fmt.Errorf("query causality data: %w", err)
	}
	defer rows.Close()

	var out []models.CausalityData
	for rows.Next() {
		var (
			d                     models.CausalityData
			typeName, category    string
			source                sql.NullString
			typeMetricID          sql.NullInt64
			attrNames, attrValues []string
		)
		if err := rows.Scan(&typeName, &category, &d.Description, &source,
			pq.Array(&attrNames), pq.Array(&attrValues), &d.StartTime, &d.EndTime,
			&d.Count, &d.Significance, &d.Magnitude, &typeMetricID); err != nil {
			return nil, fmt.Errorf("scan causality data: %w", err)
		}
		d.SourceType = models.SourceType{Name: typeName, Category: parseCategory(category)}
		d.Source = source.String
		d.Attributes = zipAttributes(attrNames, attrValues)
		d.TypeMetricID = int(typeMetricID.Int64)
		d.ScalingFactor = 1
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate causality data: %w", err)
	}
	return out, nil
}

// FetchAttributeValues lists the distinct values of an attribute across an incident.
func (s *PostgresStore) FetchAttributeValues(ctx context.Context, evidenceID int, name string) ([]string, error) {
	return s.queryStrings(ctx, attributeValuesQuery, evidenceID, name)
}

func (s *PostgresStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query strings: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan string: %w", err)
		}
		out = append(out, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strings: %w", err)
	}
	return out, nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvidence(row rowScanner) (models.Evidence, error) {
	var (
		ev                    models.Evidence
		severity              sql.NullString
		attrNames, attrValues []string
	)
	if err := row.Scan(&ev.ID, &ev.Time, &ev.Type, &ev.Description, &ev.Source, &severity,
		pq.Array(&attrNames), pq.Array(&attrValues)); err != nil {
		return models.Evidence{}, err
	}
	ev.Severity = models.ParseSeverity(severity.String)
	ev.Attributes = zipAttributes(attrNames, attrValues)
	return ev, nil
}

// pageArgs orders the shared paging function arguments: incident evidence id, type,
// description, source, attribute names, attribute values, single description flag,
// cursor id, cursor time, at time, page size.
func pageArgs(q models.PageQuery) []any {
	names := make([]string, 0, len(q.Key.Attributes))
	values := make([]string, 0, len(q.Key.Attributes))
	for _, attr := range q.Key.Attributes {
		names = append(names, attr.Name)
		values = append(values, attr.Value)
	}
	return []any{
		q.Key.EvidenceID,
		nullString(q.Key.Type),
		nullString(q.Key.Description),
		nullString(q.Key.Source),
		pq.Array(names),
		pq.Array(values),
		q.Key.SingleDescription,
		nullInt(q.Cursor.EvidenceID),
		nullTime(q.Cursor.Time),
		nullTime(q.Time),
		q.Size,
	}
}

// causalityDataArgs orders the causality_data arguments: incident evidence id, return
// attributes, null filter names, filter names, filter values, secondary filter name and
// value.
func causalityDataArgs(q models.CausalityDataQuery) []any {
	names := make([]string, 0, len(q.Attributes))
	values := make([]string, 0, len(q.Attributes))
	for _, attr := range q.Attributes {
		names = append(names, attr.Name)
		values = append(values, attr.Value)
	}
	return []any{
		q.EvidenceID,
		pq.Array(nonNil(q.ReturnAttributes)),
		pq.Array(nonNil(q.NullAttributes)),
		pq.Array(names),
		pq.Array(values),
		nullString(q.SecondaryFilter.Name),
		nullString(q.SecondaryFilter.Value),
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func zipAttributes(names, values []string) []models.Attribute {
	n := min(len(names), len(values))
	if n == 0 {
		return nil
	}
	out := make([]models.Attribute, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Attribute{Name: names[i], Value: values[i]})
	}
	return out
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nullTime(v time.Time) sql.NullTime {
	return sql.NullTime{Time: v, Valid: !v.IsZero()}
}
