package repo

import (
	"slices"
	"time"

	"github.com/miradorstack/mirador-causality/internal/models"
)

// attributeJSON is the wire form of a time series attribute.
type attributeJSON struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// causeJSON is the wire form of a probable cause shared by the HTTP store, fixtures and cache.
type causeJSON struct {
	SourceType    string          `json:"source_type"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Source        string          `json:"source"`
	Time          time.Time       `json:"time"`
	Count         int             `json:"count"`
	Significance  float64         `json:"significance"`
	Magnitude     float64         `json:"magnitude"`
	EvidenceID    int             `json:"evidence_id"`
	Severity      string          `json:"severity,omitempty"`
	TypeMetricID  int             `json:"type_metric_id,omitempty"`
	Metric        string          `json:"metric,omitempty"`
	PeakValue     float64         `json:"peak_value,omitempty"`
	ScalingFactor float64         `json:"scaling_factor,omitempty"`
	Attributes    []attributeJSON `json:"attributes,omitempty"`
}

// evidenceJSON is the wire form of one evidence row.
type evidenceJSON struct {
	ID          int             `json:"id"`
	Time        time.Time       `json:"time"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Source      string          `json:"source"`
	Severity    string          `json:"severity,omitempty"`
	Attributes  []attributeJSON `json:"attributes,omitempty"`
}

func parseCategory(value string) models.Category {
	if value == string(models.CategoryTimeSeries) {
		return models.CategoryTimeSeries
	}
	return models.CategoryNotification
}

func fromAttributesJSON(in []attributeJSON) []models.Attribute {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Attribute, 0, len(in))
	for _, attr := range in {
		out = append(out, models.Attribute{Name: attr.Name, Value: attr.Value})
	}
	return out
}

func toAttributesJSON(in []models.Attribute) []attributeJSON {
	if len(in) == 0 {
		return nil
	}
	out := make([]attributeJSON, 0, len(in))
	for _, attr := range in {
		out = append(out, attributeJSON{Name: attr.Name, Value: attr.Value})
	}
	return out
}

// causeSeverity leaves an absent severity empty so that time series causes survive a
// store or cache round trip unchanged.
func causeSeverity(value string) models.Severity {
	if value == "" {
		return ""
	}
	return models.ParseSeverity(value)
}

func (c causeJSON) model() models.RawCause {
	cause := models.RawCause{
		SourceType:    models.SourceType{Name: c.SourceType, Category: parseCategory(c.Category)},
		Description:   c.Description,
		Source:        c.Source,
		Time:          c.Time,
		Count:         c.Count,
		Significance:  c.Significance,
		Magnitude:     c.Magnitude,
		EvidenceID:    c.EvidenceID,
		Severity:      causeSeverity(c.Severity),
		TypeMetricID:  c.TypeMetricID,
		Metric:        c.Metric,
		PeakValue:     c.PeakValue,
		ScalingFactor: c.ScalingFactor,
		Attributes:    fromAttributesJSON(c.Attributes),
	}
	if cause.ScalingFactor == 0 {
		cause.ScalingFactor = 1
	}
	return cause
}

func causeToJSON(c models.RawCause) causeJSON {
	return causeJSON{
		SourceType:    c.SourceType.Name,
		Category:      string(c.SourceType.Category),
		Description:   c.Description,
		Source:        c.Source,
		Time:          c.Time,
		Count:         c.Count,
		Significance:  c.Significance,
		Magnitude:     c.Magnitude,
		EvidenceID:    c.EvidenceID,
		Severity:      string(c.Severity),
		TypeMetricID:  c.TypeMetricID,
		Metric:        c.Metric,
		PeakValue:     c.PeakValue,
		ScalingFactor: c.ScalingFactor,
		Attributes:    toAttributesJSON(c.Attributes),
	}
}

func (e evidenceJSON) model() models.Evidence {
	return models.Evidence{
		ID:          e.ID,
		Time:        e.Time,
		Type:        e.Type,
		Description: e.Description,
		Source:      e.Source,
		Severity:    models.ParseSeverity(e.Severity),
		Attributes:  fromAttributesJSON(e.Attributes),
	}
}

func evidenceToJSON(e models.Evidence) evidenceJSON {
	return evidenceJSON{
		ID:          e.ID,
		Time:        e.Time,
		Type:        e.Type,
		Description: e.Description,
		Source:      e.Source,
		Severity:    string(e.Severity),
		Attributes:  toAttributesJSON(e.Attributes),
	}
}

func causesFromJSON(in []causeJSON) []models.RawCause {
	out := make([]models.RawCause, 0, len(in))
	for _, c := range in {
		out = append(out, c.model())
	}
	return out
}

func causesToJSON(in []models.RawCause) []causeJSON {
	out := make([]causeJSON, 0, len(in))
	for _, c := range in {
		out = append(out, causeToJSON(c))
	}
	return out
}

func evidenceFromJSON(in []evidenceJSON) []models.Evidence {
	out := make([]models.Evidence, 0, len(in))
	for _, e := range in {
		out = append(out, e.model())
	}
	return out
}

type metricPathNodeJSON struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
}

type incidentJSON struct {
	EvidenceID     int                  `json:"evidence_id"`
	AnomalyScore   int                  `json:"anomaly_score"`
	MetricPath     []metricPathNodeJSON `json:"metric_path,omitempty"`
	AttributeNames []string             `json:"attribute_names,omitempty"`
}

func (i incidentJSON) model() models.Incident {
	incident := models.Incident{
		EvidenceID:     i.EvidenceID,
		AnomalyScore:   i.AnomalyScore,
		AttributeNames: slices.Clone(i.AttributeNames),
	}
	for _, node := range i.MetricPath {
		incident.MetricPath = append(incident.MetricPath, models.MetricPathNode{Name: node.Name, Prefix: node.Prefix})
	}
	return incident
}

func incidentToJSON(i models.Incident) incidentJSON {
	out := incidentJSON{
		EvidenceID:     i.EvidenceID,
		AnomalyScore:   i.AnomalyScore,
		AttributeNames: slices.Clone(i.AttributeNames),
	}
	for _, node := range i.MetricPath {
		out.MetricPath = append(out.MetricPath, metricPathNodeJSON{Name: node.Name, Prefix: node.Prefix})
	}
	return out
}

type causalityDataJSON struct {
	SourceType    string          `json:"source_type"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Source        string          `json:"source,omitempty"`
	Attributes    []attributeJSON `json:"attributes,omitempty"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	Count         int             `json:"count"`
	Significance  float64         `json:"significance"`
	Magnitude     float64         `json:"magnitude"`
	TypeMetricID  int             `json:"type_metric_id,omitempty"`
	ScalingFactor float64         `json:"scaling_factor,omitempty"`
}

func (d causalityDataJSON) model() models.CausalityData {
	row := models.CausalityData{
		SourceType:    models.SourceType{Name: d.SourceType, Category: parseCategory(d.Category)},
		Description:   d.Description,
		Source:        d.Source,
		Attributes:    fromAttributesJSON(d.Attributes),
		StartTime:     d.StartTime,
		EndTime:       d.EndTime,
		Count:         d.Count,
		Significance:  d.Significance,
		Magnitude:     d.Magnitude,
		TypeMetricID:  d.TypeMetricID,
		ScalingFactor: d.ScalingFactor,
	}
	if row.ScalingFactor == 0 {
		row.ScalingFactor = 1
	}
	return row
}

func causalityDataToJSON(d models.CausalityData) causalityDataJSON {
	return causalityDataJSON{
		SourceType:    d.SourceType.Name,
		Category:      string(d.SourceType.Category),
		Description:   d.Description,
		Source:        d.Source,
		Attributes:    toAttributesJSON(d.Attributes),
		StartTime:     d.StartTime,
		EndTime:       d.EndTime,
		Count:         d.Count,
		Significance:  d.Significance,
		Magnitude:     d.Magnitude,
		TypeMetricID:  d.TypeMetricID,
		ScalingFactor: d.ScalingFactor,
	}
}

// causalityDataQueryJSON carries the store side of a causality data query. Sorting and
// windowing happen in the engine.
type causalityDataQueryJSON struct {
	EvidenceID       int             `json:"evidence_id"`
	ReturnAttributes []string        `json:"return_attributes,omitempty"`
	NullAttributes   []string        `json:"null_attributes,omitempty"`
	Attributes       []attributeJSON `json:"attributes,omitempty"`
	SecondaryFilter  *attributeJSON  `json:"secondary_filter,omitempty"`
}

func causalityDataQueryToJSON(q models.CausalityDataQuery) causalityDataQueryJSON {
	out := causalityDataQueryJSON{
		EvidenceID:       q.EvidenceID,
		ReturnAttributes: slices.Clone(q.ReturnAttributes),
		NullAttributes:   slices.Clone(q.NullAttributes),
		Attributes:       toAttributesJSON(q.Attributes),
	}
	if q.SecondaryFilter.Name != "" {
		out.SecondaryFilter = &attributeJSON{Name: q.SecondaryFilter.Name, Value: q.SecondaryFilter.Value}
	}
	return out
}

func (q causalityDataQueryJSON) model() models.CausalityDataQuery {
	out := models.CausalityDataQuery{
		EvidenceID:       q.EvidenceID,
		ReturnAttributes: slices.Clone(q.ReturnAttributes),
		NullAttributes:   slices.Clone(q.NullAttributes),
		Attributes:       fromAttributesJSON(q.Attributes),
	}
	if q.SecondaryFilter != nil {
		out.SecondaryFilter = models.Attribute{Name: q.SecondaryFilter.Name, Value: q.SecondaryFilter.Value}
	}
	return out
}
