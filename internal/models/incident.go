package models

import "time"

// Names of the evidence fields that may appear in a metric path or attribute filter
// alongside the free-form attributes.
const (
	FieldType        = "type"
	FieldSource      = "source"
	FieldDescription = "description"
)

// Metric path prefixes used when an incident spans several data types and the path has
// to be derived from its attribute names.
const (
	MetricPathTypePrefix      = ""
	MetricPathSourcePrefix    = " : "
	MetricPathAttributePrefix = ", "
)

// MetricPathNode is one level of the metric path shown in the causality view.
type MetricPathNode struct {
	Name   string
	Prefix string
}

// Incident is the activity containing an item of evidence.
type Incident struct {
	EvidenceID     int
	AnomalyScore   int
	MetricPath     []MetricPathNode
	AttributeNames []string
}

// ViewConfiguration sets up the causality view of an item of evidence.
type ViewConfiguration struct {
	EvidenceID           int
	MetricPath           []MetricPathNode
	PeakValues           map[int]float64
	ActivityAnomalyScore int
}

// CausalityData is one row of the causality data grid: the probable causes of an
// incident sharing a type, description, source and set of returned attributes.
type CausalityData struct {
	SourceType    SourceType
	Description   string
	Source        string
	Attributes    []Attribute
	StartTime     time.Time
	EndTime       time.Time
	Count         int
	Significance  float64
	Magnitude     float64
	TypeMetricID  int
	ScalingFactor float64
}

// Value returns the named field or attribute of the row. Type, source and description
// resolve to the row's own fields.
func (d CausalityData) Value(name string) (string, bool) {
	switch name {
	case FieldType:
		return d.SourceType.Name, true
	case FieldSource:
		return d.Source, d.Source != ""
	case FieldDescription:
		return d.Description, true
	}
	for _, attr := range d.Attributes {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// Sortable causality data fields. Any other sort field is treated as an attribute name.
const (
	SortStartTime    = "start_time"
	SortEndTime      = "end_time"
	SortCount        = "count"
	SortSignificance = "significance"
	SortMagnitude    = "magnitude"
)

// CausalityDataQuery selects and pages causality data for an incident.
type CausalityDataQuery struct {
	EvidenceID int
	// ReturnAttributes are the attributes rows are broken down by.
	ReturnAttributes []string
	// NullAttributes must be absent from a row.
	NullAttributes []string
	// Attributes must be present on a row with the given value.
	Attributes      []Attribute
	SecondaryFilter Attribute
	SortField       string
	SortDescending  bool
	Offset          int
	Limit           int
}

// Matches reports whether a row satisfies the primary and secondary filters.
func (q CausalityDataQuery) Matches(d CausalityData) bool {
	for _, name := range q.NullAttributes {
		if _, ok := d.Value(name); ok {
			return false
		}
	}
	for _, want := range q.Attributes {
		if got, ok := d.Value(want.Name); !ok || got != want.Value {
			return false
		}
	}
	if q.SecondaryFilter.Name != "" {
		if got, ok := d.Value(q.SecondaryFilter.Name); !ok || got != q.SecondaryFilter.Value {
			return false
		}
	}
	return true
}

// CausalityDataPage is one window of sorted causality data.
type CausalityDataPage struct {
	Rows   []CausalityData
	Offset int
	Total  int
}
