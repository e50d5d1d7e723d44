package models

import (
	"errors"
	"strings"
	"time"
)

// ErrEvidenceNotFound signals that a repository could not resolve an evidence id.
var ErrEvidenceNotFound = errors.New("evidence not found")

// Category separates the two families of probable cause.
type Category string

const (
	CategoryNotification Category = "notification"
	CategoryTimeSeries   Category = "time_series"
)

// SourceType identifies the system a probable cause originated from, e.g. p2pslog or system_udp.
type SourceType struct {
	Name     string
	Category Category
}

// IsTimeSeries reports whether the type carries time series features.
func (t SourceType) IsTimeSeries() bool {
	return t.Category == CategoryTimeSeries
}

// Attribute is a single name/value pair distinguishing instances of the same metric.
type Attribute struct {
	Name  string
	Value string
}

// Severity captures notification impact levels.
type Severity string

const (
	SeverityClear    Severity = "clear"
	SeverityUnknown  Severity = "unknown"
	SeverityWarning  Severity = "warning"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps free text onto a Severity, defaulting to SeverityUnknown.
func ParseSeverity(value string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(value))); sev {
	case SeverityClear, SeverityWarning, SeverityMinor, SeverityMajor, SeverityCritical:
		return sev
	default:
		return SeverityUnknown
	}
}

// RawCause is one detected anomaly that may explain an item of evidence.
type RawCause struct {
	SourceType   SourceType
	Description  string
	Source       string
	Time         time.Time
	Count        int
	Significance float64
	Magnitude    float64
	EvidenceID   int
	Severity     Severity

	// Time series fields.
	TypeMetricID  int
	Metric        string
	PeakValue     float64
	ScalingFactor float64
	Attributes    []Attribute
}

// WithScalingFactor returns a copy of the cause carrying the supplied scaling factor.
func (c RawCause) WithScalingFactor(factor float64) RawCause {
	c.ScalingFactor = factor
	c.Attributes = append([]Attribute(nil), c.Attributes...)
	return c
}

// ChartPeak is the peak value as it appears on a shared chart axis.
func (c RawCause) ChartPeak() float64 {
	return c.ScalingFactor * c.PeakValue
}

// CauseRecord is a probable cause prepared for display.
type CauseRecord struct {
	RawCause
	AttributeLabel string
}

// NewCauseRecord builds a display record, deriving the attribute label for time series causes.
func NewCauseRecord(cause RawCause) CauseRecord {
	record := CauseRecord{RawCause: cause}
	if cause.SourceType.IsTimeSeries() {
		record.AttributeLabel = AttributeLabel(cause.Attributes)
	}
	return record
}

// AttributeLabel joins attributes as "name=value" pairs separated by ", ".
func AttributeLabel(attributes []Attribute) string {
	if len(attributes) == 0 {
		return ""
	}
	var b strings.Builder
	for i, attr := range attributes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(attr.Name)
		b.WriteByte('=')
		b.WriteString(attr.Value)
	}
	return b.String()
}

// AggregateGroup collapses every probable cause sharing a source type and description.
type AggregateGroup struct {
	SourceType  SourceType
	Description string
	Size        int
	Count       int
	SourceCount int
	Severity    Severity
	Members     []CauseRecord
	Display     bool
}

// IsTimeSeries reports whether the group aggregates time series features.
func (g AggregateGroup) IsTimeSeries() bool {
	return g.SourceType.IsTimeSeries()
}

// ChartPeak returns the scaled peak of the leading display record, or zero for an empty group.
func (g AggregateGroup) ChartPeak() float64 {
	if len(g.Members) == 0 {
		return 0
	}
	return g.Members[0].ChartPeak()
}

// ContainsEvidence reports whether any display record originates from the evidence id.
func (g AggregateGroup) ContainsEvidence(evidenceID int) bool {
	for _, member := range g.Members {
		if member.EvidenceID == evidenceID {
			return true
		}
	}
	return false
}

// Evidence is a single notification or time series feature row.
type Evidence struct {
	ID          int
	Time        time.Time
	Type        string
	Description string
	Source      string
	Severity    Severity
	Attributes  []Attribute
}
