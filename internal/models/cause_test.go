package models

import "testing"

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"critical":  SeverityCritical,
		" MAJOR ":   SeverityMajor,
		"Warning":   SeverityWarning,
		"clear":     SeverityClear,
		"":          SeverityUnknown,
		"catastrop": SeverityUnknown,
	}
	for in, want := range cases {
		if got := ParseSeverity(in); got != want {
			t.Fatalf("ParseSeverity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithScalingFactorCopies(t *testing.T) {
	original := RawCause{PeakValue: 8, ScalingFactor: 1, Attributes: []Attribute{{Name: "if", Value: "eth0"}}}
	scaled := original.WithScalingFactor(0.25)

	if scaled.ChartPeak() != 2 {
		t.Fatalf("expected chart peak 2, got %v", scaled.ChartPeak())
	}
	scaled.Attributes[0].Value = "eth9"
	if original.ScalingFactor != 1 || original.Attributes[0].Value != "eth0" {
		t.Fatalf("original cause was mutated: %+v", original)
	}
}

func TestNewCauseRecordLabelsTimeSeriesOnly(t *testing.T) {
	attrs := []Attribute{{Name: "interface", Value: "eth0"}, {Name: "vlan", Value: "12"}}
	ts := NewCauseRecord(RawCause{SourceType: SourceType{Category: CategoryTimeSeries}, Attributes: attrs})
	if ts.AttributeLabel != "interface=eth0, vlan=12" {
		t.Fatalf("unexpected label %q", ts.AttributeLabel)
	}
	n := NewCauseRecord(RawCause{SourceType: SourceType{Category: CategoryNotification}, Attributes: attrs})
	if n.AttributeLabel != "" {
		t.Fatalf("notifications carry no attribute label, got %q", n.AttributeLabel)
	}
}

func TestAggregateGroupHelpers(t *testing.T) {
	empty := AggregateGroup{}
	if empty.ChartPeak() != 0 || empty.ContainsEvidence(1) {
		t.Fatalf("empty group should have no peak and no evidence")
	}
	group := AggregateGroup{Members: []CauseRecord{
		{RawCause: RawCause{EvidenceID: 4, PeakValue: 10, ScalingFactor: 0.5}},
		{RawCause: RawCause{EvidenceID: 9, PeakValue: 100, ScalingFactor: 1}},
	}}
	if group.ChartPeak() != 5 {
		t.Fatalf("chart peak comes from the leading record, got %v", group.ChartPeak())
	}
	if !group.ContainsEvidence(9) || group.ContainsEvidence(5) {
		t.Fatalf("unexpected ContainsEvidence result")
	}
}
