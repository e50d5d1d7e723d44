package api

import (
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-causality/internal/models"
)

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	return s
}

func TestFromAggregationRequest(t *testing.T) {
	req, err := FromAggregationRequest(mustStruct(t, map[string]any{"evidence_id": 12, "time_span_secs": "600"}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if req.EvidenceID != 12 || req.TimeSpanSeconds != 600 {
		t.Fatalf("unexpected request: %+v", req)
	}

	for name, fields := range map[string]map[string]any{
		"missing id":    {},
		"fractional id": {"evidence_id": 1.5},
		"negative span": {"evidence_id": 1, "time_span_secs": -1},
		"bool id":       {"evidence_id": true},
	} {
		if _, err := FromAggregationRequest(mustStruct(t, fields)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestToAggregatesResponse(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ts := models.SourceType{Name: "system_udp", Category: models.CategoryTimeSeries}
	record := models.NewCauseRecord(models.RawCause{
		SourceType:    ts,
		Description:   "InErrors",
		Time:          at,
		EvidenceID:    4,
		PeakValue:     10,
		ScalingFactor: 0.5,
		Attributes:    []models.Attribute{{Name: "interface", Value: "eth0"}},
	})
	groups := []models.AggregateGroup{{
		SourceType:  ts,
		Description: "InErrors",
		Size:        1,
		Count:       1,
		SourceCount: 1,
		Members:     []models.CauseRecord{record},
		Display:     true,
	}}

	resp, err := ToAggregatesResponse(4, groups)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	aggregates := resp.GetFields()["aggregates"].GetListValue().GetValues()
	if len(aggregates) != 1 {
		t.Fatalf("expected one aggregate, got %d", len(aggregates))
	}
	agg := aggregates[0].GetStructValue().GetFields()
	if !agg["display"].GetBoolValue() {
		t.Fatalf("expected display flag to be rendered")
	}
	if got := agg["chart_peak"].GetNumberValue(); got != 5 {
		t.Fatalf("expected chart peak 5, got %v", got)
	}
	member := agg["members"].GetListValue().GetValues()[0].GetStructValue().GetFields()
	if got := member["attribute_label"].GetStringValue(); got != "interface=eth0" {
		t.Fatalf("unexpected attribute label %q", got)
	}
	if got := member["time"].GetStringValue(); got != "2024-03-01T10:00:00Z" {
		t.Fatalf("unexpected time %q", got)
	}
}

func TestToViewConfigurationResponse(t *testing.T) {
	resp, err := ToViewConfigurationResponse(models.ViewConfiguration{
		EvidenceID:           3,
		MetricPath:           []models.MetricPathNode{{Name: "type"}, {Name: "source", Prefix: " : "}},
		PeakValues:           map[int]float64{11: 40, 12: 0},
		ActivityAnomalyScore: 64,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	peaks := resp.GetFields()["peak_values"].GetStructValue().GetFields()
	if peaks["11"].GetNumberValue() != 40 || len(peaks) != 2 {
		t.Fatalf("unexpected peak values: %v", peaks)
	}
	path := resp.GetFields()["metric_path"].GetListValue().GetValues()
	if len(path) != 2 || path[1].GetStructValue().GetFields()["prefix"].GetStringValue() != " : " {
		t.Fatalf("unexpected metric path: %v", path)
	}
	if resp.GetFields()["activity_anomaly_score"].GetNumberValue() != 64 {
		t.Fatalf("unexpected anomaly score: %v", resp.GetFields()["activity_anomaly_score"])
	}
}

func TestFromCausalityDataRequest(t *testing.T) {
	req := mustStruct(t, map[string]any{
		"evidence_id":       "42",
		"return_attributes": []any{"interface", "vlan"},
		"primary_filters": []any{
			map[string]any{"name": "host", "value": "h1"},
			map[string]any{"name": "vlan", "value": nil},
			map[string]any{"name": "zone"},
		},
		"secondary_filter": map[string]any{"name": "source", "value": "r2"},
		"sort_field":       "significance",
		"sort_dir":         "DESC",
		"offset":           20,
		"limit":            10,
	})
	q, err := FromCausalityDataRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.EvidenceID != 42 || q.Offset != 20 || q.Limit != 10 || !q.SortDescending || q.SortField != "significance" {
		t.Fatalf("unexpected query: %+v", q)
	}
	if len(q.ReturnAttributes) != 2 || q.ReturnAttributes[1] != "vlan" {
		t.Fatalf("unexpected return attributes: %v", q.ReturnAttributes)
	}
	if len(q.Attributes) != 1 || q.Attributes[0] != (models.Attribute{Name: "host", Value: "h1"}) {
		t.Fatalf("unexpected non-null filters: %v", q.Attributes)
	}
	if len(q.NullAttributes) != 2 || q.NullAttributes[0] != "vlan" || q.NullAttributes[1] != "zone" {
		t.Fatalf("unexpected null filters: %v", q.NullAttributes)
	}
	if q.SecondaryFilter != (models.Attribute{Name: "source", Value: "r2"}) {
		t.Fatalf("unexpected secondary filter: %v", q.SecondaryFilter)
	}
}

func TestFromCausalityDataRequestValidation(t *testing.T) {
	cases := map[string]map[string]any{
		"missing evidence":  {},
		"bad sort dir":      {"evidence_id": 1, "sort_dir": "sideways"},
		"negative limit":    {"evidence_id": 1, "limit": -1},
		"unnamed filter":    {"evidence_id": 1, "primary_filters": []any{map[string]any{"value": "x"}}},
		"non-object filter": {"evidence_id": 1, "primary_filters": []any{"host"}},
		"fractional offset": {"evidence_id": 1, "offset": 1.5},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromCausalityDataRequest(mustStruct(t, fields)); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestToCausalityDataPageResponse(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	resp, err := ToCausalityDataPageResponse(models.CausalityDataPage{
		Rows: []models.CausalityData{{
			SourceType:    models.SourceType{Name: "system_udp", Category: models.CategoryTimeSeries},
			Description:   "InErrors",
			Source:        "h1",
			Attributes:    []models.Attribute{{Name: "interface", Value: "eth0"}},
			StartTime:     start,
			EndTime:       start.Add(time.Minute),
			Count:         3,
			Magnitude:     3,
			TypeMetricID:  4,
			ScalingFactor: 1,
		}},
		Offset: 10,
		Total:  31,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.GetFields()["total"].GetNumberValue() != 31 || resp.GetFields()["offset"].GetNumberValue() != 10 {
		t.Fatalf("unexpected paging metadata: %v", resp)
	}
	row := resp.GetFields()["rows"].GetListValue().GetValues()[0].GetStructValue().GetFields()
	if row["metric"].GetStringValue() != "InErrors" || row["end_time"].GetStringValue() != "2024-03-01T10:01:00Z" {
		t.Fatalf("unexpected row: %v", row)
	}
}

func TestColumnValuesCodec(t *testing.T) {
	id, name, err := FromColumnValuesRequest(mustStruct(t, map[string]any{"evidence_id": 8, "attribute_name": "interface"}))
	if err != nil || id != 8 || name != "interface" {
		t.Fatalf("unexpected decode: %d %q %v", id, name, err)
	}
	if _, _, err := FromColumnValuesRequest(mustStruct(t, map[string]any{"evidence_id": 8})); err == nil {
		t.Fatalf("expected attribute_name to be required")
	}

	resp, err := ToColumnValuesResponse([]string{"eth0", "eth1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values := resp.GetFields()["values"].GetListValue().GetValues(); len(values) != 2 || values[1].GetStringValue() != "eth1" {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestFromPageRequest(t *testing.T) {
	req := mustStruct(t, map[string]any{
		"key": map[string]any{
			"evidence_id": 9,
			"type":        "p2pslog",
			"description": "link down",
			"attributes":  []any{map[string]any{"name": "interface", "value": "eth0"}},
		},
		"direction": "next",
		"cursor":    map[string]any{"evidence_id": 5, "time": "2024-03-01T10:00:00Z"},
		"page_size": 10,
	})

	q, err := FromPageRequest(req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if q.Direction != models.PageNext || q.Size != 10 {
		t.Fatalf("unexpected query: %+v", q)
	}
	if q.Cursor.EvidenceID != 5 || !q.Cursor.Time.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected cursor: %+v", q.Cursor)
	}
	if len(q.Key.Attributes) != 1 || q.Key.Attributes[0].Value != "eth0" {
		t.Fatalf("unexpected key attributes: %+v", q.Key.Attributes)
	}
}

func TestFromPageRequestValidation(t *testing.T) {
	key := map[string]any{"evidence_id": 9}
	cases := map[string]map[string]any{
		"missing key":         {"direction": "first"},
		"unknown direction":   {"key": key, "direction": "sideways"},
		"next without cursor": {"key": key, "direction": "next"},
		"bad time":            {"key": key, "direction": "at_time", "time": "yesterday"},
		"negative size":       {"key": key, "page_size": -2},
	}
	for name, fields := range cases {
		if _, err := FromPageRequest(mustStruct(t, fields)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	q, err := FromPageRequest(mustStruct(t, map[string]any{"key": key}))
	if err != nil {
		t.Fatalf("expected defaults to apply, got %v", err)
	}
	if q.Direction != models.PageFirst {
		t.Fatalf("expected first page by default, got %s", q.Direction)
	}
}

func TestToPageResponse(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	resp, err := ToPageResponse(models.EvidencePage{
		Rows:         []models.Evidence{{ID: 2, Time: at, Type: "p2pslog", Severity: models.SeverityMajor}},
		Direction:    models.PageLast,
		FirstRowTime: at,
		HasEarlier:   true,
		FellBack:     true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	fields := resp.GetFields()
	if fields["direction"].GetStringValue() != "last" || !fields["fell_back"].GetBoolValue() || !fields["has_earlier"].GetBoolValue() {
		t.Fatalf("unexpected page metadata: %v", fields)
	}
	if fields["earliest_time"].GetStringValue() != "" {
		t.Fatalf("zero times should render empty")
	}
	row := fields["rows"].GetListValue().GetValues()[0].GetStructValue().GetFields()
	if row["id"].GetNumberValue() != 2 || row["severity"].GetStringValue() != "major" {
		t.Fatalf("unexpected row: %v", row)
	}
}
