package api

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-causality/internal/models"
	"github.com/miradorstack/mirador-causality/internal/utils"
)

// FromAggregationRequest reads {evidence_id, time_span_secs}.
func FromAggregationRequest(req *structpb.Struct) (models.AggregationRequest, error) {
	if req == nil {
		return models.AggregationRequest{}, fmt.Errorf("request is nil")
	}
	evidenceID, ok, err := intField(req, "evidence_id")
	if err != nil {
		return models.AggregationRequest{}, err
	}
	if !ok || evidenceID <= 0 {
		return models.AggregationRequest{}, fmt.Errorf("evidence_id must be a positive integer")
	}
	span, _, err := intField(req, "time_span_secs")
	if err != nil {
		return models.AggregationRequest{}, err
	}
	if span < 0 {
		return models.AggregationRequest{}, fmt.Errorf("time_span_secs must not be negative")
	}
	return models.AggregationRequest{EvidenceID: evidenceID, TimeSpanSeconds: span}, nil
}

// ToAggregatesResponse renders {evidence_id, aggregates:[...]}.
func ToAggregatesResponse(evidenceID int, groups []models.AggregateGroup) (*structpb.Struct, error) {
	aggregates := make([]any, 0, len(groups))
	for _, group := range groups {
		members := make([]any, 0, len(group.Members))
		for _, member := range group.Members {
			members = append(members, recordValue(member))
		}
		aggregates = append(aggregates, map[string]any{
			"source_type":  group.SourceType.Name,
			"category":     string(group.SourceType.Category),
			"description":  group.Description,
			"size":         group.Size,
			"count":        group.Count,
			"source_count": group.SourceCount,
			"severity":     string(group.Severity),
			"display":      group.Display,
			"chart_peak":   group.ChartPeak(),
			"members":      members,
		})
	}
	return structpb.NewStruct(map[string]any{
		"evidence_id": evidenceID,
		"aggregates":  aggregates,
	})
}

// ToProbableCausesResponse renders {probable_causes:[...]}.
func ToProbableCausesResponse(records []models.CauseRecord) (*structpb.Struct, error) {
	causes := make([]any, 0, len(records))
	for _, record := range records {
		causes = append(causes, recordValue(record))
	}
	return structpb.NewStruct(map[string]any{"probable_causes": causes})
}

// ToViewConfigurationResponse renders {evidence_id, metric_path:[{name, prefix}],
// peak_values:{type_metric_id: peak}, activity_anomaly_score}.
func ToViewConfigurationResponse(view models.ViewConfiguration) (*structpb.Struct, error) {
	values := make(map[string]any, len(view.PeakValues))
	for id, peak := range view.PeakValues {
		values[strconv.Itoa(id)] = peak
	}
	path := make([]any, 0, len(view.MetricPath))
	for _, node := range view.MetricPath {
		path = append(path, map[string]any{"name": node.Name, "prefix": node.Prefix})
	}
	return structpb.NewStruct(map[string]any{
		"evidence_id":            view.EvidenceID,
		"metric_path":            path,
		"peak_values":            values,
		"activity_anomaly_score": view.ActivityAnomalyScore,
	})
}

// FromCausalityDataRequest reads {evidence_id, return_attributes:[...],
// primary_filters:[{name, value}], secondary_filter{name, value}, sort_field, sort_dir,
// offset, limit}. A primary filter with a null or missing value selects rows without
// that attribute.
func FromCausalityDataRequest(req *structpb.Struct) (models.CausalityDataQuery, error) {
	if req == nil {
		return models.CausalityDataQuery{}, fmt.Errorf("request is nil")
	}
	evidenceID, ok, err := intField(req, "evidence_id")
	if err != nil {
		return models.CausalityDataQuery{}, err
	}
	if !ok || evidenceID <= 0 {
		return models.CausalityDataQuery{}, fmt.Errorf("evidence_id must be a positive integer")
	}
	q := models.CausalityDataQuery{EvidenceID: evidenceID, SortField: stringField(req, "sort_field")}

	for _, item := range req.GetFields()["return_attributes"].GetListValue().GetValues() {
		if name := item.GetStringValue(); name != "" {
			q.ReturnAttributes = append(q.ReturnAttributes, name)
		}
	}
	for _, item := range req.GetFields()["primary_filters"].GetListValue().GetValues() {
		filter := item.GetStructValue()
		if filter == nil || stringField(filter, "name") == "" {
			return models.CausalityDataQuery{}, fmt.Errorf("primary_filters entries need a name")
		}
		name := stringField(filter, "name")
		value, present := filter.GetFields()["value"]
		if _, null := value.GetKind().(*structpb.Value_NullValue); !present || null {
			q.NullAttributes = append(q.NullAttributes, name)
			continue
		}
		q.Attributes = append(q.Attributes, models.Attribute{Name: name, Value: value.GetStringValue()})
	}
	if secondary := req.GetFields()["secondary_filter"].GetStructValue(); secondary != nil {
		q.SecondaryFilter = models.Attribute{Name: stringField(secondary, "name"), Value: stringField(secondary, "value")}
	}

	switch dir := strings.ToLower(stringField(req, "sort_dir")); dir {
	case "", "asc", "none":
	case "desc":
		q.SortDescending = true
	default:
		return models.CausalityDataQuery{}, fmt.Errorf("unknown sort_dir %q", dir)
	}
	if q.Offset, _, err = intField(req, "offset"); err != nil {
		return models.CausalityDataQuery{}, err
	}
	if q.Limit, _, err = intField(req, "limit"); err != nil {
		return models.CausalityDataQuery{}, err
	}
	if q.Offset < 0 || q.Limit < 0 {
		return models.CausalityDataQuery{}, fmt.Errorf("offset and limit must not be negative")
	}
	return q, nil
}

// ToCausalityDataPageResponse renders {rows:[...], offset, total}.
func ToCausalityDataPageResponse(page models.CausalityDataPage) (*structpb.Struct, error) {
	rows := make([]any, 0, len(page.Rows))
	for _, row := range page.Rows {
		out := map[string]any{
			"source_type":  row.SourceType.Name,
			"category":     string(row.SourceType.Category),
			"description":  row.Description,
			"source":       row.Source,
			"attributes":   attributesValue(row.Attributes),
			"start_time":   utils.FormatRFC3339(row.StartTime),
			"end_time":     utils.FormatRFC3339(row.EndTime),
			"count":        row.Count,
			"significance": row.Significance,
			"magnitude":    row.Magnitude,
		}
		if row.SourceType.IsTimeSeries() {
			out["metric"] = row.Description
			out["type_metric_id"] = row.TypeMetricID
			out["scaling_factor"] = row.ScalingFactor
		}
		rows = append(rows, out)
	}
	return structpb.NewStruct(map[string]any{
		"rows":   rows,
		"offset": page.Offset,
		"total":  page.Total,
	})
}

// FromColumnValuesRequest reads {evidence_id, attribute_name}.
func FromColumnValuesRequest(req *structpb.Struct) (int, string, error) {
	if req == nil {
		return 0, "", fmt.Errorf("request is nil")
	}
	evidenceID, ok, err := intField(req, "evidence_id")
	if err != nil {
		return 0, "", err
	}
	if !ok || evidenceID <= 0 {
		return 0, "", fmt.Errorf("evidence_id must be a positive integer")
	}
	name := stringField(req, "attribute_name")
	if name == "" {
		return 0, "", fmt.Errorf("attribute_name is required")
	}
	return evidenceID, name, nil
}

// ToColumnValuesResponse renders {values:[...]}.
func ToColumnValuesResponse(values []string) (*structpb.Struct, error) {
	out := make([]any, 0, len(values))
	for _, value := range values {
		out = append(out, value)
	}
	return structpb.NewStruct(map[string]any{"values": out})
}

// FromPageRequest reads {key, direction, cursor{evidence_id, time}, time, page_size}.
func FromPageRequest(req *structpb.Struct) (models.PageQuery, error) {
	if req == nil {
		return models.PageQuery{}, fmt.Errorf("request is nil")
	}
	key, err := groupKey(req)
	if err != nil {
		return models.PageQuery{}, err
	}

	q := models.PageQuery{Key: key, Direction: models.PageDirection(stringField(req, "direction"))}
	if q.Direction == "" {
		q.Direction = models.PageFirst
	}
	if !q.Direction.Valid() {
		return models.PageQuery{}, fmt.Errorf("unknown direction %q", q.Direction)
	}

	if cursor := req.GetFields()["cursor"].GetStructValue(); cursor != nil {
		if q.Cursor.EvidenceID, _, err = intField(cursor, "evidence_id"); err != nil {
			return models.PageQuery{}, fmt.Errorf("cursor: %w", err)
		}
		if q.Cursor.Time, err = timeField(cursor, "time"); err != nil {
			return models.PageQuery{}, fmt.Errorf("cursor: %w", err)
		}
	}
	if (q.Direction == models.PageNext || q.Direction == models.PagePrevious) && q.Cursor.Time.IsZero() {
		return models.PageQuery{}, fmt.Errorf("cursor.time is required for %s pages", q.Direction)
	}
	if q.Time, err = timeField(req, "time"); err != nil {
		return models.PageQuery{}, err
	}
	if q.Size, _, err = intField(req, "page_size"); err != nil {
		return models.PageQuery{}, err
	}
	if q.Size < 0 {
		return models.PageQuery{}, fmt.Errorf("page_size must not be negative")
	}
	return q, nil
}

// ToPageResponse renders an evidence page.
func ToPageResponse(page models.EvidencePage) (*structpb.Struct, error) {
	rows := make([]any, 0, len(page.Rows))
	for _, row := range page.Rows {
		rows = append(rows, map[string]any{
			"id":          row.ID,
			"time":        utils.FormatRFC3339(row.Time),
			"type":        row.Type,
			"description": row.Description,
			"source":      row.Source,
			"severity":    string(row.Severity),
			"attributes":  attributesValue(row.Attributes),
		})
	}
	return structpb.NewStruct(map[string]any{
		"rows":           rows,
		"direction":      string(page.Direction),
		"first_row_time": utils.FormatRFC3339(page.FirstRowTime),
		"latest_time":    utils.FormatRFC3339(page.LatestTime),
		"earliest_time":  utils.FormatRFC3339(page.EarliestTime),
		"has_earlier":    page.HasEarlier,
		"fell_back":      page.FellBack,
	})
}

// FromLatestEvidenceRequest reads {key}.
func FromLatestEvidenceRequest(req *structpb.Struct) (models.GroupKey, error) {
	if req == nil {
		return models.GroupKey{}, fmt.Errorf("request is nil")
	}
	return groupKey(req)
}

// ToLatestEvidenceResponse renders {evidence_id}.
func ToLatestEvidenceResponse(evidenceID int) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"evidence_id": evidenceID})
}

func groupKey(req *structpb.Struct) (models.GroupKey, error) {
	raw := req.GetFields()["key"].GetStructValue()
	if raw == nil {
		return models.GroupKey{}, fmt.Errorf("key is required")
	}
	evidenceID, ok, err := intField(raw, "evidence_id")
	if err != nil {
		return models.GroupKey{}, fmt.Errorf("key: %w", err)
	}
	if !ok || evidenceID <= 0 {
		return models.GroupKey{}, fmt.Errorf("key.evidence_id must be a positive integer")
	}
	key := models.GroupKey{
		EvidenceID:        evidenceID,
		Type:              stringField(raw, "type"),
		Description:       stringField(raw, "description"),
		Source:            stringField(raw, "source"),
		SingleDescription: raw.GetFields()["single_description"].GetBoolValue(),
	}
	for _, item := range raw.GetFields()["attributes"].GetListValue().GetValues() {
		attr := item.GetStructValue()
		if attr == nil {
			return models.GroupKey{}, fmt.Errorf("key.attributes entries must be objects")
		}
		key.Attributes = append(key.Attributes, models.Attribute{
			Name:  stringField(attr, "name"),
			Value: stringField(attr, "value"),
		})
	}
	return key, nil
}

func recordValue(record models.CauseRecord) map[string]any {
	out := map[string]any{
		"source_type":  record.SourceType.Name,
		"category":     string(record.SourceType.Category),
		"description":  record.Description,
		"source":       record.Source,
		"time":         utils.FormatRFC3339(record.Time),
		"count":        record.Count,
		"significance": record.Significance,
		"magnitude":    record.Magnitude,
		"evidence_id":  record.EvidenceID,
	}
	if record.Severity != "" {
		out["severity"] = string(record.Severity)
	}
	if record.SourceType.IsTimeSeries() {
		out["type_metric_id"] = record.TypeMetricID
		out["metric"] = record.Metric
		out["peak_value"] = record.PeakValue
		out["scaling_factor"] = record.ScalingFactor
		out["attributes"] = attributesValue(record.Attributes)
		out["attribute_label"] = record.AttributeLabel
	}
	return out
}

func attributesValue(attrs []models.Attribute) []any {
	out := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, map[string]any{"name": attr.Name, "value": attr.Value})
	}
	return out
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

// intField reads an integral number. Numeric strings are accepted since JSON clients
// often quote 64-bit ids.
func intField(s *structpb.Struct, name string) (int, bool, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, false, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false, fmt.Errorf("%s must be an integer", name)
		}
		return int(n), true, nil
	case *structpb.Value_StringValue:
		n, err := strconv.Atoi(kind.StringValue)
		if err != nil {
			return 0, false, fmt.Errorf("%s must be an integer", name)
		}
		return n, true, nil
	case *structpb.Value_NullValue:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("%s must be an integer", name)
	}
}

func timeField(s *structpb.Struct, name string) (time.Time, error) {
	value := stringField(s, name)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := utils.ParseRFC3339(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}
