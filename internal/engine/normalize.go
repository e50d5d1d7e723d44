package engine

import "github.com/miradorstack/mirador-causality/internal/models"

// NormalizeByTypeMetric rescales time series causes so that, within each type+metric
// identity, scaling factors are divided by the largest peak value of that identity.
// Notifications pass through untouched. A zero peak leaves the scaling factor unchanged:
// the back end computes peaks around the headline event, so a feature outside that window
// legitimately reports zero.
func NormalizeByTypeMetric(causes []models.RawCause) []models.RawCause {
	peaks := PeakValuesByTypeMetric(causes)

	out := make([]models.RawCause, len(causes))
	for i, cause := range causes {
		if !cause.SourceType.IsTimeSeries() {
			out[i] = cause
			continue
		}
		out[i] = cause.WithScalingFactor(scaled(cause.ScalingFactor, peaks[cause.TypeMetricID]))
	}
	return out
}

// PeakValuesByTypeMetric returns the maximum raw peak value per time series type+metric id.
func PeakValuesByTypeMetric(causes []models.RawCause) map[int]float64 {
	peaks := make(map[int]float64)
	for _, cause := range causes {
		if !cause.SourceType.IsTimeSeries() {
			continue
		}
		if current, ok := peaks[cause.TypeMetricID]; !ok || cause.PeakValue > current {
			peaks[cause.TypeMetricID] = cause.PeakValue
		}
	}
	return peaks
}

// NormalizeByTypeName rescales already aggregated time series collections against the
// highest charted peak among all collections sharing a source type name. It is coarser
// than NormalizeByTypeMetric and is only applied when explicitly enabled.
func NormalizeByTypeName(groups []models.AggregateGroup) []models.AggregateGroup {
	peaks := make(map[string]float64)
	for _, group := range groups {
		if !group.IsTimeSeries() {
			continue
		}
		for _, member := range group.Members {
			if member.ChartPeak() > peaks[group.SourceType.Name] {
				peaks[group.SourceType.Name] = member.ChartPeak()
			}
		}
	}

	out := make([]models.AggregateGroup, len(groups))
	for i, group := range groups {
		out[i] = group
		out[i].Members = make([]models.CauseRecord, len(group.Members))
		copy(out[i].Members, group.Members)
		if !group.IsTimeSeries() {
			continue
		}
		peak := peaks[group.SourceType.Name]
		for j, member := range group.Members {
			out[i].Members[j].RawCause = member.RawCause.WithScalingFactor(scaled(member.ScalingFactor, peak))
		}
	}
	return out
}

func scaled(factor, peak float64) float64 {
	if peak == 0 {
		return factor
	}
	return factor / peak
}
