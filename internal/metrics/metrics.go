package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-causality/internal/models"
)

const (
	// OutcomeSuccess labels successful aggregations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed aggregations (repository or lookup issues).
	OutcomeError = "error"
)

var (
	aggregationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_causality",
			Name:      "aggregations_total",
			Help:      "Total number of probable cause aggregations handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	aggregationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_causality",
			Name:      "aggregation_seconds",
			Help:      "Probable cause aggregation latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	aggregatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_causality",
			Name:      "aggregates_total",
			Help:      "Aggregated probable cause collections produced, by category and default visibility.",
		},
		[]string{"category", "display"},
	)

	pagerFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_causality",
			Name:      "pager_fallbacks_total",
			Help:      "Evidence page requests that ran past either end and were served the first or last page.",
		},
		[]string{"direction"},
	)
)

// Register attaches mirador-causality collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		aggregationsTotal,
		aggregationDurationSeconds,
		aggregatesTotal,
		pagerFallbacksTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAggregation records an aggregation duration and outcome label.
func ObserveAggregation(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	aggregationsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	aggregationDurationSeconds.Observe(duration.Seconds())
}

// ObserveAggregates counts the collections returned by one aggregation.
func ObserveAggregates(groups []models.AggregateGroup) {
	for _, group := range groups {
		aggregatesTotal.WithLabelValues(string(group.SourceType.Category), strconv.FormatBool(group.Display)).Inc()
	}
}

// ObservePagerFallback counts a page request that fell back to the first or last page.
func ObservePagerFallback(direction string) {
	pagerFallbacksTotal.WithLabelValues(direction).Inc()
}
