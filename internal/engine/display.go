package engine

import (
	"slices"

	"github.com/miradorstack/mirador-causality/internal/models"
)

// DefaultDisplayLimit is the number of time series collections shown when a view opens.
const DefaultDisplayLimit = 5

// SelectForDisplay flags the aggregates that are visible by default. Every notification is
// shown, as is the collection containing the entrance cause and the highest charted series
// of every time series source type. Remaining slots up to limit are filled in descending
// peak order. The slice order is left untouched.
func SelectForDisplay(groups []models.AggregateGroup, evidenceID, limit int) {
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}

	for i := range groups {
		groups[i].Display = !groups[i].IsTimeSeries()
	}

	for i := range groups {
		if groups[i].ContainsEvidence(evidenceID) {
			groups[i].Display = true
			break
		}
	}

	byType := make(map[models.SourceType][]int)
	var typeOrder []models.SourceType
	for i, group := range groups {
		if !group.IsTimeSeries() {
			continue
		}
		if _, ok := byType[group.SourceType]; !ok {
			typeOrder = append(typeOrder, group.SourceType)
		}
		byType[group.SourceType] = append(byType[group.SourceType], i)
	}

	byPeak := func(a, b int) int { return PeakValueOrder(groups[a], groups[b]) }
	for _, sourceType := range typeOrder {
		indices := byType[sourceType]
		slices.SortStableFunc(indices, byPeak)
		groups[indices[0]].Display = true
	}

	shown := 0
	for _, group := range groups {
		if group.IsTimeSeries() && group.Display {
			shown++
		}
	}
	if shown >= limit {
		return
	}

	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, byPeak)
	for _, i := range order {
		if shown >= limit {
			break
		}
		if groups[i].Display {
			continue
		}
		groups[i].Display = true
		if groups[i].IsTimeSeries() {
			shown++
		}
	}
}
