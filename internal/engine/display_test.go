package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-causality/internal/models"
)

func seriesGroup(sourceType models.SourceType, description string, evidenceID int, chartPeak float64) models.AggregateGroup {
	return models.AggregateGroup{
		SourceType:  sourceType,
		Description: description,
		Size:        1,
		Members: []models.CauseRecord{{RawCause: models.RawCause{
			SourceType:    sourceType,
			EvidenceID:    evidenceID,
			PeakValue:     chartPeak,
			ScalingFactor: 1,
		}}},
	}
}

func TestSelectForDisplayScenarioA(t *testing.T) {
	groups := []models.AggregateGroup{
		{SourceType: p2pslog, Description: "link down", Members: []models.CauseRecord{{RawCause: notification(7, "link down", "r1", t0)}}},
		seriesGroup(systemUDP, "InErrors", 42, 0.2),
	}
	SelectForDisplay(groups, 42, DefaultDisplayLimit)
	assert.True(t, groups[0].Display)
	assert.True(t, groups[1].Display)
}

func TestSelectForDisplayScenarioB(t *testing.T) {
	var groups []models.AggregateGroup
	for i, peak := range []float64{10, 20, 30, 40, 50, 60} {
		groups = append(groups, seriesGroup(systemUDP, fmt.Sprintf("metric-%d", i), 100+i, peak))
	}
	SelectForDisplay(groups, 42, 5)

	assert.Len(t, displayed(groups), 5)
	assert.False(t, groups[0].Display, "lowest peak is left out")
}

func TestSelectForDisplayShowsTopOfEveryType(t *testing.T) {
	groups := []models.AggregateGroup{
		seriesGroup(systemUDP, "udp-a", 1, 0.9),
		seriesGroup(systemUDP, "udp-b", 2, 0.8),
		seriesGroup(systemUDP, "udp-c", 3, 0.7),
		seriesGroup(interfaceTCP, "tcp-a", 4, 0.01),
	}
	SelectForDisplay(groups, 42, 2)
	assert.Equal(t, []string{"udp-a", "tcp-a"}, displayed(groups))
}

func TestSelectForDisplayEntranceAlwaysShown(t *testing.T) {
	groups := []models.AggregateGroup{
		seriesGroup(systemUDP, "udp-a", 1, 0.9),
		seriesGroup(systemUDP, "udp-b", 2, 0.8),
		seriesGroup(systemUDP, "udp-c", 42, 0.1),
	}
	SelectForDisplay(groups, 42, 1)
	assert.Equal(t, []string{"udp-a", "udp-c"}, displayed(groups), "mandatory picks may exceed the limit")
}

func TestSelectForDisplayIsIdempotent(t *testing.T) {
	groups := []models.AggregateGroup{
		seriesGroup(systemUDP, "udp-a", 1, 0.9),
		seriesGroup(systemUDP, "udp-b", 2, 0.8),
		seriesGroup(systemUDP, "udp-c", 3, 0.7),
	}
	groups[2].Display = true
	SelectForDisplay(groups, 42, 2)
	first := displayed(groups)
	SelectForDisplay(groups, 42, 2)
	assert.Equal(t, first, displayed(groups))
	assert.Equal(t, []string{"udp-a", "udp-b"}, first, "stale flags are reset")
}

func TestSelectForDisplayKeepsOrder(t *testing.T) {
	groups := []models.AggregateGroup{
		seriesGroup(systemUDP, "low", 1, 0.1),
		seriesGroup(systemUDP, "high", 2, 0.9),
	}
	SelectForDisplay(groups, 42, 5)
	require.Len(t, groups, 2)
	assert.Equal(t, "low", groups[0].Description)
	assert.True(t, groups[0].Display)
}

func TestSelectForDisplayDefaultsLimit(t *testing.T) {
	var groups []models.AggregateGroup
	for i := 0; i < 8; i++ {
		groups = append(groups, seriesGroup(systemUDP, fmt.Sprintf("m%d", i), i+1, float64(i)))
	}
	SelectForDisplay(groups, 42, 0)
	assert.Len(t, displayed(groups), DefaultDisplayLimit)
}
