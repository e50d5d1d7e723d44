package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-causality/internal/models"
)

const fixtureJSON = `{
  "evidence": [
    {"id": 1, "time": "2024-03-01T10:00:00Z", "type": "p2pslog", "description": "link down", "source": "r1", "severity": "critical"},
    {"id": 2, "time": "2024-03-01T10:05:00Z", "type": "p2pslog", "description": "link down", "source": "r2", "severity": "minor"},
    {"id": 3, "time": "2024-03-01T10:10:00Z", "type": "p2pslog", "description": "link up", "source": "r1"}
  ],
  "probable_causes": [
    {"for_evidence_id": 1, "source_type": "p2pslog", "category": "notification", "description": "link down",
     "source": "r2", "time": "2024-03-01T10:05:00Z", "count": 1, "magnitude": 0.5, "evidence_id": 2},
    {"for_evidence_id": 1, "source_type": "system_udp", "category": "time_series", "description": "InErrors",
     "source": "h1", "time": "2024-03-01T12:00:00Z", "count": 1, "magnitude": 1.5, "evidence_id": 9,
     "type_metric_id": 4, "metric": "InErrors", "peak_value": 30}
  ]
}`

func TestLoadFixture(t *testing.T) {
	store, err := LoadFixture([]byte(fixtureJSON))
	require.NoError(t, err)
	ctx := context.Background()

	ev, err := store.FetchEvidence(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, ev.Severity)

	causes, err := store.FetchProbableCauses(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, causes, 2)
	assert.Equal(t, 2, causes[0].EvidenceID)
	assert.Equal(t, 4, causes[1].TypeMetricID)
}

func TestMemoryStoreTimeSpanFilter(t *testing.T) {
	store, err := LoadFixture([]byte(fixtureJSON))
	require.NoError(t, err)

	causes, err := store.FetchProbableCauses(context.Background(), 1, 3600)
	require.NoError(t, err)
	require.Len(t, causes, 1, "cause two hours away falls outside a one hour span")
	assert.Equal(t, "link down", causes[0].Description)
}

func TestMemoryStoreUnknownEvidence(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.FetchProbableCauses(context.Background(), 5, 0)
	require.ErrorIs(t, err, models.ErrEvidenceNotFound)
	_, err = store.FetchEvidence(context.Background(), 5)
	require.ErrorIs(t, err, models.ErrEvidenceNotFound)
}

func TestMemoryStoreEvidencePage(t *testing.T) {
	store, err := LoadFixture([]byte(fixtureJSON))
	require.NoError(t, err)

	rows, err := store.FetchEvidencePage(context.Background(), models.PageQuery{
		Key:       models.GroupKey{EvidenceID: 1, Type: "p2pslog", Description: "link down"},
		Direction: models.PageFirst,
		Size:      10,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []int{2, 1}, []int{rows[0].ID, rows[1].ID})
	assert.True(t, rows[0].Time.After(rows[1].Time))
	assert.Equal(t, time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC), rows[0].Time.UTC())
}

func TestLoadFixtureRejectsInvalidJSON(t *testing.T) {
	_, err := LoadFixture([]byte("{"))
	require.Error(t, err)
}
