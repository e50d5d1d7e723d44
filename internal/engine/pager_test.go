package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-causality/internal/models"
)

type sliceSource struct {
	rows  []models.Evidence
	err   error
	calls []models.PageDirection
}

func (s *sliceSource) FetchEvidencePage(_ context.Context, q models.PageQuery) ([]models.Evidence, error) {
	s.calls = append(s.calls, q.Direction)
	if s.err != nil {
		return nil, s.err
	}
	return models.SelectPage(s.rows, q), nil
}

func evidenceRows(n int) []models.Evidence {
	rows := make([]models.Evidence, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, models.Evidence{
			ID:          i,
			Time:        t0.Add(time.Duration(i) * time.Minute),
			Type:        "p2pslog",
			Description: "link down",
		})
	}
	return rows
}

func ids(rows []models.Evidence) []int {
	out := make([]int, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ID)
	}
	return out
}

func cursorOf(ev models.Evidence) models.Cursor {
	return models.Cursor{EvidenceID: ev.ID, Time: ev.Time}
}

var linkDown = models.GroupKey{EvidenceID: 1, Type: "p2pslog", Description: "link down"}

func TestPagerScenarioD(t *testing.T) {
	pager := NewPager(nil, &sliceSource{rows: evidenceRows(7)}, 3, 10)
	ctx := context.Background()

	first, err := pager.Page(ctx, models.PageQuery{Key: linkDown, Direction: models.PageFirst})
	require.NoError(t, err)
	assert.Equal(t, []int{7, 6, 5}, ids(first.Rows))
	assert.True(t, first.HasEarlier)

	next, err := pager.Page(ctx, models.PageQuery{Key: linkDown, Direction: models.PageNext, Cursor: cursorOf(first.Rows[2])})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 2}, ids(next.Rows))

	back, err := pager.Page(ctx, models.PageQuery{Key: linkDown, Direction: models.PagePrevious, Cursor: cursorOf(next.Rows[0])})
	require.NoError(t, err)
	assert.Equal(t, ids(first.Rows), ids(back.Rows))
	assert.False(t, back.FellBack)
}

func TestPagerWalksWithoutDuplicationOrLoss(t *testing.T) {
	pager := NewPager(nil, &sliceSource{rows: evidenceRows(10)}, 3, 10)
	ctx := context.Background()

	page, err := pager.Page(ctx, models.PageQuery{Key: linkDown, Direction: models.PageFirst})
	require.NoError(t, err)
	seen := ids(page.Rows)
	for page.HasEarlier {
		page, err = pager.Page(ctx, models.PageQuery{Key: linkDown, Direction: models.PageNext, Cursor: cursorOf(page.Rows[len(page.Rows)-1])})
		require.NoError(t, err)
		seen = append(seen, ids(page.Rows)...)
	}
	assert.Equal(t, []int{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, seen)
}

func TestPagerNextPastEndFallsBackToLast(t *testing.T) {
	rows := evidenceRows(5)
	source := &sliceSource{rows: rows}
	pager := NewPager(nil, source, 2, 10)

	page, err := pager.Page(context.Background(), models.PageQuery{Key: linkDown, Direction: models.PageNext, Cursor: cursorOf(rows[0])})
	require.NoError(t, err)
	assert.True(t, page.FellBack)
	assert.Equal(t, models.PageLast, page.Direction)
	assert.Equal(t, []int{2, 1}, ids(page.Rows))
	assert.False(t, page.HasEarlier)
	assert.Equal(t, []models.PageDirection{models.PageNext, models.PageLast}, source.calls[:2])
}

func TestPagerPreviousPastStartFallsBackToFirst(t *testing.T) {
	rows := evidenceRows(5)
	pager := NewPager(nil, &sliceSource{rows: rows}, 2, 10)

	page, err := pager.Page(context.Background(), models.PageQuery{Key: linkDown, Direction: models.PagePrevious, Cursor: cursorOf(rows[4])})
	require.NoError(t, err)
	assert.True(t, page.FellBack)
	assert.Equal(t, models.PageFirst, page.Direction)
	assert.Equal(t, []int{5, 4}, ids(page.Rows))
}

func TestPagerMetadata(t *testing.T) {
	rows := evidenceRows(4)
	pager := NewPager(nil, &sliceSource{rows: rows}, 2, 10)

	page, err := pager.Page(context.Background(), models.PageQuery{Key: linkDown, Direction: models.PageAtTime, Time: rows[2].Time})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, ids(page.Rows))
	assert.Equal(t, rows[2].Time, page.FirstRowTime)
	assert.Equal(t, rows[3].Time, page.LatestTime)
	assert.Equal(t, rows[0].Time, page.EarliestTime)
	assert.True(t, page.HasEarlier)
}

func TestPagerClampsPageSize(t *testing.T) {
	pager := NewPager(nil, &sliceSource{rows: evidenceRows(30)}, 5, 8)

	page, err := pager.Page(context.Background(), models.PageQuery{Key: linkDown, Direction: models.PageFirst, Size: 100})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 8)

	page, err = pager.Page(context.Background(), models.PageQuery{Key: linkDown, Direction: models.PageFirst})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 5)
}

func TestPagerEmptyGroup(t *testing.T) {
	pager := NewPager(nil, &sliceSource{}, 5, 5)
	page, err := pager.Page(context.Background(), models.PageQuery{Key: linkDown, Direction: models.PageFirst})
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
	assert.False(t, page.HasEarlier)
	assert.True(t, page.LatestTime.IsZero())
}

func TestPagerRejectsUnknownDirection(t *testing.T) {
	pager := NewPager(nil, &sliceSource{}, 5, 5)
	_, err := pager.Page(context.Background(), models.PageQuery{Key: linkDown, Direction: "sideways"})
	require.Error(t, err)
}

func TestPagerSourceError(t *testing.T) {
	boom := errors.New("boom")
	pager := NewPager(nil, &sliceSource{err: boom}, 5, 5)
	_, err := pager.Page(context.Background(), models.PageQuery{Key: linkDown, Direction: models.PageFirst})
	require.ErrorIs(t, err, boom)
}

func TestLatestEvidenceID(t *testing.T) {
	pager := NewPager(nil, &sliceSource{rows: evidenceRows(3)}, 5, 5)

	id, err := pager.LatestEvidenceID(context.Background(), linkDown)
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	id, err = pager.LatestEvidenceID(context.Background(), models.GroupKey{EvidenceID: 77, Type: "absent"})
	require.NoError(t, err)
	assert.Equal(t, 77, id, "falls back to the key's own evidence id")
}
