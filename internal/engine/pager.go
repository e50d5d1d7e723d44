package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-causality/internal/metrics"
	"github.com/miradorstack/mirador-causality/internal/models"
)

// EvidenceSource loads raw evidence rows for one aggregate group.
type EvidenceSource interface {
	FetchEvidencePage(ctx context.Context, q models.PageQuery) ([]models.Evidence, error)
}

// Pager walks the notification rows of an aggregate group in both directions.
type Pager struct {
	logger      *slog.Logger
	source      EvidenceSource
	pageSize    int
	maxPageSize int
}

// NewPager constructs a pager with a default and maximum page size.
func NewPager(logger *slog.Logger, source EvidenceSource, pageSize, maxPageSize int) *Pager {
	if logger == nil {
		logger = slog.Default()
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if maxPageSize < pageSize {
		maxPageSize = pageSize
	}
	return &Pager{logger: logger, source: source, pageSize: pageSize, maxPageSize: maxPageSize}
}

// Page loads the requested page. Paging past either end never fails: an empty next page
// is replaced by the last page and an empty previous page by the first page.
func (p *Pager) Page(ctx context.Context, q models.PageQuery) (models.EvidencePage, error) {
	if p.source == nil {
		return models.EvidencePage{}, fmt.Errorf("evidence source not configured")
	}
	if !q.Direction.Valid() {
		return models.EvidencePage{}, fmt.Errorf("unknown page direction %q", q.Direction)
	}
	q.Size = p.size(q.Size)

	rows, err := p.source.FetchEvidencePage(ctx, q)
	if err != nil {
		return models.EvidencePage{}, fmt.Errorf("fetch %s page: %w", q.Direction, err)
	}

	page := models.EvidencePage{Direction: q.Direction}
	if len(rows) == 0 {
		if fallback, ok := fallbackDirection(q.Direction); ok {
			p.logger.Debug("evidence page empty, falling back",
				slog.String("direction", string(q.Direction)),
				slog.String("fallback", string(fallback)),
				slog.Int("evidence_id", q.Key.EvidenceID))
			metrics.ObservePagerFallback(string(q.Direction))

			q.Direction = fallback
			rows, err = p.source.FetchEvidencePage(ctx, q)
			if err != nil {
				return models.EvidencePage{}, fmt.Errorf("fetch %s page: %w", fallback, err)
			}
			page.Direction = fallback
			page.FellBack = true
		}
	}
	page.Rows = rows

	latest, hasLatest, err := p.boundary(ctx, q.Key, models.PageFirst)
	if err != nil {
		return models.EvidencePage{}, err
	}
	earliest, hasEarliest, err := p.boundary(ctx, q.Key, models.PageLast)
	if err != nil {
		return models.EvidencePage{}, err
	}
	if hasLatest {
		page.LatestTime = latest.Time
	}
	if hasEarliest {
		page.EarliestTime = earliest.Time
	}
	if len(rows) > 0 {
		page.FirstRowTime = rows[0].Time
		page.HasEarlier = hasEarliest && rows[len(rows)-1].ID != earliest.ID
	}
	return page, nil
}

// LatestEvidenceID returns the id of the newest row matching key, or the key's own
// evidence id when nothing matches.
func (p *Pager) LatestEvidenceID(ctx context.Context, key models.GroupKey) (int, error) {
	if p.source == nil {
		return 0, fmt.Errorf("evidence source not configured")
	}
	latest, ok, err := p.boundary(ctx, key, models.PageFirst)
	if err != nil {
		return 0, err
	}
	if !ok {
		return key.EvidenceID, nil
	}
	return latest.ID, nil
}

func (p *Pager) boundary(ctx context.Context, key models.GroupKey, direction models.PageDirection) (models.Evidence, bool, error) {
	rows, err := p.source.FetchEvidencePage(ctx, models.PageQuery{Key: key, Direction: direction, Size: 1})
	if err != nil {
		return models.Evidence{}, false, fmt.Errorf("fetch %s evidence: %w", direction, err)
	}
	if len(rows) == 0 {
		return models.Evidence{}, false, nil
	}
	return rows[len(rows)-1], true, nil
}

func (p *Pager) size(requested int) int {
	switch {
	case requested <= 0:
		return p.pageSize
	case requested > p.maxPageSize:
		return p.maxPageSize
	default:
		return requested
	}
}

func fallbackDirection(direction models.PageDirection) (models.PageDirection, bool) {
	switch direction {
	case models.PageNext:
		return models.PageLast, true
	case models.PagePrevious:
		return models.PageFirst, true
	}
	return "", false
}
