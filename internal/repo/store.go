package repo

import (
	"context"

	"github.com/miradorstack/mirador-causality/internal/models"
)

// Store is the full read surface a cause repository offers to the engine, pager and explorer.
type Store interface {
	FetchProbableCauses(ctx context.Context, evidenceID, timeSpanSecs int) ([]models.RawCause, error)
	FetchEvidence(ctx context.Context, evidenceID int) (models.Evidence, error)
	FetchEvidencePage(ctx context.Context, q models.PageQuery) ([]models.Evidence, error)
	FetchIncident(ctx context.Context, evidenceID int) (models.Incident, error)
	FetchCausalityData(ctx context.Context, q models.CausalityDataQuery) ([]models.CausalityData, error)
	FetchAttributeValues(ctx context.Context, evidenceID int, name string) ([]string, error)
	Close() error
}
