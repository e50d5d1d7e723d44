package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/miradorstack/mirador-causality/internal/models"
)

var (
	t0           = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p2pslog      = models.SourceType{Name: "p2pslog", Category: models.CategoryNotification}
	systemUDP    = models.SourceType{Name: "system_udp", Category: models.CategoryTimeSeries}
	interfaceTCP = models.SourceType{Name: "interface_tcp", Category: models.CategoryTimeSeries}
)

func notification(evidenceID int, description, source string, at time.Time) models.RawCause {
	return models.RawCause{
		SourceType:    p2pslog,
		Description:   description,
		Source:        source,
		Time:          at,
		Count:         1,
		EvidenceID:    evidenceID,
		ScalingFactor: 1,
	}
}

func series(sourceType models.SourceType, evidenceID, typeMetricID int, description string, peak float64) models.RawCause {
	return models.RawCause{
		SourceType:    sourceType,
		Description:   description,
		Source:        fmt.Sprintf("host-%d", evidenceID),
		Time:          t0,
		Count:         1,
		EvidenceID:    evidenceID,
		TypeMetricID:  typeMetricID,
		Metric:        description,
		PeakValue:     peak,
		ScalingFactor: 1,
	}
}

type fakeRepository struct {
	mu       sync.Mutex
	causes   []models.RawCause
	evidence map[int]models.Evidence
	err      error
	lookups  []int
}

func (f *fakeRepository) FetchProbableCauses(context.Context, int, int) ([]models.RawCause, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.causes, nil
}

func (f *fakeRepository) FetchEvidence(_ context.Context, id int) (models.Evidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, id)
	ev, ok := f.evidence[id]
	if !ok {
		return models.Evidence{}, models.ErrEvidenceNotFound
	}
	return ev, nil
}

type staticLookup map[int]models.Severity

func (s staticLookup) Severity(_ context.Context, id int) (models.Severity, error) {
	sev, ok := s[id]
	if !ok {
		return "", models.ErrEvidenceNotFound
	}
	return sev, nil
}

func displayed(groups []models.AggregateGroup) []string {
	var out []string
	for _, group := range groups {
		if group.Display {
			out = append(out, group.Description)
		}
	}
	return out
}
