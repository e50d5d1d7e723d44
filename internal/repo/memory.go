package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/miradorstack/mirador-causality/internal/models"
)

// Fixture is the on-disk layout of a memory store: evidence rows plus the probable causes
// detected for them.
type Fixture struct {
	Evidence       []evidenceJSON     `json:"evidence"`
	ProbableCauses []fixtureCauseJSON `json:"probable_causes"`
	Incidents      []incidentJSON     `json:"incidents"`
}

type fixtureCauseJSON struct {
	ForEvidenceID int `json:"for_evidence_id"`
	causeJSON
}

// MemoryStore serves causes and evidence from memory. It backs the fixture driver, the
// offline aggregate command and the local mock cause store.
//
// The incident of an item of evidence is that evidence plus every evidence row referenced
// by its probable causes. Evidence with no stored probable causes has no known incident,
// so paging anchored on it considers every stored row.
type MemoryStore struct {
	mu        sync.RWMutex
	evidence  map[int]models.Evidence
	causes    map[int][]models.RawCause
	incidents map[int]models.Incident
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		evidence:  make(map[int]models.Evidence),
		causes:    make(map[int][]models.RawCause),
		incidents: make(map[int]models.Incident),
	}
}

// LoadFixtureFile reads a JSON fixture from disk.
func LoadFixtureFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return LoadFixture(data)
}

// LoadFixture decodes a JSON fixture.
func LoadFixture(data []byte) (*MemoryStore, error) {
	var fixture Fixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	store := NewMemoryStore()
	for _, ev := range fixture.Evidence {
		store.AddEvidence(ev.model())
	}
	for _, c := range fixture.ProbableCauses {
		store.AddProbableCauses(c.ForEvidenceID, c.model())
	}
	for _, incident := range fixture.Incidents {
		store.AddIncident(incident.model())
	}
	return store, nil
}

// AddEvidence inserts or replaces an evidence row.
func (s *MemoryStore) AddEvidence(rows ...models.Evidence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range rows {
		s.evidence[ev.ID] = ev
	}
}

// AddIncident records the anomaly score and metric path of the incident anchored on
// incident.EvidenceID.
func (s *MemoryStore) AddIncident(incident models.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents[incident.EvidenceID] = incident
}

// AddProbableCauses appends causes detected for evidenceID.
func (s *MemoryStore) AddProbableCauses(evidenceID int, causes ...models.RawCause) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.causes[evidenceID] = append(s.causes[evidenceID], causes...)
}

// FetchProbableCauses returns the causes of evidenceID. A positive time span keeps only
// causes within that many seconds of the evidence time when the evidence row is known.
func (s *MemoryStore) FetchProbableCauses(_ context.Context, evidenceID, timeSpanSecs int) ([]models.RawCause, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, known := s.evidence[evidenceID]
	causes, ok := s.causes[evidenceID]
	if !known && !ok {
		return nil, fmt.Errorf("evidence %d: %w", evidenceID, models.ErrEvidenceNotFound)
	}

	out := make([]models.RawCause, 0, len(causes))
	window := time.Duration(timeSpanSecs) * time.Second
	for _, cause := range causes {
		if known && window > 0 && absDuration(cause.Time.Sub(ev.Time)) > window {
			continue
		}
		cause.Attributes = slices.Clone(cause.Attributes)
		out = append(out, cause)
	}
	return out, nil
}

// FetchEvidence returns one evidence row.
func (s *MemoryStore) FetchEvidence(_ context.Context, evidenceID int) (models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.evidence[evidenceID]
	if !ok {
		return models.Evidence{}, fmt.Errorf("evidence %d: %w", evidenceID, models.ErrEvidenceNotFound)
	}
	return ev, nil
}

// FetchEvidencePage applies q to the evidence rows of the incident anchored on
// q.Key.EvidenceID. With SingleDescription set and no description in the key, rows are
// restricted to the anchor's description.
func (s *MemoryStore) FetchEvidencePage(_ context.Context, q models.PageQuery) ([]models.Evidence, error) {
	s.mu.RLock()
	members, anchored := s.incidentMembers(q.Key.EvidenceID)
	if anchor, ok := s.evidence[q.Key.EvidenceID]; ok && q.Key.SingleDescription && q.Key.Description == "" {
		q.Key.Description = anchor.Description
	}
	rows := make([]models.Evidence, 0, len(s.evidence))
	for id, ev := range s.evidence {
		if anchored {
			if _, ok := members[id]; !ok {
				continue
			}
		}
		rows = append(rows, ev)
	}
	s.mu.RUnlock()
	return models.SelectPage(rows, q), nil
}

// FetchIncident returns the incident containing evidenceID. Attribute names are taken from
// its probable causes in first appearance order unless the fixture lists them.
func (s *MemoryStore) FetchIncident(_ context.Context, evidenceID int) (models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, known := s.evidence[evidenceID]
	causes, ok := s.causes[evidenceID]
	stored, hasIncident := s.incidents[evidenceID]
	if !known && !ok && !hasIncident {
		return models.Incident{}, fmt.Errorf("evidence %d: %w", evidenceID, models.ErrEvidenceNotFound)
	}

	incident := models.Incident{
		EvidenceID:     evidenceID,
		AnomalyScore:   stored.AnomalyScore,
		MetricPath:     slices.Clone(stored.MetricPath),
		AttributeNames: slices.Clone(stored.AttributeNames),
	}
	if len(incident.AttributeNames) == 0 {
		seen := make(map[string]struct{})
		for _, cause := range causes {
			for _, attr := range cause.Attributes {
				if _, dup := seen[attr.Name]; dup {
					continue
				}
				seen[attr.Name] = struct{}{}
				incident.AttributeNames = append(incident.AttributeNames, attr.Name)
			}
		}
	}
	return incident, nil
}

// FetchCausalityData summarises the probable causes of q.EvidenceID per type,
// description, source and returned attributes, keeping the rows that pass the filters.
func (s *MemoryStore) FetchCausalityData(_ context.Context, q models.CausalityDataQuery) ([]models.CausalityData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	causes, err := s.incidentCauses(q.EvidenceID)
	if err != nil {
		return nil, err
	}

	var (
		rows  []models.CausalityData
		index = make(map[string]int)
	)
	for _, cause := range causes {
		full := causalityDataOf(cause)
		if !q.Matches(full) {
			continue
		}
		row := full
		row.Attributes = nil
		for _, name := range q.ReturnAttributes {
			if value, ok := full.Value(name); ok {
				row.Attributes = append(row.Attributes, models.Attribute{Name: name, Value: value})
			}
		}

		key := fmt.Sprintf("%s|%s|%s|%s|%s", row.SourceType.Name, row.SourceType.Category,
			row.Description, row.Source, models.AttributeLabel(row.Attributes))
		i, seen := index[key]
		if !seen {
			index[key] = len(rows)
			rows = append(rows, row)
			continue
		}
		merged := &rows[i]
		if row.StartTime.Before(merged.StartTime) {
			merged.StartTime = row.StartTime
		}
		if row.EndTime.After(merged.EndTime) {
			merged.EndTime = row.EndTime
		}
		merged.Count += row.Count
		merged.Significance = max(merged.Significance, row.Significance)
		merged.Magnitude = max(merged.Magnitude, row.Magnitude)
	}
	return rows, nil
}

// FetchAttributeValues returns the distinct values of an attribute across the probable
// causes of evidenceID, unsorted.
func (s *MemoryStore) FetchAttributeValues(_ context.Context, evidenceID int, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	causes, err := s.incidentCauses(evidenceID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	values := []string{}
	for _, cause := range causes {
		value, ok := causalityDataOf(cause).Value(name)
		if !ok {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}
	return values, nil
}

func (s *MemoryStore) incidentCauses(evidenceID int) ([]models.RawCause, error) {
	causes, ok := s.causes[evidenceID]
	if _, known := s.evidence[evidenceID]; !known && !ok {
		return nil, fmt.Errorf("evidence %d: %w", evidenceID, models.ErrEvidenceNotFound)
	}
	return causes, nil
}

// incidentMembers returns the evidence ids of the incident anchored on evidenceID. The
// second result is false when no probable causes are stored for it.
func (s *MemoryStore) incidentMembers(evidenceID int) (map[int]struct{}, bool) {
	causes, ok := s.causes[evidenceID]
	if !ok {
		return nil, false
	}
	members := map[int]struct{}{evidenceID: {}}
	for _, cause := range causes {
		members[cause.EvidenceID] = struct{}{}
	}
	return members, true
}

// causalityDataOf converts a probable cause into a single causality data row. Time series
// rows are described by their metric.
func causalityDataOf(cause models.RawCause) models.CausalityData {
	row := models.CausalityData{
		SourceType:    cause.SourceType,
		Description:   cause.Description,
		Source:        cause.Source,
		Attributes:    slices.Clone(cause.Attributes),
		StartTime:     cause.Time,
		EndTime:       cause.Time,
		Count:         cause.Count,
		Significance:  cause.Significance,
		Magnitude:     cause.Magnitude,
		TypeMetricID:  cause.TypeMetricID,
		ScalingFactor: 1,
	}
	if cause.SourceType.IsTimeSeries() && cause.Metric != "" {
		row.Description = cause.Metric
	}
	return row
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
