package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-causality/internal/models"
	"github.com/miradorstack/mirador-causality/internal/utils"
)

// CauseStorePaths are the endpoint paths exposed by the cause store service.
type CauseStorePaths struct {
	ProbableCauses  string
	Evidence        string
	EvidencePage    string
	Incident        string
	CausalityData   string
	AttributeValues string
}

// DefaultCauseStorePaths returns the endpoint layout served by the cause store.
func DefaultCauseStorePaths() CauseStorePaths {
	return CauseStorePaths{
		ProbableCauses:  "/api/v1/causality/probable-causes",
		Evidence:        "/api/v1/causality/evidence",
		EvidencePage:    "/api/v1/causality/evidence-page",
		Incident:        "/api/v1/causality/incident",
		CausalityData:   "/api/v1/causality/data",
		AttributeValues: "/api/v1/causality/attribute-values",
	}
}

// errNotFound marks a 404 from the cause store.
var errNotFound = errors.New("not found")

// CauseStoreClient reads probable causes and evidence from the cause store HTTP API.
type CauseStoreClient struct {
	baseURL    string
	paths      CauseStorePaths
	httpClient *http.Client
}

// NewCauseStoreClient constructs a client targeting the configured cause store instance.
func NewCauseStoreClient(baseURL string, paths CauseStorePaths, timeout time.Duration) *CauseStoreClient {
	defaults := DefaultCauseStorePaths()
	if paths.ProbableCauses == "" {
		paths.ProbableCauses = defaults.ProbableCauses
	}
	if paths.Evidence == "" {
		paths.Evidence = defaults.Evidence
	}
	if paths.EvidencePage == "" {
		paths.EvidencePage = defaults.EvidencePage
	}
	if paths.Incident == "" {
		paths.Incident = defaults.Incident
	}
	if paths.CausalityData == "" {
		paths.CausalityData = defaults.CausalityData
	}
	if paths.AttributeValues == "" {
		paths.AttributeValues = defaults.AttributeValues
	}
	return &CauseStoreClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		paths:   paths,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchProbableCauses loads the raw probable causes of an item of evidence.
func (c *CauseStoreClient) FetchProbableCauses(ctx context.Context, evidenceID, timeSpanSecs int) ([]models.RawCause, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"evidence_id":    evidenceID,
		"time_span_secs": timeSpanSecs,
	}
	var response struct {
		ProbableCauses []causeJSON `json:"probable_causes"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.paths.ProbableCauses), payload, &response); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("evidence %d: %w", evidenceID, models.ErrEvidenceNotFound)
		}
		return nil, fmt.Errorf("cause store probable causes request failed: %w", err)
	}
	return causesFromJSON(response.ProbableCauses), nil
}

// FetchEvidence loads one complete evidence row.
func (c *CauseStoreClient) FetchEvidence(ctx context.Context, evidenceID int) (models.Evidence, error) {
	if err := c.ready(); err != nil {
		return models.Evidence{}, err
	}

	var response struct {
		Evidence *evidenceJSON `json:"evidence"`
	}
	err := c.postJSON(ctx, c.resolvePath(c.paths.Evidence), map[string]any{"evidence_id": evidenceID}, &response)
	switch {
	case errors.Is(err, errNotFound):
		return models.Evidence{}, fmt.Errorf("evidence %d: %w", evidenceID, models.ErrEvidenceNotFound)
	case err != nil:
		return models.Evidence{}, fmt.Errorf("cause store evidence request failed: %w", err)
	case response.Evidence == nil:
		return models.Evidence{}, fmt.Errorf("evidence %d: %w", evidenceID, models.ErrEvidenceNotFound)
	}
	return response.Evidence.model(), nil
}

// FetchEvidencePage loads one page of evidence rows, newest first.
func (c *CauseStoreClient) FetchEvidencePage(ctx context.Context, q models.PageQuery) ([]models.Evidence, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"evidence_id":        q.Key.EvidenceID,
		"type":               q.Key.Type,
		"description":        q.Key.Description,
		"source":             q.Key.Source,
		"attributes":         toAttributesJSON(q.Key.Attributes),
		"single_description": q.Key.SingleDescription,
		"direction":          string(q.Direction),
		"page_size":          q.Size,
	}
	if q.Cursor.EvidenceID != 0 || !q.Cursor.Time.IsZero() {
		payload["cursor"] = map[string]any{
			"evidence_id": q.Cursor.EvidenceID,
			"time":        utils.FormatRFC3339(q.Cursor.Time),
		}
	}
	if !q.Time.IsZero() {
		payload["time"] = utils.FormatRFC3339(q.Time)
	}

	var response struct {
		Rows []evidenceJSON `json:"rows"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.paths.EvidencePage), payload, &response); err != nil {
		return nil, fmt.Errorf("cause store evidence page request failed: %w", err)
	}
	return evidenceFromJSON(response.Rows), nil
}

// FetchIncident loads the incident containing an item of evidence.
func (c *CauseStoreClient) FetchIncident(ctx context.Context, evidenceID int) (models.Incident, error) {
	if err := c.ready(); err != nil {
		return models.Incident{}, err
	}

	var response struct {
		Incident *incidentJSON `json:"incident"`
	}
	err := c.postJSON(ctx, c.resolvePath(c.paths.Incident), map[string]any{"evidence_id": evidenceID}, &response)
	switch {
	case errors.Is(err, errNotFound):
		return models.Incident{}, fmt.Errorf("evidence %d: %w", evidenceID, models.ErrEvidenceNotFound)
	case err != nil:
		return models.Incident{}, fmt.Errorf("cause store incident request failed: %w", err)
	case response.Incident == nil:
		return models.Incident{}, fmt.Errorf("evidence %d: %w", evidenceID, models.ErrEvidenceNotFound)
	}
	return response.Incident.model(), nil
}

// FetchCausalityData loads the filtered causality data rows of an incident.
func (c *CauseStoreClient) FetchCausalityData(ctx context.Context, q models.CausalityDataQuery) ([]models.CausalityData, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var response struct {
		Rows []causalityDataJSON `json:"rows"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.paths.CausalityData), causalityDataQueryToJSON(q), &response); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("evidence %d: %w", q.EvidenceID, models.ErrEvidenceNotFound)
		}
		return nil, fmt.Errorf("cause store causality data request failed: %w", err)
	}
	out := make([]models.CausalityData, 0, len(response.Rows))
	for _, row := range response.Rows {
		out = append(out, row.model())
	}
	return out, nil
}

// FetchAttributeValues loads the distinct values of an attribute across an incident.
func (c *CauseStoreClient) FetchAttributeValues(ctx context.Context, evidenceID int, name string) ([]string, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	payload := map[string]any{"evidence_id": evidenceID, "attribute_name": name}
	var response struct {
		Values []string `json:"values"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.paths.AttributeValues), payload, &response); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("evidence %d: %w", evidenceID, models.ErrEvidenceNotFound)
		}
		return nil, fmt.Errorf("cause store attribute values request failed: %w", err)
	}
	if response.Values == nil {
		response.Values = []string{}
	}
	return response.Values, nil
}

// Close releases idle connections.
func (c *CauseStoreClient) Close() error {
	if c != nil && c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

func (c *CauseStoreClient) ready() error {
	if c == nil {
		return fmt.Errorf("cause store client not initialised")
	}
	if c.baseURL == "" {
		return fmt.Errorf("cause store base URL not configured")
	}
	return nil
}

func (c *CauseStoreClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *CauseStoreClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return errNotFound
	default:
		return fmt.Errorf("cause store returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
