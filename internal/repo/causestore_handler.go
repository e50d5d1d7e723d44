package repo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/miradorstack/mirador-causality/internal/models"
	"github.com/miradorstack/mirador-causality/internal/utils"
)

type pageRequest struct {
	EvidenceID        int             `json:"evidence_id"`
	Type              string          `json:"type"`
	Description       string          `json:"description"`
	Source            string          `json:"source"`
	Attributes        []attributeJSON `json:"attributes"`
	SingleDescription bool            `json:"single_description"`
	Direction         string          `json:"direction"`
	PageSize          int             `json:"page_size"`
	Time              string          `json:"time"`
	Cursor            *struct {
		EvidenceID int    `json:"evidence_id"`
		Time       string `json:"time"`
	} `json:"cursor"`
}

func (p pageRequest) query() (models.PageQuery, error) {
	q := models.PageQuery{
		Key: models.GroupKey{
			EvidenceID:        p.EvidenceID,
			Type:              p.Type,
			Description:       p.Description,
			Source:            p.Source,
			Attributes:        fromAttributesJSON(p.Attributes),
			SingleDescription: p.SingleDescription,
		},
		Direction: models.PageDirection(p.Direction),
		Size:      p.PageSize,
	}
	if !q.Direction.Valid() {
		return models.PageQuery{}, errors.New("unknown direction")
	}
	var err error
	if p.Cursor != nil {
		q.Cursor.EvidenceID = p.Cursor.EvidenceID
		if q.Cursor.Time, err = optionalTime(p.Cursor.Time); err != nil {
			return models.PageQuery{}, err
		}
	}
	if q.Time, err = optionalTime(p.Time); err != nil {
		return models.PageQuery{}, err
	}
	return q, nil
}

// NewCauseStoreHandler exposes store over the HTTP API consumed by CauseStoreClient.
func NewCauseStoreHandler(store Store, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	paths := DefaultCauseStorePaths()
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+paths.ProbableCauses, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EvidenceID   int `json:"evidence_id"`
			TimeSpanSecs int `json:"time_span_secs"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		causes, err := store.FetchProbableCauses(r.Context(), req.EvidenceID, req.TimeSpanSecs)
		if err != nil {
			writeStoreError(w, logger, err)
			return
		}
		writeJSON(w, logger, map[string]any{"probable_causes": causesToJSON(causes)})
	})

	mux.HandleFunc("POST "+paths.Evidence, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EvidenceID int `json:"evidence_id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		ev, err := store.FetchEvidence(r.Context(), req.EvidenceID)
		if err != nil {
			writeStoreError(w, logger, err)
			return
		}
		writeJSON(w, logger, map[string]any{"evidence": evidenceToJSON(ev)})
	})

	mux.HandleFunc("POST "+paths.EvidencePage, func(w http.ResponseWriter, r *http.Request) {
		var req pageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		q, err := req.query()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rows, err := store.FetchEvidencePage(r.Context(), q)
		if err != nil {
			writeStoreError(w, logger, err)
			return
		}
		out := make([]evidenceJSON, 0, len(rows))
		for _, row := range rows {
			out = append(out, evidenceToJSON(row))
		}
		writeJSON(w, logger, map[string]any{"rows": out})
	})

	mux.HandleFunc("POST "+paths.Incident, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EvidenceID int `json:"evidence_id"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		incident, err := store.FetchIncident(r.Context(), req.EvidenceID)
		if err != nil {
			writeStoreError(w, logger, err)
			return
		}
		writeJSON(w, logger, map[string]any{"incident": incidentToJSON(incident)})
	})

	mux.HandleFunc("POST "+paths.CausalityData, func(w http.ResponseWriter, r *http.Request) {
		var req causalityDataQueryJSON
		if !decodeBody(w, r, &req) {
			return
		}
		rows, err := store.FetchCausalityData(r.Context(), req.model())
		if err != nil {
			writeStoreError(w, logger, err)
			return
		}
		out := make([]causalityDataJSON, 0, len(rows))
		for _, row := range rows {
			out = append(out, causalityDataToJSON(row))
		}
		writeJSON(w, logger, map[string]any{"rows": out})
	})

	mux.HandleFunc("POST "+paths.AttributeValues, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EvidenceID    int    `json:"evidence_id"`
			AttributeName string `json:"attribute_name"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.AttributeName == "" {
			http.Error(w, "attribute_name is required", http.StatusBadRequest)
			return
		}
		values, err := store.FetchAttributeValues(r.Context(), req.EvidenceID, req.AttributeName)
		if err != nil {
			writeStoreError(w, logger, err)
			return
		}
		writeJSON(w, logger, map[string]any{"values": values})
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, models.ErrEvidenceNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	logger.Error("cause store request failed", slog.Any("error", err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("encode response", slog.Any("error", err))
	}
}

func optionalTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return utils.ParseRFC3339(value)
}
