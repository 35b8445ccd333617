package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/diseases", h.Diseases)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

type diseasesResponse struct {
	Kind     string         `json:"kind"`
	Diseases []DiseaseCount `json:"diseases"`
}

// Diseases ranks diagnosed diseases. ?kind=leads ranks the best candidates
// of inconclusive detections instead; ?limit caps the list.
func (h *Handler) Diseases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultTopLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopLimit {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	kind := q.Get("kind")
	switch kind {
	case "", "diagnosed":
		kind = "diagnosed"
	case "leads":
	default:
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be diagnosed or leads"})
		return
	}
	h.writeJSON(w, http.StatusOK, diseasesResponse{
		Kind:     kind,
		Diseases: h.aggregator.TopDiseases(limit, kind == "leads"),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
