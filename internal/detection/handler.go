package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/logger"
)

// maxBodyBytes caps request bodies; a batch of long descriptions stays
// well below it.
const maxBodyBytes = 1 << 20

type symptomsRequest struct {
	Description string `json:"description"`
}

type batchRequest struct {
	Descriptions []string `json:"descriptions"`
}

type batchResponse struct {
	Results []*Result `json:"results"`
}

type listResponse struct {
	Detections []*Result `json:"detections"`
}

type Handler struct {
	service      *Service
	defaultLimit int
	logger       *slog.Logger
}

func NewHandler(service *Service, defaultLimit int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	return &Handler{
		service:      service,
		defaultLimit: defaultLimit,
		logger:       slog.Default().With("component", "detection-handler"),
	}
}

// Register mounts the detection and cache routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/detections/symptoms", h.DetectSymptoms)
	mux.HandleFunc("POST /api/v1/detections/symptoms/batch", h.DetectBatch)
	mux.HandleFunc("POST /api/v1/detections/image", h.DetectImage)
	mux.HandleFunc("GET /api/v1/detections/{id}", h.Get)
	mux.HandleFunc("GET /api/v1/detections", h.List)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) DetectSymptoms(w http.ResponseWriter, r *http.Request) {
	var req symptomsRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.DetectSymptoms(r.Context(), req.Description)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) DetectBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !h.decode(w, r, &req) {
		return
	}
	results, err := h.service.DetectBatch(r.Context(), req.Descriptions)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

func (h *Handler) DetectImage(w http.ResponseWriter, r *http.Request) {
	var req ImagePrediction
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.DetectImage(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	results, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{Detections: results})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	hits, misses, enabled := h.service.CacheStats()
	if !enabled {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if _, _, enabled := h.service.CacheStats(); !enabled {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.service.InvalidateCache(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// decode reads a JSON body into v, writing a 400 and returning false when
// the body is missing, oversized or malformed.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := apperrors.Describe(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
