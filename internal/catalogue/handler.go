package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/logger"
)

const maxEntryBytes = 64 << 10

// Notifier is called after every successful write so caches built on the
// old catalogue can be dropped.
type Notifier func(ctx context.Context, e Entry)

type upsertRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ScientificName string `json:"scientific_name"`
	Symptoms       string `json:"symptoms"`
	Severity       string `json:"severity"`
	Treatment      string `json:"treatment"`
	Active         *bool  `json:"active"`
}

type listResponse struct {
	Diseases []Entry `json:"diseases"`
	Total    int     `json:"total"`
}

// Handler exposes the catalogue over HTTP for administration.
type Handler struct {
	store  Store
	notify Notifier
	logger *slog.Logger
}

func NewHandler(store Store, notify Notifier) *Handler {
	if notify == nil {
		notify = func(context.Context, Entry) {}
	}
	return &Handler{
		store:  store,
		notify: notify,
		logger: slog.Default().With("component", "catalogue-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/diseases", h.List)
	mux.HandleFunc("GET /api/v1/diseases/{name}", h.Get)
	mux.HandleFunc("PUT /api/v1/diseases", h.Upsert)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ActiveDiseases(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{Diseases: entries, Total: len(entries)})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.Lookup(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, e)
}

// Upsert creates or replaces the record with the request's name. Active
// defaults to true.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEntryBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var req upsertRequest
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	entry := Entry{
		ID:             req.ID,
		Name:           req.Name,
		ScientificName: req.ScientificName,
		Symptoms:       req.Symptoms,
		Severity:       req.Severity,
		Treatment:      req.Treatment,
		Active:         req.Active == nil || *req.Active,
	}
	if err := h.store.Upsert(r.Context(), entry); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	stored, err := h.store.Lookup(r.Context(), entry.Name)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("disease upserted", "id", stored.ID, "name", stored.Name, "active", stored.Active)
	h.notify(r.Context(), stored)
	h.writeJSON(w, http.StatusOK, stored)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := apperrors.Describe(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("catalogue request failed", "path", r.URL.Path, "error", err)
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
