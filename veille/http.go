// CLAUDE:SUMMARY HTTP management API: chi routes over sources, items, events, stats.
package veille

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/torref/veille/internal/store"
)

// Routes builds the management API router.
func (svc *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sources", svc.handleListSources)
		r.Post("/sources", svc.handleAddSource)
		r.Delete("/sources/{id}", svc.handleDeleteSource)
		r.Post("/sources/{id}/poll", svc.handlePollSource)
		r.Get("/sources/{id}/items", svc.handleListItems)
		r.Post("/sources/{id}/items/seen", svc.handleMarkItemsSeen)
		r.Get("/extractors", svc.handleListExtractors)
		r.Get("/events", svc.handleListEvents)
		r.Post("/events/seen", svc.handleMarkSeen)
		r.Get("/stats", svc.handleStats)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the failure taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ErrDuplicateSource):
		status = http.StatusConflict
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrExtraction):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (svc *Service) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := svc.ListSources(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

// AddSourceRequest is the body for POST /api/sources.
type AddSourceRequest struct {
	Name          string         `json:"name"`
	URL           string         `json:"url"`
	Extractor     string         `json:"extractor"`
	FetchInterval int64          `json:"fetch_interval"` // milliseconds; 0 = default
	Config        map[string]any `json:"config"`
}

func (svc *Service) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req AddSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	src := &store.Source{
		Name:          req.Name,
		URL:           req.URL,
		Extractor:     req.Extractor,
		FetchInterval: req.FetchInterval,
		Enabled:       true,
		ConfigJSON:    encodeSourceConfig(req.Config),
	}
	if err := svc.AddSource(r.Context(), src); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (svc *Service) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := svc.DeleteSource(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handlePollSource(w http.ResponseWriter, r *http.Request) {
	if err := svc.FetchNow(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (svc *Service) handleListItems(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	src, err := svc.store.GetSource(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if src == nil {
		http.Error(w, "source not found", http.StatusNotFound)
		return
	}
	items, err := svc.store.GetItems(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (svc *Service) handleMarkItemsSeen(w http.ResponseWriter, r *http.Request) {
	if err := svc.MarkItemsSeen(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (svc *Service) handleListExtractors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, svc.Extractors())
}

func (svc *Service) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		limit, _ = strconv.Atoi(s)
	}
	events, err := svc.Events(r.Context(), q.Get("source_id"), q.Get("unseen") == "1", limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// MarkSeenRequest is the body for POST /api/events/seen. Empty IDs
// acknowledges everything.
type MarkSeenRequest struct {
	IDs []string `json:"ids"`
}

func (svc *Service) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	var req MarkSeenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := svc.MarkEventsSeen(r.Context(), req.IDs...); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (svc *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := svc.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
