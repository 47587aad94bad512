package tier

import (
	"encoding/json"
	"net/http"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/modules/benefit"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler exposes tier HTTP endpoints.
type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/tiers", func(r chi.Router) {
		r.Post("/", h.createTier)                 // POST   /api/v1/tiers
		r.Get("/", h.listTiers)                   // GET    /api/v1/tiers?organization_id=|repository_id=
		r.Get("/{id}", h.getTier)                 // GET    /api/v1/tiers/{id}
		r.Patch("/{id}", h.updateTier)            // PATCH  /api/v1/tiers/{id}
		r.Post("/{id}/archive", h.archiveTier)    // POST   /api/v1/tiers/{id}/archive
		r.Put("/{id}/benefits", h.updateBenefits) // PUT    /api/v1/tiers/{id}/benefits
	})
}

func (h *Handler) createTier(w http.ResponseWriter, r *http.Request) {
	var req CreateTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	t, err := h.service.CreateTier(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, t)
}

func (h *Handler) listTiers(w http.ResponseWriter, r *http.Request) {
	scope, err := benefit.ScopeFromQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}
	tiers, err := h.service.ListTiers(r.Context(), ScopeFilter{
		OrganizationID:  scope.OrganizationID,
		RepositoryID:    scope.RepositoryID,
		IncludeArchived: r.URL.Query().Get("include_archived") == "true",
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"items": tiers})
}

func (h *Handler) getTier(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperror.NotFound("tier"))
		return
	}
	t, err := h.service.GetTier(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, t)
}

func (h *Handler) updateTier(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperror.NotFound("tier"))
		return
	}
	var req UpdateTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	t, err := h.service.UpdateTier(r.Context(), id, req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, t)
}

func (h *Handler) archiveTier(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperror.NotFound("tier"))
		return
	}
	t, err := h.service.ArchiveTier(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, t)
}

func (h *Handler) updateBenefits(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperror.NotFound("tier"))
		return
	}
	var req UpdateBenefitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	t, err := h.service.UpdateBenefits(r.Context(), id, req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, t)
}

func respondError(w http.ResponseWriter, err error) {
	respond(w, apperror.HTTPStatus(err), map[string]string{"error": err.Error()})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
