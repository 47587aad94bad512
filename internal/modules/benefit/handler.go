package benefit

import (
	"encoding/json"
	"net/http"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler exposes benefit HTTP endpoints.
type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/benefits", func(r chi.Router) {
		r.Post("/", h.createBenefit)          // POST   /api/v1/benefits
		r.Get("/", h.listBenefits)            // GET    /api/v1/benefits?organization_id=|repository_id=
		r.Post("/articles", h.ensureArticles) // POST   /api/v1/benefits/articles
		r.Get("/{id}", h.getBenefit)          // GET    /api/v1/benefits/{id}
		r.Patch("/{id}", h.updateBenefit)     // PATCH  /api/v1/benefits/{id}
		r.Delete("/{id}", h.deleteBenefit)    // DELETE /api/v1/benefits/{id}
	})
}

func (h *Handler) createBenefit(w http.ResponseWriter, r *http.Request) {
	var req CreateBenefitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	b, err := h.service.CreateBenefit(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, b)
}

func (h *Handler) listBenefits(w http.ResponseWriter, r *http.Request) {
	scope, err := ScopeFromQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}
	benefits, err := h.service.ListBenefits(r.Context(), scope)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"items": benefits})
}

func (h *Handler) ensureArticles(w http.ResponseWriter, r *http.Request) {
	var scope Scope
	if err := json.NewDecoder(r.Body).Decode(&scope); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	benefits, err := h.service.EnsureArticlesBenefits(r.Context(), scope)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"items": benefits})
}

func (h *Handler) getBenefit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperror.NotFound("benefit"))
		return
	}
	b, err := h.service.GetBenefit(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, b)
}

func (h *Handler) updateBenefit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperror.NotFound("benefit"))
		return
	}
	var req UpdateBenefitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	b, err := h.service.UpdateBenefit(r.Context(), id, req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, b)
}

func (h *Handler) deleteBenefit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperror.NotFound("benefit"))
		return
	}
	if err := h.service.DeleteBenefit(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ScopeFromQuery reads organization_id or repository_id from the query string.
func ScopeFromQuery(r *http.Request) (Scope, error) {
	var scope Scope
	q := r.URL.Query()
	if v := q.Get("organization_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return scope, apperror.Invalid("organization_id", "must be a uuid")
		}
		scope.OrganizationID = &id
	}
	if v := q.Get("repository_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return scope, apperror.Invalid("repository_id", "must be a uuid")
		}
		scope.RepositoryID = &id
	}
	return scope, scope.Validate()
}

func respondError(w http.ResponseWriter, err error) {
	respond(w, apperror.HTTPStatus(err), map[string]string{"error": err.Error()})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
