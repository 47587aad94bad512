package grant

import (
	"encoding/json"
	"net/http"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/identity"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler exposes grant HTTP endpoints.
type Handler struct {
	service Service
	users   user.Service
}

func NewHandler(service Service, users user.Service) *Handler {
	return &Handler{service: service, users: users}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/subscriptions/{id}/grants", h.listGrants)
	r.Post("/api/v1/subscriptions/{id}/reconcile", h.reconcile)
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription id"})
		return
	}
	grants, err := h.service.ListGrants(r.Context(), subject, id)
	if err != nil {
		respondError(w, err)
		return
	}
	if grants == nil {
		grants = []*Grant{}
	}
	respond(w, http.StatusOK, map[string]interface{}{"items": grants})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription id"})
		return
	}
	result, err := h.service.ReconcileSubscription(r.Context(), subject, id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusAccepted, result)
}

func (h *Handler) subject(w http.ResponseWriter, r *http.Request) (*user.User, bool) {
	userID, ok := identity.UserID(r.Context())
	if !ok {
		respond(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return nil, false
	}
	u, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return nil, false
	}
	return u, true
}

func respondError(w http.ResponseWriter, err error) {
	respond(w, apperror.HTTPStatus(err), map[string]string{"error": err.Error()})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
