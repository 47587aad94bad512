package transaction

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/identity"
	"github.com/georgemunganga/fanbase-backend/internal/modules/user"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler exposes ledger HTTP endpoints.
type Handler struct {
	service Service
	users   user.Service
}

func NewHandler(service Service, users user.Service) *Handler {
	return &Handler{service: service, users: users}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/transactions", func(r chi.Router) {
		r.Get("/search", h.search)
		r.Get("/summary", h.summary)
		r.Get("/{id}", h.lookup)
	})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var filter SearchFilter
	if v := q.Get("type"); v != "" {
		t := Type(v)
		filter.Type = &t
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	sorting, err := ParseSorting(q["sorting"])
	if err != nil {
		respondError(w, err)
		return
	}
	filter.Sorting = sorting

	page, err := h.service.Search(r.Context(), subject, accountID, filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, page)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}
	summaries, err := h.service.GetSummary(r.Context(), subject, accountID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"items": summaries})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid transaction id"})
		return
	}
	tx, err := h.service.Lookup(r.Context(), subject, id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, tx)
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

func accountParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.URL.Query().Get("account_id"))
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "account_id is required"})
		return uuid.Nil, false
	}
	return id, true
}

func respondError(w http.ResponseWriter, err error) {
	respond(w, apperror.HTTPStatus(err), map[string]string{"error": err.Error()})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
