package user

import (
	"encoding/json"
	"net/http"

	"github.com/georgemunganga/fanbase-backend/internal/apperror"
	"github.com/georgemunganga/fanbase-backend/internal/identity"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the public registration route.
func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Post("/api/v1/users/register", h.registerUser)
}

// RegisterAuthenticatedRoutes mounts routes that need a signed-in user.
func (h *Handler) RegisterAuthenticatedRoutes(router chi.Router) {
	router.Get("/api/v1/users/me", h.getMe)
	router.Put("/api/v1/users/me/discord", h.linkDiscord)
	router.Delete("/api/v1/users/me/discord", h.unlinkDiscord)
}

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	user, err := h.service.RegisterUser(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, user)
}

func (h *Handler) getMe(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.UserID(r.Context())
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, user)
}

func (h *Handler) linkDiscord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DiscordUserID string `json:"discord_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	id, _ := identity.UserID(r.Context())
	user, err := h.service.LinkDiscordAccount(r.Context(), id, req.DiscordUserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, user)
}

func (h *Handler) unlinkDiscord(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.UserID(r.Context())
	user, err := h.service.UnlinkDiscordAccount(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, user)
}

func respondError(w http.ResponseWriter, err error) {
	respond(w, apperror.HTTPStatus(err), map[string]string{"error": err.Error()})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
