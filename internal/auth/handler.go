package auth

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/httpx"
)

type Handler struct {
	service *Service
	logger  *logrus.Logger
}

func NewHandler(service *Service, logger *logrus.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/register", h.register).Methods(http.MethodPost)
	router.HandleFunc("/login", h.login).Methods(http.MethodPost)
	router.HandleFunc("/me", h.me).Methods(http.MethodGet)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}

	session, err := h.service.Register(r.Context(), req)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"success":    true,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"user":       session.User,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}

	session, err := h.service.Login(r.Context(), req)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"user":       session.User,
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(r.Context(), IdentityFrom(r.Context()))
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}
