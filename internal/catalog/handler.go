package catalog

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/apperr"
	"github.com/jogardn/dtc-configurator/internal/auth"
	"github.com/jogardn/dtc-configurator/internal/httpx"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

type Handler struct {
	service *Service
	logger  *logrus.Logger
}

func NewHandler(service *Service, logger *logrus.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the product routes on router, which is expected to be the
// /api/products subrouter.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("", h.list).Methods(http.MethodGet)
	router.HandleFunc("/{id}", h.get).Methods(http.MethodGet)
	router.HandleFunc("/{id}/quote", h.quote).Methods(http.MethodPost)

	router.HandleFunc("", h.create).Methods(http.MethodPost)
	router.HandleFunc("/{id}", h.update).Methods(http.MethodPut)
	router.HandleFunc("/{id}", h.delete).Methods(http.MethodDelete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := ListQuery{Category: models.Category(q.Get("category"))}

	var err error
	if query.Page, err = intParam(q.Get("page"), "page"); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	if query.PageSize, err = intParam(q.Get("page_size"), "page_size"); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}

	products, err := h.service.List(r.Context(), query)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"products": products,
		"count":    len(products),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"product": p,
	})
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Selection models.Selection `json:"selection"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}

	quote, err := h.service.Quote(r.Context(), mux.Vars(r)["id"], body.Selection)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"quote":   quote,
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}

	p, err := h.service.Create(r.Context(), auth.IdentityFrom(r.Context()), in)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"product": p,
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}

	p, err := h.service.Update(r.Context(), auth.IdentityFrom(r.Context()), mux.Vars(r)["id"], in)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"product": p,
	})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), auth.IdentityFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Product deleted",
	})
}

func intParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(apperr.FieldError{Field: field, Message: field + " must be a non-negative integer"})
	}
	return n, nil
}
