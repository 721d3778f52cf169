package orders

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/auth"
	"github.com/jogardn/dtc-configurator/internal/httpx"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

const IdempotencyHeader = "Idempotency-Key"

type Handler struct {
	service *Service
	logger  *logrus.Logger
}

func NewHandler(service *Service, logger *logrus.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the order routes on the /api/orders subrouter.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("", h.CreateOrder).Methods(http.MethodPost)
	router.HandleFunc("", h.ListOrders).Methods(http.MethodGet)
	router.HandleFunc("/my-orders", h.MyOrders).Methods(http.MethodGet)
	router.HandleFunc("/{id}", h.GetOrder).Methods(http.MethodGet)
	router.HandleFunc("/{id}/status", h.UpdateStatus).Methods(http.MethodPatch)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}

	order, replayed, err := h.service.SubmitOrder(r.Context(), auth.IdentityFrom(r.Context()), req, r.Header.Get(IdempotencyHeader))
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}

	code, message := http.StatusCreated, "Order created successfully"
	if replayed {
		code, message = http.StatusOK, "Order already created"
	}
	httpx.RespondWithJSON(w, code, models.OrderResponse{
		Success: true,
		Message: message,
		Order:   order,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), auth.IdentityFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, models.OrderResponse{Success: true, Order: order})
}

func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListMine(r.Context(), auth.IdentityFrom(r.Context()))
	h.respondWithOrders(w, orders, err)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListAll(r.Context(), auth.IdentityFrom(r.Context()))
	h.respondWithOrders(w, orders, err)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}

	order, err := h.service.SetStatus(r.Context(), auth.IdentityFrom(r.Context()), mux.Vars(r)["id"], body.Status)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, models.OrderResponse{
		Success: true,
		Message: "Order status updated",
		Order:   order,
	})
}

func (h *Handler) respondWithOrders(w http.ResponseWriter, orders []*models.Order, err error) {
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"orders":  orders,
		"count":   len(orders),
	})
}
