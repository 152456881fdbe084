package orders

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/httpapi"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) HandlePrepare(w http.ResponseWriter, r *http.Request) {
	id, ok := httpapi.Identity(w, r, h.logger)
	if !ok {
		return
	}

	preview, err := h.service.Prepare(r.Context(), id.UserID)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, preview)
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := httpapi.Identity(w, r, h.logger)
	if !ok {
		return
	}

	var delivery domain.DeliveryDetails
	if err := httpapi.DecodeJSON(w, r, &delivery); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.Checkout(r.Context(), id.UserID, delivery)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Location", "/orders/"+order.ID)
	httpapi.WriteJSON(w, h.logger, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := httpapi.Identity(w, r, h.logger)
	if !ok {
		return
	}
	orderID, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	order, err := h.service.Get(r.Context(), id.UserID, orderID)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID)
	httpapi.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, ok := httpapi.Identity(w, r, h.logger)
	if !ok {
		return
	}

	orders, err := h.service.List(r.Context(), id.UserID)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	h.logger.Info("orders listed", "count", len(orders))
	httpapi.WriteJSON(w, h.logger, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	var req updateStatusRequest
	if err := httpapi.DecodeJSON(w, r, &req); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, order)
}

// Routes registers checkout and order endpoints. Status changes are staff
// only.
func (h *Handler) Routes(mux *httpapi.Router, user, staff func(http.HandlerFunc) http.HandlerFunc) {
	mux.Handle("GET /checkout", user(h.HandlePrepare))
	mux.Handle("POST /checkout", user(h.HandleCheckout))
	mux.Handle("GET /orders", user(h.HandleList))
	mux.Handle("GET /orders/{id}", user(h.HandleGet))
	mux.Handle("PATCH /orders/{id}/status", staff(h.HandleUpdateStatus))
}
