package cart

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/httpapi"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := httpapi.Identity(w, r, h.logger)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), id.UserID)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, c)
}

type addRequest struct {
	BookID   string `json:"book_id"`
	Quantity *int   `json:"quantity"`
}

type addResponse struct {
	Item    *domain.CartItem `json:"item"`
	Warning string           `json:"warning,omitempty"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	id, ok := httpapi.Identity(w, r, h.logger)
	if !ok {
		return
	}

	var req addRequest
	if err := httpapi.DecodeJSON(w, r, &req); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := uuid.Validate(req.BookID); err != nil {
		httpapi.WriteDomainError(w, r, h.logger, domain.NewValidationError("book_id", "must be a valid id"))
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	result, err := h.service.Add(r.Context(), id.UserID, req.BookID, qty)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	resp := addResponse{Item: result.Item}
	if result.Warning != nil {
		resp.Warning = fmt.Sprintf("quantity limited to the %d copies in stock", result.Item.Book.Stock)
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, resp)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleSetQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := httpapi.Identity(w, r, h.logger)
	if !ok {
		return
	}
	itemID, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	var req quantityRequest
	if err := httpapi.DecodeJSON(w, r, &req); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.service.SetQuantity(r.Context(), id.UserID, itemID, req.Quantity)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	if item == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, item)
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := httpapi.Identity(w, r, h.logger)
	if !ok {
		return
	}
	itemID, err := httpapi.PathID(r)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	if err := h.service.Remove(r.Context(), id.UserID, itemID); err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Routes registers the cart endpoints behind user authentication.
func (h *Handler) Routes(mux *httpapi.Router, user func(http.HandlerFunc) http.HandlerFunc) {
	mux.Handle("GET /cart", user(h.HandleGet))
	mux.Handle("POST /cart/items", user(h.HandleAdd))
	mux.Handle("PATCH /cart/items/{id}", user(h.HandleSetQuantity))
	mux.Handle("DELETE /cart/items/{id}", user(h.HandleRemove))
}
