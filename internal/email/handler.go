// Package email is a stand-in mail relay: it validates a message, waits a
// little like a real provider would, and logs it.
package email

import (
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/joao-fontenele/bookstore/internal/httpapi"
	"github.com/joao-fontenele/bookstore/internal/validation"
)

type Handler struct {
	logger *slog.Logger
	delay  func() time.Duration
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
		delay: func() time.Duration {
			return time.Duration(50+rand.IntN(151)) * time.Millisecond
		},
	}
}

type Message struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body" validate:"required,max=20000"`
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := httpapi.DecodeJSON(w, r, &msg); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	msg.To = strings.TrimSpace(msg.To)

	if err := validation.Struct(msg); err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}

	select {
	case <-time.After(h.delay()):
	case <-r.Context().Done():
		return
	}

	h.logger.InfoContext(r.Context(), "email sent", "to", msg.To, "subject", msg.Subject, "bytes", len(msg.Body))
	httpapi.WriteJSON(w, h.logger, http.StatusOK, sendResponse{Status: "sent"})
}

func (h *Handler) Routes(mux *httpapi.Router) {
	mux.Handle("POST /send", h.HandleSend)
}
