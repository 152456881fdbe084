package accounts

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/bookstore/internal/httpapi"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpapi.DecodeJSON(w, r, &in); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.service.Register(r.Context(), in)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusCreated, session)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpapi.DecodeJSON(w, r, &in); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.service.Login(r.Context(), in)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, session)
}

func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := httpapi.Identity(w, r, h.logger)
	if !ok {
		return
	}

	page, err := h.service.Profile(r.Context(), id.UserID)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, page)
}

func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := httpapi.Identity(w, r, h.logger)
	if !ok {
		return
	}

	var in ProfileInput
	if err := httpapi.DecodeJSON(w, r, &in); err != nil {
		httpapi.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	page, err := h.service.UpdateProfile(r.Context(), id.UserID, in)
	if err != nil {
		httpapi.WriteDomainError(w, r, h.logger, err)
		return
	}
	httpapi.WriteJSON(w, h.logger, http.StatusOK, page)
}

func (h *Handler) Routes(mux *httpapi.Router, user func(http.HandlerFunc) http.HandlerFunc) {
	mux.Handle("POST /accounts/register", h.HandleRegister)
	mux.Handle("POST /accounts/login", h.HandleLogin)
	mux.Handle("GET /profile", user(h.HandleProfile))
	mux.Handle("PUT /profile", user(h.HandleUpdateProfile))
}
