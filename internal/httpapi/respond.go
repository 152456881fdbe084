// Package httpapi holds the JSON request and response helpers shared by the
// bookstore handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/joao-fontenele/bookstore/internal/auth"
	"github.com/joao-fontenele/bookstore/internal/domain"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	BookID    string            `json:"book_id,omitempty"`
	Available *int              `json:"available,omitempty"`
}

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	WriteJSON(w, logger, status, errorBody{Error: message})
}

// WriteDomainError maps err onto a status code. Only server-side failures
// are logged; client errors are part of normal traffic.
func WriteDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		verr  *domain.ValidationError
		stock *domain.StockError
	)

	switch {
	case errors.As(err, &verr):
		WriteJSON(w, logger, http.StatusUnprocessableEntity, errorBody{Error: domain.ErrValidation.Error(), Fields: verr.Fields})
	case errors.As(err, &stock):
		available := stock.Available
		WriteJSON(w, logger, http.StatusConflict, errorBody{Error: stock.Error(), BookID: stock.BookID, Available: &available})
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, logger, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidTransition):
		WriteError(w, logger, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConflict):
		WriteError(w, logger, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		WriteError(w, logger, http.StatusUnauthorized, domain.ErrInvalidCredentials.Error())
	case errors.Is(err, domain.ErrForbidden):
		WriteError(w, logger, http.StatusForbidden, domain.ErrForbidden.Error())
	default:
		logger.ErrorContext(r.Context(), "request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		WriteError(w, logger, http.StatusInternalServerError, "internal server error")
	}
}

// DecodeJSON reads a JSON body of at most 1 MiB into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// PathID returns the {id} path segment, or ErrNotFound when it is not a
// UUID, which is how a lookup of a malformed id should look to clients.
func PathID(r *http.Request) (string, error) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		return "", fmt.Errorf("id %q: %w", id, domain.ErrNotFound)
	}
	return id, nil
}

// QueryInt parses a query parameter, falling back to def when it is missing
// or malformed.
func QueryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return n
}

// Identity returns the caller set by the auth middleware, answering 401
// itself when there is none.
func Identity(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		WriteError(w, logger, http.StatusUnauthorized, "authentication required")
		return auth.Identity{}, false
	}
	return id, true
}
