package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/joao-fontenele/bookstore/internal/domain"
)

type Identity struct {
	UserID string
	Staff  bool
}

// StaffLookup reports a user's current staff flag.
type StaffLookup interface {
	IsStaff(ctx context.Context, userID string) (bool, error)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireUser rejects requests without a valid bearer token.
func (i *Issuer) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := i.authenticate(w, r)
		if !ok {
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

// RequireStaff is RequireUser plus the staff flag. With a StaffLookup the
// flag is read from the store on every request.
func (i *Issuer) RequireStaff(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := i.authenticate(w, r)
		if !ok {
			return
		}
		if i.staff != nil {
			staff, err := i.staff.IsStaff(r.Context(), id.UserID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusInternalServerError, "could not verify privileges")
				return
			}
			id.Staff = staff && err == nil
		}
		if !id.Staff {
			writeError(w, http.StatusForbidden, "staff privileges required")
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

func (i *Issuer) authenticate(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		writeError(w, http.StatusUnauthorized, "authorization header required")
		return Identity{}, false
	}

	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		writeError(w, http.StatusUnauthorized, "invalid token format")
		return Identity{}, false
	}

	id, err := i.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return Identity{}, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
