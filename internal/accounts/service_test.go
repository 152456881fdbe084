package accounts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/joao-fontenele/bookstore/internal/auth"
	"github.com/joao-fontenele/bookstore/internal/domain"
)

type memStore struct {
	users    map[string]*domain.User
	profiles map[string]*domain.Profile
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*domain.User{}, profiles: map[string]*domain.Profile{}}
}

func (m *memStore) CreateUser(_ context.Context, u *domain.User) error {
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return fmt.Errorf("insert user: %w: username", domain.ErrConflict)
		}
	}
	u.ID = fmt.Sprintf("user-%d", len(m.users)+1)
	cp := *u
	m.users[u.ID] = &cp
	m.profiles[u.ID] = &domain.Profile{UserID: u.ID}
	return nil
}

func (m *memStore) ByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) GetUser(_ context.Context, id string) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	p, ok := m.profiles[userID]
	if !ok {
		p = &domain.Profile{UserID: userID}
		m.profiles[userID] = p
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) UpdateProfile(_ context.Context, u *domain.User, p *domain.Profile) error {
	if _, ok := m.users[u.ID]; !ok {
		return domain.ErrNotFound
	}
	cu, cp := *u, *p
	m.users[u.ID] = &cu
	m.profiles[u.ID] = &cp
	return nil
}

type noOrders struct{}

func (noOrders) ListByUser(context.Context, string) ([]domain.Order, error) {
	return []domain.Order{}, nil
}

func newTestService(store Store) (*Service, *auth.Issuer) {
	issuer := auth.NewIssuer("test-secret", time.Hour)
	svc := NewService(store, noOrders{}, issuer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.hashCost = bcrypt.MinCost
	return svc, issuer
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Username:        "taras",
		Email:           "taras@example.com",
		FirstName:       "Тарас",
		LastName:        "Шевченко",
		Password:        "kobzar1840",
		PasswordConfirm: "kobzar1840",
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a token for the new user", func(t *testing.T) {
		store := newMemStore()
		svc, issuer := newTestService(store)

		session, err := svc.Register(ctx, validRegistration())
		require.NoError(t, err)

		id, err := issuer.Verify(session.Token)
		require.NoError(t, err)
		assert.Equal(t, session.User.ID, id.UserID)
		assert.False(t, id.Staff)

		stored := store.users[session.User.ID]
		assert.NotEqual(t, "kobzar1840", stored.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("kobzar1840")))
		assert.Contains(t, store.profiles, session.User.ID)
	})

	t.Run("duplicate username", func(t *testing.T) {
		svc, _ := newTestService(newMemStore())
		_, err := svc.Register(ctx, validRegistration())
		require.NoError(t, err)

		_, err = svc.Register(ctx, validRegistration())
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("field errors", func(t *testing.T) {
		svc, _ := newTestService(newMemStore())
		in := validRegistration()
		in.Username = "has space"
		in.Email = "nope"
		in.PasswordConfirm = "different"

		_, err := svc.Register(ctx, in)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "username")
		assert.Equal(t, "must be a valid email address", verr.Fields["email"])
		assert.Equal(t, "must match password", verr.Fields["password_confirm"])
	})

	t.Run("multibyte password over the bcrypt limit", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newTestService(store)
		in := validRegistration()
		in.Password = strings.Repeat("ж", 40)
		in.PasswordConfirm = in.Password

		_, err := svc.Register(ctx, in)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "must be at most 72 bytes", verr.Fields["password"])
		assert.Empty(t, store.users)
	})

	t.Run("multibyte password within the bcrypt limit", func(t *testing.T) {
		svc, _ := newTestService(newMemStore())
		in := validRegistration()
		in.Password = strings.Repeat("ж", 36)
		in.PasswordConfirm = in.Password

		_, err := svc.Register(ctx, in)
		require.NoError(t, err)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(newMemStore())
	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	session, err := svc.Login(ctx, LoginInput{Username: "taras", Password: "kobzar1840"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)

	_, err = svc.Login(ctx, LoginInput{Username: "taras", Password: "wrong-password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginInput{Username: "nobody", Password: "kobzar1840"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc, _ := newTestService(store)
	session, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	page, err := svc.UpdateProfile(ctx, session.User.ID, ProfileInput{
		FirstName:  "Тарас",
		LastName:   "Шевченко",
		Email:      "kobzar@example.com",
		Phone:      " +380441234567 ",
		Address:    "вул. Шевченка, 1",
		City:       "Канів",
		PostalCode: "19000",
	})
	require.NoError(t, err)

	assert.Equal(t, "kobzar@example.com", page.User.Email)
	assert.Equal(t, "+380441234567", page.Profile.Phone)
	assert.Equal(t, "Канів", page.Profile.Delivery().City)
	assert.NotNil(t, page.Orders)

	_, err = svc.UpdateProfile(ctx, session.User.ID, ProfileInput{FirstName: "T", LastName: "S", Email: "x", PostalCode: "12345678901"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "postal_code")
}
