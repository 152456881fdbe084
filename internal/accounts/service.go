// Package accounts handles registration, login and the user profile.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/validation"
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}.@+_-]+$`)

type Store interface {
	CreateUser(ctx context.Context, u *domain.User) error
	ByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, u *domain.User, p *domain.Profile) error
}

type OrderLister interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

type TokenIssuer interface {
	Issue(userID string, staff bool) (string, error)
}

type Service struct {
	store    Store
	orders   OrderLister
	tokens   TokenIssuer
	hashCost int
	logger   *slog.Logger
}

func NewService(store Store, orders OrderLister, tokens TokenIssuer, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		orders:   orders,
		tokens:   tokens,
		hashCost: bcrypt.DefaultCost,
		logger:   logger,
	}
}

const maxPasswordBytes = 72

type RegisterInput struct {
	Username        string `json:"username" validate:"required,max=150"`
	Email           string `json:"email" validate:"required,email,max=254"`
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"required,max=100"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

type Session struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	extra := map[string]string{}
	if in.Username != "" && !usernamePattern.MatchString(in.Username) {
		extra["username"] = "may contain only letters, digits and @/./+/-/_"
	}
	// bcrypt reads at most 72 bytes; max=72 above counts runes.
	if len(in.Password) > maxPasswordBytes {
		extra["password"] = fmt.Sprintf("must be at most %d bytes", maxPasswordBytes)
	}
	if err := validation.Merge(validation.Struct(in), extra); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("username %q: %w", user.Username, domain.ErrConflict)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "username", user.Username)
	return s.session(user)
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	user, err := s.store.ByUsername(ctx, strings.TrimSpace(in.Username))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		s.logger.WarnContext(ctx, "login failed", "username", user.Username)
		return nil, domain.ErrInvalidCredentials
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return s.session(user)
}

func (s *Service) session(user *domain.User) (*Session, error) {
	token, err := s.tokens.Issue(user.ID, user.IsStaff)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, User: user}, nil
}

type ProfilePage struct {
	User    *domain.User    `json:"user"`
	Profile *domain.Profile `json:"profile"`
	Orders  []domain.Order  `json:"orders"`
}

// Profile returns the user with their profile and order history, newest
// order first.
func (s *Service) Profile(ctx context.Context, userID string) (*ProfilePage, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ProfilePage{User: user, Profile: profile, Orders: orders}, nil
}

type ProfileInput struct {
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Phone      string `json:"phone" validate:"max=20"`
	Address    string `json:"address"`
	City       string `json:"city" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"max=10"`
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*ProfilePage, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.FirstName = strings.TrimSpace(in.FirstName)
	user.LastName = strings.TrimSpace(in.LastName)
	user.Email = strings.TrimSpace(in.Email)

	profile := &domain.Profile{
		UserID:     userID,
		Phone:      strings.TrimSpace(in.Phone),
		Address:    strings.TrimSpace(in.Address),
		City:       strings.TrimSpace(in.City),
		PostalCode: strings.TrimSpace(in.PostalCode),
	}
	if err := s.store.UpdateProfile(ctx, user, profile); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "profile updated", "user_id", userID)
	return s.Profile(ctx, userID)
}
