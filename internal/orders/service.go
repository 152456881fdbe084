// Package orders runs checkout and order history.
package orders

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/telemetry"
	"github.com/joao-fontenele/bookstore/internal/validation"
)

type Store interface {
	PlaceOrder(ctx context.Context, userID string, delivery domain.DeliveryDetails) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	Customer(ctx context.Context, userID string) (*domain.User, error)
}

type CartReader interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
}

type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
}

// BookInvalidator is told which books had their stock changed.
type BookInvalidator interface {
	InvalidateBooks(ctx context.Context, ids ...string)
}

// Deps wires a Service. Publisher, Books and Metrics are optional.
type Deps struct {
	Store     Store
	Carts     CartReader
	Profiles  ProfileReader
	Publisher Publisher
	Books     BookInvalidator
	Metrics   *telemetry.Instruments
	Logger    *slog.Logger
}

type Service struct {
	Deps
}

func NewService(deps Deps) *Service {
	return &Service{Deps: deps}
}

// Preview is what the checkout form shows before the order is placed.
type Preview struct {
	Cart     *domain.Cart           `json:"cart"`
	Delivery domain.DeliveryDetails `json:"delivery"`
	Ready    bool                   `json:"ready"`
	Problem  *domain.StockError     `json:"problem,omitempty"`
}

// Prepare validates the cart against current stock and prefills delivery
// details from the profile. A stock problem is reported in the preview
// rather than as an error.
func (s *Service) Prepare(ctx context.Context, userID string) (*Preview, error) {
	c, err := s.Carts.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	preview := &Preview{Cart: c, Ready: true}

	var stockErr *domain.StockError
	if err := c.CheckStock(); errors.As(err, &stockErr) {
		preview.Ready = false
		preview.Problem = stockErr
	}

	profile, err := s.Profiles.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if profile != nil {
		preview.Delivery = profile.Delivery()
	}
	return preview, nil
}

func (s *Service) Checkout(ctx context.Context, userID string, delivery domain.DeliveryDetails) (order *domain.Order, err error) {
	defer func() { s.Metrics.Checkout(ctx, checkoutOutcome(err)) }()

	delivery = trimDelivery(delivery)
	if err := validation.Struct(delivery); err != nil {
		return nil, err
	}

	order, err = s.Store.PlaceOrder(ctx, userID, delivery)
	if err != nil {
		var stockErr *domain.StockError
		if errors.As(err, &stockErr) {
			s.Logger.WarnContext(ctx, "checkout rejected", "user_id", userID, "book_id", stockErr.BookID,
				"requested", stockErr.Requested, "available", stockErr.Available)
		}
		return nil, err
	}

	s.Logger.InfoContext(ctx, "order placed", "order_id", order.ID, "user_id", userID,
		"items", len(order.Items), "total", order.Total.StringFixed(2))

	if s.Books != nil {
		ids := make([]string, 0, len(order.Items))
		for _, item := range order.Items {
			ids = append(ids, item.BookID)
		}
		s.Books.InvalidateBooks(ctx, ids...)
	}

	s.publishPlaced(ctx, order)
	return order, nil
}

// publishPlaced is best-effort: the order is committed whatever happens here.
func (s *Service) publishPlaced(ctx context.Context, order *domain.Order) {
	if s.Publisher == nil {
		return
	}

	event := domain.OrderPlacedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Items:     order.Items,
		Total:     order.Total,
		Timestamp: order.CreatedAt,
	}
	customer, err := s.Store.Customer(ctx, order.UserID)
	if err != nil {
		s.Logger.ErrorContext(ctx, "failed to load customer for order event", "error", err, "order_id", order.ID)
	} else {
		event.Email = customer.Email
		event.Username = customer.Username
	}

	if err := s.Publisher.Publish(ctx, order.ID, event); err != nil {
		s.Logger.ErrorContext(ctx, "failed to publish order placed event", "error", err, "order_id", order.ID)
	}
}

// Get returns one of the user's orders. Other users' orders look missing.
func (s *Service) Get(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := s.Store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.Store.ListByUser(ctx, userID)
}

func (s *Service) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("status", "must be one of: pending processing shipped delivered cancelled")
	}

	order, err := s.Store.UpdateStatus(ctx, orderID, status)
	if err != nil {
		return nil, err
	}
	s.Logger.InfoContext(ctx, "order status updated", "order_id", order.ID, "status", order.Status)
	return order, nil
}

func trimDelivery(d domain.DeliveryDetails) domain.DeliveryDetails {
	d.Address = strings.TrimSpace(d.Address)
	d.City = strings.TrimSpace(d.City)
	d.PostalCode = strings.TrimSpace(d.PostalCode)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Notes = strings.TrimSpace(d.Notes)
	return d
}

func checkoutOutcome(err error) string {
	switch {
	case err == nil:
		return "placed"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
