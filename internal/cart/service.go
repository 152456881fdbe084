// Package cart implements the per-user shopping cart.
package cart

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/telemetry"
)

type Store interface {
	EnsureCart(ctx context.Context, userID string) (*domain.Cart, error)
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	GetBook(ctx context.Context, bookID string) (*domain.Book, error)
	FindItem(ctx context.Context, cartID, bookID string) (*domain.CartItem, error)
	GetItem(ctx context.Context, userID, itemID string) (*domain.CartItem, error)
	InsertItem(ctx context.Context, item *domain.CartItem) error
	UpdateQuantity(ctx context.Context, item *domain.CartItem) error
	DeleteItem(ctx context.Context, item *domain.CartItem) error
}

// AddResult carries the line after an add. Warning is ErrInsufficientStock
// when the quantity was clamped to the available stock.
type AddResult struct {
	Item    *domain.CartItem
	Warning error
}

type Service struct {
	store   Store
	metrics *telemetry.Instruments
	logger  *slog.Logger
}

func NewService(store Store, metrics *telemetry.Instruments, logger *slog.Logger) *Service {
	return &Service{store: store, metrics: metrics, logger: logger}
}

func (s *Service) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	return s.store.GetCart(ctx, userID)
}

// Add puts qty copies of a book in the cart. A book with no stock is
// rejected; otherwise the resulting quantity is capped at the stock.
func (s *Service) Add(ctx context.Context, userID, bookID string, qty int) (result AddResult, err error) {
	defer func() { s.record(ctx, "add", result.Warning, err) }()

	if qty < 1 {
		return AddResult{}, domain.NewValidationError("quantity", "must be at least 1")
	}

	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return AddResult{}, err
	}
	if !book.IsAvailable() {
		return AddResult{}, domain.ErrOutOfStock
	}

	c, err := s.store.EnsureCart(ctx, userID)
	if err != nil {
		return AddResult{}, err
	}

	item, err := s.store.FindItem(ctx, c.ID, bookID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		item = &domain.CartItem{CartID: c.ID, Book: *book}
		item.Quantity, result.Warning = clamp(0, qty, book.Stock)
		if err := s.store.InsertItem(ctx, item); err != nil {
			return AddResult{}, err
		}
	case err != nil:
		return AddResult{}, err
	default:
		item.Book = *book
		item.Quantity, result.Warning = clamp(item.Quantity, qty, book.Stock)
		if err := s.store.UpdateQuantity(ctx, item); err != nil {
			return AddResult{}, err
		}
	}

	s.logger.InfoContext(ctx, "cart item added",
		"user_id", userID, "book_id", bookID, "quantity", item.Quantity, "clamped", result.Warning != nil)
	result.Item = item
	return result, nil
}

// SetQuantity sets an item's quantity. Zero or less removes the item and
// returns a nil item; more than the stock is rejected with a
// *domain.StockError and leaves the item unchanged.
func (s *Service) SetQuantity(ctx context.Context, userID, itemID string, qty int) (item *domain.CartItem, err error) {
	defer func() { s.record(ctx, "set_quantity", nil, err) }()

	item, err = s.store.GetItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	if qty <= 0 {
		if err := s.store.DeleteItem(ctx, item); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "cart item removed", "user_id", userID, "item_id", itemID)
		return nil, nil
	}

	if qty > item.Book.Stock {
		return nil, &domain.StockError{
			BookID:    item.Book.ID,
			Title:     item.Book.Title,
			Requested: qty,
			Available: item.Book.Stock,
		}
	}

	item.Quantity = qty
	if err := s.store.UpdateQuantity(ctx, item); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "cart item updated", "user_id", userID, "item_id", itemID, "quantity", qty)
	return item, nil
}

func (s *Service) Remove(ctx context.Context, userID, itemID string) (err error) {
	defer func() { s.record(ctx, "remove", nil, err) }()

	item, err := s.store.GetItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, item); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "cart item removed", "user_id", userID, "item_id", itemID)
	return nil
}

// clamp adds qty to current, capped at stock. The comparison is done
// before the addition so a huge qty cannot overflow.
func clamp(current, qty, stock int) (int, error) {
	if qty > stock-current {
		return stock, domain.ErrInsufficientStock
	}
	return current + qty, nil
}

func (s *Service) record(ctx context.Context, op string, warning, err error) {
	s.metrics.CartMutation(ctx, op, outcome(warning, err))
}

func outcome(warning, err error) string {
	switch {
	case err == nil && warning != nil:
		return "clamped"
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
