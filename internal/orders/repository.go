package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/bookstore/internal/cart"
	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/storage"
)

const orderSelect = `
	SELECT id, user_id, status, total_price, delivery_address, delivery_city,
	       delivery_postal_code, phone, notes, created_at, updated_at
	FROM orders`

type OrderRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// PlaceOrder turns the user's cart into an order in one transaction. The
// cart's book rows stay locked from the stock check until commit, and each
// decrement is conditional on the stock still covering it, so stock never
// goes negative. On any error nothing is written.
func (r *OrderRepository) PlaceOrder(ctx context.Context, userID string, delivery domain.DeliveryDetails) (*domain.Order, error) {
	var order *domain.Order

	err := storage.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		c, err := cart.EnsureCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if c.Items, err = cart.ListItems(ctx, tx, c.ID, true); err != nil {
			return err
		}

		order, err = domain.PlanCheckout(*c, delivery, r.now())
		if err != nil {
			return err
		}
		order.ID = uuid.New().String()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (id, user_id, status, total_price, delivery_address, delivery_city,
			                    delivery_postal_code, phone, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		`, order.ID, order.UserID, order.Status, order.Total, order.Address, order.City,
			order.PostalCode, order.Phone, order.Notes, order.CreatedAt)
		if err != nil {
			return storage.Wrap("insert order", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.ID = uuid.New().String()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, book_id, title, quantity, price)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, item.ID, order.ID, item.BookID, item.Title, item.Quantity, item.Price)
			if err != nil {
				return storage.Wrap("insert order item", err)
			}

			if err := decrementStock(ctx, tx, item); err != nil {
				return err
			}
		}

		return cart.RemoveItems(ctx, tx, c.ID, c.Items)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func decrementStock(ctx context.Context, tx *sql.Tx, item *domain.OrderItem) error {
	var remaining int
	err := tx.QueryRowContext(ctx, `
		UPDATE books SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING stock
	`, item.BookID, item.Quantity).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		var available int
		if err := tx.QueryRowContext(ctx, `SELECT stock FROM books WHERE id = $1`, item.BookID).Scan(&available); err != nil {
			return storage.Wrap("read stock", err)
		}
		return &domain.StockError{BookID: item.BookID, Title: item.Title, Requested: item.Quantity, Available: available}
	}
	if err != nil {
		return storage.Wrap("decrement stock", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, orderSelect+` WHERE id = $1`, id))
	if err != nil {
		return nil, storage.Wrap("get order", err)
	}

	orders := []domain.Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByUser returns the user's orders, newest first, with their items.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, orderSelect+` WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, storage.Wrap("list orders", err)
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, storage.Wrap("scan order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("list orders", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus moves an order to status if the transition is allowed from
// its current one.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	err := storage.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var current domain.OrderStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if err != nil {
			return storage.Wrap("lock order", err)
		}
		if !current.CanTransition(status) {
			return fmt.Errorf("%s -> %s: %w", current, status, domain.ErrInvalidTransition)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET status = $1, updated_at = NOW()
			WHERE id = $2
		`, status, id)
		return storage.Wrap("update order status", err)
	})
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

// Customer returns the contact details used in order notifications.
func (r *OrderRepository) Customer(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, email, first_name, last_name FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName)
	if err != nil {
		return nil, storage.Wrap("get customer", err)
	}
	return &u, nil
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[string]int, len(orders))
	ids := make([]string, 0, len(orders))
	for i := range orders {
		orders[i].Items = []domain.OrderItem{}
		index[orders[i].ID] = i
		ids = append(ids, orders[i].ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, id, book_id, title, quantity, price
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY title, id
	`, pq.Array(ids))
	if err != nil {
		return storage.Wrap("list order items", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var orderID string
		var bookID sql.NullString
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ID, &bookID, &item.Title, &item.Quantity, &item.Price); err != nil {
			return storage.Wrap("scan order item", err)
		}
		item.BookID = bookID.String
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return storage.Wrap("list order items", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (domain.Order, error) {
	var o domain.Order
	err := s.Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.Address, &o.City,
		&o.PostalCode, &o.Phone, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}
