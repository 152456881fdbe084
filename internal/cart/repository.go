package cart

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/storage"
)

const itemSelect = `
	SELECT ci.id, ci.cart_id, ci.quantity,
	       b.id, b.title, b.isbn, b.price, b.discount, b.stock
	FROM cart_items ci
	JOIN books b ON b.id = ci.book_id`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureCart returns the user's cart, creating it on first use. Calling it
// any number of times yields the same cart.
func (r *Repository) EnsureCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return EnsureCart(ctx, r.db, userID)
}

// EnsureCart is exported for callers that need the upsert inside their own
// transaction, e.g. registration.
func EnsureCart(ctx context.Context, q storage.Querier, userID string) (*domain.Cart, error) {
	var c domain.Cart
	err := q.QueryRowContext(ctx, `
		INSERT INTO carts (id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, created_at, updated_at
	`, uuid.New().String(), userID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, storage.Wrap("ensure cart", err)
	}
	return &c, nil
}

// GetCart loads the user's cart with its items, oldest item first.
func (r *Repository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	c, err := r.EnsureCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := ListItems(ctx, r.db, c.ID, false)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return c, nil
}

// ListItems reads a cart's lines. With lock set the item and book rows are
// locked FOR UPDATE in book id order, so concurrent checkouts over the same
// books serialize instead of deadlocking and quantity changes from another
// request wait for the checkout to finish.
func ListItems(ctx context.Context, q storage.Querier, cartID string, lock bool) ([]domain.CartItem, error) {
	query := itemSelect + ` WHERE ci.cart_id = $1 ORDER BY ci.id`
	if lock {
		query = itemSelect + ` WHERE ci.cart_id = $1 ORDER BY b.id FOR UPDATE OF ci, b`
	}

	rows, err := q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, storage.Wrap("list cart items", err)
	}
	defer func() { _ = rows.Close() }()

	items := []domain.CartItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storage.Wrap("scan cart item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("list cart items", err)
	}
	return items, nil
}

func (r *Repository) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	var b domain.Book
	var isbn sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, isbn, price, discount, stock FROM books WHERE id = $1
	`, bookID).Scan(&b.ID, &b.Title, &isbn, &b.Price, &b.Discount, &b.Stock)
	if err != nil {
		return nil, storage.Wrap("get book", err)
	}
	b.ISBN = isbn.String
	return &b, nil
}

// FindItem returns the line for bookID in the cart, or ErrNotFound.
func (r *Repository) FindItem(ctx context.Context, cartID, bookID string) (*domain.CartItem, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx, itemSelect+` WHERE ci.cart_id = $1 AND ci.book_id = $2`, cartID, bookID))
	if err != nil {
		return nil, storage.Wrap("find cart item", err)
	}
	return &item, nil
}

// GetItem returns an item only if it belongs to userID's cart.
func (r *Repository) GetItem(ctx context.Context, userID, itemID string) (*domain.CartItem, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx, itemSelect+`
		JOIN carts c ON c.id = ci.cart_id
		WHERE ci.id = $1 AND c.user_id = $2`, itemID, userID))
	if err != nil {
		return nil, storage.Wrap("get cart item", err)
	}
	return &item, nil
}

func (r *Repository) InsertItem(ctx context.Context, item *domain.CartItem) error {
	return storage.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		item.ID = uuid.New().String()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (id, cart_id, book_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, item.ID, item.CartID, item.Book.ID, item.Quantity)
		if err != nil {
			return storage.Wrap("insert cart item", err)
		}
		return touch(ctx, tx, item.CartID)
	})
}

func (r *Repository) UpdateQuantity(ctx context.Context, item *domain.CartItem) error {
	return storage.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE cart_items SET quantity = $2 WHERE id = $1`, item.ID, item.Quantity)
		if err != nil {
			return storage.Wrap("update cart item", err)
		}
		if err := requireRow(result); err != nil {
			return err
		}
		return touch(ctx, tx, item.CartID)
	})
}

func (r *Repository) DeleteItem(ctx context.Context, item *domain.CartItem) error {
	return storage.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, item.ID)
		if err != nil {
			return storage.Wrap("delete cart item", err)
		}
		if err := requireRow(result); err != nil {
			return err
		}
		return touch(ctx, tx, item.CartID)
	})
}

// RemoveItems deletes the given lines from a cart. Checkout passes the
// lines it ordered, so an item added by a concurrent request survives.
func RemoveItems(ctx context.Context, q storage.Querier, cartID string, items []domain.CartItem) error {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}

	_, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND id = ANY($2::uuid[])`,
		cartID, pq.Array(ids))
	if err != nil {
		return storage.Wrap("remove cart items", err)
	}
	return touch(ctx, q, cartID)
}

func touch(ctx context.Context, q storage.Querier, cartID string) error {
	if _, err := q.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return storage.Wrap("touch cart", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (domain.CartItem, error) {
	var item domain.CartItem
	var isbn sql.NullString
	err := s.Scan(&item.ID, &item.CartID, &item.Quantity,
		&item.Book.ID, &item.Book.Title, &isbn, &item.Book.Price, &item.Book.Discount, &item.Book.Stock)
	if err != nil {
		return domain.CartItem{}, err
	}
	item.Book.ISBN = isbn.String
	return item, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return storage.Wrap("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("cart item: %w", domain.ErrNotFound)
	}
	return nil
}
