package accounts

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/joao-fontenele/bookstore/internal/cart"
	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/storage"
)

const userSelect = `
	SELECT id, username, email, first_name, last_name, is_staff, password_hash, created_at
	FROM users`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts the user with an empty profile and cart, all or
// nothing. A taken username surfaces as domain.ErrConflict.
func (r *Repository) CreateUser(ctx context.Context, u *domain.User) error {
	return storage.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		u.ID = uuid.New().String()
		err := tx.QueryRowContext(ctx, `
			INSERT INTO users (id, username, email, first_name, last_name, is_staff, password_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`, u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.IsStaff, u.PasswordHash).Scan(&u.CreatedAt)
		if err != nil {
			return storage.Wrap("insert user", err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO profiles (user_id) VALUES ($1)`, u.ID); err != nil {
			return storage.Wrap("insert profile", err)
		}

		_, err = cart.EnsureCart(ctx, tx, u.ID)
		return err
	})
}

func (r *Repository) ByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE username = $1`, username))
	if err != nil {
		return nil, storage.Wrap("get user by username", err)
	}
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE id = $1`, id))
	if err != nil {
		return nil, storage.Wrap("get user", err)
	}
	return u, nil
}

// GetProfile returns the user's profile, creating an empty one for users
// that predate profiles.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	return upsertProfile(ctx, r.db, &domain.Profile{UserID: userID}, false)
}

// UpdateProfile saves the user's contact fields and profile together.
func (r *Repository) UpdateProfile(ctx context.Context, u *domain.User, p *domain.Profile) error {
	return storage.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE users SET first_name = $2, last_name = $3, email = $4
			WHERE id = $1
		`, u.ID, u.FirstName, u.LastName, u.Email)
		if err != nil {
			return storage.Wrap("update user", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return storage.Wrap("rows affected", err)
		} else if n == 0 {
			return domain.ErrNotFound
		}

		_, err = upsertProfile(ctx, tx, p, true)
		return err
	})
}

// IsStaff reports the user's current staff flag.
func (r *Repository) IsStaff(ctx context.Context, userID string) (bool, error) {
	var staff bool
	err := r.db.QueryRowContext(ctx, `SELECT is_staff FROM users WHERE id = $1`, userID).Scan(&staff)
	if err != nil {
		return false, storage.Wrap("read staff flag", err)
	}
	return staff, nil
}

// SetStaff grants or revokes staff privileges.
func (r *Repository) SetStaff(ctx context.Context, username string, staff bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET is_staff = $2 WHERE username = $1`, username, staff)
	if err != nil {
		return storage.Wrap("set staff", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storage.Wrap("rows affected", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func upsertProfile(ctx context.Context, q storage.Querier, p *domain.Profile, overwrite bool) (*domain.Profile, error) {
	onConflict := `DO UPDATE SET user_id = EXCLUDED.user_id`
	if overwrite {
		onConflict = `DO UPDATE SET phone = EXCLUDED.phone, address = EXCLUDED.address,
			city = EXCLUDED.city, postal_code = EXCLUDED.postal_code`
	}

	var out domain.Profile
	err := q.QueryRowContext(ctx, `
		INSERT INTO profiles (user_id, phone, address, city, postal_code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) `+onConflict+`
		RETURNING user_id, phone, address, city, postal_code
	`, p.UserID, p.Phone, p.Address, p.City, p.PostalCode).
		Scan(&out.UserID, &out.Phone, &out.Address, &out.City, &out.PostalCode)
	if err != nil {
		return nil, storage.Wrap("upsert profile", err)
	}
	return &out, nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.IsStaff, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
