// Package storage holds the Postgres plumbing shared by the repositories.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/joao-fontenele/bookstore/internal/domain"
)

const (
	uniqueViolation     pq.ErrorCode = "23505"
	foreignKeyViolation pq.ErrorCode = "23503"
	checkViolation      pq.ErrorCode = "23514"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in a transaction, committing only when fn returns nil.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Wrap("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return Wrap("commit transaction", err)
	}
	return nil
}

// Wrap classifies a database error into the domain taxonomy.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrConflict, constraintField(pqErr))
		case foreignKeyViolation:
			return domain.NewValidationError(constraintField(pqErr), "refers to a missing record")
		case checkViolation:
			return domain.NewValidationError(constraintField(pqErr), "is out of range")
		}
	}

	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}

// constraintField guesses the offending column from the constraint name
// Postgres generated, e.g. books_isbn_key -> isbn.
func constraintField(pqErr *pq.Error) string {
	if pqErr.Column != "" {
		return pqErr.Column
	}

	name := pqErr.Constraint
	if name == "" {
		return "record"
	}
	if pqErr.Table != "" {
		name = strings.TrimPrefix(name, pqErr.Table+"_")
	}
	for _, suffix := range []string{"_key", "_fkey", "_check"} {
		name = strings.TrimSuffix(name, suffix)
	}
	return name
}

// LikePattern escapes LIKE wildcards in a user query and wraps it for a
// substring match.
func LikePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

// NullString maps "" to SQL NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
