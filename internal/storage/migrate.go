package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"

	"github.com/joao-fontenele/bookstore/internal/telemetry"
)

// NewMigrate returns a migrator whose tables, including its own version
// table, live in schema. The schema is created when missing; the
// migration files themselves are schema-agnostic.
func NewMigrate(ctx context.Context, postgresURL, schema, sourceURL string) (*migrate.Migrate, error) {
	if schema != "" {
		if err := ensureSchema(ctx, postgresURL, schema); err != nil {
			return nil, err
		}
	}

	dsn, err := telemetry.WithSearchPath(postgresURL, schema)
	if err != nil {
		return nil, err
	}

	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

func ensureSchema(ctx context.Context, postgresURL, schema string) error {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}
