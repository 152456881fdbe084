package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/lib/pq"

	"github.com/joao-fontenele/bookstore/internal/accounts"
	"github.com/joao-fontenele/bookstore/internal/config"
	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/storage"
	"github.com/joao-fontenele/bookstore/internal/telemetry"
)

const usage = "usage: migrate <up | down [n] | version | force <version> | promote <username> | demote <username>>"

var errUsage = errors.New(usage)

type command func(logger *slog.Logger, cfg *config.Config, args []string) error

var commands = map[string]command{
	"up":      withMigrate(up),
	"down":    withMigrate(down),
	"version": withMigrate(version),
	"force":   withMigrate(force),
	"promote": staffCommand(true),
	"demote":  staffCommand(false),
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		logger.Error(usage)
		os.Exit(1)
	}

	run, ok := commands[args[0]]
	if !ok {
		logger.Error("unknown command", slog.String("command", args[0]))
		os.Exit(1)
	}

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	if err := run(logger, cfg, args[1:]); err != nil {
		logger.Error(args[0]+" failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func withMigrate(fn func(logger *slog.Logger, m *migrate.Migrate, args []string) error) command {
	return func(logger *slog.Logger, cfg *config.Config, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		m, err := storage.NewMigrate(ctx, cfg.PostgresURL, cfg.DBSchema, cfg.MigrationsPath)
		if err != nil {
			return err
		}
		defer func() { _, _ = m.Close() }()
		return fn(logger, m, args)
	}
}

func up(logger *slog.Logger, m *migrate.Migrate, _ []string) error {
	err := m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no pending migrations")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("migrations applied successfully")
	return nil
}

func down(logger *slog.Logger, m *migrate.Migrate, args []string) error {
	steps := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return errUsage
		}
		steps = n
	}

	err := m.Steps(-steps)
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to rollback")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("migrations rolled back", slog.Int("steps", steps))
	return nil
}

func version(logger *slog.Logger, m *migrate.Migrate, _ []string) error {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("no migrations applied yet")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("current migration version", slog.Uint64("version", uint64(v)), slog.Bool("dirty", dirty))
	return nil
}

// force clears the dirty flag left by a failed migration.
func force(logger *slog.Logger, m *migrate.Migrate, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return errUsage
	}
	if err := m.Force(v); err != nil {
		return err
	}
	logger.Info("migration version forced", slog.Int("version", v))
	return nil
}

// staffCommand is how the first staff account gets created: register
// through the API, then promote the username here.
func staffCommand(staff bool) command {
	return func(logger *slog.Logger, cfg *config.Config, args []string) error {
		if len(args) < 1 {
			return errUsage
		}
		username := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := telemetry.OpenPostgres(ctx, cfg.PostgresURL, cfg.DBSchema)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		err = accounts.NewRepository(db).SetStaff(ctx, username, staff)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no such user %q", username)
		}
		if err != nil {
			return err
		}
		logger.Info("staff flag updated", slog.String("username", username), slog.Bool("staff", staff))
		return nil
	}
}
