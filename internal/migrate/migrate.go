// Package migrate applies the embedded SQL migrations using goose.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
	"github.com/pressly/goose/v3"

	"github.com/auralforge/auralforge/migrations"
)

var setupOnce sync.Once
var setupErr error

// setup configures goose's package-level state once per process.
func setup() error {
	setupOnce.Do(func() {
		goose.SetBaseFS(migrations.FS)
		setupErr = goose.SetDialect("postgres")
	})
	return setupErr
}

// Migrator runs schema migrations against a database/sql handle.
type Migrator struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to databaseURL with the lib/pq driver.
// The caller owns the returned Migrator and must Close it.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Migrator, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db, logger), nil
}

// New wraps an existing database handle.
func New(db *sql.DB, logger *slog.Logger) *Migrator {
	return &Migrator{db: db, logger: logger.With("component", "migrate")}
}

// DB returns the underlying handle.
func (m *Migrator) DB() *sql.DB {
	return m.db
}

// Close closes the database handle.
func (m *Migrator) Close() error {
	return m.db.Close()
}

// Up runs all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	if err := setup(); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	m.logger.Info("running database migrations")
	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	m.logger.Info("migrations completed successfully")
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := setup(); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	m.logger.Info("rolling back last migration")
	if err := goose.DownContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	return nil
}

// Reset rolls back every migration. Used by integration tests.
func (m *Migrator) Reset(ctx context.Context) error {
	if err := setup(); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.ResetContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to reset migrations: %w", err)
	}
	return nil
}

// Status logs the applied state of each migration.
func (m *Migrator) Status(ctx context.Context) error {
	if err := setup(); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.StatusContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	return nil
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	if err := setup(); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}
