// Package store owns the local SQLite database: schema migrations, the
// transaction helper used to keep entity writes and outbox enqueues atomic,
// and the change notifier backing reactive queries.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/avasiliev/kaltrack/internal/client/migrations"
	"github.com/avasiliev/kaltrack/internal/dbx"
	"github.com/avasiliev/kaltrack/internal/logging"
)

// Store is the durable local source of truth for all read paths.
type Store struct {
	db       *sql.DB
	notifier *Notifier
	log      logging.Logger
}

// Open opens (or creates) the database at dsn and applies pending schema
// migrations. Migrations are forward-only and non-destructive; a destructive
// reset would be a dedicated migration and is logged loudly, never silent.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer; serializing connections avoids
	// SQLITE_BUSY under concurrent drains and UI writes.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db, notifier: NewNotifier(), log: log}, nil
}

// RunMigrations applies the embedded goose migrations up to the latest
// version.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// DB exposes the raw handle for read paths and repository construction.
func (s *Store) DB() *sql.DB { return s.db }

// Notifier returns the change notifier scoped to this store instance.
func (s *Store) Notifier() *Notifier { return s.notifier }

// WithTx runs fn inside a transaction and, after a successful commit,
// notifies subscribers of the touched tables. Readers therefore observe
// their own writes as soon as WithTx returns.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error, touched ...string) error {
	if err := dbx.WithTx(ctx, s.db, nil, fn); err != nil {
		return err
	}
	s.notifier.Publish(touched...)
	return nil
}

// Close closes the underlying database and drops all subscriptions.
func (s *Store) Close() error {
	s.notifier.CloseAll()
	return s.db.Close()
}
