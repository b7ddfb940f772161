// Package store is the durable embedded relational store (spec.md §3,
// "Durability") holding Runtime, Lane, Task, PipelineDefinition and
// PipelineRun rows, plus Agent checkpoint rows used by the Reconciler.
//
// None of the retrieved example repos embed a database — tarsy, kandev and
// r3e all talk to a standalone Postgres server — so there is no in-pack
// driver to ground an *embedded* store on. We use
// github.com/ncruces/go-sqlite3 (pure Go, wazero-backed, no cgo — it already
// appears transitively in the teacher's own go.mod) as the SQL engine, and
// github.com/jmoiron/sqlx (grounded: used directly by jordigilh-kubernaut
// and r3e-network-service_layer) for query ergonomics on top of it.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embeds the WASM SQLite build, no cgo required
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store wraps the embedded relational database.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the SQLite database file at path and runs
// migrations to the latest schema version.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer goroutine discipline (spec.md §5)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging store: %w", err)
	}

	if err := migrateUp(db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("building migration driver: %w", err)
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("constructing migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping is the no-op health-monitor probe (spec.md §4.8).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying *sqlx.DB for repository implementations in this
// package.
func (s *Store) DB() *sqlx.DB { return s.db }
