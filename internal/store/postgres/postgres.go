// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
// Documents live in a single jsonb table keyed by (collection, id).
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already-open database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Insert(ctx context.Context, collection string, doc *model.Document) error {
	return queryInsertDocument(ctx, s.db, collection, doc)
}

func (s *PostgresStore) Replace(ctx context.Context, collection string, doc *model.Document) error {
	return queryReplaceDocument(ctx, s.db, collection, doc)
}

func (s *PostgresStore) FindByID(ctx context.Context, collection, id string) (*model.Document, error) {
	return queryGetDocument(ctx, s.db, collection, id, false)
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	return queryDeleteDocument(ctx, s.db, collection, id)
}

func (s *PostgresStore) List(ctx context.Context, collection string) ([]*model.Document, error) {
	return queryListDocuments(ctx, s.db, collection)
}

func (s *PostgresStore) Collections(ctx context.Context) ([]string, error) {
	return queryCollections(ctx, s.db)
}

// Update locks the row, applies the operator maps in Go and writes the
// result back, all inside one transaction.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, upd model.Update) (*model.Document, error) {
	var out *model.Document
	err := s.RunInTransaction(ctx, func(tx *sql.Tx) error {
		doc, err := queryGetDocument(ctx, tx, collection, id, true)
		if err != nil {
			return err
		}
		if doc == nil {
			return store.ErrNotFound
		}
		if err := model.ApplyUpdate(doc, upd); err != nil {
			return err
		}
		if err := queryReplaceDocument(ctx, tx, collection, doc); err != nil {
			return err
		}
		doc.MarkPersisted()
		out = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RunInTransaction begins a database transaction, calls fn, and commits on
// success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
