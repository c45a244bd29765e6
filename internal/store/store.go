// Package store is the Postgres persistence layer. Each service consumes a
// narrow interface; this package implements the whole capability set.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/latticesocial/lattice/internal/apperr"
)

// schemaSQL is compiled into the binary so schema init works in images that
// do not ship the source tree.
//
//go:embed schema.sql
var schemaSQL string

// Store wraps the SQL connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "ping postgres")
	}

	return &Store{db: db}, nil
}

// Migrate applies the embedded schema. All statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

// Health pings the database; used by the liveness endpoint.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// isUniqueViolation identifies Postgres duplicate-key failures so callers
// can surface them as CONFLICT instead of a 500.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isForeignKeyViolation identifies missing-referent failures.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func storeErr(err error, msg string) error {
	return apperr.Wrap(err, apperr.CodeInternal, msg)
}
