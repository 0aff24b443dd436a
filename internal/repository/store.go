// Package repository implements all database queries for the registration system.
// It uses pgx directly (no ORM) so row locks and aggregates are spelled out in SQL.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("conflict")

// ErrTransient marks failures that may succeed on retry: lock waits that hit
// lock_timeout, deadlocks, serialization failures and cancelled statements.
var ErrTransient = errors.New("transient store failure")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs queries either directly on the pool or inside one transaction.
// Row-locking methods (Lock*) are only meaningful inside WithTx.
type Store struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Pool exposes the underlying pool for collaborators such as the job queue.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// WithTx runs fn inside a transaction. Returning an error from fn rolls the
// transaction back, so nothing fn wrote survives. Nested calls reuse the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.withTx(ctx, pgx.TxOptions{}, fn)
}

// WithSnapshot runs fn in a read-only REPEATABLE READ transaction. Every
// statement in fn sees the same snapshot, so aggregates read one after the
// other agree with each other. Nested calls reuse the outer transaction.
func (s *Store) WithSnapshot(ctx context.Context, fn func(tx *Store) error) error {
	return s.withTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) withTx(ctx context.Context, opts pgx.TxOptions, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return classify("begin transaction", err)
	}
	// Releases the connection when fn fails or panics; a no-op after Commit.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, db: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// classify wraps err with op and maps Postgres error codes onto the package
// sentinels so callers can tell retryable failures from rejections.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", // lock_not_available
			"40P01", // deadlock_detected
			"40001", // serialization_failure
			"57014": // query_canceled
			return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
