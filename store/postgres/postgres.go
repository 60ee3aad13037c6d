/*
Package postgres provides a PostgreSQL implementation of generic.Store on pgx.

PURPOSE:
  Production backend for multi-instance deployments. The table layout
  matches store/sqlite; the schema lives in migrations/ and is applied
  with cmd/migrate.

CONCURRENCY:
  - WithTx runs SERIALIZABLE transactions. A serialization failure
    (40001) or deadlock (40P01) maps to generic.ErrConcurrencyConflict,
    which the services retry.
  - vacation_requests_no_approved_overlap is an EXCLUDE USING gist
    constraint over daterange(start_date, end_date, '[]') for approved
    rows. A violation (23P01) maps to generic.ErrOverlapConflict.
  - Requests and embedded balances carry version columns checked on
    every write.

SEE ALSO:
  - store/sqlite: Same tables with a per-day unique index instead of
    the exclusion constraint
  - cmd/migrate: Applies migrations/
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/vacation-engine/config"
	"github.com/warp/vacation-engine/generic"
)

const (
	uniqueViolationCode      = "23505"
	foreignKeyViolationCode  = "23503"
	checkViolationCode       = "23514"
	exclusionViolationCode   = "23P01"
	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"

	balanceFloorConstraint = "employees_balance_floor"
	requestRangeConstraint = "vacation_requests_range_check"
)

// Queryer is satisfied by pgx.Tx and *pgxpool.Pool.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Pool is a Queryer that can open transactions.
type Pool interface {
	Queryer
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Store implements generic.Store using PostgreSQL.
type Store struct {
	*queries
	pool  Pool
	close func()
}

// queries holds the SQL for every store operation.
type queries struct {
	db Queryer
}

// BuildPoolConfig builds a pgxpool.Config from the database settings.
func BuildPoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	return poolCfg, nil
}

// New connects a pool and pings the server.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := BuildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s := NewWithPool(pool)
	s.close = pool.Close
	return s, nil
}

// NewWithPool wraps an existing pool. Tests pass a pgxmock pool.
func NewWithPool(pool Pool) *Store {
	return &Store{queries: &queries{db: pool}, pool: pool, close: func() {}}
}

func (s *Store) Close() error {
	s.close()
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in a SERIALIZABLE transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", translatePgError(err))
	}

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(&txStore{queries: &queries{db: tx}}); err != nil {
		done = true
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("postgres: rollback: %w", rbErr))
		}
		return err
	}

	done = true
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", translatePgError(err))
	}
	return nil
}

// txStore runs every query on the open transaction. Nested WithTx calls
// join it.
type txStore struct {
	*queries
}

func (ts *txStore) WithTx(_ context.Context, fn func(store generic.Store) error) error {
	return fn(ts)
}

// UpdateRequestStatus outside a transaction still needs the overlap
// pre-check and the write to be atomic.
func (s *Store) UpdateRequestStatus(ctx context.Context, r generic.Request, from generic.RequestStatus) error {
	return s.WithTx(ctx, func(tx generic.Store) error {
		return tx.UpdateRequestStatus(ctx, r, from)
	})
}

// =============================================================================
// ERROR TRANSLATION
// =============================================================================

// translatePgError maps SQLSTATE codes onto the generic error kinds.
func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolationCode:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, generic.ErrAlreadyExists)
	case foreignKeyViolationCode:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, generic.ErrNotFound)
	case checkViolationCode:
		switch pgErr.ConstraintName {
		case balanceFloorConstraint:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, generic.ErrBelowUsedFloor)
		case requestRangeConstraint:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, generic.ErrInvalidDateRange)
		}
		return err
	case exclusionViolationCode:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, generic.ErrOverlapConflict)
	case serializationFailureCode, deadlockDetectedCode:
		return fmt.Errorf("%s: %w", pgErr.Message, generic.ErrConcurrencyConflict)
	}
	return err
}

// =============================================================================
// VALUE HELPERS
// =============================================================================

// pgDate returns the DATE parameter for tp, nil when unset.
func pgDate(tp generic.TimePoint) any {
	if tp.IsZero() {
		return nil
	}
	return time.Date(tp.Year(), tp.Month(), tp.Day(), 0, 0, 0, 0, time.UTC)
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// =============================================================================
// COMPILE-TIME INTERFACE CHECKS
// =============================================================================

var (
	_ generic.Store = (*Store)(nil)
	_ generic.Store = (*txStore)(nil)
)
