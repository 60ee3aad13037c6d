/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.Store using SQLite. The Postgres adapter in
  store/postgres follows the same table layout with dialect differences.

KEY TABLES:
  employees:           Identity subset plus the embedded balance columns
  balance_ledger:      Denormalized balance mirror, one row per employee
  vacation_requests:   Requests, versioned for optimistic locking
  approved_days:       One row per calendar day of every approved request
  holidays:            Non-working dates
  audit_log:           Append-only action history
  reconciliation_runs: Batch recompute history

INDEXES:
  - idx_unique_approved_day: Enforces no two approved requests share a day.
    The approval status write inserts the request's days in the same SQL
    transaction, so two racing approvals cannot both commit.
  - idx_requests_employee_status: Grouped listings and overlap queries

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single pooled connection, as
  SQLite allows one writer at a time. Optimistic version columns on
  requests and balances catch stale writes across transactions.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/vacation.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := vacation.NewEngine(store, vacation.Options{})

MIGRATION:
  Schema is auto-migrated on New(). The Postgres schema is versioned
  under store/postgres/migrations and applied with cmd/migrate.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/vacation-engine/generic"
)

// Store implements generic.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  *queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: &queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Employees with the embedded vacation balance
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		hire_date TEXT,
		balance_total INTEGER NOT NULL DEFAULT 0 CHECK (balance_total >= 0),
		balance_used INTEGER NOT NULL DEFAULT 0
			CHECK (balance_used >= 0 AND balance_used <= balance_total),
		balance_last_update TEXT,
		balance_version INTEGER NOT NULL DEFAULT 0,
		granted_service_years INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Denormalized balance mirror
	CREATE TABLE IF NOT EXISTS balance_ledger (
		employee_id TEXT PRIMARY KEY REFERENCES employees(id),
		total INTEGER NOT NULL,
		used INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		last_update TEXT NOT NULL
	);

	-- Vacation requests
	CREATE TABLE IF NOT EXISTS vacation_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days_requested INTEGER NOT NULL,
		days_override INTEGER,
		business_days INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected', 'cancelled')),
		reason TEXT,
		processed_by TEXT,
		processed_at TEXT,
		requested_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		CHECK (end_date >= start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee_status
		ON vacation_requests(employee_id, status, start_date);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON vacation_requests(status);

	-- CRITICAL: Enforce the approved-overlap invariant
	-- An employee cannot have two approved requests covering the same day
	CREATE TABLE IF NOT EXISTS approved_days (
		employee_id TEXT NOT NULL,
		day TEXT NOT NULL,
		request_id TEXT NOT NULL REFERENCES vacation_requests(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_approved_day
		ON approved_days(employee_id, day);
	CREATE INDEX IF NOT EXISTS idx_approved_days_request
		ON approved_days(request_id);

	-- Holiday calendar
	CREATE TABLE IF NOT EXISTS holidays (
		date TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		at TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		employee_id TEXT,
		request_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_employee
		ON audit_log(employee_id, seq);

	-- Reconciliation runs
	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		trigger_source TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		processed INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxLocked(ctx, fn)
}

func (s *Store) withTxLocked(ctx context.Context, fn func(store generic.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{queries: &queries{db: sqlTx}}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every query on the open transaction. Nested WithTx calls
// join it.
type txStore struct {
	*queries
}

func (ts *txStore) WithTx(_ context.Context, fn func(store generic.Store) error) error {
	return fn(ts)
}

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the SQL for every store operation.
type queries struct {
	db dbtx
}

// =============================================================================
// LOCKED DELEGATES
// =============================================================================

func (s *Store) CreateEmployee(ctx context.Context, e generic.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreateEmployee(ctx, e)
}

func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetEmployee(ctx, id)
}

func (s *Store) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListEmployees(ctx)
}

func (s *Store) SetHireDate(ctx context.Context, id generic.EmployeeID, hireDate generic.TimePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetHireDate(ctx, id, hireDate)
}

func (s *Store) UpdateBalance(ctx context.Context, id generic.EmployeeID, b generic.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpdateBalance(ctx, id, b)
}

func (s *Store) SetGrantedServiceYears(ctx context.Context, id generic.EmployeeID, years int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetGrantedServiceYears(ctx, id, years)
}

func (s *Store) UpsertLedgerRecord(ctx context.Context, rec generic.LedgerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpsertLedgerRecord(ctx, rec)
}

func (s *Store) GetLedgerRecord(ctx context.Context, id generic.EmployeeID) (*generic.LedgerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetLedgerRecord(ctx, id)
}

func (s *Store) ListLedgerRecords(ctx context.Context) ([]generic.LedgerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListLedgerRecords(ctx)
}

func (s *Store) InsertRequest(ctx context.Context, r generic.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertRequest(ctx, r)
}

func (s *Store) GetRequest(ctx context.Context, id generic.RequestID) (*generic.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetRequest(ctx, id)
}

func (s *Store) ListRequestsByEmployee(ctx context.Context, id generic.EmployeeID, statuses ...generic.RequestStatus) ([]generic.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListRequestsByEmployee(ctx, id, statuses...)
}

func (s *Store) ListRequestsByStatus(ctx context.Context, status generic.RequestStatus) ([]generic.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListRequestsByStatus(ctx, status)
}

func (s *Store) FindApprovedOverlapping(ctx context.Context, id generic.EmployeeID, p generic.Period, excluding generic.RequestID) ([]generic.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.FindApprovedOverlapping(ctx, id, p, excluding)
}

// UpdateRequestStatus touches two tables, so it always runs in a transaction.
func (s *Store) UpdateRequestStatus(ctx context.Context, r generic.Request, from generic.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxLocked(ctx, func(tx generic.Store) error {
		return tx.UpdateRequestStatus(ctx, r, from)
	})
}

func (s *Store) HolidaysBetween(ctx context.Context, from, to generic.TimePoint) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.HolidaysBetween(ctx, from, to)
}

func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveHoliday(ctx, h)
}

func (s *Store) DeleteHoliday(ctx context.Context, date generic.TimePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeleteHoliday(ctx, date)
}

func (s *Store) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.AppendAudit(ctx, entry)
}

func (s *Store) QueryAudit(ctx context.Context, employee generic.EmployeeID, limit int) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.QueryAudit(ctx, employee, limit)
}

func (s *Store) SaveReconciliationRun(ctx context.Context, run generic.ReconciliationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveReconciliationRun(ctx, run)
}

func (s *Store) ListReconciliationRuns(ctx context.Context, limit int) ([]generic.ReconciliationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListReconciliationRuns(ctx, limit)
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatDate(tp generic.TimePoint) sql.NullString {
	return nullString(tp.String())
}

func parseDate(ns sql.NullString) generic.TimePoint {
	if !ns.Valid || ns.String == "" {
		return generic.TimePoint{}
	}
	tp, _ := generic.ParseDate(ns.String)
	return tp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isApprovedDayError(err error) bool {
	return isUniqueConstraintError(err) && strings.Contains(err.Error(), "approved_days")
}

func isCheckConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}

var (
	_ generic.Store = (*Store)(nil)
	_ generic.Store = (*txStore)(nil)
)
