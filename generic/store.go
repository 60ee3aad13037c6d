/*
store.go - Persistence interfaces for the vacation engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  EmployeeStore:  Employees with their embedded balance
  LedgerStore:    The denormalized balance_ledger mirror
  RequestStore:   vacation_requests, status writes guarded by version
  HolidayStore:   Holiday calendar data (read side is HolidayCalendar)
  AuditLog:       Append-only record of who did what
  RunStore:       Batch reconciliation run history
  Store:          All of the above plus WithTx

CONCURRENCY CONTRACT:
  Implementations must close the overlap race at the storage level:
  UpdateRequestStatus into RequestApproved fails with ErrOverlapConflict
  when another approved request of the same employee shares a day, even
  if the caller's pre-check passed. Version mismatches on requests and
  embedded balances fail with ErrConcurrencyConflict.

IMPLEMENTATIONS:
  - store/sqlite: per-day unique index on approved days
  - store/postgres: EXCLUDE USING gist on approved intervals
  - generic/store: in-memory, mutex-serialised
*/
package generic

import (
	"context"
	"time"
)

// EmployeeStore persists employees and their embedded balance.
type EmployeeStore interface {
	CreateEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	SetHireDate(ctx context.Context, id EmployeeID, hireDate TimePoint) error

	// UpdateBalance writes b when the stored version equals b.Version and
	// bumps the version. Returns ErrConcurrencyConflict otherwise.
	UpdateBalance(ctx context.Context, id EmployeeID, b Balance) error

	SetGrantedServiceYears(ctx context.Context, id EmployeeID, years int) error
}

// LedgerStore persists the denormalized balance mirror.
type LedgerStore interface {
	// UpsertLedgerRecord inserts or replaces the record keyed by employee.
	UpsertLedgerRecord(ctx context.Context, rec LedgerRecord) error
	GetLedgerRecord(ctx context.Context, id EmployeeID) (*LedgerRecord, error)
	ListLedgerRecords(ctx context.Context) ([]LedgerRecord, error)
}

// RequestStore persists vacation requests.
type RequestStore interface {
	InsertRequest(ctx context.Context, r Request) error
	GetRequest(ctx context.Context, id RequestID) (*Request, error)

	// ListRequestsByEmployee returns the employee's requests ordered by
	// start date; statuses filters when non-empty.
	ListRequestsByEmployee(ctx context.Context, id EmployeeID, statuses ...RequestStatus) ([]Request, error)
	ListRequestsByStatus(ctx context.Context, status RequestStatus) ([]Request, error)

	// FindApprovedOverlapping returns approved requests of the employee whose
	// interval intersects p, skipping excluding when non-empty.
	FindApprovedOverlapping(ctx context.Context, id EmployeeID, p Period, excluding RequestID) ([]Request, error)

	// UpdateRequestStatus writes status, reason and processing fields when the
	// stored version equals r.Version, and bumps the version.
	UpdateRequestStatus(ctx context.Context, r Request, from RequestStatus) error
}

// HolidayStore manages holiday calendar data.
type HolidayStore interface {
	HolidayCalendar
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, date TimePoint) error
}

// =============================================================================
// AUDIT LOG - Separate from balances, tracks who did what when
// =============================================================================

type AuditAction string

const (
	AuditRequestCreated   AuditAction = "request_created"
	AuditRequestApproved  AuditAction = "request_approved"
	AuditRequestRejected  AuditAction = "request_rejected"
	AuditRequestCancelled AuditAction = "request_cancelled"
	AuditBalanceGrant     AuditAction = "balance_grant"
	AuditBalanceConsume   AuditAction = "balance_consume"
	AuditBalanceSetTotal  AuditAction = "balance_set_total"
	AuditBalanceReset     AuditAction = "balance_reset"
	AuditAnniversaryGrant AuditAction = "anniversary_grant"
)

// AuditEntry records who did what when.
type AuditEntry struct {
	ID         string         `json:"id"`
	At         time.Time      `json:"at"`
	ActorID    EmployeeID     `json:"actor_id"`
	Action     AuditAction    `json:"action"`
	EmployeeID EmployeeID     `json:"employee_id"`
	RequestID  RequestID      `json:"request_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	// QueryAudit returns entries newest first; an empty employee means all.
	QueryAudit(ctx context.Context, employee EmployeeID, limit int) ([]AuditEntry, error)
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

// ReconciliationRun is the persisted summary of one batch recompute.
type ReconciliationRun struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"` // "manual", "scheduler"
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
}

type RunStore interface {
	SaveReconciliationRun(ctx context.Context, run ReconciliationRun) error
	ListReconciliationRuns(ctx context.Context, limit int) ([]ReconciliationRun, error)
}

// =============================================================================
// STORE - Everything, with transactions
// =============================================================================

// Store is the full persistence surface.
type Store interface {
	EmployeeStore
	LedgerStore
	RequestStore
	HolidayStore
	AuditLog
	RunStore

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
