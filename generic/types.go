/*
Package generic provides the shared model of the vacation engine.

PURPOSE:
  This package contains the types every other package speaks: calendar days,
  periods, employees with their embedded balance, the denormalized balance
  ledger record, vacation requests, the storage interfaces and the error
  taxonomy. It holds no business rules beyond pure invariant checks.

KEY CONCEPTS IN THIS FILE (types.go):
  - EmployeeID / RequestID: Type-safe identifiers
  - Employee: Identity subset the engine needs (hire date, embedded balance)
  - Balance: {total, used} with a derived remaining; used <= total always
  - LedgerRecord: The independently queryable mirror of a Balance
  - Actor: The authenticated caller handed in by the identity layer

DESIGN PRINCIPLES:
  1. Remaining is derived: never trusted from storage, always max(0, total-used)
  2. Invariants are pure functions over a whole candidate record
  3. Dates are calendar days in UTC (see time.go)

SEE ALSO:
  - request.go: VacationRequest and its statuses
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type RequestID string

// =============================================================================
// CLOCK
// =============================================================================

// Clock provides the current time. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same instant.
type FixedClock struct{ At time.Time }

func (c FixedClock) Now() time.Time { return c.At }

// =============================================================================
// ACTOR - Identity supplied by the authentication layer
// =============================================================================

type Role string

const (
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

// Actor is the caller of a core operation. The engine trusts it as given.
type Actor struct {
	ID   EmployeeID
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// SystemActor is used for scheduled maintenance.
var SystemActor = Actor{ID: "system", Role: RoleAdmin}

// =============================================================================
// BALANCE - Embedded vacation counter on the employee record
// =============================================================================

// Balance is the embedded vacation counter. Version is the optimistic-lock
// token for the embedded copy; writers must present the version they read.
type Balance struct {
	Total      int       `json:"total"`
	Used       int       `json:"used"`
	LastUpdate time.Time `json:"last_update"`
	Version    int64     `json:"-"`
}

// Remaining is always derived; a stored value is never trusted.
func (b Balance) Remaining() int {
	if r := b.Total - b.Used; r > 0 {
		return r
	}
	return 0
}

// Validate checks the balance invariants against the whole candidate record.
func (b Balance) Validate() error {
	if b.Total < 0 {
		return fmt.Errorf("%w: total %d is negative", ErrInvalidAmount, b.Total)
	}
	if b.Used < 0 {
		return fmt.Errorf("%w: used %d is negative", ErrInvalidAmount, b.Used)
	}
	if b.Used > b.Total {
		return &BelowUsedFloorError{Total: b.Total, Used: b.Used}
	}
	return nil
}

// View is the read shape of a balance with remaining filled in.
func (b Balance) View() BalanceView {
	return BalanceView{Total: b.Total, Used: b.Used, Remaining: b.Remaining(), LastUpdate: b.LastUpdate}
}

// BalanceView is what callers read: {total, used, remaining}.
type BalanceView struct {
	Total      int       `json:"total"`
	Used       int       `json:"used"`
	Remaining  int       `json:"remaining"`
	LastUpdate time.Time `json:"last_update"`
}

// =============================================================================
// LEDGER RECORD - Denormalized mirror, one per employee
// =============================================================================

// LedgerRecord mirrors an employee's balance in the balance_ledger table.
type LedgerRecord struct {
	EmployeeID EmployeeID `json:"employee_id"`
	Total      int        `json:"total"`
	Used       int        `json:"used"`
	Remaining  int        `json:"remaining"`
	LastUpdate time.Time  `json:"last_update"`
}

// NewLedgerRecord builds the mirror of b; remaining is recomputed.
func NewLedgerRecord(id EmployeeID, b Balance) LedgerRecord {
	return LedgerRecord{
		EmployeeID: id,
		Total:      b.Total,
		Used:       b.Used,
		Remaining:  b.Remaining(),
		LastUpdate: b.LastUpdate,
	}
}

// =============================================================================
// EMPLOYEE
// =============================================================================

// Employee is the subset of the identity record the engine works with.
type Employee struct {
	ID       EmployeeID `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	HireDate TimePoint  `json:"hire_date"` // zero when unknown
	Balance  Balance    `json:"vacation_balance"`

	// GrantedServiceYears is the last completed service year whose
	// entitlement has been added to Balance.Total.
	GrantedServiceYears int       `json:"granted_service_years"`
	CreatedAt           time.Time `json:"created_at"`
}

func (e Employee) HasHireDate() bool { return !e.HireDate.IsZero() }
