/*
errors.go - Centralized error types for the vacation engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Every rejected operation carries a machine-checkable kind (see Kind)
  plus a human-readable message.

ERROR CATEGORIES:
  1. Validation errors - bad dates, bad amounts
  2. Invariant errors - overlap, insufficient balance, used floor, transitions
  3. Store errors - not found, optimistic-lock conflicts

USAGE:
  if errors.Is(err, generic.ErrOverlapConflict) {
      var oe *generic.OverlapError
      errors.As(err, &oe) // conflicting request IDs
  }

SEE ALSO:
  - api/errors.go: Kind to HTTP status mapping
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidDateRange is returned when end is before start, or the range
	// has no working day in it.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrPastDate is returned when a request starts or ends before today (UTC).
	ErrPastDate = errors.New("date is in the past")

	// ErrOverlapConflict is returned when an approved request already covers
	// a day of the candidate range.
	ErrOverlapConflict = errors.New("overlaps an approved request")

	// ErrInvalidAmount is returned for non-positive day amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance is returned when consumption exceeds remaining days.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBelowUsedFloor is returned when a total would drop below used days.
	ErrBelowUsedFloor = errors.New("total below used days")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned when an employee or request does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a record whose key is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConcurrencyConflict is returned when an optimistic-lock check or a
	// serializable transaction fails. Callers retry a bounded number of times.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrOutsideEligibilityWindow is returned when window enforcement is on
	// and the range leaves the current anniversary window.
	ErrOutsideEligibilityWindow = errors.New("outside current eligibility window")

	// ErrForbidden is returned when the actor may not act on the request.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput is returned for missing identifiers and malformed
	// parameters.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// OverlapError lists the approved requests that collide with a range.
type OverlapError struct {
	EmployeeID  EmployeeID
	Period      Period
	Conflicting []RequestID
}

func (e *OverlapError) Error() string {
	if len(e.Conflicting) == 0 {
		return fmt.Sprintf("%s %s overlaps an approved request", e.EmployeeID, e.Period)
	}
	ids := make([]string, len(e.Conflicting))
	for i, id := range e.Conflicting {
		ids[i] = string(id)
	}
	return fmt.Sprintf("%s %s overlaps approved request(s) %s", e.EmployeeID, e.Period, strings.Join(ids, ", "))
}

func (e *OverlapError) Unwrap() error { return ErrOverlapConflict }

// TransitionError reports a status change the state machine refuses.
type TransitionError struct {
	RequestID RequestID
	From      RequestStatus
	Action    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s request %s in status %s", e.Action, e.RequestID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID EmployeeID
	Available  int
	Requested  string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %d, requested %s", e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// BelowUsedFloorError is returned when total would fall under used.
type BelowUsedFloorError struct {
	Total int
	Used  int
}

func (e *BelowUsedFloorError) Error() string {
	return fmt.Sprintf("total %d is below %d used days", e.Total, e.Used)
}

func (e *BelowUsedFloorError) Unwrap() error { return ErrBelowUsedFloor }

// =============================================================================
// ERROR HELPERS
// =============================================================================

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidDateRange, "invalid_date_range"},
	{ErrPastDate, "past_date"},
	{ErrOverlapConflict, "overlap_conflict"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrBelowUsedFloor, "below_used_floor"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrNotFound, "not_found"},
	{ErrAlreadyExists, "already_exists"},
	{ErrConcurrencyConflict, "concurrency_conflict"},
	{ErrOutsideEligibilityWindow, "outside_eligibility_window"},
	{ErrForbidden, "forbidden"},
	{ErrInvalidInput, "invalid_input"},
}

// Kind returns the machine-checkable kind of err, or "internal".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid client input
// or a business rule the caller can act on.
func IsClientError(err error) bool {
	switch Kind(err) {
	case "", "internal", "not_found", "concurrency_conflict":
		return false
	}
	return true
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
