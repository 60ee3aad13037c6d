/*
ledger.go - Persistent store of vacation requests

PURPOSE:
  Creates pending requests and answers the read paths over them. The
  critical invariant: no two approved requests of one employee share a day.

WHAT CREATE CHECKS (in order):
  1. end >= start, span <= 366 days        -> InvalidDateRange
  2. neither date before today (UTC)       -> PastDate
  3. override within 1..span               -> InvalidAmount
  4. employee exists                       -> NotFound
  5. at least one business day             -> InvalidDateRange
  6. optional window / balance policy      -> OutsideEligibilityWindow / InsufficientBalance
  7. no approved request covers any day    -> OverlapConflict

  The overlap query runs in the same transaction as the insert. Approval
  re-checks it and the store enforces it again at commit.

SEE ALSO:
  - lifecycle.go: Transitions after creation
  - generic/store.go: RequestStore
*/
package vacation

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/warp/vacation-engine/generic"
)

// Ledger is the RequestLedger.
type Ledger struct {
	store generic.Store
	opts  Options
}

func NewLedger(store generic.Store, opts Options) *Ledger {
	return &Ledger{store: store, opts: opts.withDefaults()}
}

// CreateInput describes a new request.
type CreateInput struct {
	EmployeeID generic.EmployeeID
	StartDate  generic.TimePoint
	EndDate    generic.TimePoint
	Reason     string

	// ActorID is who files the request, the employee unless HR files it on
	// their behalf. Empty means the employee.
	ActorID generic.EmployeeID

	// DaysOverride, when set, replaces the calendar span when the request
	// is counted against the balance.
	DaysOverride *int
}

// Create validates and persists a pending request.
func (l *Ledger) Create(ctx context.Context, in CreateInput) (*generic.Request, error) {
	start := generic.DateOf(in.StartDate.Time)
	end := generic.DateOf(in.EndDate.Time)
	period := generic.Period{Start: start, End: end}

	if !period.Valid() {
		return nil, fmt.Errorf("%w: end %s is before start %s", generic.ErrInvalidDateRange, end, start)
	}
	if !period.WithinMaxSpan() {
		return nil, fmt.Errorf("%w: %s exceeds %d days", generic.ErrInvalidDateRange, period, generic.MaxPeriodDays)
	}
	today := generic.TodayFrom(l.opts.Clock)
	if start.Before(today) || end.Before(today) {
		return nil, fmt.Errorf("%w: %s starts before %s", generic.ErrPastDate, period, today)
	}
	span := period.Len()
	if in.DaysOverride != nil && (*in.DaysOverride < 1 || *in.DaysOverride > span) {
		return nil, fmt.Errorf("%w: override %d outside 1..%d", generic.ErrInvalidAmount, *in.DaysOverride, span)
	}

	actor := in.ActorID
	if actor == "" {
		actor = in.EmployeeID
	}

	var created generic.Request
	err := retry(ctx, l.opts.MaxRetries, "Ledger", func() error {
		return l.store.WithTx(ctx, func(tx generic.Store) error {
			emp, err := tx.GetEmployee(ctx, in.EmployeeID)
			if err != nil {
				return err
			}

			businessDays, err := generic.BusinessDays(ctx, l.calendar(tx), start, end)
			if err != nil {
				return err
			}
			if businessDays == 0 {
				return fmt.Errorf("%w: %s has no working days", generic.ErrInvalidDateRange, period)
			}

			req := generic.Request{
				ID:            generic.RequestID(uuid.NewString()),
				EmployeeID:    in.EmployeeID,
				StartDate:     start,
				EndDate:       end,
				DaysRequested: span,
				DaysOverride:  in.DaysOverride,
				BusinessDays:  businessDays,
				Status:        generic.RequestPending,
				Reason:        in.Reason,
				RequestedAt:   l.opts.Clock.Now(),
			}
			req.UpdatedAt = req.RequestedAt

			if err := l.checkPolicy(*emp, req, today); err != nil {
				return err
			}
			if err := checkOverlap(ctx, tx, req); err != nil {
				return err
			}
			if err := tx.InsertRequest(ctx, req); err != nil {
				return fmt.Errorf("insert request: %w", err)
			}
			if err := appendAudit(ctx, tx, l.opts.Clock, generic.AuditEntry{
				ActorID:    actor,
				Action:     generic.AuditRequestCreated,
				EmployeeID: in.EmployeeID,
				RequestID:  req.ID,
				Payload: map[string]any{
					"start_date":     start.String(),
					"end_date":       end.String(),
					"days_requested": span,
				},
			}); err != nil {
				return err
			}
			created = req
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Ledger] Created request %s for %s %s (%d days)", created.ID, created.EmployeeID, period, span)
	dispatch(l.opts.Notifier, notificationFor(EventRequestCreated, created, generic.RoleAdmin))
	return &created, nil
}

func (l *Ledger) calendar(tx generic.Store) generic.HolidayCalendar {
	if l.opts.Calendar != nil {
		return l.opts.Calendar
	}
	return tx
}

func (l *Ledger) checkPolicy(emp generic.Employee, req generic.Request, today generic.TimePoint) error {
	if l.opts.EnforceWindow && !IsWithinCurrentWindow(emp.HireDate, req.StartDate, req.EndDate, today) {
		return fmt.Errorf("%w: %s", generic.ErrOutsideEligibilityWindow, req.Period())
	}
	if l.opts.EnforceBalance && emp.Balance.Remaining() < req.EffectiveDays() {
		return &generic.InsufficientBalanceError{
			EmployeeID: emp.ID,
			Available:  emp.Balance.Remaining(),
			Requested:  fmt.Sprint(req.EffectiveDays()),
		}
	}
	return nil
}

// checkOverlap fails with an OverlapError when an approved request of the
// same employee intersects r.
func checkOverlap(ctx context.Context, s generic.RequestStore, r generic.Request) error {
	clash, err := s.FindApprovedOverlapping(ctx, r.EmployeeID, r.Period(), r.ID)
	if err != nil {
		return fmt.Errorf("find overlapping: %w", err)
	}
	if len(clash) == 0 {
		return nil
	}
	ids := make([]generic.RequestID, len(clash))
	for i, c := range clash {
		ids[i] = c.ID
	}
	return &generic.OverlapError{EmployeeID: r.EmployeeID, Period: r.Period(), Conflicting: ids}
}

// =============================================================================
// READ PATHS
// =============================================================================

// ListForEmployee groups the employee's approved and pending requests.
func (l *Ledger) ListForEmployee(ctx context.Context, id generic.EmployeeID) (generic.GroupedRequests, error) {
	if _, err := l.store.GetEmployee(ctx, id); err != nil {
		return generic.GroupedRequests{}, err
	}
	reqs, err := l.store.ListRequestsByEmployee(ctx, id, generic.RequestApproved, generic.RequestPending)
	if err != nil {
		return generic.GroupedRequests{}, err
	}
	grouped := generic.GroupedRequests{Approved: []generic.Request{}, Pending: []generic.Request{}}
	for _, r := range reqs {
		switch r.Status {
		case generic.RequestApproved:
			grouped.Approved = append(grouped.Approved, r)
		case generic.RequestPending:
			grouped.Pending = append(grouped.Pending, r)
		}
	}
	return grouped, nil
}

// ListAllForEmployee returns every request of the employee, any status.
func (l *Ledger) ListAllForEmployee(ctx context.Context, id generic.EmployeeID) ([]generic.Request, error) {
	if _, err := l.store.GetEmployee(ctx, id); err != nil {
		return nil, err
	}
	return l.store.ListRequestsByEmployee(ctx, id)
}

// ListPending returns pending requests of all employees.
func (l *Ledger) ListPending(ctx context.Context) ([]generic.Request, error) {
	return l.store.ListRequestsByStatus(ctx, generic.RequestPending)
}

// Get returns one request.
func (l *Ledger) Get(ctx context.Context, id generic.RequestID) (*generic.Request, error) {
	return l.store.GetRequest(ctx, id)
}

// FindOverlapping returns approved requests intersecting [start, end].
func (l *Ledger) FindOverlapping(ctx context.Context, id generic.EmployeeID, start, end generic.TimePoint, excluding generic.RequestID) ([]generic.Request, error) {
	p := generic.Period{Start: generic.DateOf(start.Time), End: generic.DateOf(end.Time)}
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %s", generic.ErrInvalidDateRange, p)
	}
	return l.store.FindApprovedOverlapping(ctx, id, p, excluding)
}
