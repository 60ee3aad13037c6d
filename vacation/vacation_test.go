package vacation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/generic/store"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	ctx   = context.Background()
	admin = generic.Actor{ID: "admin-1", Role: generic.RoleAdmin}
)

type fixture struct {
	engine *vacation.Engine
	store  *store.Memory
	sent   chan vacation.Notification
}

// newFixture builds an engine on an in-memory store with the clock frozen at
// 2024-06-01 10:00 UTC.
func newFixture(t *testing.T, mutate ...func(*vacation.Options)) *fixture {
	t.Helper()
	f := &fixture{store: store.NewMemory(), sent: make(chan vacation.Notification, 16)}
	opts := vacation.Options{
		Clock: generic.FixedClock{At: time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)},
		Notifier: vacation.NotifierFunc(func(_ context.Context, n vacation.Notification) error {
			select {
			case f.sent <- n:
			default:
			}
			return nil
		}),
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.engine = vacation.NewEngine(f.store, opts)
	return f
}

func (f *fixture) hire(t *testing.T, id generic.EmployeeID, hired generic.TimePoint, total int) {
	t.Helper()
	_, err := f.engine.Employees.Create(ctx, id, string(id), string(id)+"@example.com", hired)
	require.NoError(t, err)
	if total > 0 {
		_, err = f.engine.Balances.SetTotal(ctx, admin, id, total)
		require.NoError(t, err)
	}
}

func (f *fixture) request(t *testing.T, id generic.EmployeeID, start, end generic.TimePoint) *generic.Request {
	t.Helper()
	req, err := f.engine.Lifecycle.Create(ctx, vacation.CreateInput{EmployeeID: id, StartDate: start, EndDate: end})
	require.NoError(t, err)
	return req
}

func (f *fixture) approved(t *testing.T, id generic.EmployeeID, start, end generic.TimePoint) *generic.Request {
	t.Helper()
	req := f.request(t, id, start, end)
	req, err := f.engine.Lifecycle.Approve(ctx, req.ID, admin.ID)
	require.NoError(t, err)
	return req
}

func (f *fixture) assertMirrored(t *testing.T, id generic.EmployeeID) {
	t.Helper()
	emp, err := f.store.GetEmployee(ctx, id)
	require.NoError(t, err)
	rec, err := f.store.GetLedgerRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, emp.Balance.Total, rec.Total, "ledger total")
	assert.Equal(t, emp.Balance.Used, rec.Used, "ledger used")
	assert.Equal(t, emp.Balance.Remaining(), rec.Remaining, "ledger remaining")
}

func ptr[T any](v T) *T { return &v }

// =============================================================================
// REQUEST LEDGER
// =============================================================================

func TestCreate_Scenario(t *testing.T) {
	// GIVEN: Employee hired 2023-01-10, today 2024-06-01
	// WHEN: Request 2024-06-10 .. 2024-06-14
	// THEN: 5 days, pending
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 0)

	req := f.request(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))

	assert.Equal(t, 5, req.DaysRequested)
	assert.Equal(t, 5, req.BusinessDays)
	assert.Equal(t, generic.RequestPending, req.Status)
	assert.NotEmpty(t, req.ID)

	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-10", stored.StartDate.String())

	n := <-f.sent
	assert.Equal(t, vacation.EventRequestCreated, n.Event)
	assert.Equal(t, generic.RoleAdmin, n.RecipientRole)
}

func TestCreate_DaysRequestedIsInclusiveSpan(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 0)

	start := date(2024, time.June, 3)
	for span := 1; span <= 20; span++ {
		end := start.AddDays(span - 1)
		req, err := f.engine.Ledger.Create(ctx, vacation.CreateInput{EmployeeID: "emp-1", StartDate: start, EndDate: end})
		if errors.Is(err, generic.ErrInvalidDateRange) {
			continue // weekend-only range
		}
		require.NoError(t, err)
		assert.Equal(t, generic.DaysBetween(start, end)+1, req.DaysRequested)
		start = end.AddDays(1)
	}
}

func TestCreate_NormalizesTimeOfDay(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 0)

	start := generic.TimePoint{Time: time.Date(2024, time.June, 10, 23, 30, 0, 0, time.UTC)}
	end := generic.TimePoint{Time: time.Date(2024, time.June, 11, 1, 0, 0, 0, time.UTC)}
	req := f.request(t, "emp-1", start, end)

	assert.Equal(t, 2, req.DaysRequested)
	assert.True(t, req.StartDate.Time.Equal(time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)))
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 0)

	cases := []struct {
		name string
		in   vacation.CreateInput
		want error
	}{
		{"end before start", vacation.CreateInput{EmployeeID: "emp-1", StartDate: date(2024, time.June, 14), EndDate: date(2024, time.June, 10)}, generic.ErrInvalidDateRange},
		{"start in past", vacation.CreateInput{EmployeeID: "emp-1", StartDate: date(2024, time.May, 31), EndDate: date(2024, time.June, 4)}, generic.ErrPastDate},
		{"weekend only", vacation.CreateInput{EmployeeID: "emp-1", StartDate: date(2024, time.June, 15), EndDate: date(2024, time.June, 16)}, generic.ErrInvalidDateRange},
		{"unknown employee", vacation.CreateInput{EmployeeID: "ghost", StartDate: date(2024, time.June, 10), EndDate: date(2024, time.June, 14)}, generic.ErrNotFound},
		{"override too large", vacation.CreateInput{EmployeeID: "emp-1", StartDate: date(2024, time.June, 10), EndDate: date(2024, time.June, 14), DaysOverride: ptr(6)}, generic.ErrInvalidAmount},
		{"span over a year", vacation.CreateInput{EmployeeID: "emp-1", StartDate: date(2024, time.June, 10), EndDate: date(2025, time.June, 11)}, generic.ErrInvalidDateRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Ledger.Create(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}

	pending, err := f.engine.Ledger.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "rejected creates persist nothing")
}

func TestCreate_TodayIsAllowed(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 0)

	// 2024-06-01 is a Saturday; the range still holds working days.
	req := f.request(t, "emp-1", date(2024, time.June, 1), date(2024, time.June, 4))
	assert.Equal(t, 4, req.DaysRequested)
	assert.Equal(t, 2, req.BusinessDays)
}

func TestCreate_HolidaysAreNotBusinessDays(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 0)
	for _, h := range generic.MexicanStatutoryHolidays(2024) {
		require.NoError(t, f.store.SaveHoliday(ctx, h))
	}

	// Sep 16 2024 is a Monday holiday.
	req := f.request(t, "emp-1", date(2024, time.September, 16), date(2024, time.September, 20))
	assert.Equal(t, 5, req.DaysRequested)
	assert.Equal(t, 4, req.BusinessDays)

	_, err := f.engine.Ledger.Create(ctx, vacation.CreateInput{
		EmployeeID: "emp-1", StartDate: date(2024, time.September, 14), EndDate: date(2024, time.September, 16),
	})
	require.ErrorIs(t, err, generic.ErrInvalidDateRange)
}

func TestCreate_OverlapWithApproved(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 20)
	first := f.approved(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))

	_, err := f.engine.Ledger.Create(ctx, vacation.CreateInput{
		EmployeeID: "emp-1", StartDate: date(2024, time.June, 14), EndDate: date(2024, time.June, 18),
	})
	require.ErrorIs(t, err, generic.ErrOverlapConflict)

	var oe *generic.OverlapError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, []generic.RequestID{first.ID}, oe.Conflicting)
	assert.Equal(t, "overlap_conflict", generic.Kind(err))

	// Adjacent range is fine
	f.request(t, "emp-1", date(2024, time.June, 17), date(2024, time.June, 18))
}

func TestCreate_PendingDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 0)
	f.request(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))
	f.request(t, "emp-1", date(2024, time.June, 12), date(2024, time.June, 13))
}

func TestCreate_OptionalPolicies(t *testing.T) {
	f := newFixture(t, func(o *vacation.Options) {
		o.EnforceWindow = true
		o.EnforceBalance = true
	})
	// Window 2024-03-01 .. 2024-09-01
	f.hire(t, "emp-1", date(2022, time.March, 1), 3)

	_, err := f.engine.Ledger.Create(ctx, vacation.CreateInput{
		EmployeeID: "emp-1", StartDate: date(2024, time.October, 1), EndDate: date(2024, time.October, 2),
	})
	require.ErrorIs(t, err, generic.ErrOutsideEligibilityWindow)

	_, err = f.engine.Ledger.Create(ctx, vacation.CreateInput{
		EmployeeID: "emp-1", StartDate: date(2024, time.June, 10), EndDate: date(2024, time.June, 14),
	})
	require.ErrorIs(t, err, generic.ErrInsufficientBalance)

	f.request(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 12))
}

func TestListForEmployee_Grouped(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 20)
	approved := f.approved(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))
	pending := f.request(t, "emp-1", date(2024, time.July, 1), date(2024, time.July, 2))
	rejected := f.request(t, "emp-1", date(2024, time.July, 8), date(2024, time.July, 9))
	_, err := f.engine.Lifecycle.Reject(ctx, rejected.ID, admin.ID, "busy")
	require.NoError(t, err)

	grouped, err := f.engine.Ledger.ListForEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, grouped.Approved, 1)
	require.Len(t, grouped.Pending, 1)
	assert.Equal(t, approved.ID, grouped.Approved[0].ID)
	assert.Equal(t, pending.ID, grouped.Pending[0].ID)

	all, err := f.engine.Ledger.ListAllForEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.engine.Ledger.ListForEmployee(ctx, "ghost")
	require.ErrorIs(t, err, generic.ErrNotFound)
}

func TestFindOverlapping(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 20)
	a := f.approved(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))
	f.request(t, "emp-1", date(2024, time.June, 17), date(2024, time.June, 17))

	found, err := f.engine.Ledger.FindOverlapping(ctx, "emp-1", date(2024, time.June, 14), date(2024, time.June, 20), "")
	require.NoError(t, err)
	require.Len(t, found, 1, "pending requests are not conflicts")
	assert.Equal(t, a.ID, found[0].ID)

	found, err = f.engine.Ledger.FindOverlapping(ctx, "emp-1", date(2024, time.June, 14), date(2024, time.June, 20), a.ID)
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = f.engine.Ledger.FindOverlapping(ctx, "emp-1", date(2024, time.June, 20), date(2024, time.June, 14), "")
	require.ErrorIs(t, err, generic.ErrInvalidDateRange)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestNextStatus_Table(t *testing.T) {
	cases := []struct {
		from   generic.RequestStatus
		action vacation.Action
		want   generic.RequestStatus
		ok     bool
	}{
		{generic.RequestPending, vacation.ActionApprove, generic.RequestApproved, true},
		{generic.RequestPending, vacation.ActionReject, generic.RequestRejected, true},
		{generic.RequestPending, vacation.ActionCancel, generic.RequestCancelled, true},
		{generic.RequestApproved, vacation.ActionCancel, generic.RequestCancelled, true},
		{generic.RequestApproved, vacation.ActionApprove, "", false},
		{generic.RequestApproved, vacation.ActionReject, "", false},
		{generic.RequestRejected, vacation.ActionCancel, "", false},
		{generic.RequestCancelled, vacation.ActionApprove, "", false},
	}
	for _, tc := range cases {
		got, ok := vacation.NextStatus(tc.from, tc.action)
		assert.Equal(t, tc.ok, ok, "%s/%s", tc.from, tc.action)
		assert.Equal(t, tc.want, got, "%s/%s", tc.from, tc.action)
	}
}

func TestApprove_ReconcilesBalance(t *testing.T) {
	// GIVEN: Balance {12, 0}
	// WHEN: A 5-day request is approved
	// THEN: {12, 5, 7} in both balance copies
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)

	req := f.approved(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))
	assert.Equal(t, generic.RequestApproved, req.Status)
	require.NotNil(t, req.ProcessedBy)
	assert.Equal(t, admin.ID, *req.ProcessedBy)
	require.NotNil(t, req.ProcessedAt)

	bal, err := f.engine.Balances.Read(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, generic.BalanceView{Total: 12, Used: 5, Remaining: 7, LastUpdate: bal.LastUpdate}, bal)
	f.assertMirrored(t, "emp-1")
}

func TestApprove_NotifiesEmployee(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)
	req := f.approved(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))

	got := map[vacation.NotificationEvent]vacation.Notification{}
	for len(got) < 2 {
		select {
		case n := <-f.sent:
			got[n.Event] = n
		case <-time.After(2 * time.Second):
			t.Fatalf("notifications missing, got %v", got)
		}
	}
	n := got[vacation.EventRequestApproved]
	assert.Equal(t, req.ID, n.RequestID)
	assert.Equal(t, 5, n.DaysRequested)
	assert.Equal(t, generic.RoleEmployee, n.RecipientRole)
	assert.Equal(t, generic.RoleAdmin, got[vacation.EventRequestCreated].RecipientRole)
}

func TestApprove_NotifierFailureDoesNotFail(t *testing.T) {
	f := newFixture(t, func(o *vacation.Options) {
		o.Notifier = vacation.NotifierFunc(func(context.Context, vacation.Notification) error {
			return errors.New("smtp down")
		})
	})
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)

	req := f.approved(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))
	assert.Equal(t, generic.RequestApproved, req.Status)
}

func TestApprove_OverlapLeavesPending(t *testing.T) {
	// GIVEN: Two overlapping pending requests
	// WHEN: Both are approved one after the other
	// THEN: The second fails with OverlapConflict and stays pending
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 20)
	a := f.request(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))
	b := f.request(t, "emp-1", date(2024, time.June, 13), date(2024, time.June, 17))

	_, err := f.engine.Lifecycle.Approve(ctx, a.ID, admin.ID)
	require.NoError(t, err)
	_, err = f.engine.Lifecycle.Approve(ctx, b.ID, admin.ID)
	require.ErrorIs(t, err, generic.ErrOverlapConflict)

	stored, err := f.store.GetRequest(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.RequestPending, stored.Status)
	assert.Nil(t, stored.ProcessedBy)

	bal, err := f.engine.Balances.Read(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 5, bal.Used)
}

func TestApprove_ConcurrentOverlappingOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 30)
	a := f.request(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))
	b := f.request(t, "emp-1", date(2024, time.June, 12), date(2024, time.June, 18))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []generic.RequestID{a.ID, b.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.engine.Lifecycle.Approve(ctx, id, admin.ID)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, generic.ErrOverlapConflict)
		}
	}
	assert.Equal(t, 1, wins)

	grouped, err := f.engine.Ledger.ListForEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, grouped.Approved, 1)
}

func TestApprove_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 20)
	req := f.approved(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))

	_, err := f.engine.Lifecycle.Approve(ctx, req.ID, admin.ID)
	require.ErrorIs(t, err, generic.ErrInvalidTransition)
	_, err = f.engine.Lifecycle.Reject(ctx, req.ID, admin.ID, "late")
	require.ErrorIs(t, err, generic.ErrInvalidTransition)

	var te *generic.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, generic.RequestApproved, te.From)

	_, err = f.engine.Lifecycle.Approve(ctx, "missing", admin.ID)
	require.ErrorIs(t, err, generic.ErrNotFound)
}

func TestReject_RecordsReason(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)
	req, err := f.engine.Lifecycle.Create(ctx, vacation.CreateInput{
		EmployeeID: "emp-1", StartDate: date(2024, time.June, 10), EndDate: date(2024, time.June, 14), Reason: "beach",
	})
	require.NoError(t, err)

	rejected, err := f.engine.Lifecycle.Reject(ctx, req.ID, admin.ID, "quarter close")
	require.NoError(t, err)
	assert.Equal(t, generic.RequestRejected, rejected.Status)
	assert.Equal(t, "quarter close", rejected.Reason)
	require.NotNil(t, rejected.ProcessedBy)

	bal, err := f.engine.Balances.Read(ctx, "emp-1")
	require.NoError(t, err)
	assert.Zero(t, bal.Used)

	_, err = f.engine.Lifecycle.Cancel(ctx, req.ID, generic.Actor{ID: "emp-1", Role: generic.RoleEmployee})
	require.ErrorIs(t, err, generic.ErrInvalidTransition)
}

func TestReject_EmptyReasonKeepsOriginal(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)
	req, err := f.engine.Lifecycle.Create(ctx, vacation.CreateInput{
		EmployeeID: "emp-1", StartDate: date(2024, time.June, 10), EndDate: date(2024, time.June, 14), Reason: "beach",
	})
	require.NoError(t, err)

	rejected, err := f.engine.Lifecycle.Reject(ctx, req.ID, admin.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "beach", rejected.Reason)
}

func TestCancel_ApprovedFreesDays(t *testing.T) {
	// GIVEN: {12, 5, 7} after an approval
	// WHEN: The owner cancels
	// THEN: {12, 0, 12}
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)
	req := f.approved(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))

	cancelled, err := f.engine.Lifecycle.Cancel(ctx, req.ID, generic.Actor{ID: "emp-1", Role: generic.RoleEmployee})
	require.NoError(t, err)
	assert.Equal(t, generic.RequestCancelled, cancelled.Status)

	bal, err := f.engine.Balances.Read(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Used)
	assert.Equal(t, 12, bal.Remaining)
	f.assertMirrored(t, "emp-1")

	// The freed range can be approved again
	f.approved(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))
}

func TestCancel_Authorization(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)
	f.hire(t, "emp-2", date(2023, time.January, 10), 12)
	req := f.request(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))

	_, err := f.engine.Lifecycle.Cancel(ctx, req.ID, generic.Actor{ID: "emp-2", Role: generic.RoleEmployee})
	require.ErrorIs(t, err, generic.ErrForbidden)

	cancelled, err := f.engine.Lifecycle.Cancel(ctx, req.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, generic.RequestCancelled, cancelled.Status)
}

func TestLifecycle_AuditTrail(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)
	req := f.approved(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))
	_, err := f.engine.Lifecycle.Cancel(ctx, req.ID, admin)
	require.NoError(t, err)

	entries, err := f.store.QueryAudit(ctx, "emp-1", 0)
	require.NoError(t, err)
	var actions []generic.AuditAction
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []generic.AuditAction{
		generic.AuditRequestCancelled,
		generic.AuditRequestApproved,
		generic.AuditRequestCreated,
		generic.AuditBalanceSetTotal,
	}, actions)
}

func TestCreate_AuditRecordsActor(t *testing.T) {
	// GIVEN: One request filed by the employee and one filed by HR for them
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)
	own := f.request(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 11))
	filed, err := f.engine.Lifecycle.Create(ctx, vacation.CreateInput{
		EmployeeID: "emp-1",
		ActorID:    admin.ID,
		StartDate:  date(2024, time.June, 17),
		EndDate:    date(2024, time.June, 18),
	})
	require.NoError(t, err)

	// WHEN: The audit log is read
	entries, err := f.store.QueryAudit(ctx, "emp-1", 0)
	require.NoError(t, err)

	// THEN: Each created entry names who filed it, not who it is for
	actors := map[generic.RequestID]generic.EmployeeID{}
	for _, e := range entries {
		if e.Action == generic.AuditRequestCreated {
			assert.Equal(t, generic.EmployeeID("emp-1"), e.EmployeeID)
			actors[e.RequestID] = e.ActorID
		}
	}
	assert.Equal(t, map[generic.RequestID]generic.EmployeeID{
		own.ID:   "emp-1",
		filed.ID: admin.ID,
	}, actors)
}

// =============================================================================
// BALANCES
// =============================================================================

func TestBalances_GrantAndConsume(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 0)

	bal, err := f.engine.Balances.Grant(ctx, admin, "emp-1", decimal.RequireFromString("12.7"))
	require.NoError(t, err)
	assert.Equal(t, 12, bal.Total, "fractional days are floored")

	bal, err = f.engine.Balances.Consume(ctx, admin, "emp-1", decimal.NewFromInt(4))
	require.NoError(t, err)
	assert.Equal(t, generic.BalanceView{Total: 12, Used: 4, Remaining: 8, LastUpdate: bal.LastUpdate}, bal)
	f.assertMirrored(t, "emp-1")

	_, err = f.engine.Balances.Consume(ctx, admin, "emp-1", decimal.NewFromInt(9))
	require.ErrorIs(t, err, generic.ErrInsufficientBalance)

	for _, bad := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-2)} {
		_, err = f.engine.Balances.Grant(ctx, admin, "emp-1", bad)
		require.ErrorIs(t, err, generic.ErrInvalidAmount)
		_, err = f.engine.Balances.Consume(ctx, admin, "emp-1", bad)
		require.ErrorIs(t, err, generic.ErrInvalidAmount)
	}

	_, err = f.engine.Balances.Grant(ctx, admin, "ghost", decimal.NewFromInt(1))
	require.ErrorIs(t, err, generic.ErrNotFound)
}

func TestBalances_SetTotalRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)
	_, err := f.engine.Balances.Consume(ctx, admin, "emp-1", decimal.NewFromInt(5))
	require.NoError(t, err)

	for _, n := range []int{5, 9, 30} {
		_, err := f.engine.Balances.SetTotal(ctx, admin, "emp-1", n)
		require.NoError(t, err)
		bal, err := f.engine.Balances.Read(ctx, "emp-1")
		require.NoError(t, err)
		assert.Equal(t, n, bal.Total)
	}

	_, err = f.engine.Balances.SetTotal(ctx, admin, "emp-1", 4)
	require.ErrorIs(t, err, generic.ErrBelowUsedFloor)
	bal, err := f.engine.Balances.Read(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 30, bal.Total, "failed setTotal leaves total unchanged")

	_, err = f.engine.Balances.SetTotal(ctx, admin, "emp-1", -1)
	require.ErrorIs(t, err, generic.ErrInvalidAmount)
}

func TestBalances_Reset(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)
	_, err := f.engine.Balances.Consume(ctx, admin, "emp-1", decimal.NewFromInt(5))
	require.NoError(t, err)

	bal, err := f.engine.Balances.Reset(ctx, admin, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Total)
	assert.Equal(t, 0, bal.Used)
	f.assertMirrored(t, "emp-1")
}

func TestBalances_UsedNeverExceedsTotal(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 0)
	ops := []func() error{
		func() error { _, err := f.engine.Balances.Grant(ctx, admin, "emp-1", decimal.NewFromInt(3)); return err },
		func() error { _, err := f.engine.Balances.Consume(ctx, admin, "emp-1", decimal.NewFromInt(2)); return err },
		func() error { _, err := f.engine.Balances.Consume(ctx, admin, "emp-1", decimal.NewFromInt(5)); return err },
		func() error { _, err := f.engine.Reconciler.Recompute(ctx, "emp-1"); return err },
		func() error { _, err := f.engine.Balances.SetTotal(ctx, admin, "emp-1", 1); return err },
	}
	for i := 0; i < 40; i++ {
		_ = ops[(i*7)%len(ops)]()
		emp, err := f.store.GetEmployee(ctx, "emp-1")
		require.NoError(t, err)
		require.LessOrEqual(t, emp.Balance.Used, emp.Balance.Total)
	}
}

// =============================================================================
// RECONCILER
// =============================================================================

func TestRecompute_CapClamp(t *testing.T) {
	// GIVEN: 15 approved days, then total reduced to 10
	// WHEN: recompute
	// THEN: used 10, remaining 0
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 15)
	f.approved(t, "emp-1", date(2024, time.June, 3), date(2024, time.June, 12))
	f.approved(t, "emp-1", date(2024, time.June, 17), date(2024, time.June, 21))

	_, err := f.engine.Balances.Reset(ctx, admin, "emp-1")
	require.NoError(t, err)
	_, err = f.engine.Balances.SetTotal(ctx, admin, "emp-1", 10)
	require.NoError(t, err)

	bal, err := f.engine.Reconciler.Recompute(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 10, bal.Total)
	assert.Equal(t, 10, bal.Used)
	assert.Equal(t, 0, bal.Remaining)
	f.assertMirrored(t, "emp-1")
}

func TestRecompute_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)
	f.approved(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))

	first, err := f.engine.Reconciler.Recompute(ctx, "emp-1")
	require.NoError(t, err)
	second, err := f.engine.Reconciler.Recompute(ctx, "emp-1")
	require.NoError(t, err)

	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.Used, second.Used)
	assert.Equal(t, first.Remaining, second.Remaining)
}

func TestRecompute_UsesOverride(t *testing.T) {
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)
	req, err := f.engine.Lifecycle.Create(ctx, vacation.CreateInput{
		EmployeeID: "emp-1", StartDate: date(2024, time.June, 10), EndDate: date(2024, time.June, 16), DaysOverride: ptr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, 7, req.DaysRequested)

	_, err = f.engine.Lifecycle.Approve(ctx, req.ID, admin.ID)
	require.NoError(t, err)

	bal, err := f.engine.Balances.Read(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 5, bal.Used)
}

func TestRecomputeAll_RepairsAndReports(t *testing.T) {
	// GIVEN: A ledger record that drifted from the embedded balance
	// WHEN: RecomputeAll
	// THEN: Both copies agree and the run is recorded
	f := newFixture(t)
	f.hire(t, "emp-1", date(2023, time.January, 10), 12)
	f.hire(t, "emp-2", date(2021, time.May, 2), 16)
	f.approved(t, "emp-1", date(2024, time.June, 10), date(2024, time.June, 14))
	require.NoError(t, f.store.UpsertLedgerRecord(ctx, generic.LedgerRecord{EmployeeID: "emp-1", Total: 99, Used: 1, Remaining: 98}))

	report, err := f.engine.Reconciler.RecomputeAll(ctx, "manual")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Run.Processed)
	assert.Equal(t, 0, report.Run.Failed)
	require.Len(t, report.Results, 2)
	f.assertMirrored(t, "emp-1")
	f.assertMirrored(t, "emp-2")

	runs, err := f.engine.Reconciler.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "manual", runs[0].Trigger)
}

// =============================================================================
// GRANTS AND EMPLOYEES
// =============================================================================

func TestGranter_GrantsCompletedYearOnce(t *testing.T) {
	// GIVEN: Hired 2022-03-01, today 2024-06-01 (2 completed years)
	// THEN: 14 days granted once
	f := newFixture(t)
	f.hire(t, "emp-1", date(2022, time.March, 1), 0)
	f.hire(t, "emp-2", generic.TimePoint{}, 0)
	f.hire(t, "emp-3", date(2024, time.January, 15), 0)

	results, err := f.engine.Granter.GrantAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, generic.EmployeeID("emp-1"), results[0].EmployeeID)
	assert.Equal(t, 2, results[0].ServiceYears)
	assert.Equal(t, 14, results[0].DaysGranted)

	bal, err := f.engine.Balances.Read(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 14, bal.Total)
	f.assertMirrored(t, "emp-1")

	again, err := f.engine.Granter.GrantFor(ctx, "emp-1")
	require.NoError(t, err)
	assert.Zero(t, again.DaysGranted)
}

func TestEmployees_CreateAndHireDate(t *testing.T) {
	f := newFixture(t)
	emp, err := f.engine.Employees.Create(ctx, "emp-1", "Ana", "ana@example.com", generic.TimePoint{})
	require.NoError(t, err)
	assert.False(t, emp.HasHireDate())
	assert.Equal(t, generic.BalanceView{LastUpdate: emp.Balance.LastUpdate}, emp.Balance.View())

	_, err = f.engine.Employees.Create(ctx, "emp-1", "Ana", "ana@example.com", generic.TimePoint{})
	require.ErrorIs(t, err, generic.ErrAlreadyExists)

	_, err = f.engine.Employees.Create(ctx, "  ", "Blank", "", generic.TimePoint{})
	require.ErrorIs(t, err, generic.ErrInvalidInput)
	assert.Equal(t, "invalid_input", generic.Kind(err))

	updated, err := f.engine.Employees.SetHireDate(ctx, "emp-1", date(2020, time.April, 1))
	require.NoError(t, err)
	assert.Equal(t, "2020-04-01", updated.HireDate.String())

	summary, err := f.engine.Balances.Summary(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.YearsOfService)

	_, err = f.engine.Employees.SetHireDate(ctx, "ghost", date(2020, time.April, 1))
	require.ErrorIs(t, err, generic.ErrNotFound)
}
