package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/generic/store"
)

func seed(t *testing.T, m *store.Memory) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.CreateEmployee(ctx, generic.Employee{ID: "emp-1", Name: "Ana"}))
	for _, r := range []generic.Request{
		{ID: "a", StartDate: generic.NewTimePoint(2024, time.June, 10), EndDate: generic.NewTimePoint(2024, time.June, 14)},
		{ID: "b", StartDate: generic.NewTimePoint(2024, time.June, 14), EndDate: generic.NewTimePoint(2024, time.June, 18)},
	} {
		r.EmployeeID = "emp-1"
		r.Status = generic.RequestPending
		r.DaysRequested = r.Period().Len()
		require.NoError(t, m.InsertRequest(ctx, r))
	}
}

func approve(ctx context.Context, s generic.Store, id generic.RequestID) error {
	r, err := s.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	r.Status = generic.RequestApproved
	return s.UpdateRequestStatus(ctx, *r, generic.RequestPending)
}

func TestMemory_ApprovalRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m)

	require.NoError(t, approve(ctx, m, "a"))

	// WHEN: b shares Jun 14 with approved a
	err := approve(ctx, m, "b")

	// THEN: The store refuses and names a
	var overlap *generic.OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, []generic.RequestID{"a"}, overlap.Conflicting)

	b, err := m.GetRequest(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, generic.RequestPending, b.Status)
	assert.Equal(t, int64(0), b.Version)
}

func TestMemory_StaleStatusIsConflict(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m)

	stale, err := m.GetRequest(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, approve(ctx, m, "a"))

	stale.Status = generic.RequestRejected
	err = m.UpdateRequestStatus(ctx, *stale, generic.RequestPending)
	assert.ErrorIs(t, err, generic.ErrConcurrencyConflict)
}

func TestMemory_UpdateBalanceChecksVersion(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m)

	require.NoError(t, m.UpdateBalance(ctx, "emp-1", generic.Balance{Total: 12}))
	emp, err := m.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), emp.Balance.Version)

	// GIVEN: A write based on version 0
	err = m.UpdateBalance(ctx, "emp-1", generic.Balance{Total: 20})
	assert.ErrorIs(t, err, generic.ErrConcurrencyConflict)

	err = m.UpdateBalance(ctx, "missing", generic.Balance{})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestMemory_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m)
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(tx generic.Store) error {
		require.NoError(t, approve(ctx, tx, "a"))
		require.NoError(t, tx.SaveHoliday(ctx, generic.Holiday{Date: generic.NewTimePoint(2024, time.June, 12), Name: "x"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := m.GetRequest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, generic.RequestPending, a.Status)

	holidays, err := m.HolidaysBetween(ctx, generic.NewTimePoint(2024, time.January, 1), generic.NewTimePoint(2024, time.December, 31))
	require.NoError(t, err)
	assert.Empty(t, holidays)
}

func TestMemory_ListRequestsByEmployeeFiltersStatus(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	seed(t, m)
	require.NoError(t, approve(ctx, m, "a"))

	approved, err := m.ListRequestsByEmployee(ctx, "emp-1", generic.RequestApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, generic.RequestID("a"), approved[0].ID)

	all, err := m.ListRequestsByEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
