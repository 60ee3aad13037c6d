package vacation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

func date(year int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(year, month, day)
}

// =============================================================================
// ENTITLEMENT SCALE
// =============================================================================

func TestEntitlementDaysForYear_Table(t *testing.T) {
	cases := map[int]int{
		0: 0, 1: 12, 2: 14, 3: 16, 4: 18, 5: 20,
		6: 22, 7: 24, 8: 26, 9: 28, 10: 28,
		11: 32, 15: 32, 16: 34, 21: 36,
	}
	for years, want := range cases {
		assert.Equal(t, want, vacation.EntitlementDaysForYear(years), "years=%d", years)
	}
}

func TestEntitlementDaysForYear_NonDecreasing(t *testing.T) {
	prev := vacation.EntitlementDaysForYear(0)
	for years := 1; years <= 60; years++ {
		cur := vacation.EntitlementDaysForYear(years)
		require.GreaterOrEqual(t, cur, prev, "years=%d", years)
		prev = cur
	}
}

func TestCurrentEntitlementDays_TenthYear(t *testing.T) {
	// GIVEN: Hired 2015-03-01, nine completed years on 2024-06-01
	// THEN: The accruing tenth year is worth 28 days, not 30
	assert.Equal(t, 28, vacation.CurrentEntitlementDays(date(2015, time.March, 1), date(2024, time.June, 1)))
}

func TestEntitlementDaysForYear_NegativeIsZero(t *testing.T) {
	assert.Equal(t, 0, vacation.EntitlementDaysForYear(-3))
}

// =============================================================================
// YEARS OF SERVICE
// =============================================================================

func TestYearsOfService(t *testing.T) {
	hire := date(2020, time.June, 15)

	assert.Equal(t, 3, vacation.YearsOfService(hire, date(2024, time.June, 14)), "day before anniversary")
	assert.Equal(t, 4, vacation.YearsOfService(hire, date(2024, time.June, 15)), "on anniversary")
	assert.Equal(t, 0, vacation.YearsOfService(hire, date(2020, time.December, 31)))
	assert.Equal(t, 0, vacation.YearsOfService(hire, date(2019, time.January, 1)), "before hire")
	assert.Equal(t, 0, vacation.YearsOfService(generic.TimePoint{}, date(2024, time.January, 1)), "unknown hire")
}

func TestCurrentEntitlementDays(t *testing.T) {
	// GIVEN: Hired 2023-01-10, one completed year on 2024-06-01
	// THEN: The accruing year is the second, worth 14 days
	assert.Equal(t, 14, vacation.CurrentEntitlementDays(date(2023, time.January, 10), date(2024, time.June, 1)))
	assert.Equal(t, 12, vacation.CurrentEntitlementDays(generic.TimePoint{}, date(2024, time.June, 1)))
}

// =============================================================================
// ANNIVERSARY WINDOW
// =============================================================================

func TestCurrentAnniversaryWindow_AfterAnniversary(t *testing.T) {
	// GIVEN: Hire date 2022-03-01, today 2024-03-15
	// THEN: Window is 2024-03-01 .. 2024-09-01
	hire := date(2022, time.March, 1)
	on := date(2024, time.March, 15)

	w, ok := vacation.CurrentAnniversaryWindow(hire, on)
	require.True(t, ok)
	assert.Equal(t, "2024-03-01", w.Start.String())
	assert.Equal(t, "2024-09-01", w.End.String())

	assert.True(t, vacation.IsWithinCurrentWindow(hire, date(2024, time.August, 1), date(2024, time.August, 5), on))
	assert.False(t, vacation.IsWithinCurrentWindow(hire, date(2024, time.October, 1), date(2024, time.October, 3), on))
}

func TestCurrentAnniversaryWindow_BeforeAnniversary(t *testing.T) {
	w, ok := vacation.CurrentAnniversaryWindow(date(2022, time.March, 1), date(2024, time.February, 10))
	require.True(t, ok)
	assert.Equal(t, "2023-03-01", w.Start.String())
	assert.Equal(t, "2023-09-01", w.End.String())
}

func TestCurrentAnniversaryWindow_BoundsInclusive(t *testing.T) {
	hire := date(2022, time.March, 1)
	on := date(2024, time.March, 15)
	assert.True(t, vacation.IsWithinCurrentWindow(hire, date(2024, time.March, 1), date(2024, time.September, 1), on))
	assert.False(t, vacation.IsWithinCurrentWindow(hire, date(2024, time.February, 29), date(2024, time.March, 5), on))
}

func TestCurrentAnniversaryWindow_LeapDayHire(t *testing.T) {
	// GIVEN: Hired on Feb 29
	// THEN: In a non-leap year the anniversary rolls to Mar 1
	w, ok := vacation.CurrentAnniversaryWindow(date(2020, time.February, 29), date(2023, time.March, 5))
	require.True(t, ok)
	assert.Equal(t, "2023-03-01", w.Start.String())
}

func TestCurrentAnniversaryWindow_UnknownHire(t *testing.T) {
	_, ok := vacation.CurrentAnniversaryWindow(generic.TimePoint{}, date(2024, time.March, 15))
	assert.False(t, ok)
	assert.False(t, vacation.IsWithinCurrentWindow(generic.TimePoint{}, date(2024, time.March, 16), date(2024, time.March, 17), date(2024, time.March, 15)))
}

func TestSummarize(t *testing.T) {
	emp := generic.Employee{
		ID:       "emp-1",
		HireDate: date(2022, time.March, 1),
		Balance:  generic.Balance{Total: 14, Used: 4},
	}
	s := vacation.Summarize(emp, date(2024, time.March, 15))

	assert.Equal(t, 2, s.YearsOfService)
	assert.Equal(t, 16, s.CurrentEntitlement)
	assert.Equal(t, 10, s.Balance.Remaining)
	require.NotNil(t, s.Window)
	assert.Equal(t, "2024-03-01", s.Window.Start.String())

	noHire := vacation.Summarize(generic.Employee{ID: "emp-2"}, date(2024, time.March, 15))
	assert.Nil(t, noHire.Window)
	assert.Zero(t, noHire.CurrentEntitlement)
}
