/*
Package vacation implements the LFT vacation entitlement and balance engine.

PURPOSE:
  Computes how many vacation days an employee is owed by tenure, tracks the
  anniversary eligibility window, keeps the embedded balance and the balance
  ledger in step with approved requests, and drives the request lifecycle.

COMPONENTS:
  entitlement.go: Pure tenure and window arithmetic (no I/O)
  ledger.go:      Request creation, grouping, overlap queries
  balance.go:     Grant / consume / set-total / reset on the dual balance
  reconciler.go:  Recompute used days from approved requests
  lifecycle.go:   pending -> approved | rejected | cancelled
  grants.go:      Anniversary grants for newly completed service years
  notify.go:      Fire-and-forget notification boundary

SEE ALSO:
  - generic/: Shared model, store interfaces, error taxonomy
*/
package vacation

import (
	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// ENTITLEMENT CALCULATOR
// =============================================================================

// WindowMonths is how long after an anniversary that year's days may be used.
const WindowMonths = 6

// YearsOfService returns completed years between hire and on. It is 0 when
// hire is unknown or on falls before it.
func YearsOfService(hire, on generic.TimePoint) int {
	if hire.IsZero() || on.Before(hire) {
		return 0
	}
	years := on.Year() - hire.Year()
	if on.Month() < hire.Month() || (on.Month() == hire.Month() && on.Day() < hire.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// EntitlementDaysForYear is the LFT art. 76 scale. Years 6-9 add two days
// each and year 10 stays at 28, closing the block; from year 11 two more
// days per started five-year block.
//
//	0->0, 1->12, 2->14, 3->16, 4->18, 5->20, 6->22, 9->28, 10->28, 11->32, 16->34
func EntitlementDaysForYear(years int) int {
	switch {
	case years <= 0:
		return 0
	case years <= 5:
		return 12 + (years-1)*2
	case years <= 10:
		return 20 + (min(years, 9)-5)*2
	default:
		return 30 + ((years-11)/5+1)*2
	}
}

// CurrentEntitlementDays is the entitlement of the service year now accruing.
func CurrentEntitlementDays(hire, on generic.TimePoint) int {
	return EntitlementDaysForYear(YearsOfService(hire, on) + 1)
}

// CurrentAnniversaryWindow returns the six months following the current or
// most recent anniversary. ok is false when hire is unknown or on is before
// hire. A Feb 29 hire date rolls to Mar 1 in non-leap years.
func CurrentAnniversaryWindow(hire, on generic.TimePoint) (window generic.Period, ok bool) {
	if hire.IsZero() || on.Before(hire) {
		return generic.Period{}, false
	}
	start := hire.AddYears(on.Year() - hire.Year())
	if on.Before(start) {
		start = hire.AddYears(on.Year() - hire.Year() - 1)
	}
	return generic.Period{Start: start, End: start.AddMonths(WindowMonths)}, true
}

// IsWithinCurrentWindow reports whether both dates fall inside the window
// computed for on, bounds included.
func IsWithinCurrentWindow(hire, startDate, endDate, on generic.TimePoint) bool {
	window, ok := CurrentAnniversaryWindow(hire, on)
	if !ok {
		return false
	}
	return window.Contains(startDate) && window.Contains(endDate)
}

// =============================================================================
// SUMMARY - Read model for balance displays
// =============================================================================

// Summary combines a balance with the tenure figures shown next to it.
type Summary struct {
	EmployeeID         generic.EmployeeID  `json:"employee_id"`
	Balance            generic.BalanceView `json:"balance"`
	HireDate           generic.TimePoint   `json:"hire_date"`
	YearsOfService     int                 `json:"years_of_service"`
	CurrentEntitlement int                 `json:"current_entitlement"`
	Window             *generic.Period     `json:"window,omitempty"`
}

// Summarize builds the Summary of e as of on.
func Summarize(e generic.Employee, on generic.TimePoint) Summary {
	s := Summary{
		EmployeeID: e.ID,
		Balance:    e.Balance.View(),
		HireDate:   e.HireDate,
	}
	if !e.HasHireDate() {
		return s
	}
	s.YearsOfService = YearsOfService(e.HireDate, on)
	s.CurrentEntitlement = CurrentEntitlementDays(e.HireDate, on)
	if w, ok := CurrentAnniversaryWindow(e.HireDate, on); ok {
		s.Window = &w
	}
	return s
}
