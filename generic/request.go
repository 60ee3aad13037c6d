package generic

import "time"

// =============================================================================
// REQUEST - A vacation request for a closed range of calendar days
// =============================================================================

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// ParseRequestStatus returns false for unknown values.
func ParseRequestStatus(s string) (RequestStatus, bool) {
	switch st := RequestStatus(s); st {
	case RequestPending, RequestApproved, RequestRejected, RequestCancelled:
		return st, true
	}
	return "", false
}

// Request is a vacation request. StartDate and EndDate are calendar days;
// DaysRequested is fixed when the dates are set and never recomputed on a
// status change.
type Request struct {
	ID            RequestID  `json:"id"`
	EmployeeID    EmployeeID `json:"employee_id"`
	StartDate     TimePoint  `json:"start_date"`
	EndDate       TimePoint  `json:"end_date"`
	DaysRequested int        `json:"days_requested"`

	// DaysOverride replaces the calendar span when counting used days.
	DaysOverride *int `json:"days_override,omitempty"`

	// BusinessDays is informational: working days inside the range.
	BusinessDays int `json:"business_days"`

	Status      RequestStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	ProcessedBy *EmployeeID   `json:"processed_by,omitempty"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	// Version is the optimistic-lock token; every status write bumps it.
	Version int64 `json:"-"`
}

// Period is the request's inclusive date range.
func (r Request) Period() Period {
	return Period{Start: r.StartDate, End: r.EndDate}
}

// EffectiveDays is what an approved request counts against the balance:
// the override if present, else DaysRequested, else the calendar span.
func (r Request) EffectiveDays() int {
	if r.DaysOverride != nil {
		return *r.DaysOverride
	}
	if r.DaysRequested > 0 {
		return r.DaysRequested
	}
	return r.Period().Len()
}

// GroupedRequests is the per-employee view of live requests.
type GroupedRequests struct {
	Approved []Request `json:"approved"`
	Pending  []Request `json:"pending"`
}
