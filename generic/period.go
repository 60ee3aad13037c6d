package generic

// =============================================================================
// PERIOD - An inclusive range of calendar days
// =============================================================================

// Period is the closed interval [Start, End] of calendar days.
//
// Examples:
//   - A vacation request: 2024-06-10 .. 2024-06-14 (5 days)
//   - An eligibility window: anniversary .. anniversary + 6 months
type Period struct {
	Start TimePoint `json:"start"`
	End   TimePoint `json:"end"`
}

// MaxPeriodDays bounds request spans and date-range queries.
const MaxPeriodDays = 366

// Valid reports whether End is not before Start.
func (p Period) Valid() bool {
	return !p.End.Before(p.Start)
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Covers returns true if other lies entirely inside p.
func (p Period) Covers(other Period) bool {
	return p.Contains(other.Start) && p.Contains(other.End)
}

// Overlaps returns true if the two inclusive intervals share at least one day.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// Len is the inclusive day count. An inverted period has length 0.
func (p Period) Len() int {
	if !p.Valid() {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// WithinMaxSpan reports whether the period covers at most MaxPeriodDays.
func (p Period) WithinMaxSpan() bool {
	return p.Len() <= MaxPeriodDays
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
