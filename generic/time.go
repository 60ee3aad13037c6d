package generic

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// TIME POINT - A calendar day at midnight UTC
// =============================================================================

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

// TimePoint is a calendar day. The wrapped time is always midnight UTC, so
// comparisons never see a time-of-day component or a daylight shift.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) TimePoint {
	u := t.UTC()
	return NewTimePoint(u.Year(), u.Month(), u.Day())
}

// ParseDate accepts "2006-01-02" or a full RFC3339 timestamp.
func ParseDate(s string) (TimePoint, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

func Today() TimePoint { return TodayFrom(SystemClock{}) }

func TodayFrom(c Clock) TimePoint { return DateOf(c.Now()) }

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	u := tp.Time.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }
func (tp TimePoint) AddMonths(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, n, 0)} }
func (tp TimePoint) AddYears(n int) TimePoint  { return TimePoint{Time: tp.normalize().AddDate(n, 0, 0)} }

// Properties
func (tp TimePoint) Year() int             { return tp.normalize().Year() }
func (tp TimePoint) Month() time.Month     { return tp.normalize().Month() }
func (tp TimePoint) Day() int              { return tp.normalize().Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.normalize().Weekday() }
func (tp TimePoint) IsWeekend() bool {
	wd := tp.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
func (tp TimePoint) IsZero() bool { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	if tp.IsZero() {
		return ""
	}
	return tp.normalize().Format(DateLayout)
}

func (tp TimePoint) MarshalJSON() ([]byte, error) {
	if tp.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(tp.String())
}

func (tp *TimePoint) UnmarshalJSON(b []byte) error {
	var s string
	if string(b) == "null" {
		*tp = TimePoint{}
		return nil
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*tp = TimePoint{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// DaysBetween is the whole number of calendar days from `from` to `to`.
func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// HOLIDAY CALENDAR - Non-working days owned by an external source
// =============================================================================

// Holiday is a single non-working date.
type Holiday struct {
	Date TimePoint `json:"date"`
	Name string    `json:"name"`
}

// HolidayCalendar provides the non-working dates in a range, sorted by date.
type HolidayCalendar interface {
	HolidaysBetween(ctx context.Context, from, to TimePoint) ([]Holiday, error)
}

// NoHolidays is a calendar for when holiday data is unavailable.
type NoHolidays struct{}

func (NoHolidays) HolidaysBetween(context.Context, TimePoint, TimePoint) ([]Holiday, error) {
	return nil, nil
}

// IsBusinessDay reports whether day is neither a weekend nor one of the
// given holidays. holidays must be sorted by date.
func IsBusinessDay(day TimePoint, holidays []Holiday) bool {
	if day.IsWeekend() {
		return false
	}
	i := sort.Search(len(holidays), func(i int) bool {
		return holidays[i].Date.AfterOrEqual(day)
	})
	return i >= len(holidays) || !holidays[i].Date.Equal(day)
}

// BusinessDays counts the working days in [from, to].
func BusinessDays(ctx context.Context, cal HolidayCalendar, from, to TimePoint) (int, error) {
	if to.Before(from) {
		return 0, nil
	}
	if cal == nil {
		cal = NoHolidays{}
	}
	holidays, err := cal.HolidaysBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("load holidays: %w", err)
	}
	sort.Slice(holidays, func(i, j int) bool { return holidays[i].Date.Before(holidays[j].Date) })

	count := 0
	for _, day := range (Period{Start: from, End: to}).Days() {
		if IsBusinessDay(day, holidays) {
			count++
		}
	}
	return count, nil
}

// =============================================================================
// STATUTORY HOLIDAYS (Ley Federal del Trabajo, art. 74)
// =============================================================================

// MexicanStatutoryHolidays returns the mandatory rest days for a year.
func MexicanStatutoryHolidays(year int) []Holiday {
	holidays := []Holiday{
		{Date: NewTimePoint(year, time.January, 1), Name: "Año Nuevo"},
		{Date: nthWeekday(year, time.February, time.Monday, 1), Name: "Día de la Constitución"},
		{Date: nthWeekday(year, time.March, time.Monday, 3), Name: "Natalicio de Benito Juárez"},
		{Date: NewTimePoint(year, time.May, 1), Name: "Día del Trabajo"},
		{Date: NewTimePoint(year, time.September, 16), Name: "Día de la Independencia"},
		{Date: nthWeekday(year, time.November, time.Monday, 3), Name: "Día de la Revolución"},
		{Date: NewTimePoint(year, time.December, 25), Name: "Navidad"},
	}
	if year >= 2024 && (year-2024)%6 == 0 {
		holidays = append(holidays, Holiday{
			Date: NewTimePoint(year, time.October, 1),
			Name: "Transmisión del Poder Ejecutivo Federal",
		})
	}
	sort.Slice(holidays, func(i, j int) bool { return holidays[i].Date.Before(holidays[j].Date) })
	return holidays
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) TimePoint {
	first := NewTimePoint(year, month, 1)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDays(offset + 7*(n-1))
}
