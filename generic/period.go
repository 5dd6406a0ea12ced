package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Inclusive pay period
// =============================================================================

// MaxPeriodDays is the longest period the external timesheet format accepts.
const MaxPeriodDays = 31

// Period is an inclusive [Start, End] range of days.
//
// Examples:
//   - Weekly pay period: Mon 2025-03-03 - Sun 2025-03-09 (7 days)
//   - Monthly pay period: 2025-03-01 - 2025-03-31 (31 days)
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// NewPeriod builds a period and rejects anything outside 1..MaxPeriodDays days.
func NewPeriod(start, end Date) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: missing start or end", ErrInvalidPeriod)
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidPeriod, p.End, p.Start)
	}
	if n := p.DayCount(); n > MaxPeriodDays {
		return fmt.Errorf("%w: %d days exceeds %d", ErrInvalidPeriod, n, MaxPeriodDays)
	}
	return nil
}

// DayCount is End - Start + 1.
func (p Period) DayCount() int {
	return DaysBetween(p.Start, p.End) + 1
}

// DayIndex returns the zero-based offset of d, and false when d is outside the period.
func (p Period) DayIndex(d Date) (int, bool) {
	if d.IsZero() {
		return 0, false
	}
	idx := DaysBetween(p.Start, d)
	if idx < 0 || idx >= p.DayCount() {
		return idx, false
	}
	return idx, true
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	_, ok := p.DayIndex(d)
	return ok
}

// Days returns all days in the period.
func (p Period) Days() []Date {
	days := make([]Date, 0, p.DayCount())
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// PAY CALENDAR - Determines which period a date falls into
// =============================================================================

// PayFrequency is how often a payroll calendar closes a period.
type PayFrequency string

const (
	FrequencyWeekly       PayFrequency = "WEEKLY"
	FrequencyFortnightly  PayFrequency = "FORTNIGHTLY"
	FrequencyFourWeekly   PayFrequency = "FOURWEEKLY"
	FrequencyTwiceMonthly PayFrequency = "TWICEMONTHLY"
	FrequencyMonthly      PayFrequency = "MONTHLY"
	FrequencyQuarterly    PayFrequency = "QUARTERLY"
)

// PeriodsPerYear is used to annualise per-period figures. Unknown frequencies return 0.
func (f PayFrequency) PeriodsPerYear() int {
	switch f {
	case FrequencyWeekly:
		return 52
	case FrequencyFortnightly:
		return 26
	case FrequencyFourWeekly:
		return 13
	case FrequencyTwiceMonthly:
		return 24
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	default:
		return 0
	}
}

// Calendar is an external payroll calendar snapshot.
type Calendar struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Frequency PayFrequency `json:"frequency"`
	// Anchor is the start date of any one period of the calendar.
	Anchor Date `json:"anchor"`
}

// PeriodFor returns the calendar period containing date.
// Quarterly calendars exceed MaxPeriodDays; callers get the period and Validate fails.
func (c Calendar) PeriodFor(date Date) Period {
	switch c.Frequency {
	case FrequencyWeekly:
		return c.fixedLength(date, 7)
	case FrequencyFortnightly:
		return c.fixedLength(date, 14)
	case FrequencyFourWeekly:
		return c.fixedLength(date, 28)
	case FrequencyTwiceMonthly:
		if date.Day() <= 15 {
			return Period{Start: NewDate(date.Year(), date.Month(), 1), End: NewDate(date.Year(), date.Month(), 15)}
		}
		return Period{Start: NewDate(date.Year(), date.Month(), 16), End: EndOfMonth(date.Year(), date.Month())}
	case FrequencyQuarterly:
		first := time.Month((int(date.Month())-1)/3*3 + 1)
		start := NewDate(date.Year(), first, 1)
		return Period{Start: start, End: start.AddMonths(3).AddDays(-1)}
	default:
		return c.monthly(date)
	}
}

func (c Calendar) fixedLength(date Date, length int) Period {
	anchor := c.Anchor
	if anchor.IsZero() {
		anchor = NewDate(1970, time.January, 5) // a Monday
	}
	offset := DaysBetween(anchor, date) % length
	if offset < 0 {
		offset += length
	}
	start := date.AddDays(-offset)
	return Period{Start: start, End: start.AddDays(length - 1)}
}

func (c Calendar) monthly(date Date) Period {
	startDay := 1
	if !c.Anchor.IsZero() {
		startDay = c.Anchor.Day()
	}
	if startDay > 28 {
		startDay = 1
	}
	start := NewDate(date.Year(), date.Month(), startDay)
	if date.Before(start) {
		start = start.AddMonths(-1)
	}
	return Period{Start: start, End: start.AddMonths(1).AddDays(-1)}
}
