/*
Package reconcile implements the Sync Engine: it compares desired timesheets
with what the external payroll system already holds and writes only when
nothing exists yet.

PURPOSE:
  The external system is authoritative once a record exists. A run must be
  safe to repeat: the second identical run writes nothing.

DECISIONS (per desired aggregate):
  no existing record             → CREATE (write, unless dry run)
  existing, equal when normalized → EXISTS_MATCH (no write)
  existing, different             → EXISTS_DIFF  (no write, manual review)
  employee unknown externally     → MISSING_EMPLOYEE (no write)
  fetch or write failed           → ERROR

CONCURRENCY:
  Employees are processed by a bounded worker pool. The check-then-write
  pair for one employee+period runs under a Locker so two runs cannot both
  observe "no record" and both create.

SEE ALSO:
  - normalize.go: canonical form used for comparison
  - lock.go:      in-process and Redis lockers
  - keys.go:      idempotency keys
*/
package reconcile

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

// =============================================================================
// NORMALIZATION
// =============================================================================

// NormalLine is one rate's units in canonical form.
type NormalLine struct {
	RateID string
	Units  []decimal.Decimal
}

// Normalized is an aggregate with lines sorted by rate id and units rounded to 2dp.
type Normalized struct {
	EmployeeID string
	Start      generic.Date
	End        generic.Date
	Lines      []NormalLine
}

// Normalize builds the canonical form. Map iteration order never leaks into it.
func Normalize(a payroll.DesiredAggregate) Normalized {
	n := Normalized{
		EmployeeID: a.EmployeeID,
		Start:      a.Period.Start,
		End:        a.Period.End,
		Lines:      make([]NormalLine, 0, len(a.Lines)),
	}
	for rateID, units := range a.Lines {
		rounded := make([]decimal.Decimal, len(units))
		for i, u := range units {
			rounded[i] = generic.Round2(u)
		}
		n.Lines = append(n.Lines, NormalLine{RateID: rateID, Units: rounded})
	}
	sort.Slice(n.Lines, func(i, j int) bool { return n.Lines[i].RateID < n.Lines[j].RateID })
	return n
}

// Equal compares two aggregates after normalization.
func Equal(a, b payroll.DesiredAggregate) bool {
	return Diff(a, b) == ""
}

// Diff returns a description of the first difference, or "" when equal.
func Diff(a, b payroll.DesiredAggregate) string {
	na, nb := Normalize(a), Normalize(b)
	switch {
	case na.EmployeeID != nb.EmployeeID:
		return fmt.Sprintf("employee %s != %s", na.EmployeeID, nb.EmployeeID)
	case !na.Start.Equal(nb.Start):
		return fmt.Sprintf("start %s != %s", na.Start, nb.Start)
	case !na.End.Equal(nb.End):
		return fmt.Sprintf("end %s != %s", na.End, nb.End)
	case len(na.Lines) != len(nb.Lines):
		return fmt.Sprintf("%d lines != %d lines", len(na.Lines), len(nb.Lines))
	}
	for i := range na.Lines {
		la, lb := na.Lines[i], nb.Lines[i]
		if la.RateID != lb.RateID {
			return fmt.Sprintf("rate %s != %s", la.RateID, lb.RateID)
		}
		if len(la.Units) != len(lb.Units) {
			return fmt.Sprintf("rate %s: %d units != %d units", la.RateID, len(la.Units), len(lb.Units))
		}
		for d := range la.Units {
			if !la.Units[d].Equal(lb.Units[d]) {
				return fmt.Sprintf("rate %s day %d: %s != %s", la.RateID, d, la.Units[d], lb.Units[d])
			}
		}
	}
	return ""
}

// SamePeriod reports whether an existing record covers exactly the desired period.
func SamePeriod(existing, desired payroll.DesiredAggregate) bool {
	return existing.EmployeeID == desired.EmployeeID &&
		existing.Period.Start.Equal(desired.Period.Start) &&
		existing.Period.End.Equal(desired.Period.End)
}
