/*
aggregate.go - Period Aggregator and Leave Request Builder

PURPOSE:
  Reshape enriched pay lines into the external writer's wire shapes:

  Worked lines → one DesiredAggregate per employee:
    Lines[rateID] = [u0, u1, ..., u(dayCount-1)]   hours per day, 2dp

  Leave lines → one LeaveDraft per (employee, date, leave type)

RESOLUTION FAILURES:
  An unmatched employee, an unresolved rate/leave type or a date outside the
  period drops the line and records a Warning. Warnings are deduplicated so a
  reviewer sees each problem once. The caller decides whether warnings block
  the batch.

INVARIANTS:
  - Every unit array has exactly period.DayCount() entries, zero-filled
  - Multiple lines landing on the same (employee, rate, day) cell are summed
  - Unit values are rounded to 2 decimals only after summing
*/
package payroll

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-sync/generic"
)

// =============================================================================
// WARNING COLLECTION
// =============================================================================

type warningSet struct {
	seen  map[string]bool
	items []Warning
}

func (ws *warningSet) add(key string, w Warning) {
	if ws.seen == nil {
		ws.seen = make(map[string]bool)
	}
	if ws.seen[key] {
		return
	}
	ws.seen[key] = true
	ws.items = append(ws.items, w)
}

// resolveEmployee uses the line's id when present, else the resolver.
func resolveEmployee(line PayLine, r Resolver, ws *warningSet) (string, bool) {
	if line.EmployeeID != "" {
		return line.EmployeeID, true
	}
	id, fuzzy, ok := r.EmployeeID(line.EmployeeName)
	if !ok {
		ws.add("emp|"+line.EmployeeName, Warning{
			Kind:     WarnUnmatchedEmployee,
			Employee: line.EmployeeName,
			Message:  fmt.Sprintf("no external employee matches %q", line.EmployeeName),
		})
		return "", false
	}
	if fuzzy != nil {
		ws.add("fuzzy|"+line.EmployeeName, *fuzzy)
	}
	return id, true
}

// =============================================================================
// PERIOD AGGREGATOR
// =============================================================================

// AggregateResult holds per-employee aggregates ordered by employee id.
type AggregateResult struct {
	Aggregates []DesiredAggregate
	Warnings   []Warning
}

// Aggregate buckets worked lines by (employee, rate, day). Leave lines are ignored.
func Aggregate(lines []PayLine, period generic.Period, r Resolver) (AggregateResult, error) {
	if err := period.Validate(); err != nil {
		return AggregateResult{}, err
	}
	dayCount := period.DayCount()
	byEmployee := make(map[string]*DesiredAggregate)
	var ws warningSet

	for _, line := range lines {
		if line.IsLeave {
			continue
		}
		empID, ok := resolveEmployee(line, r, &ws)
		if !ok {
			continue
		}
		idx, ok := period.DayIndex(line.Date)
		if !ok {
			ws.add(fmt.Sprintf("period|%s|%s", empID, line.Date), Warning{
				Kind:     WarnOutsidePeriod,
				Employee: line.EmployeeName,
				Category: line.Category,
				Date:     line.Date,
				Message:  fmt.Sprintf("%s is outside %s", line.Date, period),
			})
			continue
		}
		rateID, ok := r.EarningsRateID(empID, line.Category)
		if !ok {
			ws.add("rate|"+empID+"|"+line.Category, Warning{
				Kind:     WarnUnresolvedRate,
				Employee: line.EmployeeName,
				Category: line.Category,
				Message:  fmt.Sprintf("no earnings rate for category %q (%s)", line.Category, line.EmployeeName),
			})
			continue
		}

		agg, ok := byEmployee[empID]
		if !ok {
			agg = &DesiredAggregate{
				EmployeeID:   empID,
				EmployeeName: line.EmployeeName,
				Period:       period,
				Lines:        make(map[string][]decimal.Decimal),
			}
			byEmployee[empID] = agg
		}
		units, ok := agg.Lines[rateID]
		if !ok {
			units = ZeroUnits(dayCount)
			agg.Lines[rateID] = units
		}
		units[idx] = units[idx].Add(line.Hours())
	}

	result := AggregateResult{Warnings: ws.items}
	for _, agg := range byEmployee {
		for rateID, units := range agg.Lines {
			for i := range units {
				units[i] = generic.Round2(units[i])
			}
			agg.Lines[rateID] = units
		}
		result.Aggregates = append(result.Aggregates, *agg)
	}
	sort.Slice(result.Aggregates, func(i, j int) bool {
		return result.Aggregates[i].EmployeeID < result.Aggregates[j].EmployeeID
	})
	return result, nil
}

// ZeroUnits returns a zero-filled unit array.
func ZeroUnits(dayCount int) []decimal.Decimal {
	units := make([]decimal.Decimal, dayCount)
	for i := range units {
		units[i] = decimal.Zero
	}
	return units
}

// =============================================================================
// LEAVE REQUEST BUILDER
// =============================================================================

// LeaveResult holds leave drafts in first-seen order.
type LeaveResult struct {
	Drafts   []LeaveDraft
	Warnings []Warning
}

// BuildLeaveDrafts turns leave lines into drafts keyed by (employee, date, leave type).
// Worked lines are ignored.
func BuildLeaveDrafts(lines []PayLine, period generic.Period, r Resolver) (LeaveResult, error) {
	if err := period.Validate(); err != nil {
		return LeaveResult{}, err
	}
	var ws warningSet
	index := make(map[string]int)
	var drafts []LeaveDraft

	for _, line := range lines {
		if !line.IsLeave {
			continue
		}
		empID, ok := resolveEmployee(line, r, &ws)
		if !ok {
			continue
		}
		leaveTypeID, fallback, ok := r.LeaveTypeID(line.Category)
		if !ok {
			ws.add("leave|"+empID+"|"+line.Category, Warning{
				Kind:     WarnUnresolvedLeave,
				Employee: line.EmployeeName,
				Category: line.Category,
				Message:  fmt.Sprintf("no leave type for %q (%s)", line.Category, line.EmployeeName),
			})
			continue
		}
		if fallback != nil {
			w := *fallback
			w.Employee = line.EmployeeName
			ws.add("leavegeneric|"+empID+"|"+line.Category, w)
		}
		if line.Date.IsZero() || !period.Contains(line.Date) {
			ws.add(fmt.Sprintf("leavedate|%s|%s|%s", empID, line.EntryID, line.Date), Warning{
				Kind:     WarnInvalidLeave,
				Employee: line.EmployeeName,
				Category: line.Category,
				Date:     line.Date,
				Message:  fmt.Sprintf("leave date %q missing or outside %s", line.Date, period),
			})
			continue
		}
		hours := line.Hours()
		if !hours.IsPositive() {
			ws.add("leavehours|"+empID+"|"+line.EntryID, Warning{
				Kind:     WarnInvalidLeave,
				Employee: line.EmployeeName,
				Category: line.Category,
				Date:     line.Date,
				Message:  "leave has no positive hours",
			})
			continue
		}

		key := empID + "|" + line.Date.String() + "|" + leaveTypeID
		if i, ok := index[key]; ok {
			drafts[i].Hours = drafts[i].Hours.Add(hours)
			continue
		}
		index[key] = len(drafts)
		drafts = append(drafts, LeaveDraft{
			EmployeeID:   empID,
			EmployeeName: line.EmployeeName,
			LeaveTypeID:  leaveTypeID,
			Label:        line.Category,
			Date:         line.Date,
			Hours:        hours,
		})
	}

	for i := range drafts {
		drafts[i].Hours = generic.Round2(drafts[i].Hours)
	}
	return LeaveResult{Drafts: drafts, Warnings: ws.items}, nil
}
