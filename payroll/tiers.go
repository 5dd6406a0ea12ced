/*
tiers.go - Tier Engine: one entry + one ruleset → ordered pay lines

ALGORITHM:
  worked    = raw minutes - clamp(unpaid break (+ lunch), 0, raw)
  remaining = worked
  1. ordinary line: min(remaining, OrdinaryMinutesPerDay) at ×1
  2. each tier in declared order (positive multipliers only):
       take min(remaining, FirstMinutes ?? remaining) at tier.Multiplier
     stop as soon as remaining == 0
  3. anything still remaining goes to the LAST tier's multiplier
     (1.5 when there is no usable last tier). Minutes are never dropped.

  Zero-minute lines are never emitted.

EXAMPLE (ordinary 480, tiers [{OT1.5, first 120}, {OT2.0}]):
  11h, no break  → ordinary:480, OT1.5:120, OT2.0:60
  06:00-18:00 with 30 min break → ordinary:480, OT1.5:120, OT2.0:90

FAILURE SEMANTICS:
  Malformed timestamps and non-finite durations give 0 minutes. Compute never
  returns an error; an unusable entry simply yields no lines.
*/
package payroll

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultFallbackMultiplier pays leftover minutes when the ruleset has no usable last tier.
var DefaultFallbackMultiplier = decimal.NewFromFloat(1.5)

// =============================================================================
// DURATION
// =============================================================================

// RawMinutes is the entry's span in whole minutes: End-Start when both parse,
// otherwise the explicit Duration. Anything unusable is 0.
func (e TimeEntry) RawMinutes() int {
	if !e.Start.IsZero() && !e.End.IsZero() && e.End.After(e.Start) {
		return int(math.Round(e.End.Sub(e.Start).Minutes()))
	}
	return durationMinutes(e.Duration)
}

// durationMinutes applies the upstream unit convention: > 24 is minutes, else hours.
func durationMinutes(d float64) int {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return 0
	}
	if d > 24 {
		return int(math.Round(d))
	}
	return int(math.Round(d * 60))
}

func clampMinutes(v float64, lo, hi int) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return lo
	}
	m := int(math.Round(v))
	if m < lo {
		return lo
	}
	if m > hi {
		return hi
	}
	return m
}

// WorkedMinutes is raw minutes less the unpaid break and any lunch.
func WorkedMinutes(entry TimeEntry, rs Ruleset) int {
	worked, _ := split(entry, rs)
	return worked
}

// split returns the minutes that go through the tiers and the paid lunch minutes.
func split(entry TimeEntry, rs Ruleset) (worked, paidLunch int) {
	raw := entry.RawMinutes()
	deducted := clampMinutes(entry.UnpaidBreakMinutes, 0, raw)
	if rs.Lunch != nil && rs.Lunch.Minutes > 0 {
		lunch := min(rs.Lunch.Minutes, raw-deducted)
		deducted += lunch
		if rs.Lunch.Paid {
			paidLunch = lunch
		}
	}
	return raw - deducted, paidLunch
}

// =============================================================================
// TIER ENGINE
// =============================================================================

// Compute splits one worked entry into pay lines under rs. The returned lines
// carry Category, Multiplier, Minutes plus the entry's identity fields; the
// pipeline adds rates and cost.
func Compute(entry TimeEntry, rs Ruleset) []PayLine {
	worked, paidLunch := split(entry, rs)
	lines := distribute(worked, rs)

	if paidLunch > 0 {
		mult := rs.Lunch.WorkMultiplier
		if !mult.IsPositive() {
			mult = decimal.NewFromInt(1)
		}
		lines = append(lines, PayLine{Category: CategoryLunch, Multiplier: mult, Minutes: paidLunch})
	}

	for i := range lines {
		lines[i].EntryID = entry.ID
		lines[i].EmployeeID = entry.EmployeeID
		lines[i].EmployeeName = entry.EmployeeName
		lines[i].JobCode = entry.JobCode
		lines[i].Date = entry.Date()
	}
	return lines
}

func distribute(worked int, rs Ruleset) []PayLine {
	var lines []PayLine
	emit := func(category string, mult decimal.Decimal, minutes int) {
		if minutes <= 0 {
			return
		}
		lines = append(lines, PayLine{Category: category, Multiplier: mult, Minutes: minutes})
	}

	remaining := worked
	ordinary := min(remaining, max(rs.OrdinaryMinutesPerDay, 0))
	emit(CategoryOrdinary, decimal.NewFromInt(1), ordinary)
	remaining -= ordinary

	for _, tier := range rs.Tiers {
		if remaining == 0 {
			break
		}
		if !tier.Multiplier.IsPositive() {
			continue
		}
		take := remaining
		if tier.FirstMinutes != nil && *tier.FirstMinutes < take {
			take = max(*tier.FirstMinutes, 0)
		}
		emit(tier.CategoryLabel(), tier.Multiplier, take)
		remaining -= take
	}

	if remaining > 0 {
		fallback := fallbackTier(rs.Tiers)
		label := fallback.CategoryLabel()
		if n := len(lines); n > 0 && lines[n-1].Category == label && lines[n-1].Multiplier.Equal(fallback.Multiplier) {
			lines[n-1].Minutes += remaining
		} else {
			emit(label, fallback.Multiplier, remaining)
		}
	}
	return lines
}

// fallbackTier is the last declared tier, with DefaultFallbackMultiplier
// standing in for a missing or non-positive multiplier.
func fallbackTier(tiers []Tier) Tier {
	if len(tiers) == 0 {
		return Tier{Multiplier: DefaultFallbackMultiplier}
	}
	last := tiers[len(tiers)-1]
	if !last.Multiplier.IsPositive() {
		return Tier{Multiplier: DefaultFallbackMultiplier}
	}
	return last
}

// CategoryLabel is the tier's label, or "OT<multiplier>" (e.g. "OT1.5", "OT2.0").
func (t Tier) CategoryLabel() string {
	if t.Label != "" {
		return t.Label
	}
	return OvertimeLabel(t.Multiplier)
}

// OvertimeLabel formats a multiplier as an overtime category.
func OvertimeLabel(mult decimal.Decimal) string {
	s := mult.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return "OT" + s
}
