package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-sync/generic"
)

// =============================================================================
// PIPELINE - classify once, then either leave or tiers
// =============================================================================

// RulesetSelector picks the ruleset that applies to an entry.
type RulesetSelector interface {
	For(entry TimeEntry) Ruleset
}

// For lets a single Ruleset act as a selector for every entry.
func (rs Ruleset) For(TimeEntry) Ruleset { return rs }

// Pipeline turns raw entries into enriched pay lines.
type Pipeline struct {
	Rulesets RulesetSelector
	// Resolver fills EmployeeID from EmployeeName when the entry lacks it. Optional.
	Resolver Resolver
	// BaseRates is the hourly ordinary rate by external employee id.
	BaseRates map[string]decimal.Decimal
}

// Output splits pipeline results by write path.
type Output struct {
	Worked   []PayLine
	Leave    []PayLine
	Warnings []Warning
}

// All returns worked lines followed by leave lines.
func (o Output) All() []PayLine {
	all := make([]PayLine, 0, len(o.Worked)+len(o.Leave))
	all = append(all, o.Worked...)
	return append(all, o.Leave...)
}

// Run processes entries in order. It never fails: unusable entries contribute nothing.
func (p Pipeline) Run(entries []TimeEntry) Output {
	var out Output
	missingRate := make(map[string]bool)

	for _, entry := range entries {
		var lines []PayLine
		if cls := Classify(entry); cls.IsLeave {
			if line, ok := LeaveLine(entry, cls); ok {
				lines = []PayLine{line}
			}
		} else {
			lines = Compute(entry, p.Rulesets.For(entry))
		}

		for _, line := range lines {
			line = p.enrich(line)
			if line.BaseRate.IsZero() && !missingRate[line.EmployeeName] {
				missingRate[line.EmployeeName] = true
				out.Warnings = append(out.Warnings, Warning{
					Kind:     WarnNoBaseRate,
					Employee: line.EmployeeName,
					Message:  fmt.Sprintf("no base rate for %q; cost left at 0", line.EmployeeName),
				})
			}
			if line.IsLeave {
				out.Leave = append(out.Leave, line)
			} else {
				out.Worked = append(out.Worked, line)
			}
		}
	}
	return out
}

// LeaveLine builds the single multiplier-1 line for a leave entry.
func LeaveLine(entry TimeEntry, cls Classification) (PayLine, bool) {
	minutes := LeaveMinutes(entry)
	if minutes <= 0 {
		return PayLine{}, false
	}
	return PayLine{
		Category:     cls.LeaveLabel,
		Multiplier:   decimal.NewFromInt(1),
		Minutes:      minutes,
		EntryID:      entry.ID,
		EmployeeID:   entry.EmployeeID,
		EmployeeName: entry.EmployeeName,
		JobCode:      entry.JobCode,
		Date:         entry.Date(),
		IsLeave:      true,
	}, true
}

func (p Pipeline) enrich(line PayLine) PayLine {
	if line.EmployeeID == "" && p.Resolver != nil {
		if id, _, ok := p.Resolver.EmployeeID(line.EmployeeName); ok {
			line.EmployeeID = id
		}
	}
	if rate, ok := p.BaseRates[line.EmployeeID]; ok && line.EmployeeID != "" {
		line.BaseRate = rate
	}
	line.Cost = LineCost(line.Minutes, line.BaseRate, line.Multiplier)
	return line
}

// LineCost is minutes/60 × baseRate × multiplier, rounded to cents.
func LineCost(minutes int, baseRate, multiplier decimal.Decimal) decimal.Decimal {
	return generic.Round2(generic.HoursFromMinutes(minutes).Mul(baseRate).Mul(multiplier))
}
