/*
rulesets.go - Pre-built overtime rulesets

AVAILABLE RULESETS:
  StandardRuleset:    8h ordinary, first 2h at ×1.5, the rest at ×2.0
  FlatOvertimeRuleset: 8h ordinary, everything after at one multiplier

These are starting points; real configurations arrive as JSON through
factory.ParseRuleset and may be overridden per job or per employee.
*/
package payroll

import "github.com/shopspring/decimal"

// FirstMinutes is a convenience for Tier.FirstMinutes.
func FirstMinutes(n int) *int { return &n }

// StandardRuleset returns the common daily-overtime arrangement.
func StandardRuleset(id string) Ruleset {
	return Ruleset{
		ID:                    id,
		Name:                  "Standard daily overtime",
		OrdinaryMinutesPerDay: 480,
		Tiers: []Tier{
			{Label: "OT1.5", Multiplier: decimal.NewFromFloat(1.5), FirstMinutes: FirstMinutes(120)},
			{Label: "OT2.0", Multiplier: decimal.NewFromInt(2)},
		},
	}
}

// FlatOvertimeRuleset pays everything beyond ordinaryMinutes at multiplier.
func FlatOvertimeRuleset(id string, ordinaryMinutes int, multiplier float64) Ruleset {
	mult := decimal.NewFromFloat(multiplier)
	return Ruleset{
		ID:                    id,
		Name:                  "Flat overtime",
		OrdinaryMinutesPerDay: ordinaryMinutes,
		Tiers:                 []Tier{{Label: OvertimeLabel(mult), Multiplier: mult}},
	}
}
