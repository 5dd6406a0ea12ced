/*
Package generic provides the domain-agnostic primitives of the pay-run engine.

PURPOSE:
  Pay lines, timesheet units and rates all reduce to a handful of shared
  concepts: calendar days, inclusive pay periods, exact decimal quantities and
  a small error taxonomy. Keeping them here lets the payroll, rates and
  reconcile packages agree on rounding and day arithmetic without importing
  each other.

KEY CONCEPTS:
  - Date:     A calendar day (UTC midnight). Never an instant.
  - Period:   Inclusive [Start, End] with 1..31 days, the external wire limit
  - Calendar: Payroll calendar that maps a date to its period
  - Decimal:  shopspring/decimal for hours, rates and money (no float drift)

DESIGN PRINCIPLES:
  1. Precision: Hours and money are decimal.Decimal, rounded to 2dp only at
     the boundary where the external system sees them
  2. Inclusive periods: DayCount = End - Start + 1
  3. Errors are sentinels + structured types with Unwrap (see errors.go)

SEE ALSO:
  - period.go: Period and Calendar
  - time.go:   Date parsing for the many upstream date shapes
  - errors.go: Error taxonomy
*/
package generic

import (
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// UnitPlaces is the number of decimal places the external writer keeps.
const UnitPlaces = 2

var minutesPerHour = decimal.NewFromInt(60)

// Round2 rounds half away from zero to two places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(UnitPlaces)
}

// HoursFromMinutes converts minutes to hours without rounding.
func HoursFromMinutes(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(minutesPerHour)
}

// FiniteDecimal converts f, mapping NaN and ±Inf to zero.
func FiniteDecimal(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// Float2 is the float64 the wire format carries for d, rounded to two places.
func Float2(d decimal.Decimal) float64 {
	return Round2(d).InexactFloat64()
}
