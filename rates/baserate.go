/*
baserate.go - Base-Rate Deriver

PURPOSE:
  Find each active employee's ordinary hourly rate. Pay lines are costed with
  it (cost = hours × base rate × multiplier).

ALGORITHM (per active employee):
  1. Pay template: every line that resolves to a positive rate (its own
     RatePerUnit, else the catalog default for its EarningsRateID) is a
     candidate. Score = BaseRateRules(catalog name) + KindBonus if the
     catalog flags it ordinary. Highest wins; ties keep the first.
  2. Default rate: the employee's OrdinaryEarningsRateID against the catalog.
  3. Salary: annual salary (direct, else per-period template totals ×
     periods per year) / (weekly hours × 52).

SANITY BANDS (salary path only):
  - a per-period total below MinPeriodTotal is ignored
  - an annual figure outside [MinAnnual, MaxAnnual] is ignored

Employees with no usable rate are absent from the result.
*/
package rates

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

// RateSource records which step produced a base rate.
type RateSource string

const (
	SourcePayTemplate RateSource = "pay_template"
	SourceDefaultRate RateSource = "default_rate"
	SourceSalary      RateSource = "salary"
)

// EmployeeBaseRate is one employee's derived ordinary hourly rate.
type EmployeeBaseRate struct {
	EmployeeID string          `json:"employee_id"`
	Name       string          `json:"name"`
	RateID     string          `json:"rate_id,omitempty"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Source     RateSource      `json:"source"`
}

var (
	MinPeriodTotal     = decimal.NewFromInt(50)
	MinAnnual          = decimal.NewFromInt(1000)
	MaxAnnual          = decimal.NewFromInt(5_000_000)
	DefaultWeeklyHours = decimal.NewFromInt(38)
	weeksPerYear       = decimal.NewFromInt(52)
)

// IsActive treats an empty status as active.
func IsActive(e payroll.Employee) bool {
	return e.Status == "" || e.Status == "ACTIVE"
}

// Derive returns base rates for active employees, in input order.
func Derive(employees []payroll.Employee, catalog []payroll.RateCatalogEntry) []EmployeeBaseRate {
	byID := make(map[string]payroll.RateCatalogEntry, len(catalog))
	for _, c := range catalog {
		byID[c.ID] = c
	}

	var out []EmployeeBaseRate
	for _, emp := range employees {
		if !IsActive(emp) {
			continue
		}
		if r, ok := fromPayTemplate(emp, byID); ok {
			out = append(out, r)
			continue
		}
		if r, ok := fromDefaultRate(emp, byID); ok {
			out = append(out, r)
			continue
		}
		if r, ok := fromSalary(emp); ok {
			out = append(out, r)
		}
	}
	return out
}

// RateMap indexes hourly rates by employee id.
func RateMap(rates []EmployeeBaseRate) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(rates))
	for _, r := range rates {
		m[r.EmployeeID] = r.HourlyRate
	}
	return m
}

func positive(d *decimal.Decimal) bool { return d != nil && d.IsPositive() }

func fromPayTemplate(emp payroll.Employee, catalog map[string]payroll.RateCatalogEntry) (EmployeeBaseRate, bool) {
	var (
		best      EmployeeBaseRate
		bestScore int
		found     bool
	)
	for _, line := range emp.PayTemplate {
		entry, known := catalog[line.EarningsRateID]
		var rate decimal.Decimal
		switch {
		case positive(line.RatePerUnit):
			rate = *line.RatePerUnit
		case known && positive(entry.RatePerUnit):
			rate = *entry.RatePerUnit
		default:
			continue
		}

		score, _ := BaseRateRules.Score(entry.Name)
		if known && entry.Kind == payroll.KindOrdinary {
			score += KindBonus
		}
		if !found || score > bestScore {
			best = EmployeeBaseRate{
				EmployeeID: emp.ID,
				Name:       emp.FullName(),
				RateID:     line.EarningsRateID,
				HourlyRate: rate,
				Source:     SourcePayTemplate,
			}
			bestScore, found = score, true
		}
	}
	return best, found
}

func fromDefaultRate(emp payroll.Employee, catalog map[string]payroll.RateCatalogEntry) (EmployeeBaseRate, bool) {
	entry, ok := catalog[emp.OrdinaryEarningsRateID]
	if emp.OrdinaryEarningsRateID == "" || !ok || !positive(entry.RatePerUnit) {
		return EmployeeBaseRate{}, false
	}
	return EmployeeBaseRate{
		EmployeeID: emp.ID,
		Name:       emp.FullName(),
		RateID:     entry.ID,
		HourlyRate: *entry.RatePerUnit,
		Source:     SourceDefaultRate,
	}, true
}

func fromSalary(emp payroll.Employee) (EmployeeBaseRate, bool) {
	annual, ok := AnnualSalary(emp)
	if !ok {
		return EmployeeBaseRate{}, false
	}
	weekly := emp.OrdinaryHoursPerWeek
	if !weekly.IsPositive() {
		weekly = DefaultWeeklyHours
	}
	return EmployeeBaseRate{
		EmployeeID: emp.ID,
		Name:       emp.FullName(),
		HourlyRate: generic.Round2(annual.Div(weekly.Mul(weeksPerYear))),
		Source:     SourceSalary,
	}, true
}

// AnnualSalary returns a plausible annual figure: the declared salary, else
// the template's per-period totals annualised by pay frequency.
func AnnualSalary(emp payroll.Employee) (decimal.Decimal, bool) {
	if emp.AnnualSalary != nil && plausibleAnnual(*emp.AnnualSalary) {
		return *emp.AnnualSalary, true
	}

	periods := emp.PayFrequency.PeriodsPerYear()
	if periods == 0 {
		return decimal.Zero, false
	}
	perPeriod := decimal.Zero
	for _, line := range emp.PayTemplate {
		if line.Total == nil || line.Total.LessThan(MinPeriodTotal) {
			continue
		}
		perPeriod = perPeriod.Add(*line.Total)
	}
	if perPeriod.IsZero() {
		return decimal.Zero, false
	}
	annual := perPeriod.Mul(decimal.NewFromInt(int64(periods)))
	if !plausibleAnnual(annual) {
		return decimal.Zero, false
	}
	return annual, true
}

func plausibleAnnual(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(MinAnnual) && d.LessThanOrEqual(MaxAnnual)
}
