// Package payroll turns worked-time records into categorized, rate-applied pay
// lines and shapes them into the external system's timesheet and leave formats.
//
// The flow for one entry is decided once, up front:
//
//	entry ─► Classify ─┬─ leave  ─► leave PayLine (multiplier 1)
//	                   └─ worked ─► Compute (tiers) ─► PayLines
//
// Worked lines are bucketed by Aggregate into per-employee unit arrays; leave
// lines are turned into drafts by BuildLeaveDrafts. Everything in this package
// is pure: no I/O, no shared state.
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-sync/generic"
)

// =============================================================================
// TIME ENTRY - Canonical worked/leave interval
// =============================================================================

// TimeEntry is one worked or leave interval for one employee, already
// normalized from whatever shape the time source produced (see package ingest).
// It is never mutated downstream.
type TimeEntry struct {
	ID           string    `json:"id"`
	EmployeeID   string    `json:"employee_id,omitempty"` // external payroll id, when the source knows it
	EmployeeName string    `json:"employee_name"`
	JobCode      string    `json:"job_code,omitempty"`
	Category     string    `json:"category,omitempty"`
	Type         string    `json:"type,omitempty"`       // generic type field ("shift", "leave", ...)
	LeaveType    string    `json:"leave_type,omitempty"` // explicit leave-type field
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	// Duration is an explicit duration whose unit is ambiguous upstream:
	// values > 24 are minutes, anything else is hours.
	Duration           float64 `json:"duration,omitempty"`
	UnpaidBreakMinutes float64 `json:"unpaid_break_minutes,omitempty"`
}

// Date is the calendar day the entry is paid on (its start day).
func (e TimeEntry) Date() generic.Date {
	return generic.DateOf(e.Start)
}

// =============================================================================
// RULESET - Tiered overtime configuration
// =============================================================================

// Tier is a slice of time paid at Multiplier. A nil FirstMinutes means the
// tier absorbs everything that remains.
type Tier struct {
	Label        string
	Multiplier   decimal.Decimal
	FirstMinutes *int
}

// LunchRule folds a lunch break into the deducted break. When Paid, the lunch
// minutes come back as their own pay line at WorkMultiplier.
type LunchRule struct {
	Minutes        int
	Paid           bool
	WorkMultiplier decimal.Decimal
}

// Ruleset is the company-wide (or per-job/per-employee) overtime configuration.
type Ruleset struct {
	ID                    string
	Name                  string
	OrdinaryMinutesPerDay int
	Tiers                 []Tier
	Lunch                 *LunchRule
}

// =============================================================================
// PAY LINE - Output of the Tier Engine, enriched by the pipeline
// =============================================================================

const (
	CategoryOrdinary = "ordinary"
	CategoryLunch    = "lunch"
)

// PayLine is a categorized quantity of paid time.
//
// INVARIANT: Cost = Minutes/60 × BaseRate × Multiplier (rounded to 2dp).
// Leave lines always have Multiplier = 1.
type PayLine struct {
	Category   string          `json:"category"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Minutes    int             `json:"minutes"`

	EntryID      string          `json:"entry_id,omitempty"`
	EmployeeID   string          `json:"employee_id,omitempty"`
	EmployeeName string          `json:"employee_name"`
	BaseRate     decimal.Decimal `json:"base_rate"`
	Cost         decimal.Decimal `json:"cost"`
	JobCode      string          `json:"job_code,omitempty"`
	Date         generic.Date    `json:"date"`
	IsLeave      bool            `json:"is_leave"`
}

// Hours is Minutes as exact decimal hours.
func (l PayLine) Hours() decimal.Decimal {
	return generic.HoursFromMinutes(l.Minutes)
}

// =============================================================================
// EXTERNAL CATALOG - Read-only snapshot per run
// =============================================================================

// RateKind classifies catalog entries.
type RateKind string

const (
	KindOrdinary RateKind = "ordinary"
	KindLeave    RateKind = "leave"
	KindOvertime RateKind = "overtime"
	KindOther    RateKind = "other"
)

// RateCatalogEntry is an earnings rate or leave type defined by the external system.
type RateCatalogEntry struct {
	ID          string
	Name        string
	RatePerUnit *decimal.Decimal
	Kind        RateKind
}

// PayTemplateLine is one earnings line on an employee's pay template.
type PayTemplateLine struct {
	EarningsRateID string
	RatePerUnit    *decimal.Decimal
	// Total is the per-period amount for fixed (salaried) lines.
	Total *decimal.Decimal
}

// Employee is an external employee with its pay template.
type Employee struct {
	ID                     string
	FirstName              string
	LastName               string
	Status                 string // ACTIVE, TERMINATED
	OrdinaryEarningsRateID string
	PayTemplate            []PayTemplateLine
	PayFrequency           generic.PayFrequency
	AnnualSalary           *decimal.Decimal
	OrdinaryHoursPerWeek   decimal.Decimal
}

// FullName is "First Last" with empty parts dropped.
func (e Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	default:
		return e.FirstName + " " + e.LastName
	}
}

// =============================================================================
// AGGREGATES - External wire shapes
// =============================================================================

// DesiredAggregate is one employee's timesheet for one period.
//
// INVARIANT: every Lines value has exactly Period.DayCount() entries, each >= 0
// and rounded to two places.
type DesiredAggregate struct {
	EmployeeID   string                       `json:"employee_id"`
	EmployeeName string                       `json:"employee_name"`
	Period       generic.Period               `json:"period"`
	Lines        map[string][]decimal.Decimal `json:"lines"`
}

// LeaveDraft is one leave application to create.
type LeaveDraft struct {
	EmployeeID   string          `json:"employee_id"`
	EmployeeName string          `json:"employee_name"`
	LeaveTypeID  string          `json:"leave_type_id"`
	Label        string          `json:"label"`
	Date         generic.Date    `json:"date"`
	Hours        decimal.Decimal `json:"hours"`
}

// =============================================================================
// WARNINGS - Resolution problems surfaced to the caller
// =============================================================================

type WarningKind string

const (
	WarnUnmatchedEmployee WarningKind = "unmatched_employee"
	WarnFuzzyEmployee     WarningKind = "fuzzy_employee_match"
	WarnUnresolvedRate    WarningKind = "unresolved_rate"
	WarnUnresolvedLeave   WarningKind = "unresolved_leave_type"
	WarnOutsidePeriod     WarningKind = "outside_period"
	WarnInvalidLeave      WarningKind = "invalid_leave"
	WarnGenericLeave      WarningKind = "generic_leave_type"
	WarnNoBaseRate        WarningKind = "no_base_rate"
)

// Warning is a non-fatal problem; the affected line was dropped or degraded.
type Warning struct {
	Kind     WarningKind  `json:"kind"`
	Employee string       `json:"employee"`
	Category string       `json:"category,omitempty"`
	Date     generic.Date `json:"date,omitempty"`
	Message  string       `json:"message"`
}

// Resolver maps names and categories to external identifiers.
// Implemented by rates.Book.
type Resolver interface {
	// EmployeeID resolves an employee by display name. A non-nil warning
	// accompanies a match that is not exact.
	EmployeeID(name string) (string, *Warning, bool)
	// EarningsRateID resolves a worked pay-line category for an employee.
	EarningsRateID(employeeID, category string) (string, bool)
	// LeaveTypeID resolves a leave label. A non-nil warning accompanies a
	// match found only by the generic leave rule.
	LeaveTypeID(label string) (string, *Warning, bool)
}
