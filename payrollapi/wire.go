package payrollapi

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

// =============================================================================
// WIRE TYPES - shapes the external payroll API sends and accepts
// =============================================================================
// Dates travel as "/Date(ms+0000)/" strings; units are 2dp numbers.

type earningsRateWire struct {
	EarningsRateID string   `json:"EarningsRateID"`
	Name           string   `json:"Name"`
	EarningsType   string   `json:"EarningsType,omitempty"`
	RatePerUnit    *float64 `json:"RatePerUnit,omitempty"`
}

type leaveTypeWire struct {
	LeaveTypeID string `json:"LeaveTypeID"`
	Name        string `json:"Name"`
}

type payItemsResponse struct {
	PayItems struct {
		EarningsRates []earningsRateWire `json:"EarningsRates"`
		LeaveTypes    []leaveTypeWire    `json:"LeaveTypes"`
	} `json:"PayItems"`
}

type earningsLineWire struct {
	EarningsRateID string   `json:"EarningsRateID"`
	RatePerUnit    *float64 `json:"RatePerUnit,omitempty"`
	Amount         *float64 `json:"Amount,omitempty"`
	AnnualSalary   *float64 `json:"AnnualSalary,omitempty"`
}

type employeeWire struct {
	EmployeeID             string  `json:"EmployeeID"`
	FirstName              string  `json:"FirstName"`
	LastName               string  `json:"LastName"`
	Status                 string  `json:"Status"`
	OrdinaryEarningsRateID string  `json:"OrdinaryEarningsRateID,omitempty"`
	PayFrequency           string  `json:"PayFrequency,omitempty"`
	OrdinaryHoursPerWeek   float64 `json:"OrdinaryHoursPerWeek,omitempty"`
	PayTemplate            struct {
		EarningsLines []earningsLineWire `json:"EarningsLines"`
	} `json:"PayTemplate"`
}

type employeesResponse struct {
	Employees []employeeWire `json:"Employees"`
}

type calendarWire struct {
	PayrollCalendarID string `json:"PayrollCalendarID"`
	Name              string `json:"Name"`
	CalendarType      string `json:"CalendarType"`
	StartDate         string `json:"StartDate"`
}

type calendarsResponse struct {
	PayrollCalendars []calendarWire `json:"PayrollCalendars"`
}

type timesheetLineWire struct {
	EarningsRateID string    `json:"EarningsRateID"`
	NumberOfUnits  []float64 `json:"NumberOfUnits"`
}

type timesheetWire struct {
	TimesheetID    string              `json:"TimesheetID,omitempty"`
	EmployeeID     string              `json:"EmployeeID"`
	StartDate      string              `json:"StartDate"`
	EndDate        string              `json:"EndDate"`
	Status         string              `json:"Status,omitempty"`
	TimesheetLines []timesheetLineWire `json:"TimesheetLines"`
}

type timesheetsResponse struct {
	Timesheets []timesheetWire `json:"Timesheets"`
}

type leavePeriodWire struct {
	NumberOfUnits float64 `json:"NumberOfUnits"`
}

type leaveApplicationWire struct {
	EmployeeID   string            `json:"EmployeeID"`
	LeaveTypeID  string            `json:"LeaveTypeID"`
	Title        string            `json:"Title"`
	StartDate    string            `json:"StartDate"`
	EndDate      string            `json:"EndDate"`
	LeavePeriods []leavePeriodWire `json:"LeavePeriods"`
}

// =============================================================================
// CONVERSION
// =============================================================================

func optDecimal(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := generic.FiniteDecimal(*f)
	return &d
}

func earningsKind(w earningsRateWire) payroll.RateKind {
	switch w.EarningsType {
	case "ORDINARYTIMEEARNINGS":
		return payroll.KindOrdinary
	case "OVERTIMEEARNINGS":
		return payroll.KindOvertime
	default:
		return payroll.KindOther
	}
}

func (w earningsRateWire) entry() payroll.RateCatalogEntry {
	return payroll.RateCatalogEntry{
		ID:          w.EarningsRateID,
		Name:        w.Name,
		RatePerUnit: optDecimal(w.RatePerUnit),
		Kind:        earningsKind(w),
	}
}

func (w leaveTypeWire) entry() payroll.RateCatalogEntry {
	return payroll.RateCatalogEntry{ID: w.LeaveTypeID, Name: w.Name, Kind: payroll.KindLeave}
}

func (w employeeWire) employee() payroll.Employee {
	e := payroll.Employee{
		ID:                     w.EmployeeID,
		FirstName:              w.FirstName,
		LastName:               w.LastName,
		Status:                 w.Status,
		OrdinaryEarningsRateID: w.OrdinaryEarningsRateID,
		PayFrequency:           generic.PayFrequency(w.PayFrequency),
		OrdinaryHoursPerWeek:   generic.FiniteDecimal(w.OrdinaryHoursPerWeek),
	}
	for _, l := range w.PayTemplate.EarningsLines {
		e.PayTemplate = append(e.PayTemplate, payroll.PayTemplateLine{
			EarningsRateID: l.EarningsRateID,
			RatePerUnit:    optDecimal(l.RatePerUnit),
			Total:          optDecimal(l.Amount),
		})
		if l.AnnualSalary != nil && e.AnnualSalary == nil {
			e.AnnualSalary = optDecimal(l.AnnualSalary)
		}
	}
	return e
}

func (w calendarWire) calendar() (generic.Calendar, error) {
	anchor, err := generic.ParseDate(w.StartDate)
	if err != nil {
		return generic.Calendar{}, err
	}
	return generic.Calendar{
		ID:        w.PayrollCalendarID,
		Name:      w.Name,
		Frequency: generic.PayFrequency(w.CalendarType),
		Anchor:    anchor,
	}, nil
}

func toTimesheetWire(a payroll.DesiredAggregate) timesheetWire {
	w := timesheetWire{
		EmployeeID: a.EmployeeID,
		StartDate:  generic.FormatMSDate(a.Period.Start),
		EndDate:    generic.FormatMSDate(a.Period.End),
		Status:     "DRAFT",
	}
	for rateID, units := range a.Lines {
		line := timesheetLineWire{EarningsRateID: rateID, NumberOfUnits: make([]float64, len(units))}
		for i, u := range units {
			line.NumberOfUnits[i] = generic.Float2(u)
		}
		w.TimesheetLines = append(w.TimesheetLines, line)
	}
	return w
}

func (w timesheetWire) aggregate() (payroll.DesiredAggregate, error) {
	start, err := generic.ParseDate(w.StartDate)
	if err != nil {
		return payroll.DesiredAggregate{}, err
	}
	end, err := generic.ParseDate(w.EndDate)
	if err != nil {
		return payroll.DesiredAggregate{}, err
	}
	a := payroll.DesiredAggregate{
		EmployeeID: w.EmployeeID,
		Period:     generic.Period{Start: start, End: end},
		Lines:      make(map[string][]decimal.Decimal, len(w.TimesheetLines)),
	}
	for _, line := range w.TimesheetLines {
		units := make([]decimal.Decimal, len(line.NumberOfUnits))
		for i, u := range line.NumberOfUnits {
			units[i] = generic.FiniteDecimal(u)
		}
		a.Lines[line.EarningsRateID] = units
	}
	return a, nil
}

func toLeaveWire(d payroll.LeaveDraft) leaveApplicationWire {
	title := d.Label
	if title == "" {
		title = "Leave"
	}
	return leaveApplicationWire{
		EmployeeID:   d.EmployeeID,
		LeaveTypeID:  d.LeaveTypeID,
		Title:        title,
		StartDate:    generic.FormatMSDate(d.Date),
		EndDate:      generic.FormatMSDate(d.Date),
		LeavePeriods: []leavePeriodWire{{NumberOfUnits: generic.Float2(d.Hours)}},
	}
}
