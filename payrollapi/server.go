package payrollapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

// NewHandler serves a Memory over the same wire API the Client speaks, so
// the client can be exercised end to end without the real system.
func NewHandler(m *Memory) http.Handler {
	h := &memoryHandler{m: m}
	r := chi.NewRouter()
	r.Get("/PayItems", h.payItems)
	r.Get("/Employees", h.employees)
	r.Get("/PayrollCalendars", h.calendars)
	r.Get("/Timesheets", h.listTimesheets)
	r.Post("/Timesheets", h.createTimesheets)
	r.Post("/LeaveApplications", h.createLeave)
	return r
}

type memoryHandler struct {
	m *Memory
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"Message": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	var ext *generic.ExternalError
	switch {
	case errors.Is(err, generic.ErrDuplicateIdempotencyKey):
		w.Header().Set(ReplayHeader, "true")
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &ext) && ext.Status != 0:
		writeError(w, ext.Status, ext.Body)
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *memoryHandler) payItems(w http.ResponseWriter, r *http.Request) {
	earnings, _ := h.m.EarningsRates(r.Context())
	leaveTypes, _ := h.m.LeaveTypes(r.Context())
	var resp payItemsResponse
	for _, e := range earnings {
		wire := earningsRateWire{EarningsRateID: e.ID, Name: e.Name}
		switch e.Kind {
		case payroll.KindOrdinary:
			wire.EarningsType = "ORDINARYTIMEEARNINGS"
		case payroll.KindOvertime:
			wire.EarningsType = "OVERTIMEEARNINGS"
		}
		if e.RatePerUnit != nil {
			f := e.RatePerUnit.InexactFloat64()
			wire.RatePerUnit = &f
		}
		resp.PayItems.EarningsRates = append(resp.PayItems.EarningsRates, wire)
	}
	for _, l := range leaveTypes {
		resp.PayItems.LeaveTypes = append(resp.PayItems.LeaveTypes, leaveTypeWire{LeaveTypeID: l.ID, Name: l.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *memoryHandler) employees(w http.ResponseWriter, r *http.Request) {
	employees, _ := h.m.Employees(r.Context())
	var resp employeesResponse
	for _, e := range employees {
		wire := employeeWire{
			EmployeeID:             e.ID,
			FirstName:              e.FirstName,
			LastName:               e.LastName,
			Status:                 e.Status,
			OrdinaryEarningsRateID: e.OrdinaryEarningsRateID,
			PayFrequency:           string(e.PayFrequency),
			OrdinaryHoursPerWeek:   e.OrdinaryHoursPerWeek.InexactFloat64(),
		}
		for i, l := range e.PayTemplate {
			line := earningsLineWire{EarningsRateID: l.EarningsRateID}
			if l.RatePerUnit != nil {
				f := l.RatePerUnit.InexactFloat64()
				line.RatePerUnit = &f
			}
			if l.Total != nil {
				f := l.Total.InexactFloat64()
				line.Amount = &f
			}
			if i == 0 && e.AnnualSalary != nil {
				f := e.AnnualSalary.InexactFloat64()
				line.AnnualSalary = &f
			}
			wire.PayTemplate.EarningsLines = append(wire.PayTemplate.EarningsLines, line)
		}
		resp.Employees = append(resp.Employees, wire)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *memoryHandler) calendars(w http.ResponseWriter, r *http.Request) {
	calendars, _ := h.m.Calendars(r.Context())
	var resp calendarsResponse
	for _, c := range calendars {
		resp.PayrollCalendars = append(resp.PayrollCalendars, calendarWire{
			PayrollCalendarID: c.ID,
			Name:              c.Name,
			CalendarType:      string(c.Frequency),
			StartDate:         generic.FormatMSDate(c.Anchor),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *memoryHandler) listTimesheets(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employeeId")
	if employeeID == "" {
		writeError(w, http.StatusBadRequest, "employeeId is required")
		return
	}
	list, _ := h.m.ListTimesheets(r.Context(), employeeID)
	resp := timesheetsResponse{Timesheets: make([]timesheetWire, 0, len(list))}
	for _, t := range list {
		resp.Timesheets = append(resp.Timesheets, toTimesheetWire(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *memoryHandler) createTimesheets(w http.ResponseWriter, r *http.Request) {
	var body []timesheetWire
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) != 1 {
		writeError(w, http.StatusBadRequest, "expected exactly one timesheet")
		return
	}
	agg, err := body[0].aggregate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.m.CreateTimesheet(r.Context(), agg, r.Header.Get(IdempotencyHeader)); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timesheetsResponse{Timesheets: body})
}

func (h *memoryHandler) createLeave(w http.ResponseWriter, r *http.Request) {
	var body []leaveApplicationWire
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) != 1 {
		writeError(w, http.StatusBadRequest, "expected exactly one leave application")
		return
	}
	app := body[0]
	date, err := generic.ParseDate(app.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var units float64
	for _, p := range app.LeavePeriods {
		units += p.NumberOfUnits
	}
	draft := payroll.LeaveDraft{
		EmployeeID:  app.EmployeeID,
		LeaveTypeID: app.LeaveTypeID,
		Label:       app.Title,
		Date:        date,
		Hours:       generic.FiniteDecimal(units),
	}
	if err := h.m.CreateLeaveApplication(r.Context(), draft, r.Header.Get(IdempotencyHeader)); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"LeaveApplications": body})
}
