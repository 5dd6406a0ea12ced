package payrollapi

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

// =============================================================================
// MEMORY - In-memory external payroll system (for testing/dev)
// =============================================================================

// Memory holds a catalog snapshot and accepts writes. Writes are keyed by
// idempotency key: a repeated key is rejected with
// generic.ErrDuplicateIdempotencyKey and changes nothing.
type Memory struct {
	mu          sync.RWMutex
	earnings    []payroll.RateCatalogEntry
	leaveTypes  []payroll.RateCatalogEntry
	employees   []payroll.Employee
	calendars   []generic.Calendar
	timesheets  map[string][]payroll.DesiredAggregate
	leave       []payroll.LeaveDraft
	idempotency map[string]bool
	writes      int
}

func NewMemory() *Memory {
	return &Memory{
		timesheets:  make(map[string][]payroll.DesiredAggregate),
		idempotency: make(map[string]bool),
	}
}

// Seed replaces the catalog snapshot.
func (m *Memory) Seed(earnings, leaveTypes []payroll.RateCatalogEntry, employees []payroll.Employee, calendars []generic.Calendar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.earnings = append([]payroll.RateCatalogEntry(nil), earnings...)
	m.leaveTypes = append([]payroll.RateCatalogEntry(nil), leaveTypes...)
	m.employees = append([]payroll.Employee(nil), employees...)
	m.calendars = append([]generic.Calendar(nil), calendars...)
}

func (m *Memory) EarningsRates(_ context.Context) ([]payroll.RateCatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]payroll.RateCatalogEntry(nil), m.earnings...), nil
}

func (m *Memory) LeaveTypes(_ context.Context) ([]payroll.RateCatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]payroll.RateCatalogEntry(nil), m.leaveTypes...), nil
}

func (m *Memory) Employees(_ context.Context) ([]payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]payroll.Employee(nil), m.employees...), nil
}

func (m *Memory) Calendars(_ context.Context) ([]generic.Calendar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]generic.Calendar(nil), m.calendars...), nil
}

// ListTimesheets returns copies ordered by period start.
func (m *Memory) ListTimesheets(_ context.Context, employeeID string) ([]payroll.DesiredAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]payroll.DesiredAggregate, len(m.timesheets[employeeID]))
	copy(result, m.timesheets[employeeID])
	return result, nil
}

// CreateTimesheet stores a timesheet. Timesheets stay sorted by period start.
func (m *Memory) CreateTimesheet(_ context.Context, t payroll.DesiredAggregate, idempotencyKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := t.Period.Validate(); err != nil {
		return &generic.ExternalError{Op: "create timesheet", Status: 400, Body: err.Error(), Kind: generic.ErrWriteFailed}
	}
	for rateID, units := range t.Lines {
		if len(units) != t.Period.DayCount() {
			return &generic.ExternalError{
				Op: "create timesheet", Status: 400, Kind: generic.ErrWriteFailed,
				Body: fmt.Sprintf("line %s has %d units, want %d", rateID, len(units), t.Period.DayCount()),
			}
		}
	}
	if err := m.claimLocked(idempotencyKey); err != nil {
		return err
	}

	list := m.timesheets[t.EmployeeID]
	i := sort.Search(len(list), func(i int) bool {
		return list[i].Period.Start.After(t.Period.Start)
	})
	list = append(list, payroll.DesiredAggregate{})
	copy(list[i+1:], list[i:])
	list[i] = t
	m.timesheets[t.EmployeeID] = list
	m.writes++
	return nil
}

func (m *Memory) CreateLeaveApplication(_ context.Context, d payroll.LeaveDraft, idempotencyKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.claimLocked(idempotencyKey); err != nil {
		return err
	}
	m.leave = append(m.leave, d)
	m.writes++
	return nil
}

func (m *Memory) claimLocked(idempotencyKey string) error {
	if idempotencyKey == "" {
		return nil
	}
	if m.idempotency[idempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.idempotency[idempotencyKey] = true
	return nil
}

// LeaveApplications returns every accepted leave application.
func (m *Memory) LeaveApplications() []payroll.LeaveDraft {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]payroll.LeaveDraft(nil), m.leave...)
}

// Writes counts accepted writes.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
