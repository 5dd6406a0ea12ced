package rates

import (
	"fmt"

	"github.com/warp/payroll-sync/payroll"
)

// Book is the per-run snapshot of the external catalog: employees, earnings
// rates and leave types. It implements payroll.Resolver.
type Book struct {
	Directory *Directory
	Rates     *Resolver

	ordinaryRate map[string]string
	known        map[string]bool
}

// Snapshot is the raw catalog a Book is built from.
type Snapshot struct {
	Employees  []payroll.Employee
	Earnings   []payroll.RateCatalogEntry
	LeaveTypes []payroll.RateCatalogEntry
}

// NewBook indexes a snapshot. fuzzyThreshold <= 0 disables fuzzy name matching.
func NewBook(s Snapshot, fuzzyThreshold float64) *Book {
	b := &Book{
		Directory:    NewDirectory(s.Employees, fuzzyThreshold),
		Rates:        NewResolver(s.Earnings, s.LeaveTypes),
		ordinaryRate: make(map[string]string, len(s.Employees)),
		known:        make(map[string]bool, len(s.Employees)),
	}
	for _, emp := range s.Employees {
		b.known[emp.ID] = true
		if emp.OrdinaryEarningsRateID != "" {
			b.ordinaryRate[emp.ID] = emp.OrdinaryEarningsRateID
		}
	}
	return b
}

// EmployeeID resolves a display name through the directory.
func (b *Book) EmployeeID(name string) (string, *payroll.Warning, bool) {
	return b.Directory.Lookup(name)
}

// EarningsRateID resolves a worked category using the employee's default ordinary rate.
func (b *Book) EarningsRateID(employeeID, category string) (string, bool) {
	return b.Rates.ResolveEarnings(category, b.ordinaryRate[employeeID])
}

// LeaveTypeID resolves a leave label. A label outside every leave family
// that only matched the generic rule comes back with a warning.
func (b *Book) LeaveTypeID(label string) (string, *payroll.Warning, bool) {
	e, fallback, ok := b.Rates.ResolveLeaveType(label)
	if !ok {
		return "", nil, false
	}
	if fallback {
		return e.ID, &payroll.Warning{
			Kind:     payroll.WarnGenericLeave,
			Category: label,
			Message:  fmt.Sprintf("leave %q has no matching leave type; booked as %q", label, e.Name),
		}, true
	}
	return e.ID, nil, true
}

// KnownEmployees is the set of external employee ids in the snapshot.
func (b *Book) KnownEmployees() map[string]bool {
	out := make(map[string]bool, len(b.known))
	for id := range b.known {
		out[id] = true
	}
	return out
}

var _ payroll.Resolver = (*Book)(nil)
