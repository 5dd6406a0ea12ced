package reconcile

import (
	"strings"

	"github.com/google/uuid"
	"github.com/warp/payroll-sync/payroll"
)

// idempotencyNamespace scopes generated keys to this service.
var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://payroll-sync/idempotency"))

// TimesheetKey derives a stable key from the normalized content, so a retried
// write of the same timesheet carries the same key.
func TimesheetKey(a payroll.DesiredAggregate) string {
	n := Normalize(a)
	var b strings.Builder
	b.WriteString("timesheet|")
	b.WriteString(n.EmployeeID)
	b.WriteString("|" + n.Start.String() + "|" + n.End.String())
	for _, line := range n.Lines {
		b.WriteString("|" + line.RateID + "=")
		for i, u := range line.Units {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(u.StringFixed(2))
		}
	}
	return uuid.NewSHA1(idempotencyNamespace, []byte(b.String())).String()
}

// LeaveKey derives a stable key for one leave draft.
func LeaveKey(d payroll.LeaveDraft) string {
	raw := strings.Join([]string{"leave", d.EmployeeID, d.LeaveTypeID, d.Date.String(), d.Hours.StringFixed(2)}, "|")
	return uuid.NewSHA1(idempotencyNamespace, []byte(raw)).String()
}
