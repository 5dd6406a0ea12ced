package reconcile_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/reconcile"
)

func TestEqual_OrderIndependent(t *testing.T) {
	// GIVEN the same (rate, units) pairs inserted in different orders
	a := payroll.DesiredAggregate{EmployeeID: "e", Period: week(), Lines: map[string][]decimal.Decimal{}}
	b := payroll.DesiredAggregate{EmployeeID: "e", Period: week(), Lines: map[string][]decimal.Decimal{}}
	rateIDs := []string{"z", "a", "m", "b", "y"}
	for _, id := range rateIDs {
		a.Lines[id] = hours(1, 2, 3, 4, 5, 6, 7)
	}
	for i := len(rateIDs) - 1; i >= 0; i-- {
		b.Lines[rateIDs[i]] = hours(1, 2, 3, 4, 5, 6, 7)
	}

	// THEN
	assert.True(t, reconcile.Equal(a, b))
	assert.Equal(t, reconcile.TimesheetKey(a), reconcile.TimesheetKey(b))
	assert.Equal(t, "a", reconcile.Normalize(a).Lines[0].RateID)
}

func TestEqual_RoundsBeforeComparing(t *testing.T) {
	a := aggregate("e")
	b := aggregate("e")
	b.Lines["rate-ord"][0] = decimal.RequireFromString("8.001")
	assert.True(t, reconcile.Equal(a, b))

	b.Lines["rate-ord"][0] = decimal.RequireFromString("8.01")
	assert.False(t, reconcile.Equal(a, b))
}

func TestDiff(t *testing.T) {
	base := aggregate("e")

	other := aggregate("f")
	assert.Contains(t, reconcile.Diff(base, other), "employee")

	shifted := aggregate("e")
	shifted.Period.End = generic.NewDate(2025, 3, 15)
	assert.Contains(t, reconcile.Diff(base, shifted), "end")

	extra := aggregate("e")
	extra.Lines["rate-dt"] = hours(0, 0, 0, 0, 0, 0, 1)
	assert.Contains(t, reconcile.Diff(base, extra), "lines")

	renamed := aggregate("e")
	renamed.Lines["rate-ot2"] = renamed.Lines["rate-ot15"]
	delete(renamed.Lines, "rate-ot15")
	assert.Contains(t, reconcile.Diff(base, renamed), "rate rate-ot15 != rate-ot2")

	short := aggregate("e")
	short.Lines["rate-ord"] = hours(8, 8)
	assert.Contains(t, reconcile.Diff(base, short), "units")

	assert.Empty(t, reconcile.Diff(base, aggregate("e")))
}

func TestKeys_StableAndContentSensitive(t *testing.T) {
	a := aggregate("e")
	assert.Equal(t, reconcile.TimesheetKey(a), reconcile.TimesheetKey(aggregate("e")))
	assert.NotEqual(t, reconcile.TimesheetKey(a), reconcile.TimesheetKey(aggregate("f")))

	d := payroll.LeaveDraft{EmployeeID: "e", LeaveTypeID: "lt", Date: generic.NewDate(2025, 3, 12), Hours: decimal.NewFromInt(8)}
	d2 := d
	d2.Hours = decimal.RequireFromString("8.00")
	assert.Equal(t, reconcile.LeaveKey(d), reconcile.LeaveKey(d2))
	d2.Hours = decimal.NewFromInt(4)
	assert.NotEqual(t, reconcile.LeaveKey(d), reconcile.LeaveKey(d2))
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "payrun:lock:e:2025-03-10:2025-03-16", reconcile.LockKey("e", week()))
}
