package payroll_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-sync/payroll"
)

func TestPipeline_SplitsWorkedAndLeave(t *testing.T) {
	// GIVEN an 11h shift and a leave day for the same person
	worked := shift(at(6, 0), at(17, 0), 0)
	worked.ID = "e1"
	worked.EmployeeName = "Ada Lovelace"
	leave := payroll.TimeEntry{
		ID:           "e2",
		EmployeeName: "Ada Lovelace",
		Category:     "Annual Leave",
		Start:        at(9, 0),
		Duration:     7.6,
	}

	p := payroll.Pipeline{
		Rulesets:  payroll.StandardRuleset("std"),
		Resolver:  newStubResolver(),
		BaseRates: map[string]decimal.Decimal{"emp-ada": decimal.NewFromInt(40)},
	}

	// WHEN
	out := p.Run([]payroll.TimeEntry{worked, leave})

	// THEN worked time is tiered and priced
	assert.Empty(t, out.Warnings)
	require.Len(t, out.Worked, 3)
	costs := map[string]string{}
	for _, l := range out.Worked {
		assert.Equal(t, "emp-ada", l.EmployeeID)
		costs[l.Category] = l.Cost.StringFixed(2)
	}
	assert.Equal(t, "320.00", costs["ordinary"]) // 8h × 40
	assert.Equal(t, "120.00", costs["OT1.5"])    // 2h × 40 × 1.5
	assert.Equal(t, "80.00", costs["OT2.0"])     // 1h × 40 × 2

	// AND leave is a single multiplier-1 line
	require.Len(t, out.Leave, 1)
	l := out.Leave[0]
	assert.True(t, l.IsLeave)
	assert.Equal(t, "Annual Leave", l.Category)
	assert.Equal(t, 456, l.Minutes)
	assert.True(t, l.Multiplier.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "304.00", l.Cost.StringFixed(2))

	assert.Len(t, out.All(), 4)
}

func TestPipeline_WarnsOnceWithoutBaseRate(t *testing.T) {
	a := shift(at(6, 0), at(17, 0), 0)
	a.EmployeeName = "Grace Hopper"
	b := a

	out := payroll.Pipeline{Rulesets: payroll.StandardRuleset("std")}.Run([]payroll.TimeEntry{a, b})

	require.Len(t, out.Warnings, 1)
	assert.Equal(t, payroll.WarnNoBaseRate, out.Warnings[0].Kind)
	for _, l := range out.Worked {
		assert.True(t, l.Cost.IsZero())
	}
}

func TestPipeline_DropsZeroLengthLeave(t *testing.T) {
	out := payroll.Pipeline{Rulesets: payroll.StandardRuleset("std")}.Run([]payroll.TimeEntry{
		{EmployeeName: "Ada Lovelace", Category: "Sick Leave"},
	})
	assert.Empty(t, out.Leave)
	assert.Empty(t, out.Worked)
}

func TestLineCost(t *testing.T) {
	got := payroll.LineCost(50, decimal.RequireFromString("33.33"), decimal.RequireFromString("1.5"))
	// 50/60 × 33.33 × 1.5 = 41.6625
	assert.Equal(t, "41.66", got.StringFixed(2))
}
