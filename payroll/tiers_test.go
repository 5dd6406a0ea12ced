package payroll_test

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-sync/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func at(hour, minute int) time.Time {
	return time.Date(2025, time.March, 10, hour, minute, 0, 0, time.UTC)
}

func shift(start, end time.Time, breakMinutes float64) payroll.TimeEntry {
	return payroll.TimeEntry{
		ID:                 "e-1",
		EmployeeName:       "Ada Lovelace",
		Category:           "JB-1001 ordinary",
		Start:              start,
		End:                end,
		UnpaidBreakMinutes: breakMinutes,
	}
}

type minutesByCategory map[string]int

func summarize(lines []payroll.PayLine) (minutesByCategory, []string) {
	m := make(minutesByCategory)
	var order []string
	for _, l := range lines {
		if _, ok := m[l.Category]; !ok {
			order = append(order, l.Category)
		}
		m[l.Category] += l.Minutes
	}
	return m, order
}

func totalMinutes(lines []payroll.PayLine) int {
	total := 0
	for _, l := range lines {
		total += l.Minutes
	}
	return total
}

// =============================================================================
// TIER ENGINE
// =============================================================================

func TestCompute_ElevenHourShift(t *testing.T) {
	// GIVEN: ordinary 480, tiers [{1.5, first 120}, {2.0}]
	// WHEN: an 11-hour entry with no break
	// THEN: ordinary:480, OT1.5:120, OT2.0:60
	rs := payroll.StandardRuleset("std")
	lines := payroll.Compute(shift(at(7, 0), at(18, 0), 0), rs)

	require.Len(t, lines, 3)
	assert.Equal(t, "ordinary", lines[0].Category)
	assert.Equal(t, 480, lines[0].Minutes)
	assert.True(t, lines[0].Multiplier.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "OT1.5", lines[1].Category)
	assert.Equal(t, 120, lines[1].Minutes)
	assert.True(t, lines[1].Multiplier.Equal(decimal.NewFromFloat(1.5)))
	assert.Equal(t, "OT2.0", lines[2].Category)
	assert.Equal(t, 60, lines[2].Minutes)
}

func TestCompute_BreakIsDeducted(t *testing.T) {
	// GIVEN: 06:00-18:00 with a 30 minute unpaid break
	// THEN: 690 worked minutes split 480/120/90
	lines := payroll.Compute(shift(at(6, 0), at(18, 0), 30), payroll.StandardRuleset("std"))

	m, order := summarize(lines)
	assert.Equal(t, []string{"ordinary", "OT1.5", "OT2.0"}, order)
	assert.Equal(t, minutesByCategory{"ordinary": 480, "OT1.5": 120, "OT2.0": 90}, m)
	assert.Equal(t, 690, totalMinutes(lines))
}

func TestCompute_ShortShiftOnlyOrdinary(t *testing.T) {
	lines := payroll.Compute(shift(at(9, 0), at(13, 0), 0), payroll.StandardRuleset("std"))

	require.Len(t, lines, 1)
	assert.Equal(t, 240, lines[0].Minutes)
	assert.Equal(t, "ordinary", lines[0].Category)
}

func TestCompute_FallbackToLastTierWhenCapped(t *testing.T) {
	// GIVEN: the only tier is capped at 60 minutes
	// WHEN: the shift is 3 hours past ordinary
	// THEN: all 180 minutes are paid at the tier's multiplier
	rs := payroll.Ruleset{
		OrdinaryMinutesPerDay: 480,
		Tiers: []payroll.Tier{
			{Label: "OT1.5", Multiplier: decimal.NewFromFloat(1.5), FirstMinutes: payroll.FirstMinutes(60)},
		},
	}
	lines := payroll.Compute(shift(at(6, 0), at(17, 0), 0), rs)

	m, _ := summarize(lines)
	assert.Equal(t, minutesByCategory{"ordinary": 480, "OT1.5": 180}, m)
	assert.Equal(t, 660, totalMinutes(lines))
}

func TestCompute_FallbackDefaultsToOneAndAHalf(t *testing.T) {
	// GIVEN: no tiers at all
	rs := payroll.Ruleset{OrdinaryMinutesPerDay: 60}
	lines := payroll.Compute(shift(at(9, 0), at(11, 0), 0), rs)

	require.Len(t, lines, 2)
	assert.Equal(t, "OT1.5", lines[1].Category)
	assert.True(t, lines[1].Multiplier.Equal(decimal.NewFromFloat(1.5)))
	assert.Equal(t, 60, lines[1].Minutes)
}

func TestCompute_SkipsNonPositiveMultipliers(t *testing.T) {
	rs := payroll.Ruleset{
		OrdinaryMinutesPerDay: 60,
		Tiers: []payroll.Tier{
			{Label: "broken", Multiplier: decimal.Zero},
			{Label: "OT2.0", Multiplier: decimal.NewFromInt(2)},
		},
	}
	lines := payroll.Compute(shift(at(9, 0), at(11, 0), 0), rs)

	m, _ := summarize(lines)
	assert.Equal(t, minutesByCategory{"ordinary": 60, "OT2.0": 60}, m)
}

func TestCompute_MalformedEntriesYieldNothing(t *testing.T) {
	rs := payroll.StandardRuleset("std")

	assert.Empty(t, payroll.Compute(payroll.TimeEntry{}, rs), "no timestamps, no duration")
	assert.Empty(t, payroll.Compute(shift(at(18, 0), at(6, 0), 0), rs), "end before start")
	assert.Empty(t, payroll.Compute(payroll.TimeEntry{Duration: math.NaN()}, rs), "NaN duration")
	assert.Empty(t, payroll.Compute(payroll.TimeEntry{Duration: math.Inf(1)}, rs), "Inf duration")
}

func TestCompute_BreakLongerThanShift(t *testing.T) {
	lines := payroll.Compute(shift(at(9, 0), at(10, 0), 90), payroll.StandardRuleset("std"))
	assert.Empty(t, lines)
}

func TestCompute_ExplicitDurationUnits(t *testing.T) {
	rs := payroll.StandardRuleset("std")

	hours := payroll.Compute(payroll.TimeEntry{Duration: 7.5}, rs)
	assert.Equal(t, 450, totalMinutes(hours), "values <= 24 are hours")

	minutes := payroll.Compute(payroll.TimeEntry{Duration: 90}, rs)
	assert.Equal(t, 90, totalMinutes(minutes), "values > 24 are minutes")
}

func TestCompute_ConservesWorkedMinutes(t *testing.T) {
	rulesets := []payroll.Ruleset{
		payroll.StandardRuleset("std"),
		payroll.FlatOvertimeRuleset("flat", 456, 1.25),
		{OrdinaryMinutesPerDay: 0, Tiers: []payroll.Tier{{Multiplier: decimal.NewFromInt(3), FirstMinutes: payroll.FirstMinutes(5)}}},
		{OrdinaryMinutesPerDay: 300},
	}
	for _, rs := range rulesets {
		for end := 1; end <= 16*60; end += 37 {
			for _, brk := range []float64{0, 15, 45} {
				entry := shift(at(6, 0), at(6, 0).Add(time.Duration(end)*time.Minute), brk)
				lines := payroll.Compute(entry, rs)
				assert.Equal(t, payroll.WorkedMinutes(entry, rs), totalMinutes(lines),
					"ruleset %q, %d minutes, break %v", rs.ID, end, brk)
				for _, l := range lines {
					assert.Positive(t, l.Minutes)
				}
			}
		}
	}
}

func TestCompute_LunchRule(t *testing.T) {
	base := payroll.StandardRuleset("std")

	t.Run("unpaid lunch is excluded", func(t *testing.T) {
		rs := base
		rs.Lunch = &payroll.LunchRule{Minutes: 30}
		lines := payroll.Compute(shift(at(6, 0), at(18, 0), 0), rs)

		m, _ := summarize(lines)
		assert.Equal(t, minutesByCategory{"ordinary": 480, "OT1.5": 120, "OT2.0": 90}, m)
	})

	t.Run("paid lunch gets its own line", func(t *testing.T) {
		rs := base
		rs.Lunch = &payroll.LunchRule{Minutes: 30, Paid: true, WorkMultiplier: decimal.NewFromInt(1)}
		lines := payroll.Compute(shift(at(6, 0), at(18, 0), 0), rs)

		require.Len(t, lines, 4)
		last := lines[3]
		assert.Equal(t, payroll.CategoryLunch, last.Category)
		assert.Equal(t, 30, last.Minutes)
		assert.Equal(t, 720, totalMinutes(lines), "lunch minutes are not double counted")
	})

	t.Run("lunch is added to the unpaid break", func(t *testing.T) {
		rs := base
		rs.Lunch = &payroll.LunchRule{Minutes: 30}
		lines := payroll.Compute(shift(at(6, 0), at(18, 0), 30), rs)
		assert.Equal(t, 660, totalMinutes(lines))
	})
}

func TestCompute_StampsEntryIdentity(t *testing.T) {
	entry := shift(at(6, 0), at(16, 0), 0)
	entry.EmployeeID = "emp-1"
	entry.JobCode = "JB-1001"

	for _, l := range payroll.Compute(entry, payroll.StandardRuleset("std")) {
		assert.Equal(t, "emp-1", l.EmployeeID)
		assert.Equal(t, "Ada Lovelace", l.EmployeeName)
		assert.Equal(t, "JB-1001", l.JobCode)
		assert.Equal(t, "2025-03-10", l.Date.String())
		assert.False(t, l.IsLeave)
	}
}

func TestOvertimeLabel(t *testing.T) {
	assert.Equal(t, "OT1.5", payroll.OvertimeLabel(decimal.NewFromFloat(1.5)))
	assert.Equal(t, "OT2.0", payroll.OvertimeLabel(decimal.NewFromInt(2)))
	assert.Equal(t, "OT1.25", payroll.OvertimeLabel(decimal.NewFromFloat(1.25)))
}
