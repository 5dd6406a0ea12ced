package rates_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/rates"
)

func staff() []payroll.Employee {
	return []payroll.Employee{
		{ID: "e-ada", FirstName: "Ada", LastName: "Lovelace", OrdinaryEarningsRateID: "r-sat"},
		{ID: "e-zoe", FirstName: "Zoë", LastName: "Šmith"},
		{ID: "e-alan", FirstName: "Alan", LastName: "Turing"},
		{ID: "e-old", FirstName: "Old", LastName: "Timer", Status: "TERMINATED"},
	}
}

func TestDirectory_Lookup(t *testing.T) {
	d := rates.NewDirectory(staff(), rates.DefaultFuzzyThreshold)

	tests := []struct {
		name  string
		input string
		want  string
		fuzzy bool
		ok    bool
	}{
		{"exact", "Ada Lovelace", "e-ada", false, true},
		{"case and spacing", "  ada   LOVELACE ", "e-ada", false, true},
		{"diacritics folded", "Zoe Smith", "e-zoe", false, true},
		{"last, first", "Turing, Alan", "e-alan", false, true},
		{"close typo is fuzzy", "Ada Lovelac", "e-ada", true, true},
		{"distant name rejected", "Ada Lovejoy", "", false, false},
		{"inactive employees are not indexed", "Old Timer", "", false, false},
		{"empty", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, warning, ok := d.Lookup(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, id)
			if tt.fuzzy {
				require.NotNil(t, warning)
				assert.Equal(t, payroll.WarnFuzzyEmployee, warning.Kind)
			} else {
				assert.Nil(t, warning)
			}
		})
	}
}

func TestDirectory_FuzzyDisabled(t *testing.T) {
	d := rates.NewDirectory(staff(), 0)
	_, _, ok := d.Lookup("Ada Lovelac")
	assert.False(t, ok)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, rates.Similarity("", ""))
	assert.Equal(t, 1.0, rates.Similarity("abc", "abc"))
	assert.InDelta(t, 0.75, rates.Similarity("abcd", "abce"), 1e-9)
}

func TestBook_ImplementsResolver(t *testing.T) {
	b := rates.NewBook(rates.Snapshot{
		Employees:  staff(),
		Earnings:   earningsCatalog(),
		LeaveTypes: leaveCatalog(),
	}, rates.DefaultFuzzyThreshold)

	id, _, ok := b.EmployeeID("Ada Lovelace")
	require.True(t, ok)

	// Ada's default ordinary rate overrides the name rule
	rate, ok := b.EarningsRateID(id, "ordinary")
	assert.True(t, ok)
	assert.Equal(t, "r-sat", rate)

	rate, ok = b.EarningsRateID("e-alan", "ordinary")
	assert.True(t, ok)
	assert.Equal(t, "r-ord", rate)

	lt, warn, ok := b.LeaveTypeID("Annual Leave")
	assert.True(t, ok)
	assert.Nil(t, warn)
	assert.Equal(t, "lt-annual", lt)

	// a label outside every family falls back to the generic leave type, flagged
	lt, warn, ok = b.LeaveTypeID("Bereavement Leave")
	assert.True(t, ok)
	assert.Equal(t, "lt-generic", lt)
	require.NotNil(t, warn)
	assert.Equal(t, payroll.WarnGenericLeave, warn.Kind)
	assert.Contains(t, warn.Message, "Other Unpaid Leave")

	known := b.KnownEmployees()
	assert.True(t, known["e-old"])
	assert.Len(t, known, 4)
}
