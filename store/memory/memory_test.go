package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/store/memory"
)

func at(day, hour int) time.Time {
	return time.Date(2025, 3, day, hour, 0, 0, 0, time.UTC)
}

func TestMemory_EntriesInPeriod(t *testing.T) {
	m := memory.NewMemory(
		payroll.TimeEntry{ID: "b", EmployeeName: "Ada", Start: at(11, 9), End: at(11, 17)},
		payroll.TimeEntry{ID: "a", EmployeeName: "Ada", Start: at(10, 9), End: at(10, 17)},
		payroll.TimeEntry{ID: "outside", EmployeeName: "Ada", Start: at(20, 9), End: at(20, 17)},
		payroll.TimeEntry{ID: "undated", EmployeeName: "Ada", Duration: 8},
	)
	week := generic.Period{Start: generic.NewDate(2025, 3, 10), End: generic.NewDate(2025, 3, 16)}

	entries, err := m.Entries(context.Background(), week)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
	assert.Equal(t, 4, m.Len())
}

func TestMemory_AddReplacesByID(t *testing.T) {
	m := memory.NewMemory(payroll.TimeEntry{ID: "a", EmployeeName: "Ada", Start: at(10, 9), End: at(10, 17)})

	m.Add(payroll.TimeEntry{ID: "a", EmployeeName: "Ada", Start: at(10, 9), End: at(10, 19)})

	entries, err := m.Entries(context.Background(), generic.Period{Start: generic.NewDate(2025, 3, 10), End: generic.NewDate(2025, 3, 10)})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 600, entries[0].RawMinutes())
}

func TestMemory_RejectsInvalidPeriod(t *testing.T) {
	m := memory.NewMemory()
	_, err := m.Entries(context.Background(), generic.Period{Start: generic.NewDate(2025, 3, 10), End: generic.NewDate(2025, 3, 1)})
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}
