package ingest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-sync/ingest"
	"github.com/warp/payroll-sync/payroll"
)

func TestEntry_FieldNameConventions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"snake_case", `{"id":"t1","employee_name":"Ada Lovelace","job_code":"JB-1","start_time":"2025-03-10T06:00:00Z","end_time":"2025-03-10T17:00:00Z","unpaid_break":30}`},
		{"camelCase", `{"id":"t1","employeeName":"Ada Lovelace","jobCode":"JB-1","startTime":"2025-03-10T06:00:00Z","endTime":"2025-03-10T17:00:00Z","unpaidBreak":"30"}`},
		{"PascalCase", `{"ID":"t1","EmployeeName":"Ada Lovelace","JobCode":"JB-1","StartTime":"2025-03-10T06:00:00Z","EndTime":"2025-03-10T17:00:00Z","BreakMinutes":30}`},
		{"odd casing", `{"Id":"t1","EMPLOYEE_NAME":"Ada Lovelace","jobcode":"JB-1","START":"2025-03-10T06:00:00Z","END":"2025-03-10T17:00:00Z","break":30}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := ingest.Normalizer{}.DecodeEntries([]byte(tt.raw))
			require.NoError(t, err)
			require.Len(t, entries, 1)

			e := entries[0]
			assert.Equal(t, "t1", e.ID)
			assert.Equal(t, "Ada Lovelace", e.EmployeeName)
			assert.Equal(t, "JB-1", e.JobCode)
			assert.Equal(t, "JB-1", e.Category, "category falls back to job code")
			assert.Equal(t, 660, e.RawMinutes())
			assert.Equal(t, 30.0, e.UnpaidBreakMinutes)
		})
	}
}

func TestEntry_NestedUserAndEpochTimes(t *testing.T) {
	raw := ingest.Record{
		"user":     map[string]any{"first_name": "Alan", "last_name": "Turing"},
		"start":    float64(1741586400),    // 2025-03-10T06:00:00Z, seconds
		"end":      float64(1741615200000), // 2025-03-10T14:00:00Z, millis
		"Category": "Annual Leave",
	}
	e := ingest.Normalizer{}.Entry(raw)

	assert.Equal(t, "Alan Turing", e.EmployeeName)
	assert.Equal(t, 480, e.RawMinutes())
	assert.True(t, payroll.Classify(e).IsLeave)
}

func TestEntry_DateAndDurationOnly(t *testing.T) {
	raw := ingest.Record{"employeeId": "emp-1", "date": "2025-03-12", "hours": "7.5", "leaveType": "Sick"}
	e := ingest.Normalizer{}.Entry(raw)

	assert.Equal(t, "emp-1", e.EmployeeID)
	assert.Equal(t, "2025-03-12", e.Date().String())
	assert.True(t, e.End.IsZero())
	assert.Equal(t, 7.5, e.Duration)
	assert.Equal(t, 450, payroll.LeaveMinutes(e))
	assert.Equal(t, "Sick", e.LeaveType)
}

func TestEntry_MalformedValuesDegrade(t *testing.T) {
	raw := ingest.Record{
		"name":     "Ada Lovelace",
		"start":    "not a time",
		"end":      true,
		"duration": "NaN",
		"break":    -10,
	}
	e := ingest.Normalizer{}.Entry(raw)

	assert.True(t, e.Start.IsZero())
	assert.True(t, e.End.IsZero())
	assert.Zero(t, e.Duration)
	assert.Zero(t, e.UnpaidBreakMinutes)
	assert.Zero(t, e.RawMinutes())
}

func TestEntry_NaiveTimestampsUseLocation(t *testing.T) {
	loc := time.FixedZone("AEST", 10*3600)
	e := ingest.Normalizer{Location: loc}.Entry(ingest.Record{
		"name":  "Ada Lovelace",
		"start": "2025-03-10 06:00:00",
	})
	assert.Equal(t, "2025-03-09T20:00:00Z", e.Start.UTC().Format(time.RFC3339))
	assert.Equal(t, "2025-03-10", e.Date().String())
}

func TestDecodeRecords_Envelopes(t *testing.T) {
	records, err := ingest.DecodeRecords([]byte(`{"page":1,"data":[{"name":"A"},{"name":"B"},42]}`))
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = ingest.DecodeRecords([]byte(`[{"name":"A"}]`))
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = ingest.DecodeRecords([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = ingest.DecodeRecords([]byte(`{"data":`))
	assert.Error(t, err)

	_, err = ingest.DecodeRecords([]byte(`"hello"`))
	assert.Error(t, err)
}

func TestEntries_SkipsAnonymousRecords(t *testing.T) {
	entries := ingest.Normalizer{}.Entries([]ingest.Record{
		{"start": "2025-03-10T06:00:00Z"},
		{"employee_id": "emp-1"},
	})
	require.Len(t, entries, 1)
	assert.Equal(t, "emp-1", entries[0].EmployeeID)
}
