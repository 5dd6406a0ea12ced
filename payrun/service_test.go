package payrun_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/payrollapi"
	"github.com/warp/payroll-sync/payrun"
	"github.com/warp/payroll-sync/reconcile"
	"github.com/warp/payroll-sync/store/memory"
)

// =============================================================================
// FIXTURES
// =============================================================================

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func week() generic.Period {
	return generic.Period{Start: generic.NewDate(2025, 3, 10), End: generic.NewDate(2025, 3, 16)}
}

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 3, day, hour, minute, 0, 0, time.UTC)
}

func external() *payrollapi.Memory {
	m := payrollapi.NewMemory()
	m.Seed(
		[]payroll.RateCatalogEntry{
			{ID: "r-ord", Name: "Ordinary Hours", Kind: payroll.KindOrdinary, RatePerUnit: money("40")},
			{ID: "r-ot15", Name: "Overtime 1.5x", Kind: payroll.KindOvertime},
			{ID: "r-dt", Name: "Double Time", Kind: payroll.KindOvertime},
		},
		[]payroll.RateCatalogEntry{{ID: "lt-annual", Name: "Annual Leave", Kind: payroll.KindLeave}},
		[]payroll.Employee{
			{
				ID: "emp-ada", FirstName: "Ada", LastName: "Lovelace", Status: "ACTIVE",
				OrdinaryEarningsRateID: "r-ord",
				PayTemplate:            []payroll.PayTemplateLine{{EarningsRateID: "r-ord", RatePerUnit: money("40")}},
			},
			{ID: "emp-grace", FirstName: "Grace", LastName: "Hopper", Status: "ACTIVE", OrdinaryEarningsRateID: "r-ord"},
		},
		[]generic.Calendar{{ID: "cal", Name: "Weekly", Frequency: generic.FrequencyWeekly, Anchor: generic.NewDate(2025, 1, 6)}},
	)
	return m
}

func timeSource() *memory.Memory {
	return memory.NewMemory(
		payroll.TimeEntry{ID: "ada-long", EmployeeName: "Ada Lovelace", JobCode: "JB-1001", Category: "JB-1001",
			Start: at(10, 6, 0), End: at(10, 18, 0), UnpaidBreakMinutes: 30},
		payroll.TimeEntry{ID: "grace-day", EmployeeName: "Grace Hopper", Start: at(11, 9, 0), End: at(11, 17, 0)},
		payroll.TimeEntry{ID: "ada-leave", EmployeeName: "Ada Lovelace", Type: "Annual Leave", Start: at(12, 0, 0), Duration: 7.6},
		payroll.TimeEntry{ID: "stranger", EmployeeName: "Charles Babbage", Start: at(13, 9, 0), End: at(13, 17, 0)},
	)
}

type recorder struct {
	mu   sync.Mutex
	runs []payrun.SyncRun
}

func (r *recorder) SaveSyncRun(_ context.Context, run payrun.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func newService(ext *payrollapi.Memory, src payrun.TimeSource) *payrun.Service {
	return &payrun.Service{
		Time:     src,
		Catalog:  ext,
		Writer:   ext,
		Rulesets: payrun.StaticRulesets(payroll.StandardRuleset("standard")),
		Logger:   log.New(io.Discard, "", 0),
	}
}

func units(vals ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 7)
	for i := range out {
		out[i] = decimal.Zero
	}
	for i, v := range vals {
		if v != "" {
			out[i] = dec(v)
		}
	}
	return out
}

func assertUnits(t *testing.T, want, got []decimal.Decimal) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "day %d: want %s, got %s", i, want[i], got[i])
	}
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreview_EndToEnd(t *testing.T) {
	svc := newService(external(), timeSource())

	p, err := svc.Preview(context.Background(), week())
	require.NoError(t, err)

	// THEN worked time is split into tiers and bucketed by rate and day
	require.Len(t, p.Aggregates, 2)
	ada, grace := p.Aggregates[0], p.Aggregates[1]
	assert.Equal(t, "emp-ada", ada.EmployeeID)
	assertUnits(t, units("8"), ada.Lines["r-ord"])
	assertUnits(t, units("2"), ada.Lines["r-ot15"])
	assertUnits(t, units("1.5"), ada.Lines["r-dt"])
	assert.Equal(t, "emp-grace", grace.EmployeeID)
	assertUnits(t, units("", "8"), grace.Lines["r-ord"])

	// AND leave becomes its own draft
	require.Len(t, p.LeaveDrafts, 1)
	assert.Equal(t, "lt-annual", p.LeaveDrafts[0].LeaveTypeID)
	assert.True(t, p.LeaveDrafts[0].Hours.Equal(dec("7.6")))

	// AND base rates come from the template and the default rate
	require.Len(t, p.BaseRates, 2)

	// AND costs add up: 320 + 120 + 120 (Ada worked) + 320 (Grace) + 304 (leave)
	assert.True(t, p.TotalCost.Equal(dec("1184")), "total %s", p.TotalCost)

	// AND the unknown employee is reported, not written
	assert.True(t, p.Unresolved())
	var unmatched int
	for _, w := range p.Warnings {
		if w.Kind == payroll.WarnUnmatchedEmployee {
			unmatched++
			assert.Equal(t, "Charles Babbage", w.Employee)
		}
	}
	assert.Equal(t, 1, unmatched)
}

func TestPreview_FailsFast(t *testing.T) {
	ext := external()

	t.Run("invalid period", func(t *testing.T) {
		svc := newService(ext, timeSource())
		_, err := svc.Preview(context.Background(), generic.Period{Start: generic.NewDate(2025, 3, 1), End: generic.NewDate(2025, 4, 30)})
		assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
	})

	t.Run("invalid ruleset", func(t *testing.T) {
		svc := newService(ext, timeSource())
		svc.Rulesets = payrun.RulesetFunc(func(context.Context) (payroll.RulesetSelector, error) {
			return nil, &generic.RulesetError{Field: "tiers", Reason: "at least one tier"}
		})
		_, err := svc.Preview(context.Background(), week())
		assert.ErrorIs(t, err, generic.ErrInvalidRuleset)
		assert.Zero(t, ext.Writes())
	})

	t.Run("time source down", func(t *testing.T) {
		svc := newService(ext, failingSource{})
		_, err := svc.Preview(context.Background(), week())
		assert.ErrorContains(t, err, "list time entries")
	})
}

type failingSource struct{}

func (failingSource) Entries(context.Context, generic.Period) ([]payroll.TimeEntry, error) {
	return nil, errors.New("tracker unavailable")
}

// =============================================================================
// SYNC
// =============================================================================

func TestSync_CreatesOnceThenMatches(t *testing.T) {
	ext := external()
	svc := newService(ext, timeSource())
	runs := &recorder{}
	svc.Runs = runs
	ctx := context.Background()

	// WHEN the period is synced
	first, err := svc.Sync(ctx, week(), payrun.SyncOptions{})
	require.NoError(t, err)

	// THEN both timesheets and the leave application are created
	assert.Equal(t, 2, first.Counts[reconcile.StatusCreate])
	require.Len(t, first.Leave, 1)
	assert.Equal(t, reconcile.StatusCreate, first.Leave[0].Status)
	assert.Equal(t, 3, ext.Writes())

	// WHEN it is synced again with nothing changed
	second, err := svc.Sync(ctx, week(), payrun.SyncOptions{})
	require.NoError(t, err)

	// THEN nothing new is written
	assert.Equal(t, 2, second.Counts[reconcile.StatusExistsMatch])
	assert.Equal(t, reconcile.StatusExistsMatch, second.Leave[0].Status)
	assert.Equal(t, 3, ext.Writes())

	// AND each run left a running and a completed record
	require.Len(t, runs.runs, 4)
	assert.Equal(t, payrun.RunRunning, runs.runs[0].Status)
	assert.Equal(t, payrun.RunCompleted, runs.runs[1].Status)
	assert.Equal(t, 2, runs.runs[1].Counts["CREATE"])
	assert.Equal(t, 1, runs.runs[1].LeaveWritten)
	assert.Equal(t, first.RunID, runs.runs[1].ID)
}

func TestSync_ChangedTimeIsSurfacedNotOverwritten(t *testing.T) {
	ext := external()
	src := timeSource()
	svc := newService(ext, src)
	ctx := context.Background()

	_, err := svc.Sync(ctx, week(), payrun.SyncOptions{SkipLeave: true})
	require.NoError(t, err)

	// WHEN Grace's shift is corrected upstream
	src.Add(payroll.TimeEntry{ID: "grace-day", EmployeeName: "Grace Hopper", Start: at(11, 9, 0), End: at(11, 16, 0)})
	res, err := svc.Sync(ctx, week(), payrun.SyncOptions{SkipLeave: true})
	require.NoError(t, err)

	// THEN the difference is reported and left for review
	assert.Equal(t, reconcile.StatusExistsMatch, res.Decisions[0].Status)
	assert.Equal(t, reconcile.StatusExistsDiff, res.Decisions[1].Status)
	assert.Contains(t, res.Decisions[1].Note, "r-ord")
	assert.Empty(t, res.Leave)
	assert.Equal(t, 2, ext.Writes())
}

func TestSync_DryRunWritesNothing(t *testing.T) {
	ext := external()
	svc := newService(ext, timeSource())

	res, err := svc.Sync(context.Background(), week(), payrun.SyncOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.Counts[reconcile.StatusCreate])
	for _, d := range res.Decisions {
		assert.Equal(t, "dry run", d.Note)
	}
	assert.Zero(t, ext.Writes())
}

func TestSync_BlockOnUnresolved(t *testing.T) {
	ext := external()
	svc := newService(ext, timeSource())

	res, err := svc.Sync(context.Background(), week(), payrun.SyncOptions{BlockOnUnresolved: true})
	require.NoError(t, err)

	assert.True(t, res.Blocked)
	assert.Empty(t, res.Decisions)
	assert.Zero(t, ext.Writes())
}

func TestSync_RecordsFailedRun(t *testing.T) {
	svc := newService(external(), failingSource{})
	runs := &recorder{}
	svc.Runs = runs

	_, err := svc.Sync(context.Background(), week(), payrun.SyncOptions{})
	require.Error(t, err)

	require.Len(t, runs.runs, 2)
	assert.Equal(t, payrun.RunFailed, runs.runs[1].Status)
	assert.Contains(t, runs.runs[1].Error, "tracker unavailable")
	assert.NotNil(t, runs.runs[1].CompletedAt)
}

// failOnce rejects the first write for the listed employees, then behaves
// like the wrapped payroll system.
type failOnce struct {
	*payrollapi.Memory
	mu        sync.Mutex
	timesheet map[string]bool
	leave     map[string]bool
}

func (f *failOnce) CreateTimesheet(ctx context.Context, t payroll.DesiredAggregate, key string) error {
	f.mu.Lock()
	fail := f.timesheet[t.EmployeeID]
	delete(f.timesheet, t.EmployeeID)
	f.mu.Unlock()
	if fail {
		return &generic.ExternalError{Op: "create timesheet", Status: 500, Body: "try later", Kind: generic.ErrWriteFailed}
	}
	return f.Memory.CreateTimesheet(ctx, t, key)
}

func (f *failOnce) CreateLeaveApplication(ctx context.Context, d payroll.LeaveDraft, key string) error {
	f.mu.Lock()
	fail := f.leave[d.EmployeeID]
	delete(f.leave, d.EmployeeID)
	f.mu.Unlock()
	if fail {
		return &generic.ExternalError{Op: "create leave application", Status: 500, Body: "try later", Kind: generic.ErrWriteFailed}
	}
	return f.Memory.CreateLeaveApplication(ctx, d, key)
}

func TestSync_WriteErrorsMarkRunPartial(t *testing.T) {
	tests := []struct {
		name   string
		writer func(ext *payrollapi.Memory) *failOnce
	}{
		{"timesheet", func(ext *payrollapi.Memory) *failOnce {
			return &failOnce{Memory: ext, timesheet: map[string]bool{"emp-grace": true}}
		}},
		{"leave", func(ext *payrollapi.Memory) *failOnce {
			return &failOnce{Memory: ext, leave: map[string]bool{"emp-ada": true}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a payroll system that rejects one write
			ext := external()
			svc := newService(ext, timeSource())
			svc.Writer = tt.writer(ext)
			runs := &recorder{}
			svc.Runs = runs
			ctx := context.Background()

			// WHEN the period is synced
			_, err := svc.Sync(ctx, week(), payrun.SyncOptions{})
			require.NoError(t, err)

			// THEN the run is partial, not completed
			require.Len(t, runs.runs, 2)
			assert.Equal(t, payrun.RunPartial, runs.runs[1].Status)

			// WHEN it is synced again
			_, err = svc.Sync(ctx, week(), payrun.SyncOptions{})
			require.NoError(t, err)

			// THEN the missing write lands and the run completes
			require.Len(t, runs.runs, 4)
			assert.Equal(t, payrun.RunCompleted, runs.runs[3].Status)
			assert.Equal(t, 3, ext.Writes())
		})
	}
}

// =============================================================================
// PERIODS AND EXPORT
// =============================================================================

func TestCurrentPeriod(t *testing.T) {
	svc := newService(external(), timeSource())

	p, err := svc.CurrentPeriod(context.Background(), generic.NewDate(2025, 3, 13))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", p.Start.String())
	assert.Equal(t, "2025-03-16", p.End.String())

	_, err = payrun.PeriodFromCalendars(nil, generic.NewDate(2025, 3, 13))
	assert.ErrorIs(t, err, payrun.ErrNoCalendar)

	// a quarterly calendar is too long for a timesheet; the next one is used
	p, err = payrun.PeriodFromCalendars([]generic.Calendar{
		{Frequency: generic.FrequencyQuarterly},
		{Frequency: generic.FrequencyMonthly, Anchor: generic.NewDate(2025, 1, 1)},
	}, generic.NewDate(2025, 3, 13))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", p.Start.String())
	assert.Equal(t, "2025-03-31", p.End.String())
}

func TestWriteLinesCSV(t *testing.T) {
	svc := newService(external(), timeSource())
	p, err := svc.Preview(context.Background(), week())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, payrun.WriteLinesCSV(&buf, p.Lines))

	var rows []payrun.LineRow
	require.NoError(t, gocsv.Unmarshal(bytes.NewReader(buf.Bytes()), &rows))
	require.Len(t, rows, len(p.Lines))

	first := rows[0]
	assert.Equal(t, "2025-03-10", first.Date)
	assert.Equal(t, "emp-ada", first.EmployeeID)
	assert.Equal(t, "ordinary", first.Category)
	assert.Equal(t, "8.00", first.Hours)
	assert.Equal(t, "320.00", first.Cost)

	last := rows[len(rows)-1]
	assert.True(t, last.Leave)
	assert.Equal(t, "304.00", last.Cost)
}
