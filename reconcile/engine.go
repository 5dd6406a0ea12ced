package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

// =============================================================================
// EXTERNAL WRITER
// =============================================================================

// Timesheets is the external timesheet store.
type Timesheets interface {
	// ListTimesheets returns every timesheet the employee already has.
	ListTimesheets(ctx context.Context, employeeID string) ([]payroll.DesiredAggregate, error)
	// CreateTimesheet writes one whole timesheet in a single call.
	CreateTimesheet(ctx context.Context, t payroll.DesiredAggregate, idempotencyKey string) error
}

// LeaveApplications is the external leave writer.
type LeaveApplications interface {
	CreateLeaveApplication(ctx context.Context, d payroll.LeaveDraft, idempotencyKey string) error
}

// =============================================================================
// DECISIONS
// =============================================================================

// Status is the terminal state of one record in a sync run.
type Status string

const (
	StatusCreate          Status = "CREATE"
	StatusExistsMatch     Status = "EXISTS_MATCH"
	StatusExistsDiff      Status = "EXISTS_DIFF"
	StatusMissingEmployee Status = "MISSING_EMPLOYEE"
	StatusError           Status = "ERROR"
)

// SyncDecision is computed fresh per run and never persisted.
type SyncDecision struct {
	EmployeeID     string         `json:"employee_id"`
	EmployeeName   string         `json:"employee_name,omitempty"`
	Period         generic.Period `json:"period"`
	Status         Status         `json:"status"`
	Note           string         `json:"note,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// LeaveDecision is the outcome of one leave write (CREATE or ERROR).
type LeaveDecision struct {
	Draft          payroll.LeaveDraft `json:"draft"`
	Status         Status             `json:"status"`
	Note           string             `json:"note,omitempty"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

// Summary counts decisions by status.
func Summary(decisions []SyncDecision) map[Status]int {
	out := make(map[Status]int)
	for _, d := range decisions {
		out[d.Status]++
	}
	return out
}

// =============================================================================
// ENGINE
// =============================================================================

const (
	DefaultConcurrency = 4
	DefaultCallTimeout = 15 * time.Second
)

// Engine runs the per-employee state machine. Engine values carry no state
// between runs and may be reused.
type Engine struct {
	Timesheets Timesheets
	Leave      LeaveApplications
	Locker     Locker

	// Concurrency bounds the worker pool (DefaultConcurrency when <= 0).
	Concurrency int
	// CallTimeout bounds each external call (DefaultCallTimeout when <= 0).
	CallTimeout time.Duration
	// DryRun computes decisions without writing.
	DryRun bool
	// KnownEmployees, when non-nil, is the set of external employee ids.
	// Aggregates for other ids become MISSING_EMPLOYEE.
	KnownEmployees map[string]bool

	Metrics *Metrics
	Logger  *log.Logger

	lockOnce sync.Once
}

func (e *Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e *Engine) concurrency() int {
	if e.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return e.Concurrency
}

func (e *Engine) callTimeout() time.Duration {
	if e.CallTimeout <= 0 {
		return DefaultCallTimeout
	}
	return e.CallTimeout
}

// locker defaults to an in-process locker shared by every run of this engine.
func (e *Engine) locker() Locker {
	e.lockOnce.Do(func() {
		if e.Locker == nil {
			e.Locker = NewMemoryLocker()
		}
	})
	return e.Locker
}

// Sync decides and, on CREATE, writes each aggregate. Decisions are returned
// in input order. One employee's failure never stops the others.
func (e *Engine) Sync(ctx context.Context, aggregates []payroll.DesiredAggregate) []SyncDecision {
	start := time.Now()
	defer e.Metrics.run(start)

	locker := e.locker()
	decisions := make([]SyncDecision, len(aggregates))

	var g errgroup.Group
	g.SetLimit(e.concurrency())
	for i, agg := range aggregates {
		i, agg := i, agg
		g.Go(func() error {
			d := e.syncOne(ctx, locker, agg)
			e.Metrics.decision(d.Status)
			decisions[i] = d
			return nil
		})
	}
	_ = g.Wait()

	counts := Summary(decisions)
	e.logger().Printf("[Sync] %d timesheets: create=%d match=%d diff=%d missing=%d error=%d dry_run=%v (%s)",
		len(decisions), counts[StatusCreate], counts[StatusExistsMatch], counts[StatusExistsDiff],
		counts[StatusMissingEmployee], counts[StatusError], e.DryRun, time.Since(start).Round(time.Millisecond))
	return decisions
}

func (e *Engine) syncOne(ctx context.Context, locker Locker, agg payroll.DesiredAggregate) SyncDecision {
	d := SyncDecision{EmployeeID: agg.EmployeeID, EmployeeName: agg.EmployeeName, Period: agg.Period}

	if e.KnownEmployees != nil && !e.KnownEmployees[agg.EmployeeID] {
		d.Status, d.Note = StatusMissingEmployee, "employee not found in payroll system"
		return d
	}
	if err := agg.Period.Validate(); err != nil {
		d.Status, d.Note = StatusError, err.Error()
		return d
	}

	release, err := locker.Lock(ctx, LockKey(agg.EmployeeID, agg.Period))
	if err != nil {
		d.Status, d.Note = StatusError, err.Error()
		return d
	}
	defer release()

	existing, err := e.fetch(ctx, agg.EmployeeID)
	if err != nil {
		d.Status, d.Note = StatusError, "fetch existing timesheets: "+err.Error()
		return d
	}
	for _, ex := range existing {
		if !SamePeriod(ex, agg) {
			continue
		}
		if diff := Diff(ex, agg); diff != "" {
			d.Status, d.Note = StatusExistsDiff, "existing timesheet differs: "+diff
		} else {
			d.Status = StatusExistsMatch
		}
		return d
	}

	d.IdempotencyKey = TimesheetKey(agg)
	if e.DryRun {
		d.Status, d.Note = StatusCreate, "dry run"
		return d
	}
	if err := e.create(ctx, agg, d.IdempotencyKey); err != nil {
		if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
			d.Status, d.Note = StatusExistsMatch, "writer already accepted this idempotency key"
			return d
		}
		d.Status, d.Note = StatusError, "create timesheet: "+err.Error()
		return d
	}
	d.Status = StatusCreate
	return d
}

func (e *Engine) fetch(ctx context.Context, employeeID string) ([]payroll.DesiredAggregate, error) {
	if e.Timesheets == nil {
		return nil, fmt.Errorf("%w: no timesheet store configured", generic.ErrFetchFailed)
	}
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout())
	defer cancel()
	defer e.Metrics.call("list_timesheets", time.Now())
	return e.Timesheets.ListTimesheets(callCtx, employeeID)
}

func (e *Engine) create(ctx context.Context, agg payroll.DesiredAggregate, key string) error {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout())
	defer cancel()
	defer e.Metrics.call("create_timesheet", time.Now())
	return e.Timesheets.CreateTimesheet(callCtx, agg, key)
}

// =============================================================================
// LEAVE WRITE PATH
// =============================================================================

// WriteLeave creates one leave application per draft. No existence check is
// made first: repeated runs rely on the idempotency key alone to avoid
// duplicate applications.
func (e *Engine) WriteLeave(ctx context.Context, drafts []payroll.LeaveDraft) []LeaveDecision {
	decisions := make([]LeaveDecision, len(drafts))

	var g errgroup.Group
	g.SetLimit(e.concurrency())
	for i, draft := range drafts {
		i, draft := i, draft
		g.Go(func() error {
			decisions[i] = e.writeLeaveOne(ctx, draft)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, d := range decisions {
		if d.Status == StatusError {
			failed++
		}
	}
	e.logger().Printf("[Sync] %d leave applications: failed=%d dry_run=%v", len(decisions), failed, e.DryRun)
	return decisions
}

func (e *Engine) writeLeaveOne(ctx context.Context, draft payroll.LeaveDraft) LeaveDecision {
	d := LeaveDecision{Draft: draft, IdempotencyKey: LeaveKey(draft)}
	if e.KnownEmployees != nil && !e.KnownEmployees[draft.EmployeeID] {
		d.Status, d.Note = StatusMissingEmployee, "employee not found in payroll system"
		e.Metrics.leave("missing_employee")
		return d
	}
	if e.DryRun {
		d.Status, d.Note = StatusCreate, "dry run"
		return d
	}
	if e.Leave == nil {
		d.Status, d.Note = StatusError, "no leave writer configured"
		e.Metrics.leave("error")
		return d
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout())
	defer cancel()
	start := time.Now()
	err := e.Leave.CreateLeaveApplication(callCtx, draft, d.IdempotencyKey)
	e.Metrics.call("create_leave", start)
	if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
		d.Status, d.Note = StatusExistsMatch, "writer already accepted this idempotency key"
		e.Metrics.leave("duplicate")
		return d
	}
	if err != nil {
		d.Status, d.Note = StatusError, "create leave application: "+err.Error()
		e.Metrics.leave("error")
		return d
	}
	d.Status = StatusCreate
	e.Metrics.leave("created")
	return d
}
