/*
Package payrun orchestrates one pay run end to end.

PURPOSE:
  Wires the pure core (payroll, rates) to its collaborators: a time source,
  the ruleset configuration and the external payroll system. One run is

    validate period ─► load rulesets ─► fetch catalog snapshot
      ─► derive base rates ─► pipeline (classify, tiers, enrich)
      ─► aggregate worked lines ─► leave drafts
      ─► [sync timesheets, write leave]

  Preview stops before the brackets; Sync goes all the way.

LIFECYCLE:
  The catalog snapshot and the employee directory are fetched fresh per run
  and discarded afterwards. The only state a Service keeps between runs is
  its Locker, so two runs in one process serialize per employee+period.

ERRORS:
  Invalid periods and rulesets fail the run before any external call.
  A failed catalog or time-source read fails the run. Per-employee write
  failures never fail the run; they are ERROR decisions.
*/
package payrun

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/rates"
	"github.com/warp/payroll-sync/reconcile"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// TimeSource lists time entries dated inside a period.
type TimeSource interface {
	Entries(ctx context.Context, period generic.Period) ([]payroll.TimeEntry, error)
}

// Catalog is the read side of the external payroll system.
type Catalog interface {
	EarningsRates(ctx context.Context) ([]payroll.RateCatalogEntry, error)
	LeaveTypes(ctx context.Context) ([]payroll.RateCatalogEntry, error)
	Employees(ctx context.Context) ([]payroll.Employee, error)
	Calendars(ctx context.Context) ([]generic.Calendar, error)
}

// Writer is the write side of the external payroll system.
type Writer interface {
	reconcile.Timesheets
	reconcile.LeaveApplications
}

// RulesetSource yields the ruleset selector for a run.
type RulesetSource interface {
	Rulesets(ctx context.Context) (payroll.RulesetSelector, error)
}

// RulesetFunc adapts a function to RulesetSource.
type RulesetFunc func(ctx context.Context) (payroll.RulesetSelector, error)

func (f RulesetFunc) Rulesets(ctx context.Context) (payroll.RulesetSelector, error) { return f(ctx) }

// StaticRulesets serves the same selector to every run.
func StaticRulesets(sel payroll.RulesetSelector) RulesetSource {
	return RulesetFunc(func(context.Context) (payroll.RulesetSelector, error) { return sel, nil })
}

// RunRecorder keeps the audit trail of sync runs. Optional.
type RunRecorder interface {
	SaveSyncRun(ctx context.Context, r SyncRun) error
}

// ErrNoCalendar is returned when a default period is requested and the
// payroll system has no calendar.
var ErrNoCalendar = errors.New("no payroll calendar")

// =============================================================================
// SERVICE
// =============================================================================

// Service runs previews and syncs.
type Service struct {
	Time     TimeSource
	Catalog  Catalog
	Writer   Writer
	Rulesets RulesetSource
	Runs     RunRecorder

	// Locker serializes check-then-create per employee+period. Defaults to an
	// in-process locker on first use.
	Locker         reconcile.Locker
	Concurrency    int
	CallTimeout    time.Duration
	FuzzyThreshold float64
	Metrics        *reconcile.Metrics
	Logger         *log.Logger

	lockOnce sync.Once
}

func (s *Service) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

func (s *Service) locker() reconcile.Locker {
	s.lockOnce.Do(func() {
		if s.Locker == nil {
			s.Locker = reconcile.NewMemoryLocker()
		}
	})
	return s.Locker
}

func (s *Service) callTimeout() time.Duration {
	if s.CallTimeout <= 0 {
		return reconcile.DefaultCallTimeout
	}
	return s.CallTimeout
}

// =============================================================================
// CATALOG SNAPSHOT
// =============================================================================

// Snapshot is the catalog fetched for one run.
type Snapshot struct {
	rates.Snapshot
	Calendars []generic.Calendar
}

// FetchSnapshot reads the four catalog lists concurrently. Any failure fails
// the snapshot.
func (s *Service) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	if s.Catalog == nil {
		return Snapshot{}, errors.New("no payroll catalog configured")
	}
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(fn func(ctx context.Context) error) {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.callTimeout())
			defer cancel()
			return fn(callCtx)
		})
	}
	fetch(func(ctx context.Context) (err error) {
		snap.Earnings, err = s.Catalog.EarningsRates(ctx)
		return err
	})
	fetch(func(ctx context.Context) (err error) {
		snap.LeaveTypes, err = s.Catalog.LeaveTypes(ctx)
		return err
	})
	fetch(func(ctx context.Context) (err error) {
		snap.Employees, err = s.Catalog.Employees(ctx)
		return err
	})
	fetch(func(ctx context.Context) (err error) {
		snap.Calendars, err = s.Catalog.Calendars(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("fetch payroll catalog: %w", err)
	}
	return snap, nil
}

// CurrentPeriod is the period of the first payroll calendar that contains day.
func (s *Service) CurrentPeriod(ctx context.Context, day generic.Date) (generic.Period, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout())
	defer cancel()
	calendars, err := s.Catalog.Calendars(callCtx)
	if err != nil {
		return generic.Period{}, fmt.Errorf("fetch payroll calendars: %w", err)
	}
	return PeriodFromCalendars(calendars, day)
}

// PeriodFromCalendars picks the first calendar whose period for day is a valid
// timesheet period.
func PeriodFromCalendars(calendars []generic.Calendar, day generic.Date) (generic.Period, error) {
	if len(calendars) == 0 {
		return generic.Period{}, ErrNoCalendar
	}
	var lastErr error
	for _, c := range calendars {
		p := c.PeriodFor(day)
		if lastErr = p.Validate(); lastErr == nil {
			return p, nil
		}
	}
	return generic.Period{}, lastErr
}

// =============================================================================
// PREVIEW
// =============================================================================

// Preview is everything a run would write, plus the problems found on the way.
type Preview struct {
	Period      generic.Period             `json:"period"`
	Lines       []payroll.PayLine          `json:"lines"`
	Aggregates  []payroll.DesiredAggregate `json:"aggregates"`
	LeaveDrafts []payroll.LeaveDraft       `json:"leave_drafts"`
	BaseRates   []rates.EmployeeBaseRate   `json:"base_rates"`
	Warnings    []payroll.Warning          `json:"warnings"`
	TotalCost   decimal.Decimal            `json:"total_cost"`

	known map[string]bool
}

// Unresolved reports whether any warning means a line was dropped because a
// name or category did not resolve.
func (p *Preview) Unresolved() bool {
	for _, w := range p.Warnings {
		switch w.Kind {
		case payroll.WarnUnmatchedEmployee, payroll.WarnUnresolvedRate, payroll.WarnUnresolvedLeave:
			return true
		}
	}
	return false
}

// Preview computes a run without writing anything.
func (s *Service) Preview(ctx context.Context, period generic.Period) (*Preview, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if s.Rulesets == nil {
		return nil, fmt.Errorf("%w: no ruleset configured", generic.ErrInvalidRuleset)
	}
	selector, err := s.Rulesets.Rulesets(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := s.FetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.Time.Entries(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("list time entries: %w", err)
	}

	threshold := s.FuzzyThreshold
	if threshold == 0 {
		threshold = rates.DefaultFuzzyThreshold
	}
	book := rates.NewBook(snap.Snapshot, threshold)
	baseRates := rates.Derive(snap.Employees, snap.Earnings)

	out := payroll.Pipeline{
		Rulesets:  selector,
		Resolver:  book,
		BaseRates: rates.RateMap(baseRates),
	}.Run(entries)

	agg, err := payroll.Aggregate(out.Worked, period, book)
	if err != nil {
		return nil, err
	}
	leave, err := payroll.BuildLeaveDrafts(out.Leave, period, book)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		Period:      period,
		Lines:       out.All(),
		Aggregates:  agg.Aggregates,
		LeaveDrafts: leave.Drafts,
		BaseRates:   baseRates,
		TotalCost:   decimal.Zero,
		known:       book.KnownEmployees(),
	}
	p.Warnings = append(p.Warnings, out.Warnings...)
	p.Warnings = append(p.Warnings, agg.Warnings...)
	p.Warnings = append(p.Warnings, leave.Warnings...)
	for _, line := range p.Lines {
		p.TotalCost = p.TotalCost.Add(line.Cost)
	}

	s.logger().Printf("[Run] preview %s: %d entries, %d lines, %d timesheets, %d leave drafts, %d warnings",
		period, len(entries), len(p.Lines), len(p.Aggregates), len(p.LeaveDrafts), len(p.Warnings))
	return p, nil
}

// =============================================================================
// SYNC
// =============================================================================

// SyncOptions tune one sync run.
type SyncOptions struct {
	// DryRun decides without writing.
	DryRun bool
	// SkipLeave leaves leave drafts unwritten.
	SkipLeave bool
	// BlockOnUnresolved refuses to write anything when a name or category
	// did not resolve.
	BlockOnUnresolved bool
}

// SyncResult is the outcome of one run.
type SyncResult struct {
	RunID     string                    `json:"run_id"`
	Preview   *Preview                  `json:"preview"`
	Decisions []reconcile.SyncDecision  `json:"decisions"`
	Leave     []reconcile.LeaveDecision `json:"leave"`
	Counts    map[reconcile.Status]int  `json:"counts"`
	Blocked   bool                      `json:"blocked"`
	DryRun    bool                      `json:"dry_run"`
}

// Sync previews the period and then reconciles the result with the payroll system.
func (s *Service) Sync(ctx context.Context, period generic.Period, opts SyncOptions) (*SyncResult, error) {
	started := time.Now().UTC()
	run := SyncRun{
		ID:        uuid.NewString(),
		Period:    period,
		DryRun:    opts.DryRun,
		Status:    RunRunning,
		StartedAt: started,
	}
	s.record(ctx, run)

	result, err := s.sync(ctx, period, opts)
	completed := time.Now().UTC()
	run.CompletedAt = &completed
	if err != nil {
		run.Status, run.Error = RunFailed, err.Error()
		s.record(ctx, run)
		return nil, err
	}
	result.RunID = run.ID

	run.Status = finalStatus(result)
	run.Warnings = len(result.Preview.Warnings)
	run.Counts = make(map[string]int, len(result.Counts))
	for status, n := range result.Counts {
		run.Counts[string(status)] = n
	}
	for _, d := range result.Leave {
		if d.Status == reconcile.StatusCreate && !opts.DryRun {
			run.LeaveWritten++
		}
	}
	s.record(ctx, run)
	return result, nil
}

func (s *Service) sync(ctx context.Context, period generic.Period, opts SyncOptions) (*SyncResult, error) {
	preview, err := s.Preview(ctx, period)
	if err != nil {
		return nil, err
	}
	result := &SyncResult{Preview: preview, DryRun: opts.DryRun, Counts: map[reconcile.Status]int{}}
	if opts.BlockOnUnresolved && preview.Unresolved() {
		result.Blocked = true
		s.logger().Printf("[Run] sync %s blocked: unresolved names or categories", period)
		return result, nil
	}
	if s.Writer == nil {
		return nil, errors.New("no payroll writer configured")
	}

	engine := &reconcile.Engine{
		Locker:         s.locker(),
		Concurrency:    s.Concurrency,
		CallTimeout:    s.CallTimeout,
		DryRun:         opts.DryRun,
		KnownEmployees: preview.known,
		Metrics:        s.Metrics,
		Logger:         s.Logger,
		Timesheets:     s.Writer,
		Leave:          s.Writer,
	}

	result.Decisions = engine.Sync(ctx, preview.Aggregates)
	result.Counts = reconcile.Summary(result.Decisions)
	if !opts.SkipLeave {
		result.Leave = engine.WriteLeave(ctx, preview.LeaveDrafts)
	}
	return result, nil
}

func (s *Service) record(ctx context.Context, run SyncRun) {
	if s.Runs == nil {
		return
	}
	if err := s.Runs.SaveSyncRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger().Printf("[Run] failed to record sync run %s: %v", run.ID, err)
	}
}
