/*
scheduler.go - Automated pay-period sync scheduler

PURPOSE:
  Periodically checks whether the most recently closed pay period has been
  synced to the payroll system and, if not, runs the sync.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - The closed period is the calendar period of the day before the current
    period starts
  - Skips periods that already have a completed, non-dry-run sync. A
    partial run (some writes ended in ERROR) is retried on the next check;
    records already written come back as EXISTS_MATCH
  - GetNextRunTime backs the next_sync field of /api/runs/period
  - Sync runs record themselves through payrun.Service.Runs

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)
  - Options: Passed to every scheduled sync

USAGE:
  scheduler := NewSyncScheduler(service, store)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Sync endpoint (manual sync of any period)
  - payrun/service.go: Service.Sync
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payrun"
)

// SyncHistory answers whether a period was already synced.
type SyncHistory interface {
	IsPeriodSynced(ctx context.Context, period generic.Period) (bool, error)
}

// SyncScheduler syncs each pay period once it has closed.
type SyncScheduler struct {
	Service       *payrun.Service
	History       SyncHistory
	CheckInterval time.Duration
	Enabled       bool
	Options       payrun.SyncOptions
	Today         func() generic.Date

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	// guarded by stateMu; Stop holds mu while the loop drains
	stateMu   sync.Mutex
	running   bool
	lastCheck time.Time
}

// NewSyncScheduler creates a new scheduler.
func NewSyncScheduler(service *payrun.Service, history SyncHistory) *SyncScheduler {
	return &SyncScheduler{
		Service:       service,
		History:       history,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Today:         generic.Today,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SyncScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.stop = make(chan bool)
	ss.setRunning(true)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SyncScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		ss.ticker = nil
		ss.setRunning(false)
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SyncScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.tick()

	for {
		select {
		case <-ss.ticker.C:
			ss.tick()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SyncScheduler) tick() {
	ss.stateMu.Lock()
	ss.lastCheck = time.Now()
	ss.stateMu.Unlock()

	if _, err := ss.checkAndProcess(context.Background()); err != nil {
		log.Printf("[Scheduler] %v", err)
	}
}

func (ss *SyncScheduler) setRunning(running bool) {
	ss.stateMu.Lock()
	defer ss.stateMu.Unlock()
	ss.running = running
	if !running {
		ss.lastCheck = time.Time{}
	}
}

// ClosedPeriod is the pay period that ended just before the one containing today.
func (ss *SyncScheduler) ClosedPeriod(ctx context.Context) (generic.Period, error) {
	today := generic.Today()
	if ss.Today != nil {
		today = ss.Today()
	}
	current, err := ss.Service.CurrentPeriod(ctx, today)
	if err != nil {
		return generic.Period{}, err
	}
	return ss.Service.CurrentPeriod(ctx, current.Start.AddDays(-1))
}

// checkAndProcess syncs the closed period unless it is already done. The
// returned result is nil when nothing ran.
func (ss *SyncScheduler) checkAndProcess(ctx context.Context) (*payrun.SyncResult, error) {
	period, err := ss.ClosedPeriod(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving closed period: %w", err)
	}

	if ss.History != nil {
		done, err := ss.History.IsPeriodSynced(ctx, period)
		if err != nil {
			return nil, fmt.Errorf("checking sync status for %s: %w", period, err)
		}
		if done {
			log.Printf("[Scheduler] %s already synced, skipping", period)
			return nil, nil
		}
	}

	result, err := ss.Service.Sync(ctx, period, ss.Options)
	if err != nil {
		return nil, fmt.Errorf("syncing %s: %w", period, err)
	}
	log.Printf("[Scheduler] Synced %s: run=%s counts=%v blocked=%t",
		period, result.RunID, result.Counts, result.Blocked)
	return result, nil
}

// RunNow triggers an immediate check (for testing/admin).
func (ss *SyncScheduler) RunNow(ctx context.Context) (*payrun.SyncResult, error) {
	return ss.checkAndProcess(ctx)
}

// GetNextRunTime returns when the next scheduled check will occur. ok is
// false while the scheduler is not running.
func (ss *SyncScheduler) GetNextRunTime() (next time.Time, ok bool) {
	ss.stateMu.Lock()
	defer ss.stateMu.Unlock()

	if !ss.running {
		return time.Time{}, false
	}
	if ss.lastCheck.IsZero() {
		return time.Now(), true
	}
	return ss.lastCheck.Add(ss.CheckInterval), true
}
