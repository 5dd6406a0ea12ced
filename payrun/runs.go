package payrun

import (
	"time"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/reconcile"
)

// RunStatus is the lifecycle state of a recorded sync run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	// RunPartial finished, but at least one timesheet or leave write ended in
	// ERROR. The period needs another sync.
	RunPartial RunStatus = "partial"
	RunBlocked RunStatus = "blocked"
	RunFailed  RunStatus = "failed"
)

// SyncRun is the audit record of one sync.
type SyncRun struct {
	ID           string         `json:"id"`
	Period       generic.Period `json:"period"`
	DryRun       bool           `json:"dry_run"`
	Status       RunStatus      `json:"status"`
	Counts       map[string]int `json:"counts,omitempty"`
	Warnings     int            `json:"warnings"`
	LeaveWritten int            `json:"leave_written"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// finalStatus classifies a finished run. Only RunCompleted marks the period
// as done.
func finalStatus(result *SyncResult) RunStatus {
	if result.Blocked {
		return RunBlocked
	}
	if result.Counts[reconcile.StatusError] > 0 {
		return RunPartial
	}
	for _, d := range result.Leave {
		if d.Status == reconcile.StatusError {
			return RunPartial
		}
	}
	return RunCompleted
}
