/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Run results
  (payrun.Preview, payrun.SyncResult) are returned as they are; only the
  request shapes and the ruleset view live here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

SEE ALSO:
  - handlers.go: Uses these types
  - factory/ruleset.go: RulesetJSON type
*/
package api

import (
	"time"

	"github.com/warp/payroll-sync/factory"
	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/store/sqlite"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RunRequest selects the period of a preview or sync. When both dates are
// empty the current payroll calendar period is used.
type RunRequest struct {
	Start             string `json:"start,omitempty"`
	End               string `json:"end,omitempty"`
	DryRun            bool   `json:"dry_run,omitempty"`
	SkipLeave         bool   `json:"skip_leave,omitempty"`
	BlockOnUnresolved bool   `json:"block_on_unresolved,omitempty"`
}

// RulesetDTO represents a stored ruleset in API responses.
type RulesetDTO struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Scope     sqlite.RulesetScope `json:"scope"`
	ScopeKey  string              `json:"scope_key,omitempty"`
	Config    factory.RulesetJSON `json:"config"`
	Version   int                 `json:"version"`
	CreatedAt string              `json:"created_at,omitempty"`
	UpdatedAt string              `json:"updated_at,omitempty"`
}

// SaveRulesetRequest creates or replaces a ruleset. Scope defaults to
// "default"; job and employee scopes need a ScopeKey.
type SaveRulesetRequest struct {
	Name     string              `json:"name"`
	Scope    sqlite.RulesetScope `json:"scope,omitempty"`
	ScopeKey string              `json:"scope_key,omitempty"`
	Config   factory.RulesetJSON `json:"config"`
}

// ImportResponse reports a time-entry import.
type ImportResponse struct {
	Source string `json:"source"`
	sqlite.ImportResult
}

// EntriesResponse lists normalized entries for a period.
type EntriesResponse struct {
	Period  generic.Period      `json:"period"`
	Entries []payroll.TimeEntry `json:"entries"`
}

// PeriodResponse is the period a run without dates would use, plus the next
// scheduled sync check when the scheduler is running.
type PeriodResponse struct {
	Period   generic.Period `json:"period"`
	Days     int            `json:"days"`
	NextSync *time.Time     `json:"next_sync,omitempty"`
}

// ErrorResponse represents an error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
