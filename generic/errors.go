/*
errors.go - Centralized error types for the pay-run engine

ERROR CATEGORIES:
  1. Data errors          - never surface as errors; they degrade to warnings
  2. Resolution errors    - ErrEmployeeNotFound, ErrRateUnresolved (warnings)
  3. External errors      - ErrFetchFailed, ErrWriteFailed, *ExternalError
  4. Configuration errors - ErrInvalidRuleset, ErrInvalidPeriod (fail fast)

USAGE:
  if errors.Is(err, generic.ErrInvalidRuleset) {
      // reject before computing anything
  }
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a period is malformed or longer than MaxPeriodDays.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidRuleset is returned when a ruleset fails validation.
	ErrInvalidRuleset = errors.New("invalid ruleset")

	// ErrEmployeeNotFound is returned when an employee name cannot be matched.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrRateUnresolved is returned when a category has no earnings rate or leave type.
	ErrRateUnresolved = errors.New("rate unresolved")

	// ErrFetchFailed is returned when an external read fails.
	ErrFetchFailed = errors.New("external fetch failed")

	// ErrWriteFailed is returned when an external write fails.
	ErrWriteFailed = errors.New("external write failed")

	// ErrDuplicateIdempotencyKey is returned by writers that already accepted a key.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RulesetError names the offending ruleset field.
type RulesetError struct {
	RulesetID string
	Field     string
	Reason    string
}

func (e *RulesetError) Error() string {
	if e.RulesetID == "" {
		return fmt.Sprintf("invalid ruleset: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid ruleset %s: %s: %s", e.RulesetID, e.Field, e.Reason)
}

func (e *RulesetError) Unwrap() error {
	return ErrInvalidRuleset
}

// ExternalError describes a failed call to the external payroll system.
type ExternalError struct {
	Op     string // e.g. "list timesheets"
	Status int    // HTTP status, 0 for transport errors
	Body   string
	Kind   error // ErrFetchFailed or ErrWriteFailed
	Cause  error // transport error, nil for HTTP status failures
}

func (e *ExternalError) Error() string {
	switch {
	case e.Status == 0:
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Cause)
	default:
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
	}
}

func (e *ExternalError) Unwrap() []error {
	errs := make([]error, 0, 2)
	for _, err := range []error{e.Kind, e.Cause} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRuleset) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsExternal returns true if the error came from the external payroll system.
func IsExternal(err error) bool {
	return errors.Is(err, ErrFetchFailed) ||
		errors.Is(err, ErrWriteFailed) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}
