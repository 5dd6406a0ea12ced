package payroll

import (
	"strings"
)

// =============================================================================
// LEAVE CLASSIFIER
// =============================================================================

// leaveVocabulary is matched case-insensitively as substrings.
var leaveVocabulary = []string{
	"leave",
	"annual",
	"sick",
	"personal",
	"carer",
	"long service",
	"holiday",
	"lsl",
	"bereavement",
	"compassionate",
	"parental",
	"vacation",
	"time off",
}

// Classification is the leave/worked decision for one entry.
type Classification struct {
	IsLeave    bool
	LeaveLabel string
}

// leaveFields lists the candidate fields in priority order.
func leaveFields(e TimeEntry) []string {
	return []string{e.LeaveType, e.Type, e.Category}
}

// Classify tags an entry as leave or worked time. The first candidate field
// whose text contains any vocabulary term wins and becomes the label.
func Classify(entry TimeEntry) Classification {
	for _, field := range leaveFields(entry) {
		value := strings.TrimSpace(field)
		if value == "" {
			continue
		}
		if IsLeaveText(value) {
			return Classification{IsLeave: true, LeaveLabel: value}
		}
	}
	return Classification{}
}

// IsLeaveText reports whether s contains a leave vocabulary term.
func IsLeaveText(s string) bool {
	lower := strings.ToLower(s)
	for _, term := range leaveVocabulary {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// LeaveMinutes prefers a positive explicit Duration (> 24 means minutes,
// otherwise hours) and falls back to End-Start.
func LeaveMinutes(entry TimeEntry) int {
	if m := durationMinutes(entry.Duration); m > 0 {
		return m
	}
	if !entry.Start.IsZero() && !entry.End.IsZero() && entry.End.After(entry.Start) {
		return entry.RawMinutes()
	}
	return 0
}
