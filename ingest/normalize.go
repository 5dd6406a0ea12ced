package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

// Record is one raw upstream record.
type Record map[string]any

// lookup finds the first candidate with a non-nil value.
func (r Record) lookup(keys Candidates) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	for _, k := range keys {
		for rk, v := range r {
			if v != nil && strings.EqualFold(rk, k) {
				return v, true
			}
		}
	}
	return nil, false
}

// String returns the first candidate that renders as a non-empty string.
func (r Record) String(keys Candidates) string {
	for _, k := range keys {
		v, ok := r.lookup(Candidates{k})
		if !ok {
			continue
		}
		if s := asString(v); s != "" {
			return s
		}
	}
	return ""
}

// Number returns the first candidate that parses as a finite number.
func (r Record) Number(keys Candidates) (float64, bool) {
	for _, k := range keys {
		v, ok := r.lookup(Candidates{k})
		if !ok {
			continue
		}
		if f, ok := asNumber(v); ok {
			return f, true
		}
	}
	return 0, false
}

// Time returns the first candidate that parses as a timestamp.
func (r Record) Time(keys Candidates, loc *time.Location) (time.Time, bool) {
	for _, k := range keys {
		v, ok := r.lookup(Candidates{k})
		if !ok {
			continue
		}
		if t, ok := asTime(v, loc); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// Object returns the first candidate holding a nested object.
func (r Record) Object(keys Candidates) (Record, bool) {
	for _, k := range keys {
		v, ok := r.lookup(Candidates{k})
		if !ok {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			return Record(m), true
		}
	}
	return nil, false
}

// =============================================================================
// VALUE COERCION
// =============================================================================

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func asNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// epochMillisCutoff separates epoch seconds from epoch milliseconds.
const epochMillisCutoff = 1e11

func asTime(v any, loc *time.Location) (time.Time, bool) {
	if s, ok := v.(string); ok {
		t, err := generic.ParseTimestamp(s, loc)
		return t, err == nil
	}
	f, ok := asNumber(v)
	if !ok || f <= 0 {
		return time.Time{}, false
	}
	if f >= epochMillisCutoff {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	return time.Unix(int64(f), 0).UTC(), true
}

// =============================================================================
// NORMALIZATION
// =============================================================================

// Normalizer converts raw records. Location applies to timestamps without a
// zone; nil means UTC.
type Normalizer struct {
	Location *time.Location
}

// Entry builds the canonical entry for one record.
func (n Normalizer) Entry(r Record) payroll.TimeEntry {
	e := payroll.TimeEntry{
		ID:         r.String(IDFields),
		EmployeeID: r.String(EmployeeIDFields),
		JobCode:    r.String(JobCodeFields),
		Category:   r.String(CategoryFields),
		Type:       r.String(TypeFields),
		LeaveType:  r.String(LeaveTypeFields),
	}
	e.EmployeeName = employeeName(r)

	if start, ok := r.Time(StartFields, n.Location); ok {
		e.Start = start
	} else if day, ok := r.Time(DateFields, n.Location); ok {
		e.Start = day
	}
	if end, ok := r.Time(EndFields, n.Location); ok {
		e.End = end
	}
	if d, ok := r.Number(DurationFields); ok {
		e.Duration = d
	}
	if b, ok := r.Number(BreakFields); ok && b > 0 {
		e.UnpaidBreakMinutes = b
	}
	if e.Category == "" {
		e.Category = e.JobCode
	}
	return e
}

// employeeName prefers a flat name field, then first+last, then the same
// lookups inside a nested user object.
func employeeName(r Record) string {
	if name := r.String(EmployeeNameFields); name != "" {
		return name
	}
	if name := joinName(r); name != "" {
		return name
	}
	if user, ok := r.Object(UserObjectFields); ok {
		if name := user.String(EmployeeNameFields); name != "" {
			return name
		}
		return joinName(user)
	}
	return ""
}

func joinName(r Record) string {
	return strings.TrimSpace(r.String(FirstNameFields) + " " + r.String(LastNameFields))
}

// Entries normalizes records in order. Records with no employee identity are skipped.
func (n Normalizer) Entries(records []Record) []payroll.TimeEntry {
	out := make([]payroll.TimeEntry, 0, len(records))
	for _, r := range records {
		e := n.Entry(r)
		if e.EmployeeID == "" && e.EmployeeName == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// =============================================================================
// DECODING
// =============================================================================

// DecodeRecords accepts a JSON array of records, a single record, or an
// object wrapping the array under one of EnvelopeFields.
func DecodeRecords(data []byte) ([]Record, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode time entries: %w", err)
	}
	switch v := raw.(type) {
	case []any:
		return toRecords(v), nil
	case map[string]any:
		rec := Record(v)
		if inner, ok := rec.lookup(EnvelopeFields); ok {
			if arr, ok := inner.([]any); ok {
				return toRecords(arr), nil
			}
		}
		return []Record{rec}, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("decode time entries: unexpected %T", raw)
	}
}

func toRecords(items []any) []Record {
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

// DecodeEntries decodes and normalizes in one step.
func (n Normalizer) DecodeEntries(data []byte) ([]payroll.TimeEntry, error) {
	records, err := DecodeRecords(data)
	if err != nil {
		return nil, err
	}
	return n.Entries(records), nil
}
