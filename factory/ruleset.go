/*
Package factory provides JSON to Go ruleset conversion.

PURPOSE:
  Converts JSON overtime rulesets into payroll.Ruleset values so a company
  can change ordinary hours, tiers and the lunch rule without code changes.
  Invalid configuration fails here, before any time entry is computed.

JSON SCHEMA:
  {
    "id": "standard",
    "name": "Standard 8h day",
    "ordinary_minutes_per_day": 480,
    "tiers": [
      {"label": "OT1.5", "multiplier": 1.5, "first_minutes": 120},
      {"label": "OT2.0", "multiplier": 2.0}
    ],
    "lunch": {"minutes": 30, "paid": false}
  }

VALIDATION (fail fast, *generic.RulesetError):
  - at least one tier
  - every multiplier > 0
  - only the last tier may omit first_minutes
  - ordinary_minutes_per_day >= 0, first_minutes > 0 when present

BOOK SCHEMA (per-job / per-employee overrides):
  {
    "default":   { ...ruleset... },
    "jobs":      { "JB-1001": { ...ruleset... } },
    "employees": { "Ada Lovelace": { ...ruleset... } }
  }
  Employee keys match the entry's employee id or name; jobs match JobCode.

SEE ALSO:
  - payroll/tiers.go: how a ruleset is applied
  - payroll/rulesets.go: Go presets
*/
package factory

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RulesetJSON is the JSON representation of a ruleset.
type RulesetJSON struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name,omitempty"`
	OrdinaryMinutesPerDay int        `json:"ordinary_minutes_per_day" validate:"gte=0"`
	Tiers                 []TierJSON `json:"tiers" validate:"required,min=1,dive"`
	Lunch                 *LunchJSON `json:"lunch,omitempty"`
}

// TierJSON represents one overtime tier.
type TierJSON struct {
	Label        string  `json:"label,omitempty"`
	Multiplier   float64 `json:"multiplier" validate:"gt=0"`
	FirstMinutes *int    `json:"first_minutes,omitempty" validate:"omitempty,gt=0"`
}

// LunchJSON represents the lunch rule.
type LunchJSON struct {
	Minutes        int      `json:"minutes" validate:"gte=0"`
	Paid           bool     `json:"paid"`
	WorkMultiplier *float64 `json:"work_multiplier,omitempty" validate:"omitempty,gt=0"`
}

// BookJSON is a default ruleset plus overrides.
type BookJSON struct {
	Default   RulesetJSON            `json:"default"`
	Jobs      map[string]RulesetJSON `json:"jobs,omitempty"`
	Employees map[string]RulesetJSON `json:"employees,omitempty"`
}

// =============================================================================
// RULESET FACTORY
// =============================================================================

// RulesetFactory converts JSON rulesets to payroll.Ruleset.
type RulesetFactory struct {
	validate *validator.Validate
}

// NewRulesetFactory creates a new ruleset factory.
func NewRulesetFactory() *RulesetFactory {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return &RulesetFactory{validate: v}
}

// ParseRuleset parses and validates a JSON ruleset.
func (f *RulesetFactory) ParseRuleset(data []byte) (payroll.Ruleset, error) {
	var rj RulesetJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return payroll.Ruleset{}, fmt.Errorf("failed to parse ruleset JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON validates rj and converts it.
func (f *RulesetFactory) FromJSON(rj RulesetJSON) (payroll.Ruleset, error) {
	if err := f.check(rj); err != nil {
		return payroll.Ruleset{}, err
	}

	rs := payroll.Ruleset{
		ID:                    rj.ID,
		Name:                  rj.Name,
		OrdinaryMinutesPerDay: rj.OrdinaryMinutesPerDay,
	}
	for _, tj := range rj.Tiers {
		tier := payroll.Tier{
			Label:      tj.Label,
			Multiplier: decimal.NewFromFloat(tj.Multiplier),
		}
		if tj.FirstMinutes != nil {
			tier.FirstMinutes = payroll.FirstMinutes(*tj.FirstMinutes)
		}
		rs.Tiers = append(rs.Tiers, tier)
	}
	if rj.Lunch != nil && rj.Lunch.Minutes > 0 {
		lunch := &payroll.LunchRule{Minutes: rj.Lunch.Minutes, Paid: rj.Lunch.Paid}
		if rj.Lunch.WorkMultiplier != nil {
			lunch.WorkMultiplier = decimal.NewFromFloat(*rj.Lunch.WorkMultiplier)
		}
		rs.Lunch = lunch
	}
	return rs, nil
}

// ToJSON is the inverse of FromJSON, used when persisting rulesets.
func ToJSON(rs payroll.Ruleset) RulesetJSON {
	rj := RulesetJSON{ID: rs.ID, Name: rs.Name, OrdinaryMinutesPerDay: rs.OrdinaryMinutesPerDay}
	for _, t := range rs.Tiers {
		tj := TierJSON{Label: t.Label, Multiplier: t.Multiplier.InexactFloat64()}
		if t.FirstMinutes != nil {
			first := *t.FirstMinutes
			tj.FirstMinutes = &first
		}
		rj.Tiers = append(rj.Tiers, tj)
	}
	if rs.Lunch != nil {
		rj.Lunch = &LunchJSON{Minutes: rs.Lunch.Minutes, Paid: rs.Lunch.Paid}
		if !rs.Lunch.WorkMultiplier.IsZero() {
			m := rs.Lunch.WorkMultiplier.InexactFloat64()
			rj.Lunch.WorkMultiplier = &m
		}
	}
	return rj
}

// check runs struct validation, then the ordering rule the tags cannot express.
func (f *RulesetFactory) check(rj RulesetJSON) error {
	if err := f.validate.Struct(rj); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &generic.RulesetError{
				RulesetID: rj.ID,
				Field:     strings.TrimPrefix(fe.Namespace(), "RulesetJSON."),
				Reason:    reason(fe),
			}
		}
		return &generic.RulesetError{RulesetID: rj.ID, Field: "ruleset", Reason: err.Error()}
	}
	for i, t := range rj.Tiers {
		if t.FirstMinutes == nil && i != len(rj.Tiers)-1 {
			return &generic.RulesetError{
				RulesetID: rj.ID,
				Field:     fmt.Sprintf("tiers[%d].first_minutes", i),
				Reason:    "only the last tier may omit first_minutes",
			}
		}
	}
	return nil
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "min":
		if fe.Kind().String() == "slice" {
			return "at least one tier is required"
		}
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// =============================================================================
// BOOK - per-job and per-employee overrides
// =============================================================================

// Book selects a ruleset per entry: employee override, then job override,
// then the default. It implements payroll.RulesetSelector.
type Book struct {
	Default    payroll.Ruleset
	ByJob      map[string]payroll.Ruleset
	ByEmployee map[string]payroll.Ruleset
}

// NewBook returns a book with only a default ruleset.
func NewBook(def payroll.Ruleset) *Book {
	return &Book{
		Default:    def,
		ByJob:      make(map[string]payroll.Ruleset),
		ByEmployee: make(map[string]payroll.Ruleset),
	}
}

// For picks the ruleset for an entry.
func (b *Book) For(entry payroll.TimeEntry) payroll.Ruleset {
	for _, key := range []string{entry.EmployeeID, entry.EmployeeName} {
		if key == "" {
			continue
		}
		if rs, ok := b.ByEmployee[nameKey(key)]; ok {
			return rs
		}
	}
	if rs, ok := b.ByJob[strings.TrimSpace(entry.JobCode)]; ok && entry.JobCode != "" {
		return rs
	}
	return b.Default
}

// SetEmployee registers an override by employee id or display name.
func (b *Book) SetEmployee(key string, rs payroll.Ruleset) {
	b.ByEmployee[nameKey(key)] = rs
}

func nameKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ParseBook parses and validates a book. Every ruleset must be valid.
func (f *RulesetFactory) ParseBook(data []byte) (*Book, error) {
	var bj BookJSON
	if err := json.Unmarshal(data, &bj); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset book JSON: %w", err)
	}
	def, err := f.FromJSON(bj.Default)
	if err != nil {
		return nil, err
	}
	book := NewBook(def)
	for job, rj := range bj.Jobs {
		rs, err := f.FromJSON(rj)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", job, err)
		}
		book.ByJob[strings.TrimSpace(job)] = rs
	}
	for emp, rj := range bj.Employees {
		rs, err := f.FromJSON(rj)
		if err != nil {
			return nil, fmt.Errorf("employee %s: %w", emp, err)
		}
		book.SetEmployee(emp, rs)
	}
	return book, nil
}

// LoadBookFile reads a ruleset file. A file holding a single ruleset (no
// "default" key) becomes a book with no overrides.
func (f *RulesetFactory) LoadBookFile(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset file: %w", err)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset file: %w", err)
	}
	if _, ok := probe["default"]; ok {
		return f.ParseBook(data)
	}
	rs, err := f.ParseRuleset(data)
	if err != nil {
		return nil, err
	}
	return NewBook(rs), nil
}

var _ payroll.RulesetSelector = (*Book)(nil)
