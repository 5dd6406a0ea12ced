/*
rules.go - Ordered name-rule tables

PURPOSE:
  Every heuristic that turns a free-text category or catalog name into a
  decision lives here as data: an ordered list of (pattern, score) rules.
  The resolver and deriver only walk tables, so the scoring policy can be
  swapped or tested on its own.

TABLES:
  OrdinaryRules   which catalog names mean "ordinary time"
  BaseRateRules   scores a pay-template line as the ordinary hourly rate
  DoubleTimeRules, TimeAndHalfRules, OvertimeRules
                  overtime families, tried by parsed multiplier
  LeaveFamilies   ordered leave families; each has a label pattern (what the
                  time entry said) and a catalog pattern (what the external
                  leave type is called)
*/
package rates

import (
	"regexp"
	"strings"

	"github.com/warp/payroll-sync/payroll"
)

// NameRule scores names matching Pattern.
type NameRule struct {
	Pattern *regexp.Regexp
	Score   int
}

// RuleTable is an ordered set of rules.
type RuleTable []NameRule

func rule(pattern string, score int) NameRule {
	return NameRule{Pattern: regexp.MustCompile(`(?i)` + pattern), Score: score}
}

// Score returns the best score of any matching rule.
func (t RuleTable) Score(name string) (int, bool) {
	best, matched := 0, false
	name = strings.TrimSpace(name)
	for _, r := range t {
		if r.Pattern.MatchString(name) && (!matched || r.Score > best) {
			best, matched = r.Score, true
		}
	}
	return best, matched
}

// Matches reports whether any rule matches name.
func (t RuleTable) Matches(name string) bool {
	_, ok := t.Score(name)
	return ok
}

// FirstMatch returns the first catalog entry whose name matches the table,
// in catalog order. Entries rejected by keep are skipped.
func (t RuleTable) FirstMatch(catalog []payroll.RateCatalogEntry, keep func(payroll.RateCatalogEntry) bool) (payroll.RateCatalogEntry, bool) {
	for _, entry := range catalog {
		if keep != nil && !keep(entry) {
			continue
		}
		if t.Matches(entry.Name) {
			return entry, true
		}
	}
	return payroll.RateCatalogEntry{}, false
}

// =============================================================================
// EARNINGS TABLES
// =============================================================================

var (
	OrdinaryRules = RuleTable{
		rule(`ordinary|normal|base`, 1),
	}

	// BaseRateRules rank pay-template lines; KindBonus is added for catalog
	// entries flagged as ordinary.
	BaseRateRules = RuleTable{
		rule(`^\s*ordinary hours\s*$`, 100),
		rule(`ordinary`, 60),
		rule(`base|normal`, 30),
	}

	DoubleTimeRules = RuleTable{
		rule(`double|2x|x2|2\.0|\b200%`, 1),
	}

	TimeAndHalfRules = RuleTable{
		rule(`time[\s-]*(and|&)[\s-]*a[\s-]*half|1\.5x?|x1\.5|\b150%`, 1),
	}

	OvertimeRules = RuleTable{
		rule(`overtime|over time|\bot\b`, 1),
	}
)

// KindBonus is added to a base-rate score when the catalog entry's kind is ordinary.
const KindBonus = 15

// =============================================================================
// LEAVE FAMILIES
// =============================================================================

// LeaveFamily pairs the label vocabulary of one kind of leave with the
// catalog names that kind is booked against.
type LeaveFamily struct {
	Name    string
	Label   RuleTable
	Catalog RuleTable
}

// LeaveFamilies are tried in order; the first family whose Label matches wins.
var LeaveFamilies = []LeaveFamily{
	{
		Name:    "annual",
		Label:   RuleTable{rule(`annual|vacation`, 1)},
		Catalog: RuleTable{rule(`annual|vacation`, 1)},
	},
	{
		Name:    "sick",
		Label:   RuleTable{rule(`sick`, 1)},
		Catalog: RuleTable{rule(`sick|personal`, 1)},
	},
	{
		Name:    "personal",
		Label:   RuleTable{rule(`personal|carer`, 1)},
		Catalog: RuleTable{rule(`personal|carer`, 1)},
	},
	{
		Name:    "long service",
		Label:   RuleTable{rule(`long[\s-]*service|\blsl\b`, 1)},
		Catalog: RuleTable{rule(`long[\s-]*service|\blsl\b`, 1)},
	},
	{
		Name:    "public holiday",
		Label:   RuleTable{rule(`holiday`, 1)},
		Catalog: RuleTable{rule(`public holiday|holiday`, 1)},
	},
}

// GenericLeaveRules are used when a label belongs to no specific family.
var GenericLeaveRules = RuleTable{
	rule(`leave`, 1),
}

// FamilyOf returns the first leave family the label belongs to.
func FamilyOf(label string) (LeaveFamily, bool) {
	for _, f := range LeaveFamilies {
		if f.Label.Matches(label) {
			return f, true
		}
	}
	return LeaveFamily{}, false
}
