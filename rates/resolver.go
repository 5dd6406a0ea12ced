package rates

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-sync/payroll"
)

// =============================================================================
// RATE RESOLVER
// =============================================================================

// Resolver maps pay-line categories to external earnings-rate and leave-type ids.
// It holds a read-only catalog snapshot for one run.
type Resolver struct {
	earnings   []payroll.RateCatalogEntry
	leaveTypes []payroll.RateCatalogEntry
	byID       map[string]payroll.RateCatalogEntry
}

// NewResolver snapshots the catalogs. Catalog order is preserved and breaks ties.
func NewResolver(earnings, leaveTypes []payroll.RateCatalogEntry) *Resolver {
	r := &Resolver{
		earnings:   append([]payroll.RateCatalogEntry(nil), earnings...),
		leaveTypes: append([]payroll.RateCatalogEntry(nil), leaveTypes...),
		byID:       make(map[string]payroll.RateCatalogEntry, len(earnings)),
	}
	for _, e := range r.earnings {
		r.byID[e.ID] = e
	}
	return r
}

// Earnings returns the earnings catalog snapshot.
func (r *Resolver) Earnings() []payroll.RateCatalogEntry { return r.earnings }

// EarningsRate looks up an earnings rate by id.
func (r *Resolver) EarningsRate(id string) (payroll.RateCatalogEntry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

func notLeave(e payroll.RateCatalogEntry) bool { return e.Kind != payroll.KindLeave }

// ResolveEarnings resolves a worked category. ordinaryRateID is the
// employee's own default ordinary rate and may be empty.
//
// Order: ordinary/lunch → employee default, then ordinary name rules;
// otherwise an exact catalog name, then the overtime family chosen by the
// multiplier parsed from the category, then generic overtime.
func (r *Resolver) ResolveEarnings(category, ordinaryRateID string) (string, bool) {
	cat := strings.ToLower(strings.TrimSpace(category))
	if cat == "" {
		return "", false
	}

	if cat == payroll.CategoryOrdinary || cat == payroll.CategoryLunch {
		if ordinaryRateID != "" {
			if _, ok := r.byID[ordinaryRateID]; ok || len(r.byID) == 0 {
				return ordinaryRateID, true
			}
		}
		if e, ok := OrdinaryRules.FirstMatch(r.earnings, notLeave); ok {
			return e.ID, true
		}
		return "", false
	}

	if e, ok := exactName(r.earnings, cat); ok {
		return e.ID, true
	}

	if mult, ok := ParseMultiplier(cat); ok {
		if table := overtimeFamily(mult); table != nil {
			if e, ok := table.FirstMatch(r.earnings, notLeave); ok {
				return e.ID, true
			}
		}
		if e, ok := OvertimeRules.FirstMatch(r.earnings, notLeave); ok {
			return e.ID, true
		}
		return "", false
	}

	if OvertimeRules.Matches(cat) {
		if e, ok := OvertimeRules.FirstMatch(r.earnings, notLeave); ok {
			return e.ID, true
		}
	}
	return "", false
}

// ResolveLeave resolves a leave label: exact leave-type name, then the
// label's leave family, then a generic "leave" type for labels outside
// every family.
func (r *Resolver) ResolveLeave(label string) (string, bool) {
	e, _, ok := r.ResolveLeaveType(label)
	return e.ID, ok
}

// ResolveLeaveType is ResolveLeave returning the catalog entry. fallback is
// true when only the generic "leave" rule matched, so the entry may belong
// to a different kind of leave than the label.
func (r *Resolver) ResolveLeaveType(label string) (entry payroll.RateCatalogEntry, fallback bool, ok bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return payroll.RateCatalogEntry{}, false, false
	}
	if e, ok := exactName(r.leaveTypes, label); ok {
		return e, false, true
	}
	if family, ok := FamilyOf(label); ok {
		if e, ok := family.Catalog.FirstMatch(r.leaveTypes, nil); ok {
			return e, false, true
		}
		return payroll.RateCatalogEntry{}, false, false
	}
	if e, ok := GenericLeaveRules.FirstMatch(r.leaveTypes, nil); ok {
		return e, true, true
	}
	return payroll.RateCatalogEntry{}, false, false
}

func exactName(catalog []payroll.RateCatalogEntry, name string) (payroll.RateCatalogEntry, bool) {
	for _, e := range catalog {
		if strings.EqualFold(strings.TrimSpace(e.Name), strings.TrimSpace(name)) {
			return e, true
		}
	}
	return payroll.RateCatalogEntry{}, false
}

// =============================================================================
// OVERTIME MULTIPLIER TOKEN
// =============================================================================

var multiplierToken = regexp.MustCompile(`(\d+(?:\.\d+)?)`)

var (
	doubleThreshold = decimal.RequireFromString("1.9")
	halfThreshold   = decimal.RequireFromString("1.4")
)

// ParseMultiplier extracts the first number in a category label ("OT1.5" → 1.5).
func ParseMultiplier(category string) (decimal.Decimal, bool) {
	m := multiplierToken.FindString(category)
	if m == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(m)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// overtimeFamily picks the name rules for a multiplier: ≥ 1.9 double time,
// [1.4, 1.9) time and a half, anything else only generic overtime.
func overtimeFamily(mult decimal.Decimal) RuleTable {
	switch {
	case mult.GreaterThanOrEqual(doubleThreshold):
		return DoubleTimeRules
	case mult.GreaterThanOrEqual(halfThreshold):
		return TimeAndHalfRules
	default:
		return nil
	}
}
