package rates

import (
	"fmt"
	"strings"

	"github.com/fiam/gounidecode/unidecode"
	"github.com/schollz/closestmatch"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"github.com/warp/payroll-sync/payroll"
)

// =============================================================================
// EMPLOYEE DIRECTORY - time-source names → external employee ids
// =============================================================================

// DefaultFuzzyThreshold is the minimum similarity for a fuzzy name match.
const DefaultFuzzyThreshold = 0.9

// Directory resolves display names against the external employee list.
//
// Lookup order: exact normalized name, "Last, First" reordered, then a fuzzy
// candidate whose similarity is at least Threshold. Fuzzy matches carry a
// warning so a reviewer can confirm them.
type Directory struct {
	Threshold float64

	byName  map[string]string
	names   []string
	matcher *closestmatch.ClosestMatch
}

// NewDirectory indexes active employees. Duplicate normalized names keep the
// first employee. threshold <= 0 disables fuzzy matching.
func NewDirectory(employees []payroll.Employee, threshold float64) *Directory {
	d := &Directory{Threshold: threshold, byName: make(map[string]string)}
	for _, emp := range employees {
		if !IsActive(emp) {
			continue
		}
		key := NormalizeName(emp.FullName())
		if key == "" {
			continue
		}
		if _, dup := d.byName[key]; dup {
			continue
		}
		d.byName[key] = emp.ID
		d.names = append(d.names, key)
	}
	if threshold > 0 && len(d.names) > 0 {
		d.matcher = closestmatch.New(d.names, []int{2, 3})
	}
	return d
}

// NormalizeName folds diacritics, lowercases and collapses whitespace.
func NormalizeName(name string) string {
	name = strings.ToLower(unidecode.Unidecode(strings.TrimSpace(name)))
	return strings.Join(strings.Fields(name), " ")
}

// Lookup resolves a name. warning is non-nil for fuzzy matches.
func (d *Directory) Lookup(name string) (id string, warning *payroll.Warning, ok bool) {
	key := NormalizeName(name)
	if key == "" {
		return "", nil, false
	}
	if id, ok := d.byName[key]; ok {
		return id, nil, true
	}
	if last, first, found := strings.Cut(key, ","); found {
		reordered := NormalizeName(first + " " + last)
		if id, ok := d.byName[reordered]; ok {
			return id, nil, true
		}
		key = reordered
	}
	if d.matcher == nil {
		return "", nil, false
	}

	candidate := d.matcher.Closest(key)
	if candidate == "" {
		return "", nil, false
	}
	score := Similarity(key, candidate)
	if score < d.Threshold {
		return "", nil, false
	}
	return d.byName[candidate], &payroll.Warning{
		Kind:     payroll.WarnFuzzyEmployee,
		Employee: name,
		Message:  fmt.Sprintf("%q matched %q (similarity %.2f)", name, candidate, score),
	}, true
}

// Similarity is 1 - levenshtein distance / longer length, in [0, 1].
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptionsWithSub)
	return 1 - float64(dist)/float64(maxLen)
}
