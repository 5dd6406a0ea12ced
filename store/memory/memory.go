// Package memory provides an in-memory time source.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory time source (for testing/dev)
// =============================================================================

// Memory holds normalized entries keyed by entry id. Adding an entry whose
// id is already present replaces it; entries without an id are appended.
type Memory struct {
	mu      sync.RWMutex
	entries []payroll.TimeEntry
	byID    map[string]int
}

func NewMemory(entries ...payroll.TimeEntry) *Memory {
	m := &Memory{byID: make(map[string]int)}
	m.Add(entries...)
	return m
}

// Add stores entries.
func (m *Memory) Add(entries ...payroll.TimeEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if i, ok := m.byID[e.ID]; ok && e.ID != "" {
			m.entries[i] = e
			continue
		}
		if e.ID != "" {
			m.byID[e.ID] = len(m.entries)
		}
		m.entries = append(m.entries, e)
	}
}

// Entries returns the entries whose start day falls inside period, ordered
// by start time.
func (m *Memory) Entries(_ context.Context, period generic.Period) ([]payroll.TimeEntry, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.TimeEntry
	for _, e := range m.entries {
		if !e.Start.IsZero() && period.Contains(e.Date()) {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Start.Before(result[j].Start)
	})
	return result, nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
