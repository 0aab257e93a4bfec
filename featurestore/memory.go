package featurestore

import (
	"context"
	"sort"
	"sync"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

// MemoryStore is an in-process Store with the same upsert semantics as the
// Postgres implementation. Used by tests and local dry runs.
type MemoryStore struct {
	mu     sync.Mutex
	groups map[string]map[models.RecordKey]models.TimeSeriesRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[string]map[models.RecordKey]models.TimeSeriesRecord)}
}

func (s *MemoryStore) Write(_ context.Context, group *models.FeatureGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.groups[group.Name]
	if !ok {
		records = make(map[models.RecordKey]models.TimeSeriesRecord)
		s.groups[group.Name] = records
	}
	for _, r := range group.Records {
		r.TS = r.TS.UTC()
		records[r.Key()] = r
	}
	return nil
}

func (s *MemoryStore) Read(_ context.Context, group string, entityIDs []string, window models.TimeRange) ([]models.TimeSeriesRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wanted map[string]bool
	if len(entityIDs) > 0 {
		wanted = make(map[string]bool, len(entityIDs))
		for _, id := range entityIDs {
			wanted[id] = true
		}
	}

	var out []models.TimeSeriesRecord
	for _, r := range s.groups[group] {
		if !window.Contains(r.TS) {
			continue
		}
		if wanted != nil && !wanted[r.EntityID] {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.TS.Equal(b.TS) {
			return a.TS.Before(b.TS)
		}
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		return a.Metric < b.Metric
	})
	return out, nil
}

// Len reports how many records a group holds.
func (s *MemoryStore) Len(group string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups[group])
}
