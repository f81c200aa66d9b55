package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/petrijr/sagaflow/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe ResultStore backed by a map.
// Results are copied on the way in and out so callers cannot mutate
// stored state.
type InMemoryStore struct {
	mu      sync.RWMutex
	results map[string]*api.RunResult
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		results: make(map[string]*api.RunResult),
	}
}

var _ ResultStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveResult(ctx context.Context, r *api.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[r.ID] = cloneResult(r)
	return nil
}

func (s *InMemoryStore) GetResult(ctx context.Context, id string) (*api.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	if !ok {
		return nil, ErrResultNotFound
	}
	return cloneResult(r), nil
}

func (s *InMemoryStore) ListResults(ctx context.Context, filter ResultFilter) ([]*api.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.RunResult
	for _, r := range s.results {
		if filter.matches(r) {
			out = append(out, cloneResult(r))
		}
	}
	sortResults(out)
	return out, nil
}

func cloneResult(r *api.RunResult) *api.RunResult {
	c := *r
	c.Steps = append([]api.StepRecord(nil), r.Steps...)
	c.Compensations = append([]api.CompensationRecord(nil), r.Compensations...)
	return &c
}

func sortResults(rs []*api.RunResult) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].StartedAt.Equal(rs[j].StartedAt) {
			return rs[i].StartedAt.Before(rs[j].StartedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
