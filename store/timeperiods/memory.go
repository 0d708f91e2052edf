package timeperiods

import (
	"context"
	"sync"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
)

// MemoryStore mirrors oms/service.go's map+mutex CRUD shape for tests
// and for deployments without Postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	periods map[string]*domain.TimePeriod
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{periods: make(map[string]*domain.TimePeriod)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.TimePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tp, ok := s.periods[id]
	if !ok {
		return nil, analysiserr.NotFoundf("time period " + id + " not found")
	}
	cp := *tp
	return &cp, nil
}

func (s *MemoryStore) Create(ctx context.Context, tp *domain.TimePeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *tp
	s.periods[tp.ID] = &cp
	return nil
}
