package results

import (
	"context"
	"fmt"
	"sync"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
)

// MemoryStore is the in-process Store, grounded on oms/service.go's
// map+mutex CRUD pattern. Used in tests and in deployments that run
// without Postgres.
type MemoryStore struct {
	mu            sync.RWMutex
	byID          map[string]*domain.AnalysisResult
	byFingerprint map[string]string // fingerprint -> most recent id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:          make(map[string]*domain.AnalysisResult),
		byFingerprint: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, r *domain.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.byID[r.ID] = &cp
	if r.Fingerprint != "" {
		s.byFingerprint[r.Fingerprint] = r.ID
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, analysiserr.NotFoundf(fmt.Sprintf("analysis result %s not found", id))
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byFingerprint[fingerprint]
	if !ok {
		return nil, analysiserr.NotFoundf(fmt.Sprintf("analysis result for fingerprint %s not found", fingerprint))
	}
	r := s.byID[id]
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, r *domain.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[r.ID]; !ok {
		return analysiserr.NotFoundf(fmt.Sprintf("analysis result %s not found", r.ID))
	}
	cp := *r
	s.byID[r.ID] = &cp
	if r.Fingerprint != "" {
		s.byFingerprint[r.Fingerprint] = r.ID
	}
	return nil
}
