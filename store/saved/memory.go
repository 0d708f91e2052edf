package saved

import (
	"context"
	"sync"
	"time"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
)

// MemoryStore is an in-process registry.Store and scheduler.Store,
// grounded on the map+mutex pattern of oms/service.go.
type MemoryStore struct {
	mu        sync.RWMutex
	saved     map[string]*domain.SavedAnalysis
	schedules map[string]*domain.AnalysisSchedule
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		saved:     make(map[string]*domain.SavedAnalysis),
		schedules: make(map[string]*domain.AnalysisSchedule),
	}
}

func copySavedAnalysis(sa *domain.SavedAnalysis) *domain.SavedAnalysis {
	cp := *sa
	return &cp
}

func copySchedule(sched *domain.AnalysisSchedule) *domain.AnalysisSchedule {
	cp := *sched
	return &cp
}

func (m *MemoryStore) CreateSavedAnalysis(ctx context.Context, sa *domain.SavedAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[sa.ID] = copySavedAnalysis(sa)
	return nil
}

func (m *MemoryStore) GetSavedAnalysis(ctx context.Context, id string) (*domain.SavedAnalysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sa, ok := m.saved[id]
	if !ok {
		return nil, analysiserr.NotFoundf("saved analysis " + id + " not found")
	}
	return copySavedAnalysis(sa), nil
}

func (m *MemoryStore) FindSavedAnalysisByName(ctx context.Context, createdBy, name string) (*domain.SavedAnalysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sa := range m.saved {
		if sa.CreatedBy == createdBy && sa.Name == name {
			return copySavedAnalysis(sa), nil
		}
	}
	return nil, analysiserr.NotFoundf("no saved analysis named " + name + " for this user")
}

func (m *MemoryStore) UpdateSavedAnalysis(ctx context.Context, sa *domain.SavedAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.saved[sa.ID]; !ok {
		return analysiserr.NotFoundf("saved analysis " + sa.ID + " not found")
	}
	m.saved[sa.ID] = copySavedAnalysis(sa)
	return nil
}

func (m *MemoryStore) DeleteSavedAnalysis(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.saved[id]; !ok {
		return analysiserr.NotFoundf("saved analysis " + id + " not found")
	}
	delete(m.saved, id)
	return nil
}

func (m *MemoryStore) ListSavedAnalyses(ctx context.Context, createdBy string) ([]domain.SavedAnalysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.SavedAnalysis
	for _, sa := range m.saved {
		if sa.CreatedBy == createdBy {
			out = append(out, *copySavedAnalysis(sa))
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateSchedule(ctx context.Context, sched *domain.AnalysisSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[sched.ID] = copySchedule(sched)
	return nil
}

func (m *MemoryStore) GetSchedule(ctx context.Context, id string) (*domain.AnalysisSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sched, ok := m.schedules[id]
	if !ok {
		return nil, analysiserr.NotFoundf("schedule " + id + " not found")
	}
	return copySchedule(sched), nil
}

func (m *MemoryStore) UpdateSchedule(ctx context.Context, sched *domain.AnalysisSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[sched.ID]; !ok {
		return analysiserr.NotFoundf("schedule " + sched.ID + " not found")
	}
	m.schedules[sched.ID] = copySchedule(sched)
	return nil
}

func (m *MemoryStore) DeleteSchedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return analysiserr.NotFoundf("schedule " + id + " not found")
	}
	delete(m.schedules, id)
	return nil
}

func (m *MemoryStore) ListSchedulesForSavedAnalysis(ctx context.Context, savedAnalysisID string) ([]domain.AnalysisSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AnalysisSchedule
	for _, sched := range m.schedules {
		if sched.SavedAnalysisID == savedAnalysisID {
			out = append(out, *copySchedule(sched))
		}
	}
	return out, nil
}

func (m *MemoryStore) DueSchedules(ctx context.Context, now time.Time) ([]domain.AnalysisSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AnalysisSchedule
	for _, sched := range m.schedules {
		if sched.IsActive && sched.NextRunAt != nil && !sched.NextRunAt.After(now) {
			out = append(out, *copySchedule(sched))
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkRun(ctx context.Context, scheduleID string, lastRunAt, nextRunAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sched, ok := m.schedules[scheduleID]
	if !ok {
		return analysiserr.NotFoundf("schedule " + scheduleID + " not found")
	}
	sched.LastRunAt = &lastRunAt
	sched.NextRunAt = &nextRunAt
	return nil
}

func (m *MemoryStore) Deactivate(ctx context.Context, scheduleID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sched, ok := m.schedules[scheduleID]
	if !ok {
		return analysiserr.NotFoundf("schedule " + scheduleID + " not found")
	}
	sched.IsActive = false
	return nil
}
