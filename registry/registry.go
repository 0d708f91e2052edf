// Package registry implements C9, the Saved-Analysis Registry: CRUD over
// SavedAnalysis and AnalysisSchedule with per-user name uniqueness and
// the IN_USE delete guard (spec.md §4.9).
//
// The CRUD-plus-map-plus-mutex shape is grounded on the teacher's
// oms/service.go Service (entity map, uuid-generated ids, validation
// before mutation), generalized here to two related entity maps instead
// of one and to a persistent Store abstraction instead of an in-memory
// map directly, since SavedAnalysis/AnalysisSchedule must survive a
// process restart for the Schedule Executor to find them again.
package registry

import (
	"context"
	"time"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/scheduler"
)

// Engine is the subset of the Analysis Orchestrator the registry calls
// into for RunSaved (spec.md §4.9).
type Engine interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, bool, error)
}

// Store persists SavedAnalysis and AnalysisSchedule rows.
type Store interface {
	CreateSavedAnalysis(ctx context.Context, sa *domain.SavedAnalysis) error
	GetSavedAnalysis(ctx context.Context, id string) (*domain.SavedAnalysis, error)
	FindSavedAnalysisByName(ctx context.Context, createdBy, name string) (*domain.SavedAnalysis, error)
	UpdateSavedAnalysis(ctx context.Context, sa *domain.SavedAnalysis) error
	DeleteSavedAnalysis(ctx context.Context, id string) error
	ListSavedAnalyses(ctx context.Context, createdBy string) ([]domain.SavedAnalysis, error)

	CreateSchedule(ctx context.Context, sched *domain.AnalysisSchedule) error
	GetSchedule(ctx context.Context, id string) (*domain.AnalysisSchedule, error)
	UpdateSchedule(ctx context.Context, sched *domain.AnalysisSchedule) error
	DeleteSchedule(ctx context.Context, id string) error
	ListSchedulesForSavedAnalysis(ctx context.Context, savedAnalysisID string) ([]domain.AnalysisSchedule, error)
}

// Service is the C9 business logic: CRUD with ownership plus the
// run_saved verb (spec.md §6).
type Service struct {
	Store  Store
	Engine Engine
	Now    func() time.Time
	NewID  func() string
}

func New(store Store, engine Engine, newID func() string) *Service {
	return &Service{Store: store, Engine: engine, Now: time.Now, NewID: newID}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return ""
}

// SaveAnalysisConfig creates a new SavedAnalysis, refusing a name already
// used by the same owner (spec.md §4.9: "name unique per user").
func (s *Service) SaveAnalysisConfig(ctx context.Context, cfg domain.SavedAnalysis) (*domain.SavedAnalysis, error) {
	existing, err := s.Store.FindSavedAnalysisByName(ctx, cfg.CreatedBy, cfg.Name)
	if err != nil && !analysiserr.Is(err, analysiserr.NotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, analysiserr.NameConflictf("a saved analysis named " + cfg.Name + " already exists for this user")
	}

	sa := cfg
	sa.ID = s.newID()
	sa.CreatedAt = s.now()
	if err := s.Store.CreateSavedAnalysis(ctx, &sa); err != nil {
		return nil, err
	}
	return &sa, nil
}

// UpdateAnalysisConfig updates an existing SavedAnalysis's configuration.
// A rename is refused if it collides with a different SavedAnalysis
// belonging to the same owner.
func (s *Service) UpdateAnalysisConfig(ctx context.Context, id string, cfg domain.SavedAnalysis) (*domain.SavedAnalysis, error) {
	current, err := s.Store.GetSavedAnalysis(ctx, id)
	if err != nil {
		return nil, err
	}

	if cfg.Name != current.Name {
		existing, err := s.Store.FindSavedAnalysisByName(ctx, current.CreatedBy, cfg.Name)
		if err != nil && !analysiserr.Is(err, analysiserr.NotFound) {
			return nil, err
		}
		if existing != nil && existing.ID != id {
			return nil, analysiserr.NameConflictf("a saved analysis named " + cfg.Name + " already exists for this user")
		}
	}

	updated := *current
	updated.Name = cfg.Name
	updated.Description = cfg.Description
	updated.TimePeriodID = cfg.TimePeriodID
	updated.Parameters = cfg.Parameters
	updated.OutputFormat = cfg.OutputFormat
	updated.IncludeVisualization = cfg.IncludeVisualization

	if err := s.Store.UpdateSavedAnalysis(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteAnalysisConfig removes a SavedAnalysis, refusing with IN_USE if
// any active schedule still references it (spec.md §4.9).
func (s *Service) DeleteAnalysisConfig(ctx context.Context, id string) error {
	if _, err := s.Store.GetSavedAnalysis(ctx, id); err != nil {
		return err
	}

	schedules, err := s.Store.ListSchedulesForSavedAnalysis(ctx, id)
	if err != nil {
		return err
	}
	for _, sched := range schedules {
		if sched.IsActive {
			return analysiserr.InUsef("saved analysis " + id + " has an active schedule and cannot be deleted")
		}
	}

	return s.Store.DeleteSavedAnalysis(ctx, id)
}

// GetAnalysisConfig fetches a SavedAnalysis by id.
func (s *Service) GetAnalysisConfig(ctx context.Context, id string) (*domain.SavedAnalysis, error) {
	return s.Store.GetSavedAnalysis(ctx, id)
}

// ListAnalysisConfigs lists the SavedAnalyses owned by createdBy.
func (s *Service) ListAnalysisConfigs(ctx context.Context, createdBy string) ([]domain.SavedAnalysis, error) {
	return s.Store.ListSavedAnalyses(ctx, createdBy)
}

// CreateSchedule attaches a recurrence to a SavedAnalysis. The schedule
// spec is validated with a trial scheduler.ComputeNext before it is
// persisted (spec.md §6: schedule_create surfaces INVALID_SCHEDULE_SPEC).
func (s *Service) CreateSchedule(ctx context.Context, sched domain.AnalysisSchedule) (*domain.AnalysisSchedule, error) {
	if _, err := s.Store.GetSavedAnalysis(ctx, sched.SavedAnalysisID); err != nil {
		return nil, err
	}

	now := s.now()
	next, err := scheduler.ComputeNext(sched.ScheduleKind, sched.ScheduleSpec, now)
	if err != nil {
		return nil, err
	}

	out := sched
	out.ID = s.newID()
	out.IsActive = true
	out.NextRunAt = &next
	out.CreatedAt = now
	if err := s.Store.CreateSchedule(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSchedule updates a schedule's recurrence or active flag,
// re-validating schedule_spec if it changed.
func (s *Service) UpdateSchedule(ctx context.Context, id string, sched domain.AnalysisSchedule) (*domain.AnalysisSchedule, error) {
	current, err := s.Store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *current
	updated.Name = sched.Name
	updated.ScheduleKind = sched.ScheduleKind
	updated.ScheduleSpec = sched.ScheduleSpec
	updated.IsActive = sched.IsActive

	if updated.ScheduleKind != current.ScheduleKind || updated.ScheduleSpec != current.ScheduleSpec {
		next, err := scheduler.ComputeNext(updated.ScheduleKind, updated.ScheduleSpec, s.now())
		if err != nil {
			return nil, err
		}
		updated.NextRunAt = &next
	}

	if err := s.Store.UpdateSchedule(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteSchedule removes a schedule outright (no IN_USE guard: a
// schedule has no dependents of its own).
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	if _, err := s.Store.GetSchedule(ctx, id); err != nil {
		return err
	}
	return s.Store.DeleteSchedule(ctx, id)
}

// ListSchedules lists the schedules attached to a SavedAnalysis.
func (s *Service) ListSchedules(ctx context.Context, savedAnalysisID string) ([]domain.AnalysisSchedule, error) {
	return s.Store.ListSchedulesForSavedAnalysis(ctx, savedAnalysisID)
}

// RunSaved rebuilds an AnalysisRequest from a SavedAnalysis's stored
// configuration and invokes the orchestrator, stamping last_run_at
// regardless of outcome (spec.md §4.9). It satisfies scheduler.Runner.
func (s *Service) RunSaved(ctx context.Context, savedAnalysisID, createdBy string) (*domain.AnalysisResult, error) {
	sa, err := s.Store.GetSavedAnalysis(ctx, savedAnalysisID)
	if err != nil {
		return nil, err
	}

	req := domain.AnalysisRequest{
		TimePeriodID:         sa.TimePeriodID,
		Filters:              sa.Parameters.Filters,
		OutputFormat:         sa.OutputFormat,
		IncludeVisualization: sa.IncludeVisualization,
		UserID:               createdBy,
	}

	result, _, analyzeErr := s.Engine.Analyze(ctx, req)

	if updateErr := s.UpdateLastRunAt(ctx, savedAnalysisID, s.now()); updateErr != nil {
		return result, updateErr
	}
	return result, analyzeErr
}

// UpdateLastRunAt stamps a SavedAnalysis's last_run_at, called by both
// the Schedule Executor (via RunSaved) and direct manual runs.
func (s *Service) UpdateLastRunAt(ctx context.Context, savedAnalysisID string, at time.Time) error {
	sa, err := s.Store.GetSavedAnalysis(ctx, savedAnalysisID)
	if err != nil {
		return err
	}
	sa.LastRunAt = &at
	return s.Store.UpdateSavedAnalysis(ctx, sa)
}
