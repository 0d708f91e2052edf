package saved

import (
	"context"
	"testing"
	"time"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
)

func newSavedAnalysis(id, createdBy, name string) *domain.SavedAnalysis {
	return &domain.SavedAnalysis{
		ID:           id,
		Name:         name,
		TimePeriodID: "tp-1",
		OutputFormat: domain.FormatJSON,
		CreatedBy:    createdBy,
		CreatedAt:    time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newSchedule(id, savedAnalysisID string, next time.Time) *domain.AnalysisSchedule {
	return &domain.AnalysisSchedule{
		ID:              id,
		Name:            "nightly",
		SavedAnalysisID: savedAnalysisID,
		ScheduleKind:    domain.ScheduleDaily,
		ScheduleSpec:    "02:00",
		IsActive:        true,
		NextRunAt:       &next,
		CreatedBy:       "u1",
		CreatedAt:       time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStoreSavedAnalysisCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateSavedAnalysis(ctx, newSavedAnalysis("sa1", "u1", "weekly lanes")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetSavedAnalysis(ctx, "sa1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "weekly lanes" {
		t.Fatalf("unexpected saved analysis: %+v", got)
	}
}

func TestMemoryStoreFindSavedAnalysisByNameScopedToOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateSavedAnalysis(ctx, newSavedAnalysis("sa1", "u1", "weekly lanes")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.FindSavedAnalysisByName(ctx, "u2", "weekly lanes"); !analysiserr.Is(err, analysiserr.NotFound) {
		t.Fatalf("expected NOT_FOUND for a different owner, got %v", err)
	}

	got, err := s.FindSavedAnalysisByName(ctx, "u1", "weekly lanes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "sa1" {
		t.Fatalf("expected sa1, got %s", got.ID)
	}
}

func TestMemoryStoreGetSavedAnalysisReturnsACopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateSavedAnalysis(ctx, newSavedAnalysis("sa1", "u1", "weekly lanes")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetSavedAnalysis(ctx, "sa1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got.Name = "mutated"

	got2, err := s.GetSavedAnalysis(ctx, "sa1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got2.Name != "weekly lanes" {
		t.Fatalf("expected stored copy to be unaffected by caller mutation, got %q", got2.Name)
	}
}

func TestMemoryStoreDeleteSavedAnalysisUnknownIDFails(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.DeleteSavedAnalysis(ctx, "ghost"); !analysiserr.Is(err, analysiserr.NotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestMemoryStoreDueSchedulesFiltersInactiveAndFuture(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Date(2023, 6, 1, 2, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := newSchedule("sched-due", "sa1", past)
	notYetDue := newSchedule("sched-future", "sa1", future)
	inactive := newSchedule("sched-inactive", "sa1", past)
	inactive.IsActive = false

	for _, sched := range []*domain.AnalysisSchedule{due, notYetDue, inactive} {
		if err := s.CreateSchedule(ctx, sched); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := s.DueSchedules(ctx, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "sched-due" {
		t.Fatalf("expected only sched-due, got %+v", got)
	}
}

func TestMemoryStoreMarkRunAdvancesNextRunAt(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	next := time.Date(2023, 6, 1, 2, 0, 0, 0, time.UTC)
	if err := s.CreateSchedule(ctx, newSchedule("sched1", "sa1", next)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ranAt := time.Date(2023, 6, 1, 2, 0, 5, 0, time.UTC)
	newNext := time.Date(2023, 6, 2, 2, 0, 0, 0, time.UTC)
	if err := s.MarkRun(ctx, "sched1", ranAt, newNext); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetSchedule(ctx, "sched1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.LastRunAt == nil || !got.LastRunAt.Equal(ranAt) {
		t.Fatalf("unexpected last_run_at: %+v", got.LastRunAt)
	}
	if got.NextRunAt == nil || !got.NextRunAt.Equal(newNext) {
		t.Fatalf("unexpected next_run_at: %+v", got.NextRunAt)
	}
}

func TestMemoryStoreDeactivateClearsActiveFlag(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	next := time.Date(2023, 6, 1, 2, 0, 0, 0, time.UTC)
	if err := s.CreateSchedule(ctx, newSchedule("sched1", "sa1", next)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Deactivate(ctx, "sched1", "invalid schedule spec"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetSchedule(ctx, "sched1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsActive {
		t.Fatalf("expected schedule to be deactivated")
	}
}
