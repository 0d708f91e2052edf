package registry

import (
	"context"
	"testing"
	"time"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/store/saved"
)

type fakeEngine struct {
	result *domain.AnalysisResult
	err    error
}

func (e *fakeEngine) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, bool, error) {
	return e.result, false, e.err
}

func newTestService(engine Engine) (*Service, *saved.MemoryStore) {
	store := saved.NewMemoryStore()
	n := 0
	svc := New(store, engine, func() string {
		n++
		return "id-" + string(rune('a'+n-1))
	})
	svc.Now = func() time.Time { return time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestSaveAnalysisConfigRejectsDuplicateNamePerUser(t *testing.T) {
	svc, _ := newTestService(&fakeEngine{})
	ctx := context.Background()

	cfg := domain.SavedAnalysis{Name: "weekly-ocean", TimePeriodID: "tp-1", CreatedBy: "user-1"}
	if _, err := svc.SaveAnalysisConfig(ctx, cfg); err != nil {
		t.Fatalf("unexpected error on first save: %v", err)
	}

	_, err := svc.SaveAnalysisConfig(ctx, cfg)
	if !analysiserr.Is(err, analysiserr.NameConflict) {
		t.Fatalf("expected NAME_CONFLICT, got %v", err)
	}

	other := cfg
	other.CreatedBy = "user-2"
	if _, err := svc.SaveAnalysisConfig(ctx, other); err != nil {
		t.Fatalf("same name for a different user should be allowed, got %v", err)
	}
}

func TestDeleteAnalysisConfigRefusedWhenScheduleActive(t *testing.T) {
	svc, _ := newTestService(&fakeEngine{})
	ctx := context.Background()

	sa, err := svc.SaveAnalysisConfig(ctx, domain.SavedAnalysis{Name: "daily-air", TimePeriodID: "tp-1", CreatedBy: "user-1"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	sched, err := svc.CreateSchedule(ctx, domain.AnalysisSchedule{
		Name: "nightly", SavedAnalysisID: sa.ID, ScheduleKind: domain.ScheduleDaily, CreatedBy: "user-1",
	})
	if err != nil {
		t.Fatalf("create schedule failed: %v", err)
	}

	if err := svc.DeleteAnalysisConfig(ctx, sa.ID); !analysiserr.Is(err, analysiserr.InUse) {
		t.Fatalf("expected IN_USE while an active schedule references the config, got %v", err)
	}

	deactivated := *sched
	deactivated.IsActive = false
	if _, err := svc.UpdateSchedule(ctx, sched.ID, deactivated); err != nil {
		t.Fatalf("deactivating schedule failed: %v", err)
	}

	if err := svc.DeleteAnalysisConfig(ctx, sa.ID); err != nil {
		t.Fatalf("expected delete to succeed once no schedule is active, got %v", err)
	}
}

func TestRunSavedStampsLastRunAtRegardlessOfOutcome(t *testing.T) {
	engineErr := analysiserr.New(analysiserr.Internal, "boom")
	svc, _ := newTestService(&fakeEngine{result: nil, err: engineErr})
	ctx := context.Background()

	sa, err := svc.SaveAnalysisConfig(ctx, domain.SavedAnalysis{Name: "weekly-ocean", TimePeriodID: "tp-1", CreatedBy: "user-1"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if sa.LastRunAt != nil {
		t.Fatalf("expected nil last_run_at before any run")
	}

	_, runErr := svc.RunSaved(ctx, sa.ID, "user-1")
	if runErr != engineErr {
		t.Fatalf("expected the engine error to propagate, got %v", runErr)
	}

	after, err := svc.GetAnalysisConfig(ctx, sa.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if after.LastRunAt == nil {
		t.Fatalf("expected last_run_at to be stamped even though the analysis failed")
	}
}

func TestRunSavedUsesStoredConfiguration(t *testing.T) {
	want := &domain.AnalysisResult{ID: "result-1", Status: domain.StatusCompleted}
	svc, _ := newTestService(&fakeEngine{result: want})
	ctx := context.Background()

	sa, err := svc.SaveAnalysisConfig(ctx, domain.SavedAnalysis{
		Name: "monthly-road", TimePeriodID: "tp-2", CreatedBy: "user-1", OutputFormat: domain.FormatCSV,
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := svc.RunSaved(ctx, sa.ID, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != want.ID {
		t.Fatalf("expected the orchestrator's result to be returned unchanged, got %v", got)
	}
}
