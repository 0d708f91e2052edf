package scheduler

import (
	"testing"
	"time"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
)

func TestComputeNextDaily(t *testing.T) {
	from := time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC)
	next, err := computeNext(domain.ScheduleDaily, "", from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2023, 1, 2, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestComputeNextWeekly(t *testing.T) {
	from := time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC)
	next, err := computeNext(domain.ScheduleWeekly, "", from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2023, 1, 8, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestComputeNextMonthlyClampsDayOfMonth(t *testing.T) {
	from := time.Date(2023, 1, 31, 9, 0, 0, 0, time.UTC)
	next, err := computeNext(domain.ScheduleMonthly, "", from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2023, 2, 28, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected clamped %v, got %v", want, next)
	}
}

func TestComputeNextCronStandardExpression(t *testing.T) {
	from := time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC)
	next, err := computeNext(domain.ScheduleCron, "0 0 * * *", from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestComputeNextCronInvalidSpecSurfacesInvalidScheduleSpec(t *testing.T) {
	_, err := computeNext(domain.ScheduleCron, "not a cron expression", time.Now())
	if !analysiserr.Is(err, analysiserr.InvalidScheduleSpec) {
		t.Fatalf("expected INVALID_SCHEDULE_SPEC, got %v", err)
	}
}
