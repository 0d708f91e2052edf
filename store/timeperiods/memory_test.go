package timeperiods

import (
	"context"
	"testing"
	"time"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tp := &domain.TimePeriod{
		ID:          "tp1",
		Name:        "Q1 2023",
		StartDate:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC),
		Granularity: domain.Monthly,
		CreatedBy:   "u1",
	}
	if err := s.Create(ctx, tp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "tp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Q1 2023" || got.Granularity != domain.Monthly {
		t.Fatalf("unexpected time period: %+v", got)
	}
}

func TestMemoryStoreGetUnknownIDFails(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "ghost"); !analysiserr.Is(err, analysiserr.NotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestMemoryStoreGetReturnsACopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tp := &domain.TimePeriod{
		ID:          "tp1",
		Name:        "Q1 2023",
		StartDate:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC),
		Granularity: domain.Monthly,
	}
	if err := s.Create(ctx, tp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "tp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got.Name = "mutated"

	got2, err := s.Get(ctx, "tp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got2.Name != "Q1 2023" {
		t.Fatalf("expected stored copy to be unaffected by caller mutation, got %q", got2.Name)
	}
}
