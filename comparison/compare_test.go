package comparison

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/moneydecimal"
)

type fakeEngine struct {
	byPeriod map[string]*domain.AnalysisResult
}

func (f *fakeEngine) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, bool, error) {
	return f.byPeriod[req.TimePeriodID], false, nil
}

func meanBucketsResult(means ...string) json.RawMessage {
	type bucket struct {
		Mean *moneydecimal.Decimal `json:"mean"`
	}
	payload := struct {
		Buckets []bucket `json:"buckets"`
	}{}
	for _, m := range means {
		d := moneydecimal.MustParse(m)
		payload.Buckets = append(payload.Buckets, bucket{Mean: &d})
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func completedResult(endValue string, results json.RawMessage) *domain.AnalysisResult {
	end := moneydecimal.MustParse(endValue)
	return &domain.AnalysisResult{
		Status:   domain.StatusCompleted,
		EndValue: &end,
		Results:  results,
	}
}

func TestCompareEqualLengthBuckets(t *testing.T) {
	engine := &fakeEngine{byPeriod: map[string]*domain.AnalysisResult{
		"base": completedResult("1100.00", meanBucketsResult("1000.00", "1050.00", "1100.00")),
		"cmp":  completedResult("1000.00", meanBucketsResult("900.00", "950.00", "1000.00")),
	}}
	svc := New(engine)

	report, err := svc.Compare(context.Background(), "base", "cmp", domain.Filter{}, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.LengthMismatch {
		t.Errorf("expected no length mismatch for equal-length series")
	}
	if len(report.Buckets) != 3 {
		t.Fatalf("expected 3 aligned buckets, got %d", len(report.Buckets))
	}
	if report.AbsoluteDelta == nil || report.AbsoluteDelta.String() != "100.00" {
		t.Fatalf("expected absolute delta 100.00, got %+v", report.AbsoluteDelta)
	}
}

func TestCompareLengthMismatchRightPadsShorter(t *testing.T) {
	engine := &fakeEngine{byPeriod: map[string]*domain.AnalysisResult{
		"base": completedResult("1200.00", meanBucketsResult("1000.00", "1100.00", "1200.00")),
		"cmp":  completedResult("1000.00", meanBucketsResult("1000.00")),
	}}
	svc := New(engine)

	report, err := svc.Compare(context.Background(), "base", "cmp", domain.Filter{}, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.LengthMismatch {
		t.Errorf("expected length mismatch to be flagged")
	}
	if len(report.Buckets) != 3 {
		t.Fatalf("expected 3 aligned buckets (right-padded), got %d", len(report.Buckets))
	}
	if report.Buckets[1].ComparisonValue != nil {
		t.Errorf("expected the comparison series to be right-padded with nil past its length")
	}
	if report.Buckets[0].BaseValue == nil || report.Buckets[0].ComparisonValue == nil {
		t.Errorf("expected the first bucket pair to have both values present")
	}
}

func TestCompareFailurePropagates(t *testing.T) {
	engine := &fakeEngine{byPeriod: map[string]*domain.AnalysisResult{
		"base": {Status: domain.StatusFailed, ErrorMessage: "boom"},
		"cmp":  completedResult("1000.00", meanBucketsResult("1000.00")),
	}}
	svc := New(engine)

	_, err := svc.Compare(context.Background(), "base", "cmp", domain.Filter{}, "user-1")
	if err == nil {
		t.Fatalf("expected an error when the base analysis failed")
	}
}
