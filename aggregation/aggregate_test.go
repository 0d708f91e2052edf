package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/moneydecimal"
	"github.com/freightpricing/analysisengine/timeperiod"
)

// sliceStream is a RecordStream over an in-memory slice, used by tests.
type sliceStream struct {
	records []domain.FreightRecord
	i       int
}

func (s *sliceStream) Next(ctx context.Context) (domain.FreightRecord, bool, error) {
	if s.i >= len(s.records) {
		return domain.FreightRecord{}, false, nil
	}
	r := s.records[s.i]
	s.i++
	return r, true, nil
}

func rec(date string, charge string, currency string, mode domain.TransportMode) domain.FreightRecord {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return domain.FreightRecord{
		ID:            "r-" + date,
		RecordDate:    d.UTC(),
		FreightCharge: moneydecimal.MustParse(charge),
		CurrencyCode:  currency,
		TransportMode: mode,
	}
}

func dailyBuckets(t *testing.T, start, end string) []timeperiod.Bucket {
	t.Helper()
	tp := domain.TimePeriod{
		StartDate:   mustParseDate(start),
		EndDate:     mustParseDate(end),
		Granularity: domain.Daily,
	}
	buckets, err := timeperiod.Expand(tp)
	if err != nil {
		t.Fatalf("unexpected error expanding buckets: %v", err)
	}
	return buckets
}

func mustParseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestAggregateBasicMeanMedian(t *testing.T) {
	buckets := dailyBuckets(t, "2023-01-01", "2023-01-02")
	stream := &sliceStream{records: []domain.FreightRecord{
		rec("2023-01-01", "100.00", "USD", domain.ModeOcean),
		rec("2023-01-01", "200.00", "USD", domain.ModeOcean),
		rec("2023-01-01", "300.00", "USD", domain.ModeOcean),
	}}

	result, err := Aggregate(context.Background(), buckets, stream, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Buckets) != 1 {
		t.Fatalf("expected 1 populated bucket, got %d", len(result.Buckets))
	}
	bs := result.Buckets[0]
	if bs.Count != 3 {
		t.Fatalf("expected count 3, got %d", bs.Count)
	}
	if bs.Mean == nil || bs.Mean.String() != "200.000000" {
		t.Errorf("expected mean 200.000000, got %v", bs.Mean)
	}
	if bs.Median == nil || bs.Median.String() != "200.00" {
		t.Errorf("expected median 200.00, got %v", bs.Median)
	}
	if bs.Min == nil || bs.Min.String() != "100.00" {
		t.Errorf("expected min 100.00, got %v", bs.Min)
	}
	if bs.Max == nil || bs.Max.String() != "300.00" {
		t.Errorf("expected max 300.00, got %v", bs.Max)
	}
}

func TestAggregateEmptyBucketsOmitted(t *testing.T) {
	buckets := dailyBuckets(t, "2023-01-01", "2023-01-04")
	stream := &sliceStream{records: []domain.FreightRecord{
		rec("2023-01-01", "100.00", "USD", domain.ModeOcean),
		rec("2023-01-03", "150.00", "USD", domain.ModeOcean),
	}}

	result, err := Aggregate(context.Background(), buckets, stream, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Day 2 (01-02) has no records and must not appear as a zero-stat bucket.
	if len(result.Buckets) != 2 {
		t.Fatalf("expected 2 populated buckets, got %d", len(result.Buckets))
	}
	for _, bs := range result.Buckets {
		if bs.Bucket.Start.Day() == 2 {
			t.Fatalf("empty bucket for day 2 should not appear in output")
		}
	}
}

func TestAggregateRecordsOutsidePeriodIgnored(t *testing.T) {
	buckets := dailyBuckets(t, "2023-01-01", "2023-01-02")
	stream := &sliceStream{records: []domain.FreightRecord{
		rec("2022-12-31", "999.00", "USD", domain.ModeOcean),
		rec("2023-01-01", "100.00", "USD", domain.ModeOcean),
		rec("2023-01-05", "999.00", "USD", domain.ModeOcean),
	}}

	result, err := Aggregate(context.Background(), buckets, stream, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Buckets) != 1 || result.Buckets[0].Count != 1 {
		t.Fatalf("expected exactly the in-period record to be counted, got %+v", result.Buckets)
	}
}

func TestAggregateCurrencyPartitioning(t *testing.T) {
	buckets := dailyBuckets(t, "2023-01-01", "2023-01-02")
	stream := &sliceStream{records: []domain.FreightRecord{
		rec("2023-01-01", "100.00", "USD", domain.ModeOcean),
		rec("2023-01-01", "100.00", "EUR", domain.ModeOcean),
	}}

	result, err := Aggregate(context.Background(), buckets, stream, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.MixedCurrencies {
		t.Errorf("expected MixedCurrencies=true with USD and EUR present")
	}
	if len(result.Buckets) != 2 {
		t.Fatalf("expected one partition per currency, got %d", len(result.Buckets))
	}
}

func TestAggregateCollapseModes(t *testing.T) {
	buckets := dailyBuckets(t, "2023-01-01", "2023-01-02")
	stream := &sliceStream{records: []domain.FreightRecord{
		rec("2023-01-01", "100.00", "USD", domain.ModeOcean),
		rec("2023-01-01", "100.00", "USD", domain.ModeAir),
	}}

	result, err := Aggregate(context.Background(), buckets, stream, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Buckets) != 1 {
		t.Fatalf("expected modes collapsed into a single partition, got %d", len(result.Buckets))
	}
	if result.Buckets[0].Count != 2 {
		t.Fatalf("expected count 2 for collapsed partition, got %d", result.Buckets[0].Count)
	}
}

func TestAggregateDoesNotCollapseModesByDefault(t *testing.T) {
	buckets := dailyBuckets(t, "2023-01-01", "2023-01-02")
	stream := &sliceStream{records: []domain.FreightRecord{
		rec("2023-01-01", "100.00", "USD", domain.ModeOcean),
		rec("2023-01-01", "100.00", "USD", domain.ModeAir),
	}}

	result, err := Aggregate(context.Background(), buckets, stream, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Buckets) != 2 {
		t.Fatalf("expected one partition per transport mode, got %d", len(result.Buckets))
	}
}
