package movement

import (
	"testing"

	"github.com/freightpricing/analysisengine/aggregation"
	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/moneydecimal"
)

func meanBucket(idx int, mean string, count int) aggregation.BucketStats {
	m := moneydecimal.MustParse(mean)
	return aggregation.BucketStats{
		BucketIndex: idx,
		Partition:   aggregation.Partition{CurrencyCode: "USD", TransportMode: domain.ModeOcean},
		Count:       count,
		Mean:        &m,
	}
}

func emptyBucket(idx int) aggregation.BucketStats {
	return aggregation.BucketStats{
		BucketIndex: idx,
		Partition:   aggregation.Partition{CurrencyCode: "USD", TransportMode: domain.ModeOcean},
		Count:       0,
	}
}

// TestComputeTrivialStable mirrors spec.md §8's "7 records one per day
// all at 1000 USD OCEAN" scenario.
func TestComputeTrivialStable(t *testing.T) {
	buckets := make([]aggregation.BucketStats, 7)
	for i := range buckets {
		buckets[i] = meanBucket(i, "1000", 1)
	}
	result := &aggregation.Result{Buckets: buckets}

	agg, err := Compute(result, DefaultTrendThresholdPercent, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agg.Partitions) != 1 {
		t.Fatalf("expected 1 partition, got %d", len(agg.Partitions))
	}
	s := agg.Partitions[0]
	if !s.StartValue.Equal(moneydecimal.MustParse("1000")) {
		t.Errorf("expected start_value 1000, got %s", s.StartValue)
	}
	if !s.EndValue.Equal(moneydecimal.MustParse("1000")) {
		t.Errorf("expected end_value 1000, got %s", s.EndValue)
	}
	if !s.AbsoluteChange.IsZero() {
		t.Errorf("expected absolute_change 0, got %s", s.AbsoluteChange)
	}
	if s.PercentageChange == nil || !s.PercentageChange.IsZero() {
		t.Errorf("expected percentage_change 0, got %v", s.PercentageChange)
	}
	if s.TrendDirection != domain.TrendStable {
		t.Errorf("expected STABLE, got %s", s.TrendDirection)
	}
}

// TestComputeMonotonicIncrease mirrors spec.md §8's 3-bucket +10%-each
// scenario: means 1000/1100/1210, expect absolute=210, percentage=21.0,
// trend=INCREASING.
func TestComputeMonotonicIncrease(t *testing.T) {
	result := &aggregation.Result{Buckets: []aggregation.BucketStats{
		meanBucket(0, "1000", 5),
		meanBucket(1, "1100", 5),
		meanBucket(2, "1210", 5),
	}}

	agg, err := Compute(result, DefaultTrendThresholdPercent, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := agg.Partitions[0]
	if !s.AbsoluteChange.Equal(moneydecimal.MustParse("210")) {
		t.Errorf("expected absolute_change 210, got %s", s.AbsoluteChange)
	}
	if s.PercentageChange == nil || !s.PercentageChange.Equal(moneydecimal.MustParse("21.0")) {
		t.Errorf("expected percentage_change 21.0, got %v", s.PercentageChange)
	}
	if s.TrendDirection != domain.TrendIncreasing {
		t.Errorf("expected INCREASING, got %s", s.TrendDirection)
	}
}

// TestComputeInsufficientData mirrors spec.md §8's "fewer than two
// non-empty buckets" scenario.
func TestComputeInsufficientData(t *testing.T) {
	result := &aggregation.Result{Buckets: []aggregation.BucketStats{
		emptyBucket(0),
		meanBucket(1, "500", 1),
	}}

	_, err := Compute(result, DefaultTrendThresholdPercent, false)
	if !analysiserr.Is(err, analysiserr.InsufficientData) {
		t.Fatalf("expected INSUFFICIENT_DATA, got %v", err)
	}
}

// TestComputeNewPriceSentinel mirrors spec.md §8's "start=0, end>0"
// scenario: percentage_change is the NEW_PRICE sentinel, trend INCREASING.
func TestComputeNewPriceSentinel(t *testing.T) {
	result := &aggregation.Result{Buckets: []aggregation.BucketStats{
		meanBucket(0, "0", 1),
		meanBucket(1, "500", 1),
	}}

	agg, err := Compute(result, DefaultTrendThresholdPercent, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := agg.Partitions[0]
	if s.Sentinel != domain.SentinelNewPrice {
		t.Errorf("expected NEW_PRICE sentinel, got %q", s.Sentinel)
	}
	if s.PercentageChange != nil {
		t.Errorf("expected nil percentage_change under NEW_PRICE sentinel, got %v", s.PercentageChange)
	}
	if s.TrendDirection != domain.TrendIncreasing {
		t.Errorf("expected INCREASING, got %s", s.TrendDirection)
	}
}

// TestComputeMixedCurrencyPartitions mirrors spec.md §8's "two partitions,
// mixed_currencies=true, independently computed" scenario.
func TestComputeMixedCurrencyPartitions(t *testing.T) {
	usdMean1 := moneydecimal.MustParse("1000")
	usdMean2 := moneydecimal.MustParse("1100")
	eurMean1 := moneydecimal.MustParse("900")
	eurMean2 := moneydecimal.MustParse("900")

	result := &aggregation.Result{
		MixedCurrencies: true,
		Buckets: []aggregation.BucketStats{
			{BucketIndex: 0, Partition: aggregation.Partition{CurrencyCode: "USD"}, Count: 1, Mean: &usdMean1},
			{BucketIndex: 1, Partition: aggregation.Partition{CurrencyCode: "USD"}, Count: 1, Mean: &usdMean2},
			{BucketIndex: 0, Partition: aggregation.Partition{CurrencyCode: "EUR"}, Count: 1, Mean: &eurMean1},
			{BucketIndex: 1, Partition: aggregation.Partition{CurrencyCode: "EUR"}, Count: 1, Mean: &eurMean2},
		},
	}

	agg, err := Compute(result, DefaultTrendThresholdPercent, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !agg.MixedCurrencies {
		t.Errorf("expected MixedCurrencies=true")
	}
	if len(agg.Partitions) != 2 {
		t.Fatalf("expected 2 independent partitions, got %d", len(agg.Partitions))
	}
	byCurrency := map[string]Summary{}
	for _, s := range agg.Partitions {
		byCurrency[s.Partition.CurrencyCode] = s
	}
	if byCurrency["USD"].TrendDirection != domain.TrendIncreasing {
		t.Errorf("expected USD partition INCREASING, got %s", byCurrency["USD"].TrendDirection)
	}
	if byCurrency["EUR"].TrendDirection != domain.TrendStable {
		t.Errorf("expected EUR partition STABLE, got %s", byCurrency["EUR"].TrendDirection)
	}
}

func TestComputeWeightedAggregate(t *testing.T) {
	aMean1 := moneydecimal.MustParse("1000")
	aMean2 := moneydecimal.MustParse("1100")
	bMean1 := moneydecimal.MustParse("1000")
	bMean2 := moneydecimal.MustParse("1000")

	result := &aggregation.Result{
		Buckets: []aggregation.BucketStats{
			{BucketIndex: 0, Partition: aggregation.Partition{CurrencyCode: "USD", TransportMode: domain.ModeOcean}, Count: 3, Mean: &aMean1},
			{BucketIndex: 1, Partition: aggregation.Partition{CurrencyCode: "USD", TransportMode: domain.ModeOcean}, Count: 3, Mean: &aMean2},
			{BucketIndex: 0, Partition: aggregation.Partition{CurrencyCode: "USD", TransportMode: domain.ModeAir}, Count: 1, Mean: &bMean1},
			{BucketIndex: 1, Partition: aggregation.Partition{CurrencyCode: "USD", TransportMode: domain.ModeAir}, Count: 1, Mean: &bMean2},
		},
	}

	agg, err := Compute(result, DefaultTrendThresholdPercent, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.Weighted == nil {
		t.Fatalf("expected a weighted aggregate to be computed")
	}
	if agg.Weighted.RecordCount != 8 {
		t.Errorf("expected weighted record count 8, got %d", agg.Weighted.RecordCount)
	}
}
