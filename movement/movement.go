// Package movement implements C4, the Movement Calculator: turning a
// bucket series (produced by the Aggregation Engine) into start/end
// values, absolute and percentage change, and a trend classification
// (spec.md §4.4).
package movement

import (
	"sort"

	"github.com/freightpricing/analysisengine/aggregation"
	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/moneydecimal"
)

// DefaultTrendThresholdPercent is the core ±1% trend-classification
// constant (spec.md §4.4), overridable via config.EngineConfig.
const DefaultTrendThresholdPercent = 1.0

// Summary is the computed movement for a single partition.
type Summary struct {
	Partition        aggregation.Partition
	StartValue       moneydecimal.Decimal
	EndValue         moneydecimal.Decimal
	AbsoluteChange   moneydecimal.Decimal
	PercentageChange *moneydecimal.Decimal // nil iff Sentinel != SentinelNone
	Sentinel         domain.PercentSentinel
	TrendDirection   domain.TrendDirection
	RecordCount      int
	BucketDeltas     []BucketDelta
}

// BucketDelta is the per-bucket change relative to the previous non-empty
// bucket in the same partition, for the "per-bucket deltas" requirement
// in spec.md §4.4.
type BucketDelta struct {
	BucketIndex      int
	Mean             moneydecimal.Decimal
	AbsoluteChange   *moneydecimal.Decimal // nil for the first non-empty bucket
	PercentageChange *moneydecimal.Decimal
	Sentinel         domain.PercentSentinel
}

// Aggregate is the top-level result across all partitions: one Summary
// per partition, plus an optional record-count-weighted aggregate
// (spec.md §4.4: "if requested, a weighted aggregate by record_count").
type Aggregate struct {
	Partitions       []Summary
	Weighted         *Summary
	MixedCurrencies  bool
}

// Compute runs C4 over the full aggregation result, independently per
// partition (spec.md §4.4: "For multi-partition series, C4 runs
// independently per partition"), and optionally folds them into a
// record-count-weighted aggregate.
func Compute(result *aggregation.Result, trendThresholdPercent float64, includeWeighted bool) (*Aggregate, error) {
	byPartition := make(map[string][]aggregation.BucketStats)
	var order []string
	for _, bs := range result.Buckets {
		key := partitionKey(bs.Partition)
		if _, ok := byPartition[key]; !ok {
			order = append(order, key)
		}
		byPartition[key] = append(byPartition[key], bs)
	}
	sort.Strings(order)

	partitionOf := make(map[string]aggregation.Partition)
	for _, bs := range result.Buckets {
		partitionOf[partitionKey(bs.Partition)] = bs.Partition
	}

	out := &Aggregate{MixedCurrencies: result.MixedCurrencies}
	for _, key := range order {
		series := byPartition[key]
		sort.Slice(series, func(i, j int) bool { return series[i].BucketIndex < series[j].BucketIndex })
		summary, err := computeOne(partitionOf[key], series, trendThresholdPercent)
		if err != nil {
			return nil, err
		}
		out.Partitions = append(out.Partitions, *summary)
	}

	if includeWeighted && len(out.Partitions) > 0 {
		weighted, err := weightedAggregate(out.Partitions, trendThresholdPercent)
		if err != nil {
			return nil, err
		}
		out.Weighted = weighted
	}

	return out, nil
}

// computeOne implements the single-partition rule from spec.md §4.4.
func computeOne(p aggregation.Partition, series []aggregation.BucketStats, trendThresholdPercent float64) (*Summary, error) {
	nonEmpty := make([]aggregation.BucketStats, 0, len(series))
	for _, bs := range series {
		if bs.Count > 0 {
			nonEmpty = append(nonEmpty, bs)
		}
	}
	if len(nonEmpty) < 2 {
		return nil, analysiserr.InsufficientDataf("fewer than two non-empty buckets in partition")
	}

	startValue := *nonEmpty[0].Mean
	endValue := *nonEmpty[len(nonEmpty)-1].Mean

	absChange, err := endValue.Sub(startValue)
	if err != nil {
		return nil, err
	}

	pctChange, sentinel, err := percentageChange(startValue, endValue, absChange)
	if err != nil {
		return nil, err
	}

	trend := classifyTrend(pctChange, sentinel, trendThresholdPercent)

	recordCount := 0
	for _, bs := range series {
		recordCount += bs.Count
	}

	deltas, err := perBucketDeltas(nonEmpty)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Partition:        p,
		StartValue:       startValue,
		EndValue:         endValue,
		AbsoluteChange:   absChange,
		PercentageChange: pctChange,
		Sentinel:         sentinel,
		TrendDirection:   trend,
		RecordCount:      recordCount,
		BucketDeltas:     deltas,
	}, nil
}

// percentageChange implements spec.md §4.4's division-by-zero handling.
func percentageChange(startValue, endValue, absChange moneydecimal.Decimal) (*moneydecimal.Decimal, domain.PercentSentinel, error) {
	if startValue.Sign() > 0 {
		pct, err := absChange.Mul(moneydecimal.FromInt64(100))
		if err != nil {
			return nil, domain.SentinelNone, err
		}
		pct, err = pct.Quo(startValue)
		if err != nil {
			return nil, domain.SentinelNone, err
		}
		return &pct, domain.SentinelNone, nil
	}
	// startValue == 0 (freight charges are non-negative, so start < 0 cannot occur)
	switch {
	case endValue.IsZero():
		zero := moneydecimal.Zero
		return &zero, domain.SentinelNone, nil
	case endValue.Sign() > 0:
		return nil, domain.SentinelNewPrice, nil
	default:
		return nil, domain.SentinelNewDiscount, nil
	}
}

// classifyTrend implements the ±threshold rule from spec.md §4.4. A
// sentinel always carries its own trend direction regardless of
// threshold.
func classifyTrend(pct *moneydecimal.Decimal, sentinel domain.PercentSentinel, thresholdPercent float64) domain.TrendDirection {
	switch sentinel {
	case domain.SentinelNewPrice:
		return domain.TrendIncreasing
	case domain.SentinelNewDiscount:
		return domain.TrendDecreasing
	}
	threshold, err := moneydecimal.FromFloat64(thresholdPercent)
	if err != nil {
		threshold = moneydecimal.MustParse("1.0")
	}
	negThreshold := threshold.Neg()
	if pct.GreaterThan(threshold) {
		return domain.TrendIncreasing
	}
	if pct.LessThan(negThreshold) {
		return domain.TrendDecreasing
	}
	return domain.TrendStable
}

func perBucketDeltas(nonEmpty []aggregation.BucketStats) ([]BucketDelta, error) {
	deltas := make([]BucketDelta, 0, len(nonEmpty))
	var prev *moneydecimal.Decimal
	for _, bs := range nonEmpty {
		d := BucketDelta{BucketIndex: bs.BucketIndex, Mean: *bs.Mean}
		if prev != nil {
			abs, err := bs.Mean.Sub(*prev)
			if err != nil {
				return nil, err
			}
			pct, sentinel, err := percentageChange(*prev, *bs.Mean, abs)
			if err != nil {
				return nil, err
			}
			d.AbsoluteChange = &abs
			d.PercentageChange = pct
			d.Sentinel = sentinel
		}
		deltas = append(deltas, d)
		mean := *bs.Mean
		prev = &mean
	}
	return deltas, nil
}

// weightedAggregate folds per-partition summaries into a single
// record-count-weighted summary (spec.md §4.4).
func weightedAggregate(partitions []Summary, trendThresholdPercent float64) (*Summary, error) {
	totalWeight := 0
	for _, s := range partitions {
		totalWeight += s.RecordCount
	}
	if totalWeight == 0 {
		return nil, analysiserr.InsufficientDataf("no records to weight across partitions")
	}

	weightedStart := moneydecimal.Zero
	weightedEnd := moneydecimal.Zero
	for _, s := range partitions {
		w := moneydecimal.FromInt64(int64(s.RecordCount))
		startContrib, err := s.StartValue.Mul(w)
		if err != nil {
			return nil, err
		}
		endContrib, err := s.EndValue.Mul(w)
		if err != nil {
			return nil, err
		}
		weightedStart, err = weightedStart.Add(startContrib)
		if err != nil {
			return nil, err
		}
		weightedEnd, err = weightedEnd.Add(endContrib)
		if err != nil {
			return nil, err
		}
	}

	denom := moneydecimal.FromInt64(int64(totalWeight))
	startValue, err := weightedStart.Quo(denom)
	if err != nil {
		return nil, err
	}
	endValue, err := weightedEnd.Quo(denom)
	if err != nil {
		return nil, err
	}

	absChange, err := endValue.Sub(startValue)
	if err != nil {
		return nil, err
	}
	pctChange, sentinel, err := percentageChange(startValue, endValue, absChange)
	if err != nil {
		return nil, err
	}
	trend := classifyTrend(pctChange, sentinel, trendThresholdPercent)

	return &Summary{
		StartValue:       startValue,
		EndValue:         endValue,
		AbsoluteChange:   absChange,
		PercentageChange: pctChange,
		Sentinel:         sentinel,
		TrendDirection:   trend,
		RecordCount:      totalWeight,
	}, nil
}

func partitionKey(p aggregation.Partition) string {
	return p.CurrencyCode + "\x00" + string(p.TransportMode)
}
