// Package aggregation implements C3, the Aggregation Engine: folding a
// stream of domain.FreightRecord values into per-bucket statistics
// (spec.md §4.3), partitioned by currency and (optionally) transport mode.
//
// The accumulation strategy is grounded on the teacher's streaming OHLC
// aggregator (datapipeline/ohlc_engine.go): records are consumed once, in
// a single pass. Mean and standard deviation are updated with a
// Welford-style running accumulator; the exact median, min and max are
// computed from the raw values, so every matched record's charge is kept
// in its (bucket, partition) slice until the pass ends. Memory therefore
// grows with the number of matched records in the window, not only with
// the number of buckets.
package aggregation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/moneydecimal"
	"github.com/freightpricing/analysisengine/timeperiod"
)

// RecordStream is a single-pass, bounded-memory source of freight
// records ordered by nothing in particular; the Aggregation Engine sorts
// records into buckets as they arrive instead of requiring input order.
type RecordStream interface {
	// Next returns the next record. ok is false once the stream is
	// exhausted; err signals a stream failure (e.g. STORE_UNAVAILABLE).
	Next(ctx context.Context) (rec domain.FreightRecord, ok bool, err error)
}

// Partition identifies one statistical slice within a bucket: a currency
// and, unless filters.CollapseModes was set, a transport mode.
type Partition struct {
	CurrencyCode  string
	TransportMode domain.TransportMode // "" when modes are collapsed
}

// BucketStats holds the computed statistics for one (bucket, partition)
// pair. Aggregate emits a BucketStats only for pairs that received at
// least one record, so Count is at least 1 and every statistic is set; a
// bucket with no records has no entry at all (no Count-0 entry with null
// statistics is produced).
type BucketStats struct {
	BucketIndex int
	Bucket      timeperiod.Bucket
	Partition   Partition
	Count       int
	Mean        *moneydecimal.Decimal
	Median      *moneydecimal.Decimal
	Min         *moneydecimal.Decimal
	Max         *moneydecimal.Decimal
	StdDev      *moneydecimal.Decimal
}

// Result is the complete output of one aggregation pass.
type Result struct {
	Buckets         []BucketStats
	MixedCurrencies bool
}

// welford is the running-stats accumulator for one partition-bucket's
// mean/variance, updated one value at a time (Welford's algorithm,
// adapted to moneydecimal.Decimal arithmetic).
type welford struct {
	count int64
	mean  moneydecimal.Decimal
	m2    moneydecimal.Decimal
}

func (w *welford) add(x moneydecimal.Decimal) error {
	w.count++
	n := moneydecimal.FromInt64(w.count)
	delta, err := x.Sub(w.mean)
	if err != nil {
		return err
	}
	deltaOverN, err := delta.Quo(n)
	if err != nil {
		return err
	}
	w.mean, err = w.mean.Add(deltaOverN)
	if err != nil {
		return err
	}
	delta2, err := x.Sub(w.mean)
	if err != nil {
		return err
	}
	term, err := delta.Mul(delta2)
	if err != nil {
		return err
	}
	w.m2, err = w.m2.Add(term)
	if err != nil {
		return err
	}
	return nil
}

func (w *welford) stddev() (moneydecimal.Decimal, error) {
	if w.count < 2 {
		return moneydecimal.Zero, nil
	}
	variance, err := w.m2.Quo(moneydecimal.FromInt64(w.count))
	if err != nil {
		return moneydecimal.Decimal{}, err
	}
	return variance.Sqrt()
}

type accumulator struct {
	bucketIndex int
	partition   Partition
	wf          welford
	values      []moneydecimal.Decimal
}

// Aggregate consumes stream to completion and computes per-bucket,
// per-partition statistics (spec.md §4.3). buckets must be the ordered,
// non-overlapping sequence produced by timeperiod.Expand for the same
// analysis; records outside [buckets[0].Start, buckets[last].End) are
// discarded, matching spec.md's "records outside the period are ignored"
// rule. Buckets that receive no records are absent from Result.Buckets.
func Aggregate(ctx context.Context, buckets []timeperiod.Bucket, stream RecordStream, collapseModes bool) (*Result, error) {
	acc := make(map[string]*accumulator)
	order := make([]string, 0)
	currencies := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, ok, err := stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if rec.IsDeleted() {
			continue
		}
		idx := locateBucket(buckets, rec.RecordDate)
		if idx < 0 {
			continue
		}
		currencies[rec.CurrencyCode] = true
		p := Partition{CurrencyCode: rec.CurrencyCode}
		if !collapseModes {
			p.TransportMode = rec.TransportMode
		}
		key := partitionKey(idx, p)
		a, exists := acc[key]
		if !exists {
			a = &accumulator{bucketIndex: idx, partition: p}
			acc[key] = a
			order = append(order, key)
		}
		if err := a.wf.add(rec.FreightCharge); err != nil {
			return nil, err
		}
		a.values = append(a.values, rec.FreightCharge)
	}

	sort.Slice(order, func(i, j int) bool {
		ai, aj := acc[order[i]], acc[order[j]]
		if ai.bucketIndex != aj.bucketIndex {
			return ai.bucketIndex < aj.bucketIndex
		}
		if ai.partition.CurrencyCode != aj.partition.CurrencyCode {
			return ai.partition.CurrencyCode < aj.partition.CurrencyCode
		}
		return ai.partition.TransportMode < aj.partition.TransportMode
	})

	out := make([]BucketStats, 0, len(order))
	for _, key := range order {
		a := acc[key]
		stats, err := finalize(buckets[a.bucketIndex], a)
		if err != nil {
			return nil, err
		}
		out = append(out, stats)
	}

	return &Result{Buckets: out, MixedCurrencies: len(currencies) > 1}, nil
}

func finalize(b timeperiod.Bucket, a *accumulator) (BucketStats, error) {
	stats := BucketStats{
		BucketIndex: a.bucketIndex,
		Bucket:      b,
		Partition:   a.partition,
		Count:       len(a.values),
	}
	if len(a.values) == 0 {
		return stats, nil
	}

	mean := a.wf.mean
	stats.Mean = &mean

	median, err := moneydecimal.Median(a.values)
	if err != nil {
		return BucketStats{}, err
	}
	stats.Median = &median

	min, max, err := moneydecimal.MinMax(a.values)
	if err != nil {
		return BucketStats{}, err
	}
	stats.Min = &min
	stats.Max = &max

	sd, err := a.wf.stddev()
	if err != nil {
		return BucketStats{}, err
	}
	stats.StdDev = &sd

	return stats, nil
}

// locateBucket returns the index of the bucket containing t (half-open
// [Start, End)), or -1 if t falls outside every bucket. Buckets are
// assumed ordered and non-overlapping, as produced by timeperiod.Expand.
func locateBucket(buckets []timeperiod.Bucket, t time.Time) int {
	i := sort.Search(len(buckets), func(i int) bool { return buckets[i].End.After(t) })
	if i == len(buckets) {
		return -1
	}
	if t.Before(buckets[i].Start) {
		return -1
	}
	return i
}

func partitionKey(bucketIndex int, p Partition) string {
	return fmt.Sprintf("%d\x00%s\x00%s", bucketIndex, p.CurrencyCode, p.TransportMode)
}
