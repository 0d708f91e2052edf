// Package comparison implements C7, the Comparison Service: running two
// analyses over the same filters but different time periods and
// computing delta metrics between their movement summaries (spec.md
// §4.7).
package comparison

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/moneydecimal"
)

// Engine is the subset of engine.Engine the Comparison Service needs,
// kept as an interface so tests can substitute a fake orchestrator.
type Engine interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, bool, error)
}

// BucketPair is one ordinal alignment slot in the report: the k-th
// bucket of each period's result, side by side.
type BucketPair struct {
	Index              int
	BaseValue          *moneydecimal.Decimal // nil when the base period ran out of buckets
	ComparisonValue    *moneydecimal.Decimal // nil when the comparison period ran out of buckets
	AbsoluteDelta      *moneydecimal.Decimal
	PercentageDelta    *moneydecimal.Decimal
	PercentSentinel    domain.PercentSentinel
}

// Report is the full output of Compare.
type Report struct {
	Base             *domain.AnalysisResult
	Comparison       *domain.AnalysisResult
	AbsoluteDelta    *moneydecimal.Decimal
	PercentageDelta  *moneydecimal.Decimal
	PercentSentinel  domain.PercentSentinel
	Buckets          []BucketPair
	LengthMismatch   bool
}

// Service runs the Orchestrator twice concurrently via errgroup and
// diffs the two AnalysisResults (spec.md §4.7).
type Service struct {
	Engine Engine
}

func New(engine Engine) *Service {
	return &Service{Engine: engine}
}

// Compare invokes the orchestrator for basePeriod and comparisonPeriod
// concurrently. If either underlying analysis fails, Compare fails with
// that error (spec.md §4.7: "failures propagate").
func (s *Service) Compare(ctx context.Context, basePeriodID, comparisonPeriodID string, filters domain.Filter, userID string) (*Report, error) {
	var base, cmp *domain.AnalysisResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, _, err := s.Engine.Analyze(gctx, domain.AnalysisRequest{
			TimePeriodID: basePeriodID,
			Filters:      filters,
			OutputFormat: domain.FormatJSON,
			UserID:       userID,
		})
		if err != nil {
			return err
		}
		base = r
		return nil
	})
	g.Go(func() error {
		r, _, err := s.Engine.Analyze(gctx, domain.AnalysisRequest{
			TimePeriodID: comparisonPeriodID,
			Filters:      filters,
			OutputFormat: domain.FormatJSON,
			UserID:       userID,
		})
		if err != nil {
			return err
		}
		cmp = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if base.Status != domain.StatusCompleted {
		return nil, analysiserr.New(analysiserr.Internal, "base analysis did not complete: "+string(base.Status))
	}
	if cmp.Status != domain.StatusCompleted {
		return nil, analysiserr.New(analysiserr.Internal, "comparison analysis did not complete: "+string(cmp.Status))
	}

	report := &Report{Base: base, Comparison: cmp}

	if base.EndValue != nil && cmp.EndValue != nil {
		absDelta, err := base.EndValue.Sub(*cmp.EndValue)
		if err != nil {
			return nil, err
		}
		report.AbsoluteDelta = &absDelta
		pctDelta, sentinel, err := divisionPolicy(*cmp.EndValue, *base.EndValue, absDelta)
		if err != nil {
			return nil, err
		}
		report.PercentageDelta = pctDelta
		report.PercentSentinel = sentinel
	}

	buckets, lengthMismatch, err := alignBuckets(base, cmp)
	if err != nil {
		return nil, err
	}
	report.Buckets = buckets
	report.LengthMismatch = lengthMismatch

	return report, nil
}

// divisionPolicy mirrors movement's zero-start-value handling (spec.md
// §4.4) for comparison deltas: relative delta against the comparison
// period's value, with the same NEW_PRICE/NEW_DISCOUNT sentinels when
// that value is zero.
func divisionPolicy(denominator, numerator, absDelta moneydecimal.Decimal) (*moneydecimal.Decimal, domain.PercentSentinel, error) {
	if denominator.Sign() > 0 {
		pct, err := absDelta.Mul(moneydecimal.FromInt64(100))
		if err != nil {
			return nil, domain.SentinelNone, err
		}
		pct, err = pct.Quo(denominator)
		if err != nil {
			return nil, domain.SentinelNone, err
		}
		return &pct, domain.SentinelNone, nil
	}
	switch {
	case numerator.IsZero():
		zero := moneydecimal.Zero
		return &zero, domain.SentinelNone, nil
	case numerator.Sign() > 0:
		return nil, domain.SentinelNewPrice, nil
	default:
		return nil, domain.SentinelNewDiscount, nil
	}
}

// bucketPayload is the shape the Orchestrator's resultPayload encodes
// into AnalysisResult.Results; comparison only needs bucket means.
type bucketPayload struct {
	Buckets []struct {
		Mean *moneydecimal.Decimal `json:"mean"`
	} `json:"buckets"`
}

func decodeResults(r *domain.AnalysisResult, out *bucketPayload) error {
	if len(r.Results) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Results, out); err != nil {
		return analysiserr.Wrap(analysiserr.Internal, "decode analysis result payload failed", err)
	}
	return nil
}

// alignBuckets pairs base and comparison buckets by ordinal position,
// right-padding the shorter series with empty slots and flagging
// length_mismatch (spec.md §4.7).
func alignBuckets(base, cmp *domain.AnalysisResult) ([]BucketPair, bool, error) {
	var baseSeries, cmpSeries bucketPayload
	if err := decodeResults(base, &baseSeries); err != nil {
		return nil, false, err
	}
	if err := decodeResults(cmp, &cmpSeries); err != nil {
		return nil, false, err
	}

	n := len(baseSeries.Buckets)
	if len(cmpSeries.Buckets) > n {
		n = len(cmpSeries.Buckets)
	}
	mismatch := len(baseSeries.Buckets) != len(cmpSeries.Buckets)

	pairs := make([]BucketPair, n)
	for i := 0; i < n; i++ {
		pair := BucketPair{Index: i}
		if i < len(baseSeries.Buckets) {
			pair.BaseValue = baseSeries.Buckets[i].Mean
		}
		if i < len(cmpSeries.Buckets) {
			pair.ComparisonValue = cmpSeries.Buckets[i].Mean
		}
		if pair.BaseValue != nil && pair.ComparisonValue != nil {
			abs, err := pair.BaseValue.Sub(*pair.ComparisonValue)
			if err != nil {
				return nil, false, err
			}
			pct, sentinel, err := divisionPolicy(*pair.ComparisonValue, *pair.BaseValue, abs)
			if err != nil {
				return nil, false, err
			}
			pair.AbsoluteDelta = &abs
			pair.PercentageDelta = pct
			pair.PercentSentinel = sentinel
		}
		pairs[i] = pair
	}

	return pairs, mismatch, nil
}
