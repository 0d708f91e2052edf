// Package engine implements C6, the Analysis Orchestrator: the state
// machine in spec.md §4.5 that turns an AnalysisRequest into a persisted,
// cached AnalysisResult by driving C1 (records), C2 (time-period
// expansion), C3 (aggregation), C4 (movement) and C5 (result cache).
//
// The map+mutex-backed entity lifecycle is grounded on oms/service.go;
// the retry-with-backoff shape is adapted from the sibling pack repo
// r3e-network-service_layer's infrastructure/resilience/retry.go, since
// the teacher has no generic retry helper of its own (its order-routing
// retries are inlined ad hoc per call site).
package engine

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/freightpricing/analysisengine/aggregation"
	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/config"
	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/movement"
	"github.com/freightpricing/analysisengine/obsmetrics"
	"github.com/freightpricing/analysisengine/resultcache"
	"github.com/freightpricing/analysisengine/store/records"
	"github.com/freightpricing/analysisengine/store/results"
	"github.com/freightpricing/analysisengine/store/timeperiods"
	"github.com/freightpricing/analysisengine/timeperiod"
)

// Engine is the Analysis Orchestrator. It holds no per-request state of
// its own; all durable state lives in TimePeriods/Records/Results/Cache.
type Engine struct {
	TimePeriods timeperiods.Store
	Records     records.Store
	Results     results.Store
	Cache       resultcache.Cache
	Config      config.EngineConfig

	// sf collapses concurrent in-process Analyze calls sharing a
	// fingerprint into a single computation; Cache additionally
	// coordinates across processes via the lease primitives.
	sf singleflight.Group

	// Now and NewID are injected for testability (spec.md §5: "inject a
	// clock for testability").
	Now   func() time.Time
	NewID func() string
}

// New builds an Engine with the default wall clock and uuid generator.
func New(tp timeperiods.Store, rec records.Store, res results.Store, cache resultcache.Cache, cfg config.EngineConfig) *Engine {
	return &Engine{
		TimePeriods: tp,
		Records:     rec,
		Results:     res,
		Cache:       cache,
		Config:      cfg,
		Now:         time.Now,
		NewID:       func() string { return uuid.New().String() },
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.New().String()
}

// analyzeOutcome is the value carried through singleflight.Group so every
// waiter on a shared fingerprint observes the same result.
type analyzeOutcome struct {
	result    *domain.AnalysisResult
	fromCache bool
}

// Analyze implements spec.md §4.5's ten-step algorithm. It returns the
// stored AnalysisResult, whether it was served from the Ready cache, and
// an error classified per analysiserr.Kind.
func (e *Engine) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, bool, error) {
	tp, err := e.TimePeriods.Get(ctx, req.TimePeriodID)
	if err != nil {
		return nil, false, err
	}

	// Step 1: canonicalize request into parameters.
	params := domain.Parameters{
		TimePeriodID:         req.TimePeriodID,
		Filters:              req.Filters.Canonicalize(),
		OutputFormat:         req.OutputFormat,
		IncludeVisualization: req.IncludeVisualization,
	}

	// Step 2: fingerprint = hash(parameters ∥ time_period snapshot ∥ output_format).
	fingerprint, err := resultcache.Fingerprint(params, *tp)
	if err != nil {
		return nil, false, err
	}

	v, err, _ := e.sf.Do(fingerprint, func() (interface{}, error) {
		result, fromCache, err := e.analyzeFingerprint(ctx, req, *tp, params, fingerprint)
		if err != nil {
			return nil, err
		}
		return analyzeOutcome{result: result, fromCache: fromCache}, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(analyzeOutcome)
	return out.result, out.fromCache, nil
}

func (e *Engine) analyzeFingerprint(ctx context.Context, req domain.AnalysisRequest, tp domain.TimePeriod, params domain.Parameters, fingerprint string) (*domain.AnalysisResult, bool, error) {
	started := e.now()
	granularity := string(tp.Granularity)

	// Step 3: Ready-space lookup.
	if resultID, ok, err := e.Cache.LookupReady(ctx, fingerprint); err != nil {
		return nil, false, err
	} else if ok {
		r, err := e.Results.Get(ctx, resultID)
		if err != nil {
			return nil, false, err
		}
		obsmetrics.RecordCacheLookup(true)
		obsmetrics.RecordAnalysis(granularity, string(domain.StatusCompleted), e.now().Sub(started).Seconds())
		return r, true, nil
	}
	obsmetrics.RecordCacheLookup(false)

	ownerID := e.newID()

	// Step 4: claim the in-flight slot, waiting with backoff on contention.
	claim, err := e.claimWithBackoff(ctx, fingerprint, ownerID)
	if err != nil {
		return nil, false, err
	}
	if claim.Outcome == resultcache.ReadyNow {
		r, err := e.Results.Get(ctx, claim.ResultID)
		if err != nil {
			return nil, false, err
		}
		return r, true, nil
	}

	leaseHeld := true
	defer func() {
		if leaseHeld {
			_ = e.Cache.Release(ctx, fingerprint, ownerID)
		}
	}()

	result := &domain.AnalysisResult{
		ID:           e.newID(),
		TimePeriodID: tp.ID,
		Parameters:   params,
		Fingerprint:  fingerprint,
		Status:       domain.StatusPending,
		OutputFormat: params.OutputFormat,
		CreatedBy:    req.UserID,
		CreatedAt:    e.now(),
	}
	if err := e.Results.Create(ctx, result); err != nil {
		return nil, false, err
	}

	// Step 5: PENDING -> PROCESSING.
	result.Status = domain.StatusProcessing
	if err := e.Results.Update(ctx, result); err != nil {
		return nil, false, err
	}

	// Step 6: expand/fetch/aggregate/compute, retrying retryable failures.
	var payload resultPayload
	computeErr := e.runWithRetry(ctx, func() error {
		p, err := e.compute(ctx, tp, params)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})

	if computeErr != nil {
		if ctx.Err() != nil {
			result.Status = domain.StatusCancelled
			_ = e.Results.Update(ctx, result)
			obsmetrics.RecordAnalysis(granularity, string(domain.StatusCancelled), e.now().Sub(started).Seconds())
			return nil, false, analysiserr.Cancelledf("analysis cancelled before completion")
		}
		// Steps 8/9: retryable exhaustion or fatal error both land here.
		result.Status = domain.StatusFailed
		result.ErrorMessage = computeErr.Error()
		_ = e.Results.Update(ctx, result)
		obsmetrics.RecordAnalysis(granularity, string(domain.StatusFailed), e.now().Sub(started).Seconds())
		obsmetrics.RecordAnalysisError(string(analysiserr.KindOf(computeErr)))
		return nil, false, computeErr
	}

	resultsJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}

	// Step 7: persist, publish, release.
	result.Results = resultsJSON
	result.Status = domain.StatusCompleted
	result.CalculatedAt = e.now()
	result.IsCached = true
	result.CacheExpiresAt = e.now().Add(e.Config.ResultTTL)
	applyMovement(result, payload.Movement, payload.MixedCurrencies)

	if err := e.Results.Update(ctx, result); err != nil {
		return nil, false, err
	}
	if err := e.Cache.PublishReady(ctx, fingerprint, result.ID, e.Config.ResultTTL); err != nil {
		return nil, false, err
	}
	leaseHeld = false // publish_ready already released the in-flight slot

	obsmetrics.RecordAnalysis(granularity, string(domain.StatusCompleted), e.now().Sub(started).Seconds())
	return result, false, nil
}

// applyMovement projects the (possibly multi-partition) movement
// aggregate onto the AnalysisResult's single-value summary fields,
// using the weighted cross-partition aggregate when one exists and the
// sole partition's summary otherwise. Mixed-currency results with no
// weighted aggregate leave the summary fields nil; the full per-partition
// detail still lives in Results.
func applyMovement(result *domain.AnalysisResult, agg *movement.Aggregate, mixedCurrencies bool) {
	if agg == nil {
		return
	}
	var summary *movement.Summary
	switch {
	case agg.Weighted != nil:
		summary = agg.Weighted
	case len(agg.Partitions) == 1:
		summary = &agg.Partitions[0]
	default:
		return
	}

	startValue := summary.StartValue
	endValue := summary.EndValue
	absChange := summary.AbsoluteChange
	result.StartValue = &startValue
	result.EndValue = &endValue
	result.AbsoluteChange = &absChange
	result.PercentageChange = summary.PercentageChange
	result.TrendDirection = summary.TrendDirection
	if !mixedCurrencies && len(agg.Partitions) > 0 {
		// The weighted summary carries no partition, so read the single
		// currency from a per-partition summary.
		result.CurrencyCode = agg.Partitions[0].Partition.CurrencyCode
	}
}

// compute runs C2 (expand) -> C1 (fetch) -> C3 (aggregate) -> C4 (movement).
func (e *Engine) compute(ctx context.Context, tp domain.TimePeriod, params domain.Parameters) (resultPayload, error) {
	maxBuckets := e.Config.MaxBuckets
	if maxBuckets <= 0 {
		maxBuckets = timeperiod.DefaultMaxBuckets
	}
	buckets, err := timeperiod.ExpandWithMax(tp, maxBuckets)
	if err != nil {
		return resultPayload{}, err
	}
	obsmetrics.RecordBucketsProduced(string(tp.Granularity), len(buckets))

	batchSize := e.Config.RecordBatchSize
	if batchSize <= 0 {
		batchSize = records.DefaultBatchSize
	}
	stream, err := e.Records.Fetch(ctx, records.Query{
		StartDate: buckets[0].Start,
		EndDate:   buckets[len(buckets)-1].End,
		Filter:    params.Filters,
		BatchSize: batchSize,
	})
	if err != nil {
		return resultPayload{}, err
	}

	series, err := aggregation.Aggregate(ctx, buckets, stream, params.Filters.CollapseModes)
	if err != nil {
		return resultPayload{}, err
	}
	obsmetrics.RecordRecordsFetched(string(tp.Granularity), countRecords(series.Buckets))

	threshold := e.Config.TrendThresholdPercent
	if threshold == 0 {
		threshold = movement.DefaultTrendThresholdPercent
	}
	agg, err := movement.Compute(series, threshold, true)
	if err != nil {
		return resultPayload{}, err
	}

	return resultPayload{
		Buckets:         series.Buckets,
		MixedCurrencies: series.MixedCurrencies,
		Movement:        agg,
	}, nil
}

// claimWithBackoff implements step 4: attempt try_claim; on HELD_BY_OTHER
// wait with exponential backoff bounded by Config.WaitTimeout, returning
// IN_PROGRESS_ELSEWHERE on timeout (spec.md §4.5).
func (e *Engine) claimWithBackoff(ctx context.Context, fingerprint, ownerID string) (resultcache.ClaimResult, error) {
	waitTimeout := e.Config.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 60 * time.Second
	}
	leaseDuration := e.Config.LeaseDuration
	if leaseDuration <= 0 {
		leaseDuration = 120 * time.Second
	}

	deadline := e.now().Add(waitTimeout)
	delay := 50 * time.Millisecond
	const maxDelay = 5 * time.Second

	for {
		res, err := e.Cache.TryClaim(ctx, fingerprint, ownerID, leaseDuration)
		if err != nil {
			return resultcache.ClaimResult{}, err
		}
		if res.Outcome != resultcache.HeldByOther {
			return res, nil
		}
		if !e.now().Before(deadline) {
			return resultcache.ClaimResult{}, analysiserr.New(analysiserr.InProgressElsewhere,
				"fingerprint is already being computed by another worker")
		}
		select {
		case <-ctx.Done():
			return resultcache.ClaimResult{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// runWithRetry implements steps 8/9: retry retryable failures
// (STORE_UNAVAILABLE, CACHE_UNAVAILABLE) up to Config.MaxRetries times
// with exponential backoff from Config.RetryBaseDelay; any other
// classified error, or exhaustion, is returned immediately.
func (e *Engine) runWithRetry(ctx context.Context, fn func() error) error {
	maxAttempts := e.Config.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := e.Config.RetryBaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		ae, ok := err.(*analysiserr.Error)
		if !ok || !ae.Retryable() {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(addJitter(delay)):
		}
		delay *= 2
	}
	return lastErr
}

func countRecords(buckets []aggregation.BucketStats) int {
	total := 0
	for _, b := range buckets {
		total += b.Count
	}
	return total
}

func addJitter(d time.Duration) time.Duration {
	jitter := float64(d) * 0.1
	return d + time.Duration(rand.Float64()*jitter*2-jitter)
}

// Cancel marks a PENDING or PROCESSING result CANCELLED, releasing its
// in-flight lease if one is held (spec.md §4.5's CANCELLED transition).
func (e *Engine) Cancel(ctx context.Context, resultID, ownerID string) error {
	r, err := e.Results.Get(ctx, resultID)
	if err != nil {
		return err
	}
	if r.IsTerminal() {
		return analysiserr.New(analysiserr.NotCancellable, "analysis result has already reached a terminal status")
	}
	r.Status = domain.StatusCancelled
	if err := e.Results.Update(ctx, r); err != nil {
		return err
	}
	if err := e.Cache.Release(ctx, r.Fingerprint, ownerID); err != nil && !analysiserr.Is(err, analysiserr.NotOwner) {
		return err
	}
	return nil
}
