package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/freightpricing/analysisengine/aggregation"
	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/config"
	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/moneydecimal"
	"github.com/freightpricing/analysisengine/resultcache"
	"github.com/freightpricing/analysisengine/store/records"
	"github.com/freightpricing/analysisengine/store/results"
	"github.com/freightpricing/analysisengine/store/timeperiods"
)

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		LeaseDuration:         time.Minute,
		WaitTimeout:           time.Second,
		ResultTTL:             time.Hour,
		MaxRetries:            2,
		RetryBaseDelay:        time.Millisecond,
		TrendThresholdPercent: 1.0,
		RecordBatchSize:       100,
		MaxBuckets:            10000,
	}
}

func seedTimePeriod(t *testing.T, store *timeperiods.MemoryStore, id string) {
	t.Helper()
	err := store.Create(context.Background(), &domain.TimePeriod{
		ID:          id,
		Name:        "Q1",
		StartDate:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC),
		Granularity: domain.Daily,
		CreatedAt:   time.Date(2022, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed time period: %v", err)
	}
}

func seedRecords(rec *records.MemoryStore) {
	base := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	values := []string{"1000.00", "1010.00", "1020.00", "1030.00", "1040.00", "1050.00", "1060.00"}
	for i, v := range values {
		rec.Insert(domain.FreightRecord{
			ID:            "r" + v,
			RecordDate:    base.AddDate(0, 0, i),
			OriginID:      "NYC",
			DestinationID: "LAX",
			CarrierID:     "MAERSK",
			TransportMode: domain.ModeOcean,
			FreightCharge: moneydecimal.MustParse(v),
			CurrencyCode:  "USD",
		})
	}
}

func newTestEngine(t *testing.T) (*Engine, *timeperiods.MemoryStore) {
	t.Helper()
	tpStore := timeperiods.NewMemoryStore()
	seedTimePeriod(t, tpStore, "tp-1")

	recStore := records.NewMemoryStore()
	seedRecords(recStore)

	e := New(tpStore, recStore, results.NewMemoryStore(), resultcache.NewMemoryCache(), testConfig())
	return e, tpStore
}

func baseRequest() domain.AnalysisRequest {
	return domain.AnalysisRequest{
		TimePeriodID: "tp-1",
		OutputFormat: domain.FormatJSON,
		UserID:       "user-1",
	}
}

func TestAnalyzeCompletesAndCaches(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	result, fromCache, err := e.Analyze(ctx, baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fromCache {
		t.Fatalf("expected the first call to compute, not serve from cache")
	}
	if result.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", result.Status)
	}
	if result.TrendDirection != domain.TrendIncreasing {
		t.Fatalf("expected INCREASING trend, got %s", result.TrendDirection)
	}

	result2, fromCache2, err := e.Analyze(ctx, baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fromCache2 {
		t.Fatalf("expected the second identical call to be served from cache")
	}
	if result2.ID != result.ID {
		t.Fatalf("expected the cached call to return the same result id")
	}
}

func TestAnalyzeMonotoneStatusTransitions(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	result, _, err := e.Analyze(ctx, baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", result.Status)
	}

	// A terminal result must refuse cancellation (no transition out of a
	// terminal state, per spec.md §4.5).
	err = e.Cancel(ctx, result.ID, "owner-x")
	if !analysiserr.Is(err, analysiserr.NotCancellable) {
		t.Fatalf("expected NOT_CANCELLABLE for a terminal result, got %v", err)
	}
}

// slowRecordStore wraps a records.Store and blocks each Fetch until
// released, letting the test observe that concurrent Analyze calls for
// the same fingerprint collapse into a single computation.
type slowRecordStore struct {
	inner   records.Store
	calls   int32
	release chan struct{}
}

func (s *slowRecordStore) Fetch(ctx context.Context, q records.Query) (aggregation.RecordStream, error) {
	atomic.AddInt32(&s.calls, 1)
	<-s.release
	return s.inner.Fetch(ctx, q)
}

func TestAnalyzeSingleFlightCollapsesConcurrentCalls(t *testing.T) {
	tpStore := timeperiods.NewMemoryStore()
	seedTimePeriod(t, tpStore, "tp-1")

	recStore := records.NewMemoryStore()
	seedRecords(recStore)
	slow := &slowRecordStore{inner: recStore, release: make(chan struct{})}

	e := New(tpStore, slow, results.NewMemoryStore(), resultcache.NewMemoryCache(), testConfig())

	const concurrency = 8
	var wg sync.WaitGroup
	gotResults := make([]*domain.AnalysisResult, concurrency)
	errs := make([]error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, _, err := e.Analyze(context.Background(), baseRequest())
			gotResults[i] = r
			errs[i] = err
		}(i)
	}

	// Give every goroutine a chance to block inside Fetch before releasing.
	time.Sleep(50 * time.Millisecond)
	close(slow.release)
	wg.Wait()

	if calls := atomic.LoadInt32(&slow.calls); calls != 1 {
		t.Fatalf("expected exactly one computation for an identical fingerprint, got %d", calls)
	}
	firstID := ""
	for i, err := range errs {
		if err != nil {
			t.Fatalf("unexpected error from caller %d: %v", i, err)
		}
		if firstID == "" {
			firstID = gotResults[i].ID
		}
		if gotResults[i].ID != firstID {
			t.Fatalf("expected every caller to observe the same result id, got %s vs %s", gotResults[i].ID, firstID)
		}
	}
}
