package records

import (
	"context"
	"sort"
	"sync"

	"github.com/freightpricing/analysisengine/aggregation"
	"github.com/freightpricing/analysisengine/domain"
)

// MemoryStore is an in-memory Store used by tests and single-process
// deployments without Postgres. It applies the same filter and date-range
// semantics as PGStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records []domain.FreightRecord
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert adds a record, as a test fixture or ingestion entry point would.
func (s *MemoryStore) Insert(rec domain.FreightRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// Fetch returns a stream over the matching, non-deleted records ordered
// by record_date then id, mirroring PGStore's keyset order.
func (s *MemoryStore) Fetch(ctx context.Context, q Query) (aggregation.RecordStream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.FreightRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.IsDeleted() {
			continue
		}
		if rec.RecordDate.Before(q.StartDate) || !rec.RecordDate.Before(q.EndDate) {
			continue
		}
		if !matchesFilter(rec, q.Filter) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].RecordDate.Equal(matched[j].RecordDate) {
			return matched[i].RecordDate.Before(matched[j].RecordDate)
		}
		return matched[i].ID < matched[j].ID
	})

	return &memoryCursor{records: matched}, nil
}

func matchesFilter(rec domain.FreightRecord, f domain.Filter) bool {
	if len(f.OriginIDs) > 0 && !containsString(f.OriginIDs, rec.OriginID) {
		return false
	}
	if len(f.DestinationIDs) > 0 && !containsString(f.DestinationIDs, rec.DestinationID) {
		return false
	}
	if len(f.CarrierIDs) > 0 && !containsString(f.CarrierIDs, rec.CarrierID) {
		return false
	}
	if len(f.TransportModes) > 0 && !containsMode(f.TransportModes, rec.TransportMode) {
		return false
	}
	if f.CurrencyCode != "" && f.CurrencyCode != rec.CurrencyCode {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func containsMode(haystack []domain.TransportMode, needle domain.TransportMode) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

type memoryCursor struct {
	records []domain.FreightRecord
	pos     int
}

func (c *memoryCursor) Next(ctx context.Context) (domain.FreightRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.FreightRecord{}, false, err
	}
	if c.pos >= len(c.records) {
		return domain.FreightRecord{}, false, nil
	}
	rec := c.records[c.pos]
	c.pos++
	return rec, true, nil
}
