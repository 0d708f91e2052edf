// Package records implements C1, the Freight Record Store: fetching
// immutable freight_record rows for an analysis window as a bounded-
// memory, batched cursor (spec.md §3, §4.7 concurrency model).
//
// The batching and keyset-pagination style is grounded on the teacher's
// tickstore/sqlite_store.go cursor queries (ORDER BY ... LIMIT ...) and
// database/migrate.go's SQL-building conventions, adapted from SQLite/
// lib/pq to pgx/v5 against Postgres.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightpricing/analysisengine/aggregation"
	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/moneydecimal"
)

// DefaultBatchSize bounds how many rows are held in memory at once
// (config.EngineConfig.RecordBatchSize).
const DefaultBatchSize = 2000

// Query describes one fetch against the freight_record table.
type Query struct {
	StartDate time.Time
	EndDate   time.Time // exclusive, matching the half-open bucket convention
	Filter    domain.Filter
	BatchSize int
}

// Store fetches freight records for an analysis window; callers drain the
// returned stream with aggregation.RecordStream.Next. PGStore's Fetch
// never materializes the whole result set; MemoryStore's Fetch copies the
// matching records into one slice.
type Store interface {
	Fetch(ctx context.Context, q Query) (aggregation.RecordStream, error)
}

// PGStore is the Postgres-backed Store implementation (spec.md §5: the
// persistence layer behind C1).
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps an existing pgx connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Fetch returns a streaming, keyset-paginated cursor over matching
// records ordered by (record_date, id). The cursor fetches BatchSize
// rows at a time and is preemptible between batches (spec.md §4.7:
// "C1's record fetch (per batch)" is a cancellation checkpoint).
func (s *PGStore) Fetch(ctx context.Context, q Query) (aggregation.RecordStream, error) {
	if q.BatchSize <= 0 {
		q.BatchSize = DefaultBatchSize
	}
	return &pgCursor{pool: s.pool, query: q}, nil
}

type pgCursor struct {
	pool    *pgxpool.Pool
	query   Query
	batch   []domain.FreightRecord
	pos     int
	lastDate time.Time
	lastID  string
	started bool
	done    bool
}

func (c *pgCursor) Next(ctx context.Context) (domain.FreightRecord, bool, error) {
	if ctx.Err() != nil {
		return domain.FreightRecord{}, false, ctx.Err()
	}
	if c.pos >= len(c.batch) {
		if c.done {
			return domain.FreightRecord{}, false, nil
		}
		if err := c.loadBatch(ctx); err != nil {
			return domain.FreightRecord{}, false, err
		}
		if len(c.batch) == 0 {
			c.done = true
			return domain.FreightRecord{}, false, nil
		}
	}
	rec := c.batch[c.pos]
	c.pos++
	c.lastDate = rec.RecordDate
	c.lastID = rec.ID
	return rec, true, nil
}

func (c *pgCursor) loadBatch(ctx context.Context) error {
	sql, args := buildBatchQuery(c.query, c.started, c.lastDate, c.lastID)
	c.started = true

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "record batch query failed", err)
	}
	defer rows.Close()

	batch := make([]domain.FreightRecord, 0, c.query.BatchSize)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return analysiserr.Wrap(analysiserr.StoreUnavailable, "record scan failed", err)
		}
		batch = append(batch, rec)
	}
	if err := rows.Err(); err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "record batch iteration failed", err)
	}

	c.batch = batch
	c.pos = 0
	if len(batch) < c.query.BatchSize {
		c.done = true
	}
	return nil
}

func scanRecord(rows pgx.Rows) (domain.FreightRecord, error) {
	var rec domain.FreightRecord
	var chargeStr string
	var additionalCharges []byte
	var mode string

	err := rows.Scan(
		&rec.ID, &rec.RecordDate, &rec.OriginID, &rec.DestinationID, &rec.CarrierID,
		&mode, &chargeStr, &rec.CurrencyCode, &rec.ServiceLevel, &additionalCharges,
		&rec.SourceSystem, &rec.DataQualityFlag, &rec.DeletedAt,
	)
	if err != nil {
		return domain.FreightRecord{}, err
	}

	rec.TransportMode = domain.TransportMode(mode)
	rec.FreightCharge, err = moneydecimal.Parse(chargeStr)
	if err != nil {
		return domain.FreightRecord{}, fmt.Errorf("parse freight_charge: %w", err)
	}

	if len(additionalCharges) > 0 {
		raw := make(map[string]string)
		if err := json.Unmarshal(additionalCharges, &raw); err != nil {
			return domain.FreightRecord{}, fmt.Errorf("parse additional_charges: %w", err)
		}
		parsed := make(map[string]moneydecimal.Decimal, len(raw))
		for k, v := range raw {
			d, err := moneydecimal.Parse(v)
			if err != nil {
				return domain.FreightRecord{}, fmt.Errorf("parse additional_charges[%s]: %w", k, err)
			}
			parsed[k] = d
		}
		surcharges, err := domain.NewSurcharges(parsed)
		if err != nil {
			return domain.FreightRecord{}, err
		}
		rec.AdditionalCharges = surcharges
	}

	return rec, nil
}

// buildBatchQuery constructs the next keyset-paginated SELECT. first is
// true only for the initial batch, when there is no (lastDate, lastID)
// cursor yet.
func buildBatchQuery(q Query, first bool, lastDate time.Time, lastID string) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT id, record_date, origin_id, destination_id, carrier_id,
		transport_mode, freight_charge::text, currency_code, service_level,
		COALESCE(additional_charges, '{}'::jsonb), source_system, data_quality_flag, deleted_at
		FROM freight_records WHERE deleted_at IS NULL`)

	args := make([]any, 0, 8)
	args = append(args, q.StartDate, q.EndDate)
	b.WriteString(" AND record_date >= $1 AND record_date < $2")

	if !first {
		args = append(args, lastDate, lastID)
		fmt.Fprintf(&b, " AND (record_date, id) > ($%d, $%d)", len(args)-1, len(args))
	}

	if len(q.Filter.OriginIDs) > 0 {
		args = append(args, q.Filter.OriginIDs)
		fmt.Fprintf(&b, " AND origin_id = ANY($%d)", len(args))
	}
	if len(q.Filter.DestinationIDs) > 0 {
		args = append(args, q.Filter.DestinationIDs)
		fmt.Fprintf(&b, " AND destination_id = ANY($%d)", len(args))
	}
	if len(q.Filter.CarrierIDs) > 0 {
		args = append(args, q.Filter.CarrierIDs)
		fmt.Fprintf(&b, " AND carrier_id = ANY($%d)", len(args))
	}
	if len(q.Filter.TransportModes) > 0 {
		modes := make([]string, len(q.Filter.TransportModes))
		for i, m := range q.Filter.TransportModes {
			modes[i] = string(m)
		}
		args = append(args, modes)
		fmt.Fprintf(&b, " AND transport_mode = ANY($%d)", len(args))
	}
	if q.Filter.CurrencyCode != "" {
		args = append(args, q.Filter.CurrencyCode)
		fmt.Fprintf(&b, " AND currency_code = $%d", len(args))
	}

	batchSize := q.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	args = append(args, batchSize)
	fmt.Fprintf(&b, " ORDER BY record_date, id LIMIT $%d", len(args))

	return b.String(), args
}
