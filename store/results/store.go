// Package results persists domain.AnalysisResult rows (spec.md §5): the
// record store the Analysis Orchestrator (C6) creates, transitions, and
// finalizes, retrievable both by id and by fingerprint (for Ready-space
// hydration on restart).
package results

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/moneydecimal"
)

// Store persists and retrieves AnalysisResult rows. Update replaces the
// row with the given id in a single statement and returns NOT_FOUND when
// no such row exists; it does not detect a concurrent write by another
// caller, so the last Update for an id wins.
type Store interface {
	Create(ctx context.Context, r *domain.AnalysisResult) error
	Get(ctx context.Context, id string) (*domain.AnalysisResult, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.AnalysisResult, error)
	Update(ctx context.Context, r *domain.AnalysisResult) error
}

// PGStore is the Postgres-backed Store (spec.md §5's analysis_results
// table), grounded on the same pgx/v5 usage introduced in
// store/records for the freight_record table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Create(ctx context.Context, r *domain.AnalysisResult) error {
	paramsJSON, err := json.Marshal(r.Parameters)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO analysis_results (
			id, time_period_id, fingerprint, parameters, status,
			output_format, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, r.ID, r.TimePeriodID, r.Fingerprint, paramsJSON, string(r.Status),
		string(r.OutputFormat), r.CreatedBy, r.CreatedAt)
	if err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "create analysis_results row failed", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*domain.AnalysisResult, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` FROM analysis_results WHERE id = $1`, id)
	return scanResult(row)
}

func (s *PGStore) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.AnalysisResult, error) {
	row := s.pool.QueryRow(ctx, selectColumns+`
		FROM analysis_results WHERE fingerprint = $1
		ORDER BY created_at DESC LIMIT 1`, fingerprint)
	return scanResult(row)
}

func (s *PGStore) Update(ctx context.Context, r *domain.AnalysisResult) error {
	paramsJSON, err := json.Marshal(r.Parameters)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE analysis_results SET
			status = $2, start_value = $3, end_value = $4, absolute_change = $5,
			percentage_change = $6, trend_direction = $7, currency_code = $8,
			results = $9, error_message = $10, calculated_at = $11, is_cached = $12,
			cache_expires_at = $13, parameters = $14, updated_at = now()
		WHERE id = $1
	`, r.ID, string(r.Status), nullableDecimalString(r.StartValue), nullableDecimalString(r.EndValue),
		nullableDecimalString(r.AbsoluteChange), nullableDecimalString(r.PercentageChange),
		string(r.TrendDirection), r.CurrencyCode, []byte(r.Results), r.ErrorMessage,
		r.CalculatedAt, r.IsCached, r.CacheExpiresAt, paramsJSON)
	if err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "update analysis_results row failed", err)
	}
	if tag.RowsAffected() == 0 {
		return analysiserr.NotFoundf("analysis result " + r.ID + " not found")
	}
	return nil
}

const selectColumns = `SELECT
	id, time_period_id, fingerprint, parameters, status,
	start_value, end_value, absolute_change, percentage_change, trend_direction,
	currency_code, output_format, results, error_message, calculated_at,
	is_cached, cache_expires_at, created_by, created_at, updated_at`

func scanResult(row pgx.Row) (*domain.AnalysisResult, error) {
	var r domain.AnalysisResult
	var paramsJSON []byte
	var status, trend, outputFormat string
	var startValue, endValue, absChange, pctChange *string

	err := row.Scan(
		&r.ID, &r.TimePeriodID, &r.Fingerprint, &paramsJSON, &status,
		&startValue, &endValue, &absChange, &pctChange, &trend,
		&r.CurrencyCode, &outputFormat, &r.Results, &r.ErrorMessage, &r.CalculatedAt,
		&r.IsCached, &r.CacheExpiresAt, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, analysiserr.NotFoundf("analysis result not found")
		}
		return nil, analysiserr.Wrap(analysiserr.StoreUnavailable, "scan analysis_results row failed", err)
	}

	if err := json.Unmarshal(paramsJSON, &r.Parameters); err != nil {
		return nil, err
	}
	r.Status = domain.Status(status)
	r.TrendDirection = domain.TrendDirection(trend)
	r.OutputFormat = domain.OutputFormat(outputFormat)

	if err := assignDecimal(&r.StartValue, startValue); err != nil {
		return nil, err
	}
	if err := assignDecimal(&r.EndValue, endValue); err != nil {
		return nil, err
	}
	if err := assignDecimal(&r.AbsoluteChange, absChange); err != nil {
		return nil, err
	}
	if err := assignDecimal(&r.PercentageChange, pctChange); err != nil {
		return nil, err
	}

	return &r, nil
}

func nullableDecimalString(d *moneydecimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func assignDecimal(dst **moneydecimal.Decimal, s *string) error {
	if s == nil {
		*dst = nil
		return nil
	}
	d, err := moneydecimal.Parse(*s)
	if err != nil {
		return err
	}
	*dst = &d
	return nil
}
