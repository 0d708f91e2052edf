// Package timeperiods persists domain.TimePeriod rows: the named
// analysis windows the orchestrator resolves a time_period_id against
// before calling timeperiod.Expand (spec.md §3).
package timeperiods

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
)

// Store resolves a time_period_id into its domain.TimePeriod snapshot.
type Store interface {
	Get(ctx context.Context, id string) (*domain.TimePeriod, error)
	Create(ctx context.Context, tp *domain.TimePeriod) error
}

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, id string) (*domain.TimePeriod, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, start_date, end_date, granularity,
		custom_interval_days, created_by, created_at
		FROM time_periods WHERE id = $1`, id)

	var tp domain.TimePeriod
	var granularity string
	err := row.Scan(&tp.ID, &tp.Name, &tp.StartDate, &tp.EndDate, &granularity,
		&tp.CustomIntervalDays, &tp.CreatedBy, &tp.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, analysiserr.NotFoundf("time period " + id + " not found")
		}
		return nil, analysiserr.Wrap(analysiserr.StoreUnavailable, "scan time_period row failed", err)
	}
	tp.Granularity = domain.Granularity(granularity)
	return &tp, nil
}

func (s *PGStore) Create(ctx context.Context, tp *domain.TimePeriod) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO time_periods (
		id, name, start_date, end_date, granularity, custom_interval_days, created_by, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tp.ID, tp.Name, tp.StartDate, tp.EndDate, string(tp.Granularity),
		tp.CustomIntervalDays, tp.CreatedBy, tp.CreatedAt)
	if err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "create time_period row failed", err)
	}
	return nil
}
