// Package saved persists domain.SavedAnalysis and domain.AnalysisSchedule
// rows for C9, the Saved-Analysis Registry (spec.md §4.9), and serves
// scheduler.Store's DueSchedules query for C8.
package saved

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
)

// PGStore is the Postgres-backed registry.Store and scheduler.Store,
// grounded on the same pgx/v5 query-building style as store/results.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) CreateSavedAnalysis(ctx context.Context, sa *domain.SavedAnalysis) error {
	paramsJSON, err := json.Marshal(sa.Parameters)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO saved_analyses (
			id, name, description, time_period_id, parameters,
			output_format, include_visualization, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sa.ID, sa.Name, sa.Description, sa.TimePeriodID, paramsJSON,
		string(sa.OutputFormat), sa.IncludeVisualization, sa.CreatedBy, sa.CreatedAt)
	if err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "create saved_analyses row failed", err)
	}
	return nil
}

func (s *PGStore) GetSavedAnalysis(ctx context.Context, id string) (*domain.SavedAnalysis, error) {
	row := s.pool.QueryRow(ctx, savedAnalysisColumns+` FROM saved_analyses WHERE id = $1`, id)
	return scanSavedAnalysis(row)
}

func (s *PGStore) FindSavedAnalysisByName(ctx context.Context, createdBy, name string) (*domain.SavedAnalysis, error) {
	row := s.pool.QueryRow(ctx, savedAnalysisColumns+
		` FROM saved_analyses WHERE created_by = $1 AND name = $2`, createdBy, name)
	return scanSavedAnalysis(row)
}

func (s *PGStore) UpdateSavedAnalysis(ctx context.Context, sa *domain.SavedAnalysis) error {
	paramsJSON, err := json.Marshal(sa.Parameters)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE saved_analyses SET
			name = $2, description = $3, time_period_id = $4, parameters = $5,
			output_format = $6, include_visualization = $7, last_run_at = $8
		WHERE id = $1
	`, sa.ID, sa.Name, sa.Description, sa.TimePeriodID, paramsJSON,
		string(sa.OutputFormat), sa.IncludeVisualization, sa.LastRunAt)
	if err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "update saved_analyses row failed", err)
	}
	if tag.RowsAffected() == 0 {
		return analysiserr.NotFoundf("saved analysis " + sa.ID + " not found")
	}
	return nil
}

func (s *PGStore) DeleteSavedAnalysis(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM saved_analyses WHERE id = $1`, id)
	if err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "delete saved_analyses row failed", err)
	}
	if tag.RowsAffected() == 0 {
		return analysiserr.NotFoundf("saved analysis " + id + " not found")
	}
	return nil
}

func (s *PGStore) ListSavedAnalyses(ctx context.Context, createdBy string) ([]domain.SavedAnalysis, error) {
	rows, err := s.pool.Query(ctx, savedAnalysisColumns+
		` FROM saved_analyses WHERE created_by = $1 ORDER BY created_at DESC`, createdBy)
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.StoreUnavailable, "list saved_analyses failed", err)
	}
	defer rows.Close()

	var out []domain.SavedAnalysis
	for rows.Next() {
		sa, err := scanSavedAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sa)
	}
	return out, rows.Err()
}

const savedAnalysisColumns = `SELECT
	id, name, description, time_period_id, parameters,
	output_format, include_visualization, last_run_at, created_by, created_at`

func scanSavedAnalysis(row pgx.Row) (*domain.SavedAnalysis, error) {
	var sa domain.SavedAnalysis
	var paramsJSON []byte
	var outputFormat string

	err := row.Scan(
		&sa.ID, &sa.Name, &sa.Description, &sa.TimePeriodID, &paramsJSON,
		&outputFormat, &sa.IncludeVisualization, &sa.LastRunAt, &sa.CreatedBy, &sa.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, analysiserr.NotFoundf("saved analysis not found")
		}
		return nil, analysiserr.Wrap(analysiserr.StoreUnavailable, "scan saved_analyses row failed", err)
	}

	if err := json.Unmarshal(paramsJSON, &sa.Parameters); err != nil {
		return nil, err
	}
	sa.OutputFormat = domain.OutputFormat(outputFormat)
	return &sa, nil
}

func (s *PGStore) CreateSchedule(ctx context.Context, sched *domain.AnalysisSchedule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analysis_schedules (
			id, name, saved_analysis_id, schedule_kind, schedule_spec,
			is_active, next_run_at, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sched.ID, sched.Name, sched.SavedAnalysisID, string(sched.ScheduleKind), sched.ScheduleSpec,
		sched.IsActive, sched.NextRunAt, sched.CreatedBy, sched.CreatedAt)
	if err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "create analysis_schedules row failed", err)
	}
	return nil
}

func (s *PGStore) GetSchedule(ctx context.Context, id string) (*domain.AnalysisSchedule, error) {
	row := s.pool.QueryRow(ctx, scheduleColumns+` FROM analysis_schedules WHERE id = $1`, id)
	return scanSchedule(row)
}

func (s *PGStore) UpdateSchedule(ctx context.Context, sched *domain.AnalysisSchedule) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE analysis_schedules SET
			name = $2, schedule_kind = $3, schedule_spec = $4, is_active = $5,
			last_run_at = $6, next_run_at = $7
		WHERE id = $1
	`, sched.ID, sched.Name, string(sched.ScheduleKind), sched.ScheduleSpec, sched.IsActive,
		sched.LastRunAt, sched.NextRunAt)
	if err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "update analysis_schedules row failed", err)
	}
	if tag.RowsAffected() == 0 {
		return analysiserr.NotFoundf("schedule " + sched.ID + " not found")
	}
	return nil
}

func (s *PGStore) DeleteSchedule(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analysis_schedules WHERE id = $1`, id)
	if err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "delete analysis_schedules row failed", err)
	}
	if tag.RowsAffected() == 0 {
		return analysiserr.NotFoundf("schedule " + id + " not found")
	}
	return nil
}

func (s *PGStore) ListSchedulesForSavedAnalysis(ctx context.Context, savedAnalysisID string) ([]domain.AnalysisSchedule, error) {
	rows, err := s.pool.Query(ctx, scheduleColumns+
		` FROM analysis_schedules WHERE saved_analysis_id = $1`, savedAnalysisID)
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.StoreUnavailable, "list analysis_schedules failed", err)
	}
	defer rows.Close()

	var out []domain.AnalysisSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sched)
	}
	return out, rows.Err()
}

// DueSchedules satisfies scheduler.Store: active schedules whose
// next_run_at has arrived.
func (s *PGStore) DueSchedules(ctx context.Context, now time.Time) ([]domain.AnalysisSchedule, error) {
	rows, err := s.pool.Query(ctx, scheduleColumns+
		` FROM analysis_schedules WHERE is_active AND next_run_at <= $1`, now)
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.StoreUnavailable, "due schedules query failed", err)
	}
	defer rows.Close()

	var out []domain.AnalysisSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sched)
	}
	return out, rows.Err()
}

// MarkRun satisfies scheduler.Store.
func (s *PGStore) MarkRun(ctx context.Context, scheduleID string, lastRunAt, nextRunAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE analysis_schedules SET last_run_at = $2, next_run_at = $3 WHERE id = $1
	`, scheduleID, lastRunAt, nextRunAt)
	if err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "mark schedule run failed", err)
	}
	if tag.RowsAffected() == 0 {
		return analysiserr.NotFoundf("schedule " + scheduleID + " not found")
	}
	return nil
}

// Deactivate satisfies scheduler.Store: used when compute_next fails
// (an unparseable schedule spec).
func (s *PGStore) Deactivate(ctx context.Context, scheduleID, reason string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE analysis_schedules SET is_active = false WHERE id = $1`, scheduleID)
	if err != nil {
		return analysiserr.Wrap(analysiserr.StoreUnavailable, "deactivate schedule failed", err)
	}
	if tag.RowsAffected() == 0 {
		return analysiserr.NotFoundf("schedule " + scheduleID + " not found")
	}
	return nil
}

const scheduleColumns = `SELECT
	id, name, saved_analysis_id, schedule_kind, schedule_spec,
	is_active, last_run_at, next_run_at, created_by, created_at`

func scanSchedule(row pgx.Row) (*domain.AnalysisSchedule, error) {
	var sched domain.AnalysisSchedule
	var kind string

	err := row.Scan(
		&sched.ID, &sched.Name, &sched.SavedAnalysisID, &kind, &sched.ScheduleSpec,
		&sched.IsActive, &sched.LastRunAt, &sched.NextRunAt, &sched.CreatedBy, &sched.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, analysiserr.NotFoundf("schedule not found")
		}
		return nil, analysiserr.Wrap(analysiserr.StoreUnavailable, "scan analysis_schedules row failed", err)
	}
	sched.ScheduleKind = domain.ScheduleKind(kind)
	return &sched, nil
}
