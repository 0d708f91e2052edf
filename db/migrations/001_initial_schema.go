package migrations

import (
	"database/sql"
)

func init() {
	RegisterMigration(&Migration{
		Version: 1,
		Name:    "initial_schema",
		Up:      initialSchemaUp,
		Down:    initialSchemaDown,
	})
}

func initialSchemaUp(tx *sql.Tx) error {
	schema := `
	-- Freight price observations (spec.md §3). Immutable once written;
	-- corrections are soft-deletes, never in-place updates.
	CREATE TABLE IF NOT EXISTS freight_records (
		id UUID PRIMARY KEY,
		record_date DATE NOT NULL,
		origin_id VARCHAR(64) NOT NULL,
		destination_id VARCHAR(64) NOT NULL,
		carrier_id VARCHAR(64) NOT NULL,
		transport_mode VARCHAR(20) NOT NULL,
		freight_charge NUMERIC(20, 6) NOT NULL CHECK (freight_charge >= 0),
		currency_code CHAR(3) NOT NULL,
		service_level VARCHAR(50),
		additional_charges JSONB NOT NULL DEFAULT '{}',
		source_system VARCHAR(100),
		data_quality_flag VARCHAR(50),
		deleted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX idx_freight_records_lane_date
		ON freight_records(origin_id, destination_id, record_date)
		WHERE deleted_at IS NULL;
	CREATE INDEX idx_freight_records_carrier ON freight_records(carrier_id) WHERE deleted_at IS NULL;
	CREATE INDEX idx_freight_records_record_date ON freight_records(record_date) WHERE deleted_at IS NULL;

	-- User-defined analysis windows (spec.md §3).
	CREATE TABLE IF NOT EXISTS time_periods (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		granularity VARCHAR(20) NOT NULL,
		custom_interval_days INT NOT NULL DEFAULT 0,
		created_by VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (end_date >= start_date)
	);

	CREATE INDEX idx_time_periods_created_by ON time_periods(created_by);

	-- Computed analysis outcomes, keyed by fingerprint for the Result
	-- Cache's Ready space (spec.md §4.5, §4.6).
	CREATE TABLE IF NOT EXISTS analysis_results (
		id UUID PRIMARY KEY,
		time_period_id UUID NOT NULL REFERENCES time_periods(id),
		parameters JSONB NOT NULL,
		fingerprint VARCHAR(64) NOT NULL,
		status VARCHAR(20) NOT NULL,
		start_value NUMERIC(20, 6),
		end_value NUMERIC(20, 6),
		absolute_change NUMERIC(20, 6),
		percentage_change NUMERIC(20, 6),
		percent_sentinel VARCHAR(20) NOT NULL DEFAULT '',
		trend_direction VARCHAR(20) NOT NULL DEFAULT '',
		currency_code CHAR(3),
		output_format VARCHAR(10) NOT NULL,
		results JSONB,
		error_message TEXT,
		calculated_at TIMESTAMPTZ,
		is_cached BOOLEAN NOT NULL DEFAULT FALSE,
		cache_expires_at TIMESTAMPTZ,
		created_by VARCHAR(255),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX idx_analysis_results_fingerprint ON analysis_results(fingerprint);
	CREATE INDEX idx_analysis_results_time_period_id ON analysis_results(time_period_id);
	CREATE INDEX idx_analysis_results_status ON analysis_results(status);

	-- Named, reusable analysis configurations (spec.md §3, §4.9).
	CREATE TABLE IF NOT EXISTS saved_analyses (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		time_period_id UUID NOT NULL REFERENCES time_periods(id),
		parameters JSONB NOT NULL,
		output_format VARCHAR(10) NOT NULL,
		include_visualization BOOLEAN NOT NULL DEFAULT FALSE,
		last_run_at TIMESTAMPTZ,
		created_by VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (created_by, name)
	);

	-- Recurrence wrapper around a SavedAnalysis (spec.md §3, §4.8).
	CREATE TABLE IF NOT EXISTS analysis_schedules (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		saved_analysis_id UUID NOT NULL REFERENCES saved_analyses(id) ON DELETE CASCADE,
		schedule_kind VARCHAR(20) NOT NULL,
		schedule_spec VARCHAR(255) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_run_at TIMESTAMPTZ,
		next_run_at TIMESTAMPTZ,
		created_by VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX idx_analysis_schedules_due ON analysis_schedules(next_run_at) WHERE is_active;
	CREATE INDEX idx_analysis_schedules_saved_analysis_id ON analysis_schedules(saved_analysis_id);
	`

	_, err := tx.Exec(schema)
	return err
}

func initialSchemaDown(tx *sql.Tx) error {
	dropTables := `
	DROP TABLE IF EXISTS analysis_schedules;
	DROP TABLE IF EXISTS saved_analyses;
	DROP TABLE IF EXISTS analysis_results;
	DROP TABLE IF EXISTS time_periods;
	DROP TABLE IF EXISTS freight_records;
	`

	_, err := tx.Exec(dropTables)
	return err
}
