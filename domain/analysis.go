package domain

import (
	"encoding/json"
	"time"

	"github.com/freightpricing/analysisengine/moneydecimal"
)

// OutputFormat is the requested rendering of an AnalysisResult's payload.
// The core computes `results` identically regardless of format; format
// only affects the external report-formatting collaborator (spec.md §1).
type OutputFormat string

const (
	FormatJSON OutputFormat = "JSON"
	FormatCSV  OutputFormat = "CSV"
	FormatText OutputFormat = "TEXT"
)

// Status is the AnalysisResult lifecycle state (spec.md §4.5).
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// TrendDirection classifies percentage change against the trend threshold.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "INCREASING"
	TrendDecreasing TrendDirection = "DECREASING"
	TrendStable     TrendDirection = "STABLE"
)

// PercentSentinel represents the non-numeric percentage-change outcomes
// defined in spec.md §4.4 for a zero start_value.
type PercentSentinel string

const (
	SentinelNone        PercentSentinel = ""
	SentinelNewPrice    PercentSentinel = "NEW_PRICE"
	SentinelNewDiscount PercentSentinel = "NEW_DISCOUNT"
)

// AnalysisRequest is the logical input to an analysis (spec.md §3). It is
// never persisted as-is; the Orchestrator canonicalizes it into
// Parameters and computes a fingerprint from the result.
type AnalysisRequest struct {
	TimePeriodID         string
	Filters              Filter
	OutputFormat         OutputFormat
	IncludeVisualization bool
	UserID               string
}

// Parameters is the canonicalized form of an AnalysisRequest's inputs,
// stored on the AnalysisResult and serialized for fingerprinting
// (spec.md §4.6).
type Parameters struct {
	TimePeriodID         string       `json:"time_period_id"`
	Filters              Filter       `json:"filters"`
	OutputFormat         OutputFormat `json:"output_format"`
	IncludeVisualization bool         `json:"include_visualization"`
}

// AnalysisResult is the computed outcome of an analysis (spec.md §3).
type AnalysisResult struct {
	ID               string
	TimePeriodID     string
	Parameters       Parameters
	Fingerprint      string
	Status           Status
	StartValue       *moneydecimal.Decimal
	EndValue         *moneydecimal.Decimal
	AbsoluteChange   *moneydecimal.Decimal
	PercentageChange *moneydecimal.Decimal
	PercentSentinel  PercentSentinel
	TrendDirection   TrendDirection
	CurrencyCode     string
	OutputFormat     OutputFormat
	Results          json.RawMessage
	ErrorMessage     string
	CalculatedAt     time.Time
	IsCached         bool
	CacheExpiresAt   time.Time
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsTerminal reports whether the result has reached a terminal status
// (spec.md §4.5: the state machine never transitions out of one).
func (r *AnalysisResult) IsTerminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// SavedAnalysis is a named, reusable analysis configuration (spec.md §3).
type SavedAnalysis struct {
	ID                   string
	Name                 string
	Description          string
	TimePeriodID         string
	Parameters           Parameters
	OutputFormat         OutputFormat
	IncludeVisualization bool
	LastRunAt            *time.Time
	CreatedBy            string
	CreatedAt            time.Time
}

// ScheduleKind is the recurrence kind for an AnalysisSchedule.
type ScheduleKind string

const (
	ScheduleDaily   ScheduleKind = "DAILY"
	ScheduleWeekly  ScheduleKind = "WEEKLY"
	ScheduleMonthly ScheduleKind = "MONTHLY"
	ScheduleCron    ScheduleKind = "CRON"
)

// AnalysisSchedule is a recurrence wrapper around a SavedAnalysis
// (spec.md §3).
type AnalysisSchedule struct {
	ID             string
	Name           string
	SavedAnalysisID string
	ScheduleKind   ScheduleKind
	ScheduleSpec   string
	IsActive       bool
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	CreatedBy      string
	CreatedAt      time.Time
}
