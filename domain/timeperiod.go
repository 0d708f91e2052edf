package domain

import "time"

// Granularity is the bucket width of a time-period expansion.
type Granularity string

const (
	Daily     Granularity = "DAILY"
	Weekly    Granularity = "WEEKLY"
	Monthly   Granularity = "MONTHLY"
	Quarterly Granularity = "QUARTERLY"
	Custom    Granularity = "CUSTOM"
)

// TimePeriod is a user-defined analysis window (spec.md §3).
type TimePeriod struct {
	ID                 string
	Name               string
	StartDate          time.Time
	EndDate            time.Time
	Granularity        Granularity
	CustomIntervalDays int
	CreatedBy          string
	CreatedAt          time.Time
}
