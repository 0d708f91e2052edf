// Package timeperiod implements C2, the Time-Period Resolver: expanding a
// domain.TimePeriod into an ordered, non-overlapping sequence of
// half-open aggregation buckets (spec.md §4.2).
package timeperiod

import (
	"time"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
)

// Bucket is a half-open time interval [Start, End).
type Bucket struct {
	Start time.Time
	End   time.Time
}

// DefaultMaxBuckets is the hard cap from spec.md §4.2; Expand rejects any
// period that would produce more.
const DefaultMaxBuckets = 10000

// Expand computes the ordered bucket sequence covering
// [tp.StartDate, tp.EndDate] per the granularity rules in spec.md §4.2.
// It is a pure function of tp and therefore idempotent.
func Expand(tp domain.TimePeriod) ([]Bucket, error) {
	return ExpandWithMax(tp, DefaultMaxBuckets)
}

// ExpandWithMax is Expand with an injectable bucket cap (config.Engine.MaxBuckets).
func ExpandWithMax(tp domain.TimePeriod, maxBuckets int) ([]Bucket, error) {
	if !tp.EndDate.After(tp.StartDate) {
		return nil, analysiserr.InvalidPeriodf("end_date must be after start_date")
	}
	if tp.Granularity == domain.Custom && tp.CustomIntervalDays <= 0 {
		return nil, analysiserr.InvalidPeriodf("custom_interval_days must be positive for CUSTOM granularity")
	}
	if tp.Granularity != domain.Custom && tp.CustomIntervalDays != 0 {
		return nil, analysiserr.InvalidPeriodf("custom_interval_days must only be set for CUSTOM granularity")
	}

	start := tp.StartDate.UTC()
	end := tp.EndDate.UTC()

	var buckets []Bucket
	switch tp.Granularity {
	case domain.Daily:
		buckets = stepFixed(start, end, 24*time.Hour)
	case domain.Weekly:
		buckets = stepFixed(start, end, 7*24*time.Hour)
	case domain.Monthly:
		buckets = stepMonths(start, end, 1)
	case domain.Quarterly:
		buckets = stepMonths(start, end, 3)
	case domain.Custom:
		buckets = stepFixed(start, end, time.Duration(tp.CustomIntervalDays)*24*time.Hour)
	default:
		return nil, analysiserr.InvalidPeriodf("unrecognized granularity " + string(tp.Granularity))
	}

	buckets = dropZeroLength(buckets)

	if len(buckets) > maxBuckets {
		return nil, analysiserr.PeriodTooGranularf("time period would produce more than the maximum allowed buckets")
	}
	if len(buckets) == 0 {
		return nil, analysiserr.InvalidPeriodf("time period produced no buckets")
	}

	return buckets, nil
}

// stepFixed produces fixed-width buckets aligned to start, truncating the
// final bucket to end.
func stepFixed(start, end time.Time, width time.Duration) []Bucket {
	var buckets []Bucket
	cur := start
	for cur.Before(end) {
		next := cur.Add(width)
		if next.After(end) {
			next = end
		}
		buckets = append(buckets, Bucket{Start: cur, End: next})
		cur = next
	}
	return buckets
}

// stepMonths produces calendar-month buckets (monthStep months wide),
// clamping the day-of-month to the last valid day of the target month
// per spec.md §4.2. This is calendar-month stepping, not a 30-day
// approximation (spec.md §9 Open Question, resolved in SPEC_FULL.md §7).
func stepMonths(start, end time.Time, monthStep int) []Bucket {
	var buckets []Bucket
	cur := start
	k := 0
	for cur.Before(end) {
		next := addCalendarMonths(start, (k+1)*monthStep)
		if next.After(end) {
			next = end
		}
		buckets = append(buckets, Bucket{Start: cur, End: next})
		cur = next
		k++
	}
	return buckets
}

// AddCalendarMonths adds n months to t, clamping the day-of-month to the
// last day of the resulting month when the source day doesn't exist
// there (e.g. Jan 31 + 1 month -> Feb 28/29). Exported for the Schedule
// Executor's compute_next, which applies the same MONTHLY clamping rule
// (spec.md §4.8) to last_run_at rather than to a bucket boundary.
func AddCalendarMonths(t time.Time, n int) time.Time {
	return addCalendarMonths(t, n)
}

func addCalendarMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	targetMonthIndex := int(m) - 1 + n
	targetYear := y + targetMonthIndex/12
	targetMonth := time.Month(targetMonthIndex%12 + 1)
	if targetMonthIndex%12 < 0 {
		targetMonth += 12
		targetYear--
	}

	lastDay := lastDayOfMonth(targetYear, targetMonth)
	if d > lastDay {
		d = lastDay
	}

	return time.Date(targetYear, targetMonth, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	lastOfThis := firstOfNext.Add(-24 * time.Hour)
	return lastOfThis.Day()
}

func dropZeroLength(buckets []Bucket) []Bucket {
	out := buckets[:0:0]
	for _, b := range buckets {
		if b.End.After(b.Start) {
			out = append(out, b)
		}
	}
	return out
}
