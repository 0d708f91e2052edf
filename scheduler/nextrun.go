package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/freightpricing/analysisengine/analysiserr"
	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/timeperiod"
)

// ComputeNext implements spec.md §4.8's compute_next contract: the next
// run instant strictly after from, given a schedule kind and its spec.
// A pure function of its inputs, matching timeperiod.Expand's pure-
// function-of-its-inputs shape so both are trivially unit-testable.
// Exported so the Saved-Analysis Registry can validate a schedule_spec
// at schedule_create/update time (spec.md §6: INVALID_SCHEDULE_SPEC).
func ComputeNext(kind domain.ScheduleKind, spec string, from time.Time) (time.Time, error) {
	return computeNext(kind, spec, from)
}

func computeNext(kind domain.ScheduleKind, spec string, from time.Time) (time.Time, error) {
	switch kind {
	case domain.ScheduleDaily:
		return from.Add(24 * time.Hour), nil
	case domain.ScheduleWeekly:
		return from.Add(7 * 24 * time.Hour), nil
	case domain.ScheduleMonthly:
		return timeperiod.AddCalendarMonths(from, 1), nil
	case domain.ScheduleCron:
		schedule, err := cron.ParseStandard(spec)
		if err != nil {
			return time.Time{}, analysiserr.InvalidScheduleSpecf("invalid cron expression " + spec + ": " + err.Error())
		}
		return schedule.Next(from), nil
	default:
		return time.Time{}, analysiserr.InvalidScheduleSpecf("unrecognized schedule kind " + string(kind))
	}
}
