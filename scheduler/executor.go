// Package scheduler implements C8, the Schedule Executor: a poll loop
// that drives due AnalysisSchedule rows through the Saved-Analysis
// Registry into the Orchestrator (spec.md §4.8).
//
// The poll-and-dispatch shape is grounded on the sibling pack repo
// r3e-network-service_layer's services/automation/automation_service.go
// runScheduler (time.Ticker loop selecting between ctx.Done, a stop
// channel, and the tick), since the teacher repo has no recurring-job
// scheduler of its own.
package scheduler

import (
	"context"
	"time"

	"github.com/freightpricing/analysisengine/domain"
	"github.com/freightpricing/analysisengine/obslog"
	"github.com/freightpricing/analysisengine/obsmetrics"
)

// Runner invokes a SavedAnalysis by id, tagging the request with the
// caller that triggered it (spec.md §4.8 step 2).
type Runner interface {
	RunSaved(ctx context.Context, savedAnalysisID, createdBy string) (*domain.AnalysisResult, error)
}

// Store queries and updates AnalysisSchedule rows.
type Store interface {
	DueSchedules(ctx context.Context, now time.Time) ([]domain.AnalysisSchedule, error)
	MarkRun(ctx context.Context, scheduleID string, lastRunAt, nextRunAt time.Time) error
	Deactivate(ctx context.Context, scheduleID, reason string) error
}

// Executor is the poll loop. WorkerPoolSize bounds concurrent schedule
// executions; PollInterval is T_poll.
type Executor struct {
	Store          Store
	Runner         Runner
	Logger         *obslog.Logger
	PollInterval   time.Duration
	WorkerPoolSize int
	Now            func() time.Time
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Run blocks, polling every PollInterval until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	interval := e.PollInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	poolSize := e.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	sem := make(chan struct{}, poolSize)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.poll(ctx, sem)
		}
	}
}

// poll fetches due schedules and submits each to the bounded worker
// pool. A schedule that finds the pool full is simply skipped this
// tick: next_run_at is untouched, so it remains due and is retried on
// the next poll (spec.md §4.8 step 3's backpressure requirement).
func (e *Executor) poll(ctx context.Context, sem chan struct{}) {
	due, err := e.Store.DueSchedules(ctx, e.now())
	if err != nil {
		e.log().Error("schedule poll query failed", err, obslog.Component("scheduler"))
		return
	}

	now := e.now()
	for _, sched := range due {
		select {
		case sem <- struct{}{}:
			if sched.NextRunAt != nil {
				obsmetrics.RecordSchedulePollLag(now.Sub(*sched.NextRunAt).Seconds())
			}
			go func(s domain.AnalysisSchedule) {
				defer func() { <-sem }()
				e.runOne(ctx, s)
			}(sched)
		default:
			obsmetrics.RecordWorkerPoolSaturated()
			e.log().Warn("worker pool full, deferring schedule to next poll",
				obslog.ScheduleID(sched.ID), obslog.Component("scheduler"))
		}
	}
}

func (e *Executor) runOne(ctx context.Context, sched domain.AnalysisSchedule) {
	_, err := e.Runner.RunSaved(ctx, sched.SavedAnalysisID, sched.CreatedBy)
	if err != nil {
		e.log().Error("scheduled analysis run failed", err,
			obslog.ScheduleID(sched.ID), obslog.Component("scheduler"))
		obsmetrics.RecordScheduleExecution(string(sched.ScheduleKind), "failure")
	} else {
		obsmetrics.RecordScheduleExecution(string(sched.ScheduleKind), "success")
	}

	// Step 4: advance next_run_at only after the run completes, success
	// or failure, never on enqueue.
	now := e.now()
	next, err := computeNext(sched.ScheduleKind, sched.ScheduleSpec, now)
	if err != nil {
		e.log().Error("schedule deactivated: invalid schedule spec", err,
			obslog.ScheduleID(sched.ID), obslog.Component("scheduler"))
		if deactivateErr := e.Store.Deactivate(ctx, sched.ID, err.Error()); deactivateErr != nil {
			e.log().Error("failed to deactivate schedule after compute_next failure", deactivateErr,
				obslog.ScheduleID(sched.ID), obslog.Component("scheduler"))
		}
		return
	}

	if err := e.Store.MarkRun(ctx, sched.ID, now, next); err != nil {
		e.log().Error("failed to record schedule run", err,
			obslog.ScheduleID(sched.ID), obslog.Component("scheduler"))
	}
}

func (e *Executor) log() *obslog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return obslog.New(obslog.INFO)
}
