// Package scheduler drives the 30-second heartbeat tick that decides which
// enabled Schedules are due, submits their backups to a bounded worker pool,
// and sweeps abandoned Runs left behind by a crash (spec §4.6).
//
// Unlike a cron-string scheduler, a Schedule's cadence is a plain interval
// (interval_seconds) plus an optional HH:MM anchor for intervals of an hour
// or more — see NextRun. The heartbeat itself is still driven by gocron, but
// as a single recurring job rather than one job per schedule: gocron owns
// the tick, this package owns the decision of what runs on each tick.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/metrics"
	"github.com/dbsentinel/dbsentinel/internal/pipeline"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

// heartbeat is the tick cadence (spec §4.6).
const heartbeat = 30 * time.Second

// abandonedAfter is how long a status=running Run can go unfinished before
// the crash-recovery sweep finalizes it as failed (spec §4.6).
const abandonedAfter = 10 * time.Minute

// minRunDeadline is the floor on a run's hard deadline, for schedules whose
// interval is shorter than an hour.
const minRunDeadline = time.Hour

// ErrBusy is returned by TriggerNow when the schedule's default lock_policy
// (refuse) finds a run already in flight for it.
var ErrBusy = errors.New("scheduler: schedule is already running")

// Notifier is the narrow interface the scheduler calls after every
// terminal Run so delivery (email, Telegram, ...) can happen without this
// package knowing about any transport. notificationsJSON is the schedule's
// decoded `notifications` sub-object verbatim (nil for a run with no
// schedule, e.g. a local backup-now) — the notifier package owns its own
// shape for that blob. A nil Notifier is valid — Notify is simply skipped.
type Notifier interface {
	Notify(ctx context.Context, run *db.Run, notificationsJSON json.RawMessage)
}

// Scheduler owns the heartbeat tick, per-schedule locks, and the bounded
// worker pool that backups actually run on. The zero value is not usable —
// create instances with New.
type Scheduler struct {
	cron      gocron.Scheduler
	schedules repositories.ScheduleRepository
	targets   repositories.TargetRepository
	dests     repositories.DestinationRepository
	runs      repositories.RunRepository
	backup    *pipeline.BackupPipeline
	notifier  Notifier
	locks     *scheduleLocks
	pool      *workerPool
	storage   *storage.Pool
	logger    *zap.Logger

	now func() time.Time
}

// New builds a Scheduler. workers <= 0 uses defaultWorkerCount. notifier may
// be nil. storagePool, if non-nil, is swept for idle destination adapters
// on every heartbeat (spec §5 "idle eviction 10 min") — the scheduler's
// existing tick is the natural place to drive it, so destination adapters
// don't need a background goroutine of their own.
func New(
	schedules repositories.ScheduleRepository,
	targets repositories.TargetRepository,
	dests repositories.DestinationRepository,
	runs repositories.RunRepository,
	backup *pipeline.BackupPipeline,
	notifier Notifier,
	workers int,
	logger *zap.Logger,
	storagePool *storage.Pool,
) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: creating gocron scheduler: %w", err)
	}
	return &Scheduler{
		cron:      cron,
		schedules: schedules,
		targets:   targets,
		dests:     dests,
		runs:      runs,
		backup:    backup,
		notifier:  notifier,
		locks:     newScheduleLocks(),
		pool:      newWorkerPool(workers),
		storage:   storagePool,
		logger:    logger.Named("scheduler"),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start runs the crash-recovery sweep, recomputes next_run_at for every
// enabled schedule, installs the heartbeat job, and starts gocron. Call
// once at server startup.
func (s *Scheduler) Start(ctx context.Context) error {
	n, err := s.runs.SweepAbandoned(ctx, s.now().Add(-abandonedAfter))
	if err != nil {
		return fmt.Errorf("scheduler: crash-recovery sweep: %w", err)
	}
	if n > 0 {
		s.logger.Warn("finalized abandoned runs on startup", zap.Int64("count", n))
	}

	if err := s.resyncNextRun(ctx); err != nil {
		return fmt.Errorf("scheduler: resyncing next_run_at: %w", err)
	}

	if _, err := s.cron.NewJob(
		gocron.DurationJob(heartbeat),
		gocron.NewTask(func() { s.tick(context.Background()) }),
	); err != nil {
		return fmt.Errorf("scheduler: installing heartbeat job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Duration("heartbeat", heartbeat))
	return nil
}

// Stop drains the worker pool (waiting for in-flight runs to finish) and
// shuts down gocron.
func (s *Scheduler) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: gocron shutdown: %w", err)
	}
	s.pool.Stop()
	s.logger.Info("scheduler stopped")
	return nil
}

// resyncNextRun sets next_run_at for any enabled schedule missing one
// (newly created, or recovering from a prior run_at_time config change).
func (s *Scheduler) resyncNextRun(ctx context.Context) error {
	enabled, err := s.schedules.ListEnabled(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for i := range enabled {
		sched := &enabled[i]
		if sched.NextRunAt != nil {
			continue
		}
		anchor := sched.CreatedAt
		if sched.LastRunAt != nil {
			anchor = *sched.LastRunAt
		}
		next, err := s.computeNext(sched, anchor, now)
		if err != nil {
			s.logger.Error("computing initial next_run_at", zap.String("schedule_id", sched.ID.String()), zap.Error(err))
			continue
		}
		if err := s.schedules.UpdateRunTimes(ctx, sched.ID, anchor, next); err != nil {
			s.logger.Error("persisting initial next_run_at", zap.String("schedule_id", sched.ID.String()), zap.Error(err))
		}
	}
	return nil
}

func (s *Scheduler) computeNext(sched *db.Schedule, anchor, now time.Time) (time.Time, error) {
	policy, err := ParsePolicy(sched.RetentionJSON)
	if err != nil {
		return time.Time{}, err
	}
	return NextRun(time.Duration(sched.IntervalSeconds)*time.Second, anchor, policy.RunAtTime, now)
}

// tick is the single-threaded decision loop invoked every heartbeat: load
// every enabled schedule whose next_run_at has arrived, and submit each to
// the worker pool (skipping any whose lock is already held).
func (s *Scheduler) tick(ctx context.Context) {
	if s.storage != nil {
		s.storage.SweepIdle()
	}

	enabled, err := s.schedules.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("tick: listing enabled schedules", zap.Error(err))
		return
	}
	metrics.SchedulesActive.Set(float64(len(enabled)))

	now := s.now()
	for i := range enabled {
		sched := enabled[i]
		if sched.NextRunAt == nil || sched.NextRunAt.After(now) {
			continue
		}
		s.submit(sched, db.TriggerScheduled)
	}
}

// submit attempts to acquire sched's lock and, on success, advances
// last_run_at/next_run_at and hands the run off to the worker pool. It
// reports whether a run was actually submitted (false means the lock was
// already held).
func (s *Scheduler) submit(sched db.Schedule, trigger db.Trigger) bool {
	id := sched.ID.String()
	if !s.locks.TryAcquire(id) {
		s.logger.Warn("skipping schedule, previous run still in flight", zap.String("schedule_id", id))
		return false
	}

	now := s.now()
	next, err := s.computeNext(&sched, now, now)
	if err != nil {
		s.logger.Error("computing next_run_at after submit", zap.String("schedule_id", id), zap.Error(err))
		next = now.Add(time.Duration(sched.IntervalSeconds) * time.Second)
	}
	bg := context.Background()
	if err := s.schedules.UpdateRunTimes(bg, sched.ID, now, next); err != nil {
		s.logger.Error("advancing schedule run times", zap.String("schedule_id", id), zap.Error(err))
	}

	deadline := time.Duration(sched.IntervalSeconds) * time.Second
	if deadline < minRunDeadline {
		deadline = minRunDeadline
	}

	s.pool.Submit(func() {
		defer s.locks.Release(id)
		runCtx, cancel := context.WithTimeout(context.Background(), deadline)
		defer cancel()
		s.runSchedule(runCtx, &sched, trigger)
	})
	return true
}

// runSchedule resolves the schedule's target/destinations/policy and
// executes one backup pass, notifying on completion if a Notifier is wired.
func (s *Scheduler) runSchedule(ctx context.Context, sched *db.Schedule, trigger db.Trigger) {
	target, err := s.targets.GetByID(ctx, sched.TargetID)
	if err != nil {
		s.logger.Error("runSchedule: loading target", zap.String("schedule_id", sched.ID.String()), zap.Error(err))
		return
	}

	policy, err := ParsePolicy(sched.RetentionJSON)
	if err != nil {
		s.logger.Error("runSchedule: parsing policy", zap.String("schedule_id", sched.ID.String()), zap.Error(err))
		return
	}

	destinations, err := s.resolveDestinations(ctx, sched.DestinationIDs)
	if err != nil {
		s.logger.Error("runSchedule: resolving destinations", zap.String("schedule_id", sched.ID.String()), zap.Error(err))
		return
	}

	opts := pipeline.BackupOptions{
		Trigger:            trigger,
		Schedule:           sched,
		Retention:          policy.RetentionPolicy(),
		Encrypt:            policy.Encrypt,
		EncryptionPassword: policy.EncryptPassword,
	}

	run, err := s.backup.Run(ctx, target, destinations, opts)
	if err != nil {
		s.logger.Error("runSchedule: backup pipeline error", zap.String("schedule_id", sched.ID.String()), zap.Error(err))
		return
	}

	s.logger.Info("schedule run finished",
		zap.String("schedule_id", sched.ID.String()),
		zap.String("schedule_name", sched.Name),
		zap.String("status", string(run.Status)),
	)
	if s.notifier != nil {
		s.notifier.Notify(ctx, run, policy.Notifications)
	}
}

// TriggerNow runs scheduleID immediately, outside its normal cadence,
// honoring the default lock_policy (refuse with ErrBusy if a run for this
// schedule is already in flight).
func (s *Scheduler) TriggerNow(ctx context.Context, scheduleID uuid.UUID) error {
	sched, err := s.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("scheduler: loading schedule: %w", err)
	}
	if s.locks.TryHeld(scheduleID.String()) {
		return ErrBusy
	}
	if !s.submit(*sched, db.TriggerRunNow) {
		return ErrBusy
	}
	return nil
}

// RunEnabledNow submits up to maxSchedules enabled schedules immediately,
// skipping any whose lock is already held rather than failing the whole
// batch with ErrBusy. It returns how many were actually submitted. A
// maxSchedules <= 0 submits every enabled schedule.
func (s *Scheduler) RunEnabledNow(ctx context.Context, maxSchedules int) (int, error) {
	enabled, err := s.schedules.ListEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduler: listing enabled schedules: %w", err)
	}

	submitted := 0
	for _, sched := range enabled {
		if maxSchedules > 0 && submitted >= maxSchedules {
			break
		}
		if s.submit(sched, db.TriggerRunNow) {
			submitted++
		}
	}
	return submitted, nil
}
