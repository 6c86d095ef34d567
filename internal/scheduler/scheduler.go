// Package scheduler runs syncs on a cron schedule, on demand, and via
// the stall watchdog.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ntanasko/floorsync/internal/listing"
	syncer "github.com/ntanasko/floorsync/internal/sync"
)

// watchdogInterval is how often the stall check fires.
const watchdogInterval = time.Minute

// Runner executes one sync run.
type Runner interface {
	Run(ctx context.Context) (listing.RunRecord, error)
}

// StallDetector reports whether a run is marked in flight but no longer
// advancing.
type StallDetector interface {
	Stalled(after time.Duration) bool
}

// Scheduler owns the cron entries and serializes trigger attempts
// through the runner's lease.
type Scheduler struct {
	cron       *cron.Cron
	runner     Runner
	stall      StallDetector
	stallAfter time.Duration
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Scheduler.
func New(runner Runner, stall StallDetector, stallAfter time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(),
		runner:     runner,
		stall:      stall,
		stallAfter: stallAfter,
		logger:     logger.Named("scheduler"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start registers the nightly schedule and the stall watchdog, then
// starts the cron loop.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		s.logger.Info("scheduled sync firing", zap.String("schedule", schedule))
		s.run()
	}); err != nil {
		return err
	}
	s.cron.Schedule(cron.Every(watchdogInterval), cron.FuncJob(s.checkStall))
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop halts cron and cancels any in-flight run context.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	s.cancel()
	<-ctx.Done()
}

// TriggerAsync starts a run in the background. The caller learns only
// whether the attempt was started; the outcome lands in the run log.
func (s *Scheduler) TriggerAsync() {
	go s.run()
}

func (s *Scheduler) run() {
	if _, err := s.runner.Run(s.ctx); err != nil {
		if errors.Is(err, syncer.ErrAlreadyRunning) {
			s.logger.Info("sync attempt skipped, run already in progress")
			return
		}
		s.logger.Error("sync run failed", zap.Error(err))
	}
}

// checkStall re-attempts a run when progress shows one in flight that
// has not moved. The lease still arbitrates: until the crashed run's
// TTL lapses the attempt is a no-op.
func (s *Scheduler) checkStall() {
	if s.stall == nil || !s.stall.Stalled(s.stallAfter) {
		return
	}
	s.logger.Warn("run appears stalled, attempting takeover",
		zap.Duration("stalled_for", s.stallAfter),
	)
	s.run()
}
