package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"caisse/internal/log"
)

// Job is a task run on a cron schedule.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }
func (j JobFunc) Name() string                  { return j.JobName }

// Scheduler runs background jobs on standard five-field cron schedules
// ("30 3 * * *") or descriptors ("@hourly", "@every 30m").
type Scheduler struct {
	cron    *cron.Cron
	logger  *log.Logger
	timeout time.Duration
}

// NewScheduler creates a scheduler. Each run gets at most timeout.
func NewScheduler(logger *log.Logger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Scheduler{
		// A run still in progress when the next tick fires is skipped.
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger.WithComponent(log.ComponentWorker),
		timeout: timeout,
	}
}

// AddJob registers job. ctx is the parent of every run.
func (s *Scheduler) AddJob(ctx context.Context, schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		s.run(runCtx, job)
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", job.Name(), schedule, err)
	}
	s.logger.Info("Job registered", "schedule", schedule, "job", job.Name())
	return nil
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Job failed", "job", job.Name(), log.FieldError, err.Error())
		return
	}
	s.logger.DebugContext(ctx, "Job completed", "job", job.Name(),
		log.FieldDuration, time.Since(start).Milliseconds())
}

// Entries is the number of registered jobs.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}
