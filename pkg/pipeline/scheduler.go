package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gridrun/gridrun/internal/log"
)

// DefaultMaxParallel is the job concurrency bound when neither the
// definition nor the caller sets one.
const DefaultMaxParallel = 4

// Scheduler expands a pipeline definition and runs its jobs on a bounded
// worker pool.
//
// Fail-fast is a stop-starting policy: when a job fails and fail_fast is set,
// jobs that have not been picked up yet are recorded as skipped, but jobs
// already in flight run to completion. Only cancellation of the caller's
// context interrupts running jobs.
type Scheduler struct {
	executor    *JobExecutor
	observer    Observer
	logger      *slog.Logger
	maxParallel int
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMaxParallel overrides the default concurrency bound. A definition's
// max_parallel still takes precedence when set.
func WithMaxParallel(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

// WithObserver attaches an execution observer.
func WithObserver(observer Observer) SchedulerOption {
	return func(s *Scheduler) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler creates a scheduler around a job executor.
func NewScheduler(executor *JobExecutor, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		executor:    executor,
		observer:    NopObserver{},
		logger:      slog.Default(),
		maxParallel: DefaultMaxParallel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run expands the definition and executes every job instance.
//
// The returned result lists jobs in expansion order regardless of completion
// order, so reports are stable across runs. Run returns an error only for
// setup problems; job failures are reported through the result status.
func (s *Scheduler) Run(ctx context.Context, def *Definition) (*RunResult, error) {
	jobs := Expand(def)

	result := &RunResult{
		RunID:     uuid.New().String(),
		Pipeline:  def.Name,
		Jobs:      make([]JobResult, len(jobs)),
		StartedAt: time.Now(),
	}

	logger := log.WithRunContext(s.logger, result.RunID, def.Name)

	workers := s.maxParallel
	if def.MaxParallel > 0 {
		workers = def.MaxParallel
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	logger.Info("run started",
		"jobs", len(jobs),
		"workers", workers,
		"fail_fast", def.FailFast,
	)

	// Closed once on the first failure when fail_fast is set. Workers check
	// it before starting a job; it never interrupts a running job.
	stop := make(chan struct{})
	var stopOnce sync.Once

	indexes := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				job := jobs[idx]

				if skip := skipReason(ctx, stop); skip != SkipNone {
					result.Jobs[idx] = JobResult{
						ID:         job.ID,
						Status:     JobSkipped,
						SkipReason: skip,
						Values:     job.Values,
					}
					s.observer.JobCompleted(result.Jobs[idx])
					continue
				}

				s.observer.JobStarted(job)
				jobResult := s.executor.Execute(ctx, job, def)
				result.Jobs[idx] = jobResult
				s.observer.JobCompleted(jobResult)

				if jobResult.Failed() && def.FailFast {
					stopOnce.Do(func() {
						logger.Warn("fail-fast triggered", log.JobIDKey, job.ID)
						close(stop)
					})
				}
			}
		}()
	}

	for idx := range jobs {
		indexes <- idx
	}
	close(indexes)
	wg.Wait()

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	result.Status = runStatus(ctx, result)

	counts := result.Counts()
	logger.Info("run finished",
		"status", result.Status,
		"succeeded", counts.Succeeded,
		"failed", counts.Failed,
		"skipped", counts.Skipped,
		log.DurationKey, result.Duration.Milliseconds(),
	)

	return result, nil
}

// skipReason reports why a job must not start, or SkipNone.
func skipReason(ctx context.Context, stop <-chan struct{}) SkipReason {
	if ctx.Err() != nil {
		return SkipCanceled
	}
	select {
	case <-stop:
		return SkipFailFast
	default:
		return SkipNone
	}
}

// runStatus derives the aggregate status from the job outcomes.
func runStatus(ctx context.Context, result *RunResult) RunStatus {
	if ctx.Err() != nil {
		return RunCanceled
	}
	for i := range result.Jobs {
		if result.Jobs[i].Failed() {
			return RunFailed
		}
	}
	return RunSucceeded
}
