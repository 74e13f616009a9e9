package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gridrun/gridrun/internal/log"
	"github.com/gridrun/gridrun/pkg/pipeline/expression"
)

// JobExecutor runs the steps of a single job instance in order.
//
// Failure propagation is per job: once a step fails the job is marked failed,
// and later steps are skipped unless they set always_run or reference the
// always() token in their condition. Conditions are evaluated against the
// job's matrix values, the results of prior steps and the merged environment.
type JobExecutor struct {
	runner    *StepRunner
	evaluator *expression.Evaluator
	observer  Observer
	logger    *slog.Logger
}

// NewJobExecutor creates a job executor. A nil observer disables event
// delivery; a nil logger falls back to slog.Default().
func NewJobExecutor(runner *StepRunner, evaluator *expression.Evaluator, observer Observer, logger *slog.Logger) *JobExecutor {
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobExecutor{
		runner:    runner,
		evaluator: evaluator,
		observer:  observer,
		logger:    logger,
	}
}

// Execute runs every step of the job sequentially and returns the job result.
//
// Context cancellation stops the job between steps (and interrupts the step
// in flight via the runner); remaining steps are recorded as skipped. A
// failure inside the job never cancels the context, that decision belongs to
// the scheduler.
func (e *JobExecutor) Execute(ctx context.Context, job *JobInstance, def *Definition) JobResult {
	logger := log.WithJobContext(e.logger, job.ID)

	result := JobResult{
		ID:        job.ID,
		Status:    JobRunning,
		Values:    job.Values,
		Steps:     make([]StepResult, 0, len(def.Steps)),
		StartedAt: time.Now(),
	}

	logger.Info("job started", "steps", len(def.Steps))

	failed := false
	canceled := false
	stepsCtx := make(map[string]map[string]interface{}, len(def.Steps))

	for _, step := range def.Steps {
		stepResult := e.executeStep(ctx, job, def, step, stepsCtx, failed)

		if stepResult.Failed() {
			failed = true
		}
		if stepResult.SkipReason == SkipCanceled {
			canceled = true
		}

		stepsCtx[step.Name] = stepResult.ContextValues()
		result.Steps = append(result.Steps, stepResult)
		e.observer.StepCompleted(job.ID, stepResult)
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	switch {
	case failed:
		result.Status = JobFailed
	case canceled:
		result.Status = JobSkipped
		result.SkipReason = SkipCanceled
	default:
		result.Status = JobSucceeded
	}

	result.Artifacts = e.collectArtifacts(def, logger)

	logger.Info("job finished",
		"status", result.Status,
		log.DurationKey, result.Duration.Milliseconds(),
	)

	return result
}

// executeStep gates a single step and runs it if the gate passes.
//
// Gate order matters: after a failure, a step without always_run whose
// condition does not reference always() is skipped without evaluating the
// condition at all, so a broken expression on a routine step cannot mask the
// original failure.
func (e *JobExecutor) executeStep(ctx context.Context, job *JobInstance, def *Definition, step StepDefinition, stepsCtx map[string]map[string]interface{}, failed bool) StepResult {
	if ctx.Err() != nil {
		return StepResult{
			Name:       step.Name,
			Status:     StepSkipped,
			SkipReason: SkipCanceled,
		}
	}

	if failed && !step.AlwaysRun && !expression.ReferencesAlways(step.Condition) {
		return StepResult{
			Name:       step.Name,
			Status:     StepSkipped,
			SkipReason: SkipAfterFailure,
		}
	}

	env := mergeEnv(def.Env, step.Env)
	exprCtx := expression.BuildContext(job.Values, stepsCtx, env, failed)

	if step.Condition != "" {
		ok, err := e.evaluator.Evaluate(step.Condition, exprCtx)
		if err != nil {
			// A broken condition is a step failure, not a silent skip
			now := time.Now()
			return StepResult{
				Name:        step.Name,
				Status:      StepFailed,
				ExitCode:    -1,
				StartedAt:   now,
				CompletedAt: now,
				Err:         err,
				Error:       err.Error(),
			}
		}
		if !ok {
			e.logger.Debug("step skipped by condition",
				log.JobIDKey, job.ID,
				log.StepKey, step.Name,
				"condition", step.Condition,
			)
			return StepResult{
				Name:       step.Name,
				Status:     StepSkipped,
				SkipReason: SkipCondition,
			}
		}
	}

	return e.runner.Run(ctx, step, env, exprCtx)
}

// collectArtifacts resolves the definition's artifact globs after the job
// finishes. Collection problems are logged and never change the job status.
func (e *JobExecutor) collectArtifacts(def *Definition, logger *slog.Logger) []string {
	if len(def.Artifacts) == 0 {
		return nil
	}

	var collected []string
	for _, pattern := range def.Artifacts {
		full := pattern
		if e.runner.config.WorkingDir != "" {
			full = filepath.Join(e.runner.config.WorkingDir, pattern)
		}
		matches, err := doublestar.FilepathGlob(full)
		if err != nil {
			logger.Warn("artifact pattern failed",
				"pattern", pattern,
				"error", err.Error(),
			)
			continue
		}
		collected = append(collected, matches...)
	}
	return collected
}

// mergeEnv overlays the step env onto the pipeline env.
func mergeEnv(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
