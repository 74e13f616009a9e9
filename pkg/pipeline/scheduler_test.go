package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/gridrun/gridrun/pkg/pipeline/expression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(opts ...SchedulerOption) *Scheduler {
	runner := NewStepRunner(RunnerConfig{})
	executor := NewJobExecutor(runner, expression.New(), nil, nil)
	return NewScheduler(executor, opts...)
}

func TestSchedulerRunsAllJobs(t *testing.T) {
	def, err := ParseDefinition([]byte(`
name: grid
matrix:
  axes:
    a: [1, 2]
    b: [1, 2]
steps:
  - name: work
    run: echo "a={{ .a }} b={{ .b }}"
`))
	require.NoError(t, err)

	result, err := newTestScheduler().Run(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, RunSucceeded, result.Status)
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Jobs, 4)

	// Results keep expansion order regardless of completion order
	assert.Equal(t, jobIDs(Expand(def)), resultIDs(result))

	counts := result.Counts()
	assert.Equal(t, 4, counts.Succeeded)
	assert.Zero(t, counts.Failed)
}

func resultIDs(result *RunResult) []string {
	ids := make([]string, len(result.Jobs))
	for i := range result.Jobs {
		ids[i] = result.Jobs[i].ID
	}
	return ids
}

func TestSchedulerFailFast(t *testing.T) {
	// One worker makes the schedule deterministic: the first job fails,
	// every later job must be skipped without starting.
	def, err := ParseDefinition([]byte(`
name: grid
fail_fast: true
max_parallel: 1
matrix:
  axes:
    n: [1, 2, 3, 4]
steps:
  - name: work
    run: exit {{ .n }}
`))
	require.NoError(t, err)

	result, err := newTestScheduler().Run(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, RunFailed, result.Status)
	assert.Equal(t, JobFailed, result.Jobs[0].Status)

	for _, job := range result.Jobs[1:] {
		assert.Equal(t, JobSkipped, job.Status, job.ID)
		assert.Equal(t, SkipFailFast, job.SkipReason, job.ID)
		assert.Empty(t, job.Steps, "skipped jobs must not run steps")
	}

	counts := result.Counts()
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, 3, counts.Skipped)
}

func TestSchedulerNoFailFast(t *testing.T) {
	def, err := ParseDefinition([]byte(`
name: grid
max_parallel: 2
matrix:
  axes:
    n: [0, 1, 0]
steps:
  - name: work
    run: exit {{ .n }}
`))
	require.NoError(t, err)

	result, err := newTestScheduler().Run(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, RunFailed, result.Status)

	counts := result.Counts()
	assert.Equal(t, 2, counts.Succeeded)
	assert.Equal(t, 1, counts.Failed)
	assert.Zero(t, counts.Skipped)
}

func TestSchedulerMaxParallelBound(t *testing.T) {
	// Track concurrent executions through an observer
	var (
		mu      sync.Mutex
		running int
		peak    int
	)

	obs := &funcObserver{
		started: func(*JobInstance) {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
		},
		completed: func(JobResult) {
			mu.Lock()
			running--
			mu.Unlock()
		},
	}

	def, err := ParseDefinition([]byte(`
name: grid
max_parallel: 2
matrix:
  axes:
    n: [1, 2, 3, 4, 5, 6]
steps:
  - name: work
    run: sleep 0.05
`))
	require.NoError(t, err)

	result, err := newTestScheduler(WithObserver(obs)).Run(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, RunSucceeded, result.Status)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
	assert.Positive(t, peak)
}

type funcObserver struct {
	started   func(*JobInstance)
	completed func(JobResult)
}

func (o *funcObserver) JobStarted(job *JobInstance) {
	if o.started != nil {
		o.started(job)
	}
}

func (o *funcObserver) JobCompleted(result JobResult) {
	if o.completed != nil {
		o.completed(result)
	}
}

func (o *funcObserver) StepCompleted(string, StepResult) {}

func TestSchedulerCanceledContext(t *testing.T) {
	def, err := ParseDefinition([]byte(`
name: grid
matrix:
  axes:
    n: [1, 2]
steps:
  - name: work
    run: echo hi
`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestScheduler().Run(ctx, def)
	require.NoError(t, err)

	assert.Equal(t, RunCanceled, result.Status)
	for _, job := range result.Jobs {
		assert.Equal(t, JobSkipped, job.Status)
		assert.Equal(t, SkipCanceled, job.SkipReason)
	}
}

func TestSchedulerSingleJobPipeline(t *testing.T) {
	def, err := ParseDefinition([]byte(`
name: single
steps:
  - name: only
    run: echo done
`))
	require.NoError(t, err)

	result, err := newTestScheduler().Run(context.Background(), def)
	require.NoError(t, err)

	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "single", result.Jobs[0].ID)
	assert.Equal(t, RunSucceeded, result.Status)
}
