package pipeline

import (
	"time"
)

// JobStatus represents the lifecycle state of a job instance.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	// JobSkipped means the job never started: fail-fast fired or the run
	// was canceled before the job was picked up.
	JobSkipped JobStatus = "skipped"
)

// StepStatus represents the lifecycle state of a step within a job.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// SkipReason distinguishes the ways a job or step can end up skipped.
// The report treats a condition skip as routine and a fail-fast skip as a
// consequence of another job's failure.
type SkipReason string

const (
	SkipNone SkipReason = ""
	// SkipCondition: the step's condition evaluated to false
	SkipCondition SkipReason = "condition_false"
	// SkipAfterFailure: an earlier step in the job failed and the step did
	// not opt into always_run
	SkipAfterFailure SkipReason = "after_failure"
	// SkipFailFast: another job failed and fail_fast stopped this one from
	// starting
	SkipFailFast SkipReason = "fail_fast"
	// SkipCanceled: the run's context was canceled
	SkipCanceled SkipReason = "canceled"
)

// StepResult captures the outcome of a single step execution.
type StepResult struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	SkipReason SkipReason `json:"skip_reason,omitempty"`

	// Command is the rendered command actually handed to the shell
	Command  string `json:"command,omitempty"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`

	StartedAt   time.Time     `json:"started_at,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration_ms"`

	// Error holds the failure description for the report; Err carries the
	// typed error for programmatic use and is not serialized.
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

// Failed reports whether the step counts as a failure for the job.
func (r *StepResult) Failed() bool {
	return r.Status == StepFailed
}

// ContextValues projects the result into the shape condition expressions see
// under steps.<name>. Skipped steps are present with skipped=true so later
// conditions can reference them without tripping the strict evaluator.
func (r *StepResult) ContextValues() map[string]interface{} {
	return map[string]interface{}{
		"status":      string(r.Status),
		"exit_code":   r.ExitCode,
		"stdout":      r.Stdout,
		"stderr":      r.Stderr,
		"duration_ms": r.Duration.Milliseconds(),
		"skipped":     r.Status == StepSkipped,
	}
}

// JobResult captures the outcome of one job instance: its final status and
// the per-step results in execution order.
type JobResult struct {
	ID         string                 `json:"id"`
	Status     JobStatus              `json:"status"`
	SkipReason SkipReason             `json:"skip_reason,omitempty"`
	Values     map[string]interface{} `json:"values,omitempty"`
	Steps      []StepResult           `json:"steps,omitempty"`
	Artifacts  []string               `json:"artifacts,omitempty"`

	StartedAt   time.Time     `json:"started_at,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration_ms"`
}

// Failed reports whether the job counts as a failure for the run.
func (r *JobResult) Failed() bool {
	return r.Status == JobFailed
}

// FirstFailure returns the first failed step, or nil if none failed.
func (r *JobResult) FirstFailure() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Failed() {
			return &r.Steps[i]
		}
	}
	return nil
}

// RunStatus is the aggregate status of a pipeline run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// RunResult is the full report of one pipeline run: every job in expansion
// order, regardless of the order in which the workers finished them.
type RunResult struct {
	RunID    string      `json:"run_id"`
	Pipeline string      `json:"pipeline"`
	Status   RunStatus   `json:"status"`
	Jobs     []JobResult `json:"jobs"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration_ms"`
}

// Failed reports whether the run as a whole failed.
func (r *RunResult) Failed() bool {
	return r.Status != RunSucceeded
}

// RunCounts summarizes job outcomes for the report header.
type RunCounts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Counts tallies job outcomes.
func (r *RunResult) Counts() RunCounts {
	c := RunCounts{Total: len(r.Jobs)}
	for i := range r.Jobs {
		switch r.Jobs[i].Status {
		case JobSucceeded:
			c.Succeeded++
		case JobFailed:
			c.Failed++
		case JobSkipped:
			c.Skipped++
		}
	}
	return c
}

// Job returns the job result with the given ID, or nil.
func (r *RunResult) Job(id string) *JobResult {
	for i := range r.Jobs {
		if r.Jobs[i].ID == id {
			return &r.Jobs[i]
		}
	}
	return nil
}
