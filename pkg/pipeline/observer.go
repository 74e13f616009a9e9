package pipeline

// Observer receives execution lifecycle events. Implementations must be safe
// for concurrent use: jobs run in parallel and callbacks fire from worker
// goroutines.
type Observer interface {
	// JobStarted fires when a worker picks up a job.
	JobStarted(job *JobInstance)

	// JobCompleted fires once per job with its terminal result, including
	// jobs skipped by fail-fast.
	JobCompleted(result JobResult)

	// StepCompleted fires once per step with its terminal result.
	StepCompleted(jobID string, result StepResult)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) JobStarted(*JobInstance)          {}
func (NopObserver) JobCompleted(JobResult)           {}
func (NopObserver) StepCompleted(string, StepResult) {}

// MultiObserver fans events out to several observers in order.
func MultiObserver(observers ...Observer) Observer {
	return multiObserver(observers)
}

type multiObserver []Observer

func (m multiObserver) JobStarted(job *JobInstance) {
	for _, o := range m {
		o.JobStarted(job)
	}
}

func (m multiObserver) JobCompleted(result JobResult) {
	for _, o := range m {
		o.JobCompleted(result)
	}
}

func (m multiObserver) StepCompleted(jobID string, result StepResult) {
	for _, o := range m {
		o.StepCompleted(jobID, result)
	}
}
