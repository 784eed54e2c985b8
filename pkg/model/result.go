package model

// JobStatus is the terminal status of a completed job scheduling attempt.
type JobStatus string

const (
	JobCompleted JobStatus = "Completed"
	JobFailed    JobStatus = "Failed"
	JobSkipped   JobStatus = "Skipped"
	JobCancelled JobStatus = "Cancelled"
)

// JobResult is the outcome of one Job Runner invocation.
type JobResult struct {
	JobID   string
	Status  JobStatus
	Outputs map[string]string
	Error   string
}

// NormalizedResult maps JobStatus to the lowercase name used by the
// needs.J.result atom, with the source's Completed->success mapping
// preserved verbatim (spec.md §4.C).
func (r JobResult) NormalizedResult() string {
	if r.Status == JobCompleted {
		return "success"
	}
	switch r.Status {
	case JobFailed:
		return "failure"
	case JobSkipped:
		return "skipped"
	case JobCancelled:
		return "cancelled"
	default:
		return "success"
	}
}

// StepResult is the outcome of one Shell Sub-Executor invocation.
type StepResult struct {
	Success    bool
	Outputs    map[string]string
	EnvUpdates map[string]string
	Stdout     string
	Stderr     string
	Error      string
}

// WorkflowStatus is the overall outcome of a workflow run.
type WorkflowStatus string

const (
	WorkflowCompleted WorkflowStatus = "Completed"
	WorkflowFailed    WorkflowStatus = "Failed"
)

// WorkflowResult aggregates every job's outcome for one run.
type WorkflowResult struct {
	WorkflowName string
	Status       WorkflowStatus
	Jobs         map[string]JobResult
}
