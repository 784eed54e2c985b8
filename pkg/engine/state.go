// Package engine implements the Job Runner, Scheduler, and Diagnostics
// components (spec.md §4.G–§4.I): the part of Flowrite that actually
// drives a validated Workflow to completion.
package engine

import (
	"strings"
	"sync"

	"github.com/tbrandenburg/flowrite/pkg/model"
)

// ExecutionState is owned and mutated only by the Scheduler
// (spec.md §3). It is thread-safe via RWMutex so Diagnostics and the
// condition evaluator can read it concurrently with a running wave.
type ExecutionState struct {
	mu         sync.RWMutex
	completed  map[string]bool
	jobResults map[string]model.JobResult
	globalEnv  map[string]string
}

// NewExecutionState creates an empty state seeded with the process
// environment snapshot the Scheduler takes at workflow start.
func NewExecutionState(initialEnv map[string]string) *ExecutionState {
	env := make(map[string]string, len(initialEnv))
	for k, v := range initialEnv {
		env[k] = v
	}
	return &ExecutionState{
		completed:  make(map[string]bool),
		jobResults: make(map[string]model.JobResult),
		globalEnv:  env,
	}
}

// IsCompleted reports whether jobID has an integrated JobResult.
func (s *ExecutionState) IsCompleted(jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completed[jobID]
}

// Integrate records a job's result and, for a Completed job, folds its
// outputs into global_env as JOB_<ID>_<KEY> (both uppercased). Invariant
// 5 (spec.md §3): once set, a job's JobResult is never overwritten.
func (s *ExecutionState) Integrate(result model.JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed[result.JobID] {
		return
	}
	s.completed[result.JobID] = true
	s.jobResults[result.JobID] = result

	if result.Status == model.JobCompleted {
		for k, v := range result.Outputs {
			key := strings.ToUpper("JOB_" + result.JobID + "_" + k)
			s.globalEnv[key] = v
		}
	}
}

// SnapshotEnv returns a copy of global_env, safe for a Job Runner to
// mutate locally without affecting other concurrently running jobs.
func (s *ExecutionState) SnapshotEnv() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.globalEnv))
	for k, v := range s.globalEnv {
		out[k] = v
	}
	return out
}

// SnapshotJobResults returns a copy of every integrated JobResult.
func (s *ExecutionState) SnapshotJobResults() map[string]model.JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.JobResult, len(s.jobResults))
	for k, v := range s.jobResults {
		out[k] = v
	}
	return out
}

// CompletedIDs returns every job id integrated so far.
func (s *ExecutionState) CompletedIDs() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.completed))
	for k := range s.completed {
		out[k] = true
	}
	return out
}

// OverallStatus is Failed if any integrated JobResult failed, else
// Completed (spec.md §4.H "Overall status").
func (s *ExecutionState) OverallStatus() model.WorkflowStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.jobResults {
		if r.Status == model.JobFailed {
			return model.WorkflowFailed
		}
	}
	return model.WorkflowCompleted
}
