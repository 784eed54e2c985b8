package engine

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/tbrandenburg/flowrite/internal/config"
	"github.com/tbrandenburg/flowrite/internal/logger"
	"github.com/tbrandenburg/flowrite/pkg/condition"
	"github.com/tbrandenburg/flowrite/pkg/model"
)

// Scheduler drives a validated Workflow to completion: each wave, it
// computes every job whose dependencies are satisfied and whose if:
// condition holds, runs them in parallel, integrates their results, and
// repeats until every job is terminal or no progress can be made
// (spec.md §4.H).
type Scheduler struct {
	cfg    *config.Config
	log    *logger.Logger
	runner *JobRunner
}

// NewScheduler builds a Scheduler bound to cfg; log may be nil.
func NewScheduler(cfg *config.Config, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	return &Scheduler{cfg: cfg, log: log, runner: NewJobRunner(cfg, log)}
}

// Run drives wf to completion and returns the aggregate WorkflowResult,
// following the loop of spec.md §4.H: compute the ready set; if it's
// empty but jobs remain, consult Diagnostics and skip every
// condition_not_met job (a dependency resolver alone can't tell a
// job blocked on a guard from one blocked on a cycle); if nothing was
// skipped either, the workflow is stuck.
func (s *Scheduler) Run(ctx context.Context, wf *model.Workflow) (model.WorkflowResult, error) {
	state := NewExecutionState(processEnv())

	for {
		remaining := pendingJobIDs(wf, state)
		if len(remaining) == 0 {
			break
		}

		ready := s.readyJobs(wf, state, remaining)
		if len(ready) == 0 {
			skipped := s.skipBlockedJobs(wf, state)
			if skipped {
				continue
			}
			return s.result(wf, state), model.ErrSchedulerStuck
		}

		s.runWave(ctx, wf, state, ready)

		if ctx.Err() != nil {
			break
		}
	}

	return s.result(wf, state), nil
}

// pendingJobIDs returns every job id not yet integrated into state.
func pendingJobIDs(wf *model.Workflow, state *ExecutionState) []string {
	completed := state.CompletedIDs()
	var out []string
	for _, id := range wf.Jobs.IDs() {
		if !completed[id] {
			out = append(out, id)
		}
	}
	return out
}

// readyJobs is the DependencyResolver named in spec.md §4.H's pseudocode:
// a job is ready iff every dependency is completed and its if: guard
// (if any) evaluates to true.
func (s *Scheduler) readyJobs(wf *model.Workflow, state *ExecutionState, remaining []string) []string {
	completed := state.CompletedIDs()
	jobResults := state.SnapshotJobResults()
	env := state.SnapshotEnv()

	var ready []string
	for _, id := range remaining {
		job, _ := wf.Jobs.Get(id)
		blocked := false
		for _, dep := range job.Needs {
			if !completed[dep] {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		if condition.Eval(job.If, condition.Context{
			JobResults:         jobResults,
			Env:                env,
			StrictMissingNeeds: s.cfg.StrictMissingNeeds,
		}) {
			ready = append(ready, id)
		}
	}
	return ready
}

// skipBlockedJobs consults Diagnostics (component I) and integrates a
// Skipped JobResult for every condition_not_met job it reports, per
// spec.md §4.H. It reports whether any job was skipped, so the caller
// can distinguish "made progress, loop again" from "stuck."
func (s *Scheduler) skipBlockedJobs(wf *model.Workflow, state *ExecutionState) bool {
	diag := Diagnose(wf, state)
	skippedAny := false
	for id, d := range diag {
		if d.Status != DiagnosisConditionNotMet {
			continue
		}
		s.log.Info("job skipped", map[string]any{"job": id, "condition": d.ConditionDetails})
		state.Integrate(model.JobResult{JobID: id, Status: model.JobSkipped, Outputs: map[string]string{}})
		skippedAny = true
	}
	return skippedAny
}

// runWave launches every job in wave concurrently, gated by a semaphore
// sized to cfg.MaxParallelism (<= 0 means unbounded), and blocks until
// all have been integrated into state.
func (s *Scheduler) runWave(ctx context.Context, wf *model.Workflow, state *ExecutionState, wave []string) {
	semSize := s.cfg.MaxParallelism
	if semSize <= 0 {
		semSize = len(wave)
	}
	semaphore := make(chan struct{}, semSize)

	var wg sync.WaitGroup
	for _, id := range wave {
		job, _ := wf.Jobs.Get(id)
		env := state.SnapshotEnv()
		jobResults := state.SnapshotJobResults()

		wg.Add(1)
		go func(id string, job *model.Job) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			s.log.Info("job starting", map[string]any{"job": id})
			result := s.runner.Run(ctx, id, job, env, jobResults)
			s.log.Info("job finished", map[string]any{"job": id, "status": string(result.Status)})
			state.Integrate(result)
		}(id, job)
	}
	wg.Wait()
}

func (s *Scheduler) result(wf *model.Workflow, state *ExecutionState) model.WorkflowResult {
	return model.WorkflowResult{
		WorkflowName: wf.Name,
		Status:       state.OverallStatus(),
		Jobs:         state.SnapshotJobResults(),
	}
}

// processEnv snapshots the current process environment into a map, the
// seed for global_env (spec.md §3).
func processEnv() map[string]string {
	out := map[string]string{}
	for _, kv := range os.Environ() {
		k, v, found := strings.Cut(kv, "=")
		if found {
			out[k] = v
		}
	}
	return out
}
