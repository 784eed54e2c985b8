package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tbrandenburg/flowrite/internal/config"
	"github.com/tbrandenburg/flowrite/internal/logger"
	"github.com/tbrandenburg/flowrite/pkg/condition"
	"github.com/tbrandenburg/flowrite/pkg/model"
	"github.com/tbrandenburg/flowrite/pkg/shell"
	"github.com/tbrandenburg/flowrite/pkg/substitute"
)

// maxStepBackoff caps exponential step-retry backoff, per spec.md §4.G
// ("capped (implementation choice) at <= 60s").
const maxStepBackoff = 60 * time.Second

// JobRunner executes one job: its steps in order, its per-step and
// per-job loops, and retries with exponential backoff (spec.md §4.G).
type JobRunner struct {
	cfg *config.Config
	log *logger.Logger
}

// NewJobRunner builds a JobRunner bound to cfg; log may be nil.
func NewJobRunner(cfg *config.Config, log *logger.Logger) *JobRunner {
	if log == nil {
		log = logger.Discard()
	}
	return &JobRunner{cfg: cfg, log: log}
}

// Run executes job and returns its JobResult. env is a private copy of
// global_env taken at launch time; jobResults is a read-only snapshot of
// already-completed jobs, used by condition/template lookups.
func (r *JobRunner) Run(ctx context.Context, jobID string, job *model.Job, env map[string]string, jobResults map[string]model.JobResult) model.JobResult {
	isForeach := job.Loop != nil && job.Loop.Kind == model.LoopForeach
	isUntil := job.Loop != nil && job.Loop.Kind == model.LoopUntil

	var items []string
	nJob := 1
	switch {
	case isUntil:
		nJob = job.Loop.MaxIterations
	case isForeach:
		items = model.ParseForeachItems(job.Loop.Foreach)
		nJob = len(items)
	}

	if nJob == 0 {
		// Foreach over zero items: nothing to run, job trivially completes.
		return model.JobResult{JobID: jobID, Status: model.JobCompleted, Outputs: map[string]string{}}
	}

	var lastErr string
	for a := 0; a < nJob; a++ {
		localEnv := copyEnv(env)
		if isForeach {
			localEnv["FOREACH_ITEM"] = items[a]
			localEnv["FOREACH_INDEX"] = strconv.Itoa(a)
			localEnv["FOREACH_ITERATION"] = strconv.Itoa(a + 1)
		}

		stepOutputs := map[string]map[string]string{}
		allOutputs := map[string]string{}

		ok, stepErr := r.runSteps(ctx, jobID, job, localEnv, jobResults, stepOutputs, allOutputs)
		if ok {
			outputs := r.resolveJobOutputs(job, stepOutputs, localEnv, jobResults)
			if isForeach && a+1 < nJob {
				continue // run the remaining items before declaring the job done
			}
			return model.JobResult{JobID: jobID, Status: model.JobCompleted, Outputs: outputs}
		}

		lastErr = stepErr
		if isForeach {
			// Foreach has no retry-until semantics: fail fast.
			break
		}
		if isUntil {
			done := condition.EvalLoopUntil(job.Loop.Until, a+1, nJob, false, localEnv)
			if !done && a+1 < nJob {
				r.log.Debug("retrying job", map[string]any{"job": jobID, "attempt": a + 1})
				if !sleepCtx(ctx, time.Second) {
					break
				}
				continue
			}
		}
		break
	}

	return model.JobResult{JobID: jobID, Status: model.JobFailed, Outputs: map[string]string{}, Error: lastErr}
}

func (r *JobRunner) runSteps(ctx context.Context, jobID string, job *model.Job, localEnv map[string]string, jobResults map[string]model.JobResult, stepOutputs map[string]map[string]string, allOutputs map[string]string) (bool, string) {
	for _, step := range job.Steps {
		ok, stepErr := r.runStep(ctx, jobID, step, localEnv, jobResults, stepOutputs, allOutputs)
		if !ok {
			return false, stepErr
		}
	}
	return true, ""
}

// runStep drives one step's inner iteration count: an explicit foreach
// loop, an explicit until loop, or (no loop declared) the configured
// default retry count with exponential backoff.
func (r *JobRunner) runStep(ctx context.Context, jobID string, step model.Step, localEnv map[string]string, jobResults map[string]model.JobResult, stepOutputs map[string]map[string]string, allOutputs map[string]string) (bool, string) {
	switch {
	case step.Loop != nil && step.Loop.Kind == model.LoopForeach:
		return r.runForeachStep(ctx, jobID, step, localEnv, jobResults, stepOutputs, allOutputs)
	case step.Loop != nil && step.Loop.Kind == model.LoopUntil:
		return r.runRetryStep(ctx, jobID, step, localEnv, jobResults, stepOutputs, allOutputs, step.Loop.MaxIterations, step.Loop.Until)
	default:
		return r.runRetryStep(ctx, jobID, step, localEnv, jobResults, stepOutputs, allOutputs, r.cfg.MaxRetries+1, "")
	}
}

func (r *JobRunner) runForeachStep(ctx context.Context, jobID string, step model.Step, localEnv map[string]string, jobResults map[string]model.JobResult, stepOutputs map[string]map[string]string, allOutputs map[string]string) (bool, string) {
	items := model.ParseForeachItems(step.Loop.Foreach)
	for idx, item := range items {
		stepEnv := copyEnv(localEnv)
		stepEnv["FOREACH_ITEM"] = item
		stepEnv["FOREACH_INDEX"] = strconv.Itoa(idx)
		stepEnv["FOREACH_ITERATION"] = strconv.Itoa(idx + 1)

		res := r.execStep(ctx, step, stepEnv, jobResults, stepOutputs)
		if !res.Success {
			return false, res.Error
		}
		r.mergeSuccess(step, res, localEnv, stepOutputs, allOutputs)
	}
	return true, ""
}

// runRetryStep implements spec.md §4.G's inner loop: on success, merge
// outputs and stop; on failure with an until condition, check whether
// to keep retrying (exponential backoff, capped); with no condition
// (the default-retry case), always keep retrying until n is exhausted.
func (r *JobRunner) runRetryStep(ctx context.Context, jobID string, step model.Step, localEnv map[string]string, jobResults map[string]model.JobResult, stepOutputs map[string]map[string]string, allOutputs map[string]string, n int, until string) (bool, string) {
	var lastErr string
	for b := 0; b < n; b++ {
		res := r.execStep(ctx, step, localEnv, jobResults, stepOutputs)

		// GITHUB_ENV mutations are observed regardless of this attempt's
		// success so a polling step's until: condition can see progress
		// it reported on a failing attempt.
		for k, v := range res.EnvUpdates {
			localEnv[k] = v
		}

		if res.Success {
			r.mergeSuccess(step, res, localEnv, stepOutputs, allOutputs)
			return true, ""
		}

		lastErr = res.Error
		keepGoing := b+1 < n
		if until != "" {
			done := condition.EvalLoopUntil(until, b+1, n, false, localEnv)
			keepGoing = keepGoing && !done
		}
		if keepGoing {
			r.log.Debug("retrying step", map[string]any{"job": jobID, "step": step.ID, "attempt": b + 1})
			if !sleepCtx(ctx, backoffDelay(b)) {
				return false, lastErr
			}
			continue
		}
		return false, lastErr
	}
	return false, lastErr
}

func (r *JobRunner) execStep(ctx context.Context, step model.Step, env map[string]string, jobResults map[string]model.JobResult, stepOutputs map[string]map[string]string) model.StepResult {
	subCtx := substitute.Context{Vars: env, JobResults: jobResults, StepOutputs: stepOutputs}
	req := shell.Request{
		Command:       step.Run,
		Env:           env,
		Timeout:       time.Duration(r.cfg.StepTimeoutSeconds) * time.Second,
		SubstituteCtx: subCtx,
	}
	return shell.Execute(ctx, req)
}

// mergeSuccess folds a successful StepResult into the per-attempt
// outputs, the per-step output map keyed by id, and the
// STEP_<ID>_<KEY> env exports (spec.md §4.G / §6).
func (r *JobRunner) mergeSuccess(step model.Step, res model.StepResult, localEnv map[string]string, stepOutputs map[string]map[string]string, allOutputs map[string]string) {
	for k, v := range res.Outputs {
		allOutputs[k] = v
	}
	if step.ID != "" {
		stepOutputs[step.ID] = res.Outputs
		for k, v := range res.Outputs {
			localEnv[strings.ToUpper(fmt.Sprintf("STEP_%s_%s", step.ID, k))] = v
		}
	}
}

// resolveJobOutputs evaluates each declared output template against the
// job's final step_outputs and env (spec.md §4.D/§4.G).
func (r *JobRunner) resolveJobOutputs(job *model.Job, stepOutputs map[string]map[string]string, env map[string]string, jobResults map[string]model.JobResult) map[string]string {
	outputs := make(map[string]string, len(job.Outputs))
	for _, name := range job.OutputOrder {
		template := job.Outputs[name]
		outputs[name] = substitute.Substitute(template, substitute.Context{
			Vars:        env,
			JobResults:  jobResults,
			StepOutputs: stepOutputs,
		})
	}
	return outputs
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// backoffDelay is exponential base 2 starting at 1s, capped at
// maxStepBackoff (spec.md §4.G).
func backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > maxStepBackoff || delay <= 0 {
		return maxStepBackoff
	}
	return delay
}

// sleepCtx sleeps for d or returns early (false) if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
