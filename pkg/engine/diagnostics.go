package engine

import (
	"github.com/tbrandenburg/flowrite/pkg/condition"
	"github.com/tbrandenburg/flowrite/pkg/model"
)

// DiagnosisStatus classifies one not-yet-completed job (spec.md §4.I).
type DiagnosisStatus string

const (
	DiagnosisReady                  DiagnosisStatus = "ready"
	DiagnosisWaitingForDependencies DiagnosisStatus = "waiting_for_dependencies"
	DiagnosisConditionNotMet        DiagnosisStatus = "condition_not_met"
)

// ConditionDetails names the literal if: condition checked for a job
// whose dependencies are satisfied, and what it evaluated to.
type ConditionDetails struct {
	Condition string
	Result    bool
}

// JobDiagnosis is the full per-job explanation spec.md §4.I specifies:
// a status, the subset of needs not yet completed, and — once
// dependencies are satisfied — the guard that was checked.
type JobDiagnosis struct {
	Status              DiagnosisStatus
	MissingDependencies []string
	ConditionDetails    *ConditionDetails
}

// Diagnose classifies every remaining (non-completed) job in wf against
// state: dependencies are checked before the if: condition, matching
// spec.md §4.I's stated check order, so a job missing both a dependency
// and a passing condition is reported as waiting on the dependency.
func Diagnose(wf *model.Workflow, state *ExecutionState) map[string]JobDiagnosis {
	completed := state.CompletedIDs()
	jobResults := state.SnapshotJobResults()
	env := state.SnapshotEnv()

	out := make(map[string]JobDiagnosis)
	for _, id := range wf.Jobs.IDs() {
		if completed[id] {
			continue
		}
		job, _ := wf.Jobs.Get(id)
		out[id] = diagnoseJob(job, completed, jobResults, env)
	}
	return out
}

func diagnoseJob(job *model.Job, completed map[string]bool, jobResults map[string]model.JobResult, env map[string]string) JobDiagnosis {
	var missing []string
	for _, dep := range job.Needs {
		if !completed[dep] {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return JobDiagnosis{Status: DiagnosisWaitingForDependencies, MissingDependencies: missing}
	}

	result := condition.Eval(job.If, condition.Context{JobResults: jobResults, Env: env})
	var details *ConditionDetails
	if job.If != "" {
		details = &ConditionDetails{Condition: job.If, Result: result}
	}
	if !result {
		return JobDiagnosis{Status: DiagnosisConditionNotMet, ConditionDetails: details}
	}
	return JobDiagnosis{Status: DiagnosisReady, ConditionDetails: details}
}
