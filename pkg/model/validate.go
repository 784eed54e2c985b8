package model

import "fmt"

// color marks DFS visitation state for cycle detection.
type color int

const (
	white color = iota // unvisited
	gray               // on the current recursion stack
	black              // fully explored
)

// Validate performs the structural checks of spec.md §4.B: non-empty
// jobs, needs reference integrity, per-step id uniqueness, loop
// max_iterations bounds, and needs-graph cycle detection via a single
// three-color DFS traversal. It returns every error found, not just the
// first — an empty ValidationErrors means the workflow is valid.
func (w *Workflow) Validate() ValidationErrors {
	var errs ValidationErrors

	if w.Jobs == nil || w.Jobs.Len() == 0 {
		errs = append(errs, ValidationError{Field: "jobs", Message: "workflow must declare at least one job"})
		return errs
	}

	ids := w.Jobs.IDs()
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	for _, id := range ids {
		job, _ := w.Jobs.Get(id)

		if contains(job.Needs, id) {
			errs = append(errs, ValidationError{Field: "jobs." + id + ".needs", Message: fmt.Sprintf("job %q may not depend on itself", id)})
		}
		for _, dep := range job.Needs {
			if !idSet[dep] {
				errs = append(errs, ValidationError{
					Field:   "jobs." + id + ".needs",
					Message: fmt.Sprintf("job %q needs undeclared job %q", id, dep),
				})
			}
		}

		seenStepIDs := make(map[string]bool)
		for i, step := range job.Steps {
			if step.Loop != nil && step.Loop.Kind == LoopUntil && step.Loop.MaxIterations < 1 {
				label := step.ID
				if label == "" {
					label = fmt.Sprint(i)
				}
				errs = append(errs, ValidationError{
					Field:   "jobs." + id + ".steps." + label + ".loop",
					Message: "max_iterations must be >= 1",
				})
			}

			if step.ID == "" {
				continue
			}
			if seenStepIDs[step.ID] {
				errs = append(errs, ValidationError{
					Field:   "jobs." + id + ".steps",
					Message: fmt.Sprintf("duplicate step id %q in job %q", step.ID, id),
				})
			}
			seenStepIDs[step.ID] = true
		}

		if job.Loop != nil && job.Loop.Kind == LoopUntil && job.Loop.MaxIterations < 1 {
			errs = append(errs, ValidationError{
				Field:   "jobs." + id + ".loop",
				Message: "max_iterations must be >= 1",
			})
		}
	}

	if cycleJob, ok := w.findCycle(ids); ok {
		errs = append(errs, ValidationError{
			Field:   "jobs",
			Message: fmt.Sprintf("circular dependency detected starting at job %q", cycleJob),
		})
	}

	return errs
}

// findCycle runs a single three-color DFS over the needs graph,
// visiting each node at most once, and reports the entry job id of the
// first cycle found.
func (w *Workflow) findCycle(ids []string) (string, bool) {
	colors := make(map[string]color, len(ids))
	for _, id := range ids {
		colors[id] = white
	}

	var visit func(id, entry string) (string, bool)
	visit = func(id, entry string) (string, bool) {
		colors[id] = gray
		job, ok := w.Jobs.Get(id)
		if ok {
			for _, dep := range job.Needs {
				switch colors[dep] {
				case gray:
					return entry, true
				case white:
					if cycleAt, found := visit(dep, entry); found {
						return cycleAt, true
					}
				}
			}
		}
		colors[id] = black
		return "", false
	}

	for _, id := range ids {
		if colors[id] == white {
			if cycleAt, found := visit(id, id); found {
				return cycleAt, true
			}
		}
	}
	return "", false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
