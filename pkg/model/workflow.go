// Package model defines the typed workflow document — workflow, job,
// step, and loop specifications — and the coercion constructors that
// turn a raw parsed YAML value into it.
package model

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoopKind distinguishes the three LoopSpec shapes.
type LoopKind int

const (
	LoopNone LoopKind = iota
	LoopUntil
	LoopForeach
)

// LoopSpec is a tagged variant: at most one of Until/Foreach is set.
type LoopSpec struct {
	Kind          LoopKind
	Until         string
	Foreach       string
	MaxIterations int
}

// Step is one command invocation within a job.
type Step struct {
	Name string
	ID   string
	Run  string
	Loop *LoopSpec
}

// Job is a named unit of execution with ordered steps and dependencies.
type Job struct {
	Name    string
	RunsOn  string
	Needs   []string
	If      string
	Outputs map[string]string
	// OutputOrder lists the Outputs keys in declaration order; the Job
	// Runner resolves job outputs by walking it.
	OutputOrder []string
	Steps       []Step
	Loop        *LoopSpec
}

// JobSet is an ordered map of JobId -> *Job. Insertion order is
// preserved for diagnostic reporting only; scheduling never consults it.
type JobSet struct {
	order []string
	byID  map[string]*Job
}

// NewJobSet returns an empty ordered job set.
func NewJobSet() *JobSet {
	return &JobSet{byID: make(map[string]*Job)}
}

// Add appends a job under id, preserving insertion order.
func (s *JobSet) Add(id string, j *Job) {
	if _, exists := s.byID[id]; !exists {
		s.order = append(s.order, id)
	}
	s.byID[id] = j
}

// Get looks up a job by id.
func (s *JobSet) Get(id string) (*Job, bool) {
	j, ok := s.byID[id]
	return j, ok
}

// IDs returns job ids in insertion order.
func (s *JobSet) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of jobs.
func (s *JobSet) Len() int { return len(s.order) }

// Workflow is the top-level typed document.
type Workflow struct {
	Name string
	// On is preserved opaquely; the engine never interprets it.
	On   *yaml.Node
	Jobs *JobSet
}

var acceptedWorkflowKeys = map[string]bool{"name": true, "jobs": true, "on": true}

// NewWorkflowFromNode constructs a typed Workflow from an already
// decoded YAML document node (the caller — an external factory, out of
// this component's scope per spec — is responsible for reading the
// file and handing us a *yaml.Node).
func NewWorkflowFromNode(node *yaml.Node) (*Workflow, error) {
	root := node
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, &ParseError{Err: fmt.Errorf("empty document")}
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Err: fmt.Errorf("workflow document must be a mapping")}
	}

	wf := &Workflow{Jobs: NewJobSet()}
	var sawJobs bool

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		key := keyNode.Value
		switch key {
		case "name":
			if err := valNode.Decode(&wf.Name); err != nil {
				return nil, &ParseError{Key: key, Err: err}
			}
		case "on":
			wf.On = valNode
		case "jobs":
			sawJobs = true
			if valNode.Kind != yaml.MappingNode {
				return nil, &ParseError{Key: key, Err: fmt.Errorf("jobs must be a mapping")}
			}
			for j := 0; j+1 < len(valNode.Content); j += 2 {
				jobIDNode, jobValNode := valNode.Content[j], valNode.Content[j+1]
				job, err := newJobFromNode(jobValNode)
				if err != nil {
					return nil, fmt.Errorf("job %q: %w", jobIDNode.Value, err)
				}
				wf.Jobs.Add(jobIDNode.Value, job)
			}
		default:
			return nil, &ParseError{
				Key: key,
				Err: fmt.Errorf("%w: %q (accepted: name, jobs, on)", ErrUnknownWorkflowKey, key),
			}
		}
	}

	if !sawJobs {
		wf.Jobs = NewJobSet()
	}
	return wf, nil
}

func newJobFromNode(node *yaml.Node) (*Job, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("job must be a mapping")
	}
	job := &Job{Outputs: map[string]string{}}

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		key := keyNode.Value
		switch key {
		case "name":
			if err := valNode.Decode(&job.Name); err != nil {
				return nil, &ParseError{Key: key, Err: err}
			}
		case "runs-on", "runs_on":
			if err := valNode.Decode(&job.RunsOn); err != nil {
				return nil, &ParseError{Key: key, Err: err}
			}
		case "needs":
			needs, err := decodeStringOrList(valNode)
			if err != nil {
				return nil, &ParseError{Key: key, Err: err}
			}
			job.Needs = needs
		case "if", "if_condition":
			if err := valNode.Decode(&job.If); err != nil {
				return nil, &ParseError{Key: key, Err: err}
			}
		case "outputs":
			if valNode.Kind != yaml.MappingNode {
				return nil, &ParseError{Key: key, Err: fmt.Errorf("outputs must be a mapping")}
			}
			for j := 0; j+1 < len(valNode.Content); j += 2 {
				outKey, outVal := valNode.Content[j].Value, valNode.Content[j+1]
				var v string
				if err := outVal.Decode(&v); err != nil {
					return nil, &ParseError{Key: "outputs." + outKey, Err: err}
				}
				job.Outputs[outKey] = v
				job.OutputOrder = append(job.OutputOrder, outKey)
			}
		case "steps":
			if valNode.Kind != yaml.SequenceNode {
				return nil, &ParseError{Key: key, Err: fmt.Errorf("steps must be a list")}
			}
			for _, stepNode := range valNode.Content {
				step, err := newStepFromNode(stepNode)
				if err != nil {
					return nil, err
				}
				job.Steps = append(job.Steps, *step)
			}
		case "loop":
			loop, err := newLoopSpecFromNode(valNode)
			if err != nil {
				return nil, err
			}
			job.Loop = loop
		default:
			return nil, &ParseError{
				Key: key,
				Err: fmt.Errorf("%w: %q", ErrUnknownJobKey, key),
			}
		}
	}

	if len(job.Needs) == 0 {
		job.Needs = nil
	}
	return job, nil
}

func newStepFromNode(node *yaml.Node) (*Step, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("step must be a mapping")
	}
	step := &Step{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		key := keyNode.Value
		switch key {
		case "name":
			if err := valNode.Decode(&step.Name); err != nil {
				return nil, &ParseError{Key: key, Err: err}
			}
		case "id":
			if err := valNode.Decode(&step.ID); err != nil {
				return nil, &ParseError{Key: key, Err: err}
			}
		case "run":
			if err := valNode.Decode(&step.Run); err != nil {
				return nil, &ParseError{Key: key, Err: err}
			}
		case "loop":
			loop, err := newLoopSpecFromNode(valNode)
			if err != nil {
				return nil, err
			}
			step.Loop = loop
		default:
			return nil, &ParseError{
				Key: key,
				Err: fmt.Errorf("%w: %q", ErrUnknownStepKey, key),
			}
		}
	}
	return step, nil
}

func newLoopSpecFromNode(node *yaml.Node) (*LoopSpec, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("loop must be a mapping")
	}
	spec := &LoopSpec{MaxIterations: 1}
	var hasUntil, hasForeach, hasMax bool

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		switch keyNode.Value {
		case "until":
			if err := valNode.Decode(&spec.Until); err != nil {
				return nil, &ParseError{Key: "loop.until", Err: err}
			}
			hasUntil = true
		case "foreach":
			if err := valNode.Decode(&spec.Foreach); err != nil {
				return nil, &ParseError{Key: "loop.foreach", Err: err}
			}
			hasForeach = true
		case "max_iterations":
			if err := valNode.Decode(&spec.MaxIterations); err != nil {
				return nil, &ParseError{Key: "loop.max_iterations", Err: err}
			}
			hasMax = true
		default:
			return nil, &ParseError{Key: "loop." + keyNode.Value, Err: fmt.Errorf("unknown loop key %q", keyNode.Value)}
		}
	}

	if hasUntil && hasForeach {
		return nil, ErrLoopConflict
	}
	switch {
	case hasUntil:
		spec.Kind = LoopUntil
		if !hasMax {
			return nil, fmt.Errorf("loop.until requires max_iterations")
		}
	case hasForeach:
		spec.Kind = LoopForeach
		if !hasMax {
			spec.MaxIterations = 0 // resolved from item count at run time
		}
	default:
		spec.Kind = LoopNone
	}
	return spec, nil
}

func decodeStringOrList(node *yaml.Node) ([]string, error) {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	if node.Kind == yaml.SequenceNode {
		var list []string
		if err := node.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	}
	return nil, fmt.Errorf("expected scalar or list, got %v", node.Kind)
}

// ParseForeachItems implements the shared foreach parsing rule: if the
// raw string contains any newline, split on newlines (dropping empty
// trimmed lines); otherwise split on runs of whitespace. Order is
// preserved and duplicates are kept.
func ParseForeachItems(raw string) []string {
	if strings.Contains(raw, "\n") {
		var items []string
		for _, line := range strings.Split(raw, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" {
				items = append(items, trimmed)
			}
		}
		return items
	}
	return strings.Fields(raw)
}
