// Package workflowio reads a workflow YAML file off disk and hands its
// root node to model.NewWorkflowFromNode, then validates the result.
// Reading/validating is kept out of pkg/model so that package stays
// free of filesystem concerns (spec.md §4.A is phrased as a parse-from-
// bytes contract; this is the concrete factory around it).
package workflowio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tbrandenburg/flowrite/pkg/model"
)

// Load reads path, parses it as YAML, builds a typed Workflow, and
// validates it. Validation failures are returned as model.ValidationErrors;
// a read or parse failure is returned as another error, which for a
// malformed document or an unknown key is or wraps a *model.ParseError.
func Load(path string) (*model.Workflow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse builds and validates a Workflow from raw YAML bytes.
func Parse(raw []byte) (*model.Workflow, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, &model.ParseError{Err: err}
	}

	wf, err := model.NewWorkflowFromNode(&node)
	if err != nil {
		return nil, err
	}

	if errs := wf.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return wf, nil
}
