package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	wf, err := NewWorkflowFromNode(parseNode(t, `
jobs:
  a:
    steps:
      - id: s1
        run: echo hi
  b:
    needs: a
    steps: []
`))
	require.NoError(t, err)
	assert.Empty(t, wf.Validate())
}

func TestValidate_NoJobs(t *testing.T) {
	wf := &Workflow{Jobs: NewJobSet()}
	errs := wf.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "jobs", errs[0].Field)
}

func TestValidate_UndeclaredNeed(t *testing.T) {
	wf, err := NewWorkflowFromNode(parseNode(t, `
jobs:
  a:
    needs: ghost
    steps: []
`))
	require.NoError(t, err)
	errs := wf.Validate()
	require.NotEmpty(t, errs)
}

func TestValidate_SelfDependency(t *testing.T) {
	wf, err := NewWorkflowFromNode(parseNode(t, `
jobs:
  a:
    needs: a
    steps: []
`))
	require.NoError(t, err)
	errs := wf.Validate()
	require.NotEmpty(t, errs)
}

func TestValidate_Cycle(t *testing.T) {
	wf, err := NewWorkflowFromNode(parseNode(t, `
jobs:
  a:
    needs: b
    steps: []
  b:
    needs: a
    steps: []
`))
	require.NoError(t, err)
	errs := wf.Validate()
	require.NotEmpty(t, errs)
}

func TestValidate_DuplicateStepID(t *testing.T) {
	wf, err := NewWorkflowFromNode(parseNode(t, `
jobs:
  a:
    steps:
      - id: dup
        run: echo 1
      - id: dup
        run: echo 2
`))
	require.NoError(t, err)
	errs := wf.Validate()
	require.NotEmpty(t, errs)
}

func TestValidate_UntilLoopRequiresPositiveMaxIterations(t *testing.T) {
	wf := &Workflow{Jobs: NewJobSet()}
	wf.Jobs.Add("a", &Job{
		Outputs: map[string]string{},
		Loop:    &LoopSpec{Kind: LoopUntil, MaxIterations: 0},
	})
	errs := wf.Validate()
	require.NotEmpty(t, errs)
}
