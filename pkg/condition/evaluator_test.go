package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tbrandenburg/flowrite/pkg/model"
)

func TestEval_Atoms(t *testing.T) {
	ctx := Context{
		JobResults: map[string]model.JobResult{
			"build": {JobID: "build", Status: model.JobCompleted, Outputs: map[string]string{"version": "1.2.3"}},
			"test":  {JobID: "test", Status: model.JobFailed},
		},
		Env: map[string]string{"STAGE": "prod"},
	}

	tests := []struct {
		name string
		cond string
		want bool
	}{
		{"empty is always true", "", true},
		{"always", "always()", true},
		{"success outside loop context", "success()", true},
		{"failure outside loop context", "failure()", true},
		{"cancelled", "cancelled()", false},
		{"needs output eq match", "needs.build.outputs.version == '1.2.3'", true},
		{"needs output eq mismatch", "needs.build.outputs.version == '9.9.9'", false},
		{"needs output neq", "needs.build.outputs.version != '9.9.9'", true},
		{"needs result success", "needs.build.result == 'success'", true},
		{"needs result failure", "needs.test.result == 'failure'", true},
		{"env eq", "env.STAGE == 'prod'", true},
		{"env neq", "env.STAGE != 'dev'", true},
		{"and chain true", "needs.build.result == 'success' && env.STAGE == 'prod'", true},
		{"and chain false", "needs.build.result == 'success' && env.STAGE == 'dev'", false},
		{"or chain", "env.STAGE == 'dev' || env.STAGE == 'prod'", true},
		{"and binds tighter than or", "env.STAGE == 'dev' && env.STAGE == 'dev' || env.STAGE == 'prod'", true},
		{"unknown atom fails open", "something.weird()", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Eval(tc.cond, ctx))
		})
	}
}

func TestEval_MissingNeeds(t *testing.T) {
	ctx := Context{JobResults: map[string]model.JobResult{}}

	assert.True(t, Eval("needs.ghost.result == 'success'", ctx), "missing job defaults to success per spec.md OQ1")
	assert.False(t, Eval("needs.ghost.outputs.x == 'y'", ctx))

	strict := ctx
	strict.StrictMissingNeeds = true
	assert.False(t, Eval("needs.ghost.result == 'success'", strict))
}

func TestEvalLoopUntil(t *testing.T) {
	assert.True(t, EvalLoopUntil("", 3, 3, false, nil))
	assert.False(t, EvalLoopUntil("", 2, 3, false, nil))
	assert.True(t, EvalLoopUntil("env.DONE == 'yes'", 1, 5, false, map[string]string{"DONE": "yes"}))
	assert.False(t, EvalLoopUntil("env.DONE == 'yes'", 1, 5, false, map[string]string{"DONE": "no"}))
}

func TestEval_OnUnknownCallback(t *testing.T) {
	var seen string
	ctx := Context{OnUnknown: func(term string) { seen = term }}
	assert.True(t, Eval("bogus.thing", ctx))
	assert.Equal(t, "bogus.thing", seen)
}
