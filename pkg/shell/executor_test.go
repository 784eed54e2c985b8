package shell

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbrandenburg/flowrite/pkg/substitute"
)

func TestExecute_EmptyCommandSucceeds(t *testing.T) {
	res := Execute(context.Background(), Request{Command: ""})
	assert.True(t, res.Success)
	assert.Empty(t, res.Outputs)
}

func TestExecute_SuccessWithOutput(t *testing.T) {
	res := Execute(context.Background(), Request{
		Command: `echo "greeting=hello" >> "$GITHUB_OUTPUT"`,
	})
	require.True(t, res.Success)
	assert.Equal(t, "hello", res.Outputs["greeting"])
}

func TestExecute_FailureStillReportsEnvUpdates(t *testing.T) {
	res := Execute(context.Background(), Request{
		Command: `echo "PROGRESS=1" >> "$GITHUB_ENV"; exit 1`,
	})
	require.False(t, res.Success)
	assert.Equal(t, "1", res.EnvUpdates["PROGRESS"])
}

func TestExecute_VariableSubstitution(t *testing.T) {
	res := Execute(context.Background(), Request{
		Command:       `echo "value=$NAME" >> "$GITHUB_OUTPUT"`,
		SubstituteCtx: substitute.Context{Vars: map[string]string{"NAME": "flowrite"}},
	})
	require.True(t, res.Success)
	assert.Equal(t, "flowrite", res.Outputs["value"])
}

func TestExecute_EnvIsPassedToCommand(t *testing.T) {
	res := Execute(context.Background(), Request{
		Command: `echo "seen=$INJECTED" >> "$GITHUB_OUTPUT"`,
		Env:     map[string]string{"INJECTED": "yes"},
	})
	require.True(t, res.Success)
	assert.Equal(t, "yes", res.Outputs["seen"])
}

func TestExecute_Timeout(t *testing.T) {
	res := Execute(context.Background(), Request{
		Command: "sleep 5",
		Timeout: 100 * time.Millisecond,
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}
