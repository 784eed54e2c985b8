package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbrandenburg/flowrite/internal/config"
	"github.com/tbrandenburg/flowrite/internal/workflowio"
	"github.com/tbrandenburg/flowrite/pkg/model"
)

func testConfig() *config.Config {
	return &config.Config{StepTimeoutSeconds: 10, MaxRetries: 3}
}

func runYAML(t *testing.T, doc string) model.WorkflowResult {
	t.Helper()
	wf, err := workflowio.Parse([]byte(doc))
	require.NoError(t, err)

	sched := NewScheduler(testConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := sched.Run(ctx, wf)
	require.NoError(t, err)
	return result
}

// S1 - Linear chain: a -> b -> c, all trivial echo.
func TestScheduler_S1_LinearChain(t *testing.T) {
	result := runYAML(t, `
name: s1
jobs:
  a:
    steps: [{ run: "echo a" }]
  b:
    needs: a
    steps: [{ run: "echo b" }]
  c:
    needs: b
    steps: [{ run: "echo c" }]
`)
	assert.Equal(t, model.WorkflowCompleted, result.Status)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, model.JobCompleted, result.Jobs[id].Status)
	}
}

// S2 - Fan-out with guarded branch.
func TestScheduler_S2_FanOutGuardedBranch(t *testing.T) {
	result := runYAML(t, `
name: s2
jobs:
  setup:
    steps:
      - id: d
        run: echo "run_extra=true" >> "$GITHUB_OUTPUT"
    outputs:
      run_extra: ${{ steps.d.outputs.run_extra }}
  a:
    needs: setup
    steps: [{ run: "true" }]
  b:
    needs: setup
    if: "needs.setup.outputs.run_extra == 'true'"
    steps: [{ run: "true" }]
  f:
    needs: [a, b]
    if: "always()"
    steps: [{ run: "true" }]
`)
	assert.Equal(t, model.WorkflowCompleted, result.Status)
	assert.Equal(t, "true", result.Jobs["setup"].Outputs["run_extra"])
	for _, id := range []string{"setup", "a", "b", "f"} {
		assert.Equal(t, model.JobCompleted, result.Jobs[id].Status, "job %s", id)
	}
}

// S3 - Step-level until loop: command sets READY=true on the third attempt.
func TestScheduler_S3_StepLevelUntilLoop(t *testing.T) {
	result := runYAML(t, `
name: s3
jobs:
  poller:
    steps:
      - id: wait
        loop:
          until: "env.READY == 'true'"
          max_iterations: 5
        run: |
          n=$(( ${ATTEMPT:-0} + 1 ))
          echo "ATTEMPT=$n" >> "$GITHUB_ENV"
          if [ "$n" -ge 3 ]; then
            echo "READY=true" >> "$GITHUB_ENV"
          fi
          [ "$n" -ge 3 ]
`)
	assert.Equal(t, model.WorkflowCompleted, result.Status)
	assert.Equal(t, model.JobCompleted, result.Jobs["poller"].Status)
}

// S4 - Foreach job: FOREACH_ITEM in {x,y,z}, FOREACH_INDEX in {0,1,2}.
func TestScheduler_S4_ForeachJob(t *testing.T) {
	result := runYAML(t, `
name: s4
jobs:
  each:
    loop:
      foreach: "x\ny\nz"
    steps:
      - run: echo "$FOREACH_ITEM $FOREACH_INDEX"
`)
	assert.Equal(t, model.WorkflowCompleted, result.Status)
	assert.Equal(t, model.JobCompleted, result.Jobs["each"].Status)
}

// S5 - Exhausted retries: max_retries=2, step always fails -> 3 invocations, job Failed, workflow Failed, unrelated job still runs.
func TestScheduler_S5_ExhaustedRetries(t *testing.T) {
	wf, err := workflowio.Parse([]byte(`
name: s5
jobs:
  doomed:
    steps: [{ run: "exit 1" }]
  unrelated:
    steps: [{ run: "echo fine" }]
`))
	require.NoError(t, err)

	cfg := &config.Config{StepTimeoutSeconds: 10, MaxRetries: 2}
	sched := NewScheduler(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := sched.Run(ctx, wf)
	require.NoError(t, err)

	assert.Equal(t, model.WorkflowFailed, result.Status)
	assert.Equal(t, model.JobFailed, result.Jobs["doomed"].Status)
	assert.Equal(t, model.JobCompleted, result.Jobs["unrelated"].Status)
}

// S6 - Cycle rejection: a.needs=[b], b.needs=[a].
func TestScheduler_S6_CycleRejection(t *testing.T) {
	_, err := workflowio.Parse([]byte(`
name: s6
jobs:
  a:
    needs: b
    steps: []
  b:
    needs: a
    steps: []
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")
}

func TestScheduler_SkippedJobsUnblockDependents(t *testing.T) {
	result := runYAML(t, `
name: skip-chain
jobs:
  gate:
    if: "env.NEVER_SET == 'yes'"
    steps: [{ run: "echo should-not-run" }]
  after:
    needs: gate
    if: "always()"
    steps: [{ run: "echo after" }]
`)
	assert.Equal(t, model.JobSkipped, result.Jobs["gate"].Status)
	assert.Equal(t, model.JobCompleted, result.Jobs["after"].Status)
}

// MaxParallelism=1 must force two independent, same-wave jobs to run
// one at a time, not concurrently.
func TestScheduler_MaxParallelismSerializesWave(t *testing.T) {
	doc := `
name: parallelism-bound
jobs:
  one:
    steps: [{ run: "sleep 0.3" }]
  two:
    steps: [{ run: "sleep 0.3" }]
`
	wf, err := workflowio.Parse([]byte(doc))
	require.NoError(t, err)

	cfg := &config.Config{StepTimeoutSeconds: 10, MaxRetries: 0, MaxParallelism: 1}
	sched := NewScheduler(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	start := time.Now()
	result, err := sched.Run(ctx, wf)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, model.WorkflowCompleted, result.Status)
	assert.GreaterOrEqual(t, elapsed, 600*time.Millisecond, "serialized jobs should take at least the sum of their sleeps")
}
