// Package shell is the Shell Sub-Executor (spec.md §4.E): it runs one
// command string in a child shell process with a controlled
// environment, captures stdout/stderr, parses the GITHUB_OUTPUT /
// GITHUB_ENV side-channel files, and enforces a timeout.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tbrandenburg/flowrite/pkg/model"
	"github.com/tbrandenburg/flowrite/pkg/substitute"
)

// Request is the input to one Sub-Executor invocation.
type Request struct {
	Command    string
	Env        map[string]string
	WorkingDir string
	Timeout    time.Duration
	// SubstituteCtx is used to expand Command before it is embedded in
	// the generated script: both the templated ${{ ... }} forms and the
	// plain-shell $NAME / ${NAME} forms are resolved against it.
	SubstituteCtx substitute.Context
}

// The embedded command runs in its own subshell, with set -e active
// inside it for the strict-error-mode spec.md §4.E calls for, so a
// multi-statement command stops at its first failing line. The
// subshell is a standalone command (not part of an && / || list, where
// sh would ignore set -e), and the outer script runs without set -e, so
// its exit status is captured on the next line and the outer script can
// always reach the sentinel lines, even when the command fails.
const scriptTemplate = `#!/bin/sh
export GITHUB_OUTPUT=$(mktemp)
export GITHUB_ENV=$(mktemp)
export GITHUB_STEP_SUMMARY=$(mktemp)

( set -e; %s )
_flowrite_status=$?

echo "%s"
cat "$GITHUB_OUTPUT" 2>/dev/null || true
echo "%s"
cat "$GITHUB_ENV" 2>/dev/null || true
echo "%s"

exit $_flowrite_status
`

// Execute runs one command to completion and returns its StepResult.
// An empty command short-circuits to success with empty maps and no
// child process spawned.
func Execute(ctx context.Context, req Request) model.StepResult {
	command := substitute.Substitute(req.Command, req.SubstituteCtx)
	if strings.TrimSpace(command) == "" {
		return model.StepResult{Success: true, Outputs: map[string]string{}, EnvUpdates: map[string]string{}}
	}

	scriptPath, err := writeScript(command)
	if err != nil {
		return model.StepResult{Success: false, Error: fmt.Sprintf("failed to materialize script: %v", err)}
	}
	defer os.Remove(scriptPath)

	runCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", scriptPath)
	cmd.Dir = req.WorkingDir
	cmd.Env = mergeEnv(os.Environ(), req.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// On timeout kill the whole process group, so children of the script
	// that still hold stdout/stderr open cannot keep Run waiting.
	cmd.Cancel = func() error { return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) }

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return model.StepResult{
			Success: false,
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
			Error:   fmt.Sprintf("step timed out after %s", req.Timeout),
		}
	}

	// Parsed unconditionally: the script always reaches the sentinel
	// lines regardless of the embedded command's own exit status, so a
	// failing step can still report partial progress via GITHUB_ENV
	// (e.g. a polling step's until: condition observing state it wrote
	// on a failed attempt).
	sideChannel := ParseSideChannel(stdout.String())

	if runErr != nil {
		return model.StepResult{
			Success:    false,
			Outputs:    map[string]string{},
			EnvUpdates: sideChannel,
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			Error:      runErr.Error(),
		}
	}

	return model.StepResult{
		Success:    true,
		Outputs:    sideChannel,
		EnvUpdates: sideChannel,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
	}
}

func writeScript(command string) (string, error) {
	f, err := os.CreateTemp("", "flowrite-step-*.sh")
	if err != nil {
		return "", err
	}
	defer f.Close()

	script := fmt.Sprintf(scriptTemplate, command, "=== GITHUB_OUTPUT ===", "=== GITHUB_ENV ===", "=== END ===")
	if _, err := f.WriteString(script); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if err := os.Chmod(f.Name(), 0o755); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}

// mergeEnv overlays overlay on top of base, with overlay keys winning,
// per spec.md §4.E step 3 ("supplied keys win").
func mergeEnv(base []string, overlay map[string]string) []string {
	seen := make(map[string]bool, len(overlay))
	merged := make([]string, 0, len(base)+len(overlay))
	for k, v := range overlay {
		merged = append(merged, k+"="+v)
		seen[k] = true
	}
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if !seen[key] {
			merged = append(merged, kv)
		}
	}
	return merged
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}
