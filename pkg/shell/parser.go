package shell

import (
	"regexp"
	"strings"
)

const (
	sentinelOutput = "=== GITHUB_OUTPUT ==="
	sentinelEnv    = "=== GITHUB_ENV ==="
	sentinelEnd    = "=== END ==="
)

// ParseSideChannel extracts key/value pairs from the three sentinel
// regions a Sub-Executor invocation wraps around the captured side
// channel file contents (spec.md §4.F). Both regions are merged into a
// single flat map; malformed lines are ignored silently.
func ParseSideChannel(stdout string) map[string]string {
	result := make(map[string]string)
	lines := strings.Split(stdout, "\n")

	var region int // 0 = none, 1 = output, 2 = env
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		switch trimmed {
		case sentinelOutput:
			region = 1
			continue
		case sentinelEnv:
			region = 2
			continue
		case sentinelEnd:
			region = 0
			continue
		}
		if region == 0 {
			continue
		}
		parseKV(trimmed, result)
	}
	return result
}

func parseKV(line string, into map[string]string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	idx := strings.Index(trimmed, "=")
	if idx <= 0 {
		return
	}
	key := strings.TrimSpace(trimmed[:idx])
	value := trimmed[idx+1:]
	if key == "" {
		return
	}
	into[key] = value
}

var reCommandEcho = regexp.MustCompile(`echo\s+"([^"]*)"\s*>>\s*"\$(GITHUB_OUTPUT|GITHUB_ENV)"`)

// ParseCommandLiteral is the standalone parser: it scans raw command
// text lexically for the legacy single-echo form
// echo "K=V" >> "$GITHUB_OUTPUT" (or $GITHUB_ENV) without executing
// anything. Used by callers that have only the command text, never the
// execution output.
func ParseCommandLiteral(command string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(command, "\n") {
		m := reCommandEcho.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		parseKV(m[1], result)
	}
	return result
}
