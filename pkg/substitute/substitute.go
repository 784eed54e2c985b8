// Package substitute resolves the variable surface forms of spec.md
// §4.D: plain shell-style $NAME / ${NAME}, and the templated
// ${{ needs.JOB.outputs.KEY }} / ${{ steps.STEP.outputs.KEY }} forms.
package substitute

import (
	"os"
	"regexp"
	"strings"

	"github.com/tbrandenburg/flowrite/pkg/model"
)

var (
	reTemplated = regexp.MustCompile(`\$\{\{\s*([a-zA-Z_][\w.]*)\s*\}\}`)
	rePlainBrac = regexp.MustCompile(`\$\{([a-zA-Z_]\w*)\}`)
	rePlainBare = regexp.MustCompile(`\$([a-zA-Z_]\w*)`)
	reAnyForm   = regexp.MustCompile(reTemplated.String() + `|` + rePlainBrac.String() + `|` + rePlainBare.String())
)

// Context supplies the lookups a substitution pass needs.
type Context struct {
	// Vars is the plain-shell variable map (checked before process env).
	Vars map[string]string
	// JobResults backs needs.JOB.outputs.KEY lookups.
	JobResults map[string]model.JobResult
	// StepOutputs backs steps.STEP.outputs.KEY lookups, scoped to the
	// current job's current outer-loop attempt.
	StepOutputs map[string]map[string]string
}

// Substitute performs a single, non-recursive pass: substituted values
// are not scanned again. At each position the templated form is tried
// first (so `${{` is never mis-parsed by the `${...}` matcher), then the
// plain shell forms.
func Substitute(text string, ctx Context) string {
	return reAnyForm.ReplaceAllStringFunc(text, func(match string) string {
		if m := reTemplated.FindStringSubmatch(match); m != nil {
			return resolveTemplated(m[1], ctx)
		}
		return resolvePlain(strings.Trim(match, "${}"), match, ctx)
	})
}

// resolvePlain looks up name in the variable map, then the process
// environment; if neither has it, the original matched literal (e.g.
// "${NAME}" or "$NAME") is returned unchanged.
func resolvePlain(name, original string, ctx Context) string {
	if v, ok := ctx.Vars[name]; ok {
		return v
	}
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return original
}

// resolveTemplated resolves "needs.JOB.outputs.KEY" or
// "steps.STEP.outputs.KEY"; any other shape is returned as the literal
// "${{ ref }}" (whitespace inside the braces normalized to one space).
func resolveTemplated(ref string, ctx Context) string {
	parts := strings.Split(ref, ".")
	switch {
	case len(parts) == 4 && parts[0] == "needs" && parts[2] == "outputs":
		job, key := parts[1], parts[3]
		if result, ok := ctx.JobResults[job]; ok {
			if v, ok := result.Outputs[key]; ok {
				return v
			}
		}
		return ""
	case len(parts) == 4 && parts[0] == "steps" && parts[2] == "outputs":
		step, key := parts[1], parts[3]
		if outs, ok := ctx.StepOutputs[step]; ok {
			if v, ok := outs[key]; ok {
				return v
			}
		}
		return ""
	default:
		return "${{ " + ref + " }}"
	}
}
