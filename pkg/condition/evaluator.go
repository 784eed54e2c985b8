// Package condition evaluates the fixed, small grammar used for job
// guards (if:) and loop until: conditions. It is deliberately not a
// general-purpose expression language — see AtomKind below for the
// complete grammar.
package condition

import (
	"regexp"
	"strings"

	"github.com/tbrandenburg/flowrite/pkg/model"
)

// AtomKind enumerates the fixed set of recognized condition atoms.
type AtomKind int

const (
	AtomAlways AtomKind = iota
	AtomSuccess
	AtomFailure
	AtomCancelled
	AtomNeedsOutput
	AtomNeedsResult
	AtomEnvEq
	AtomUnknown
)

// Atom is one parsed leaf term of a condition expression.
type Atom struct {
	Kind  AtomKind
	Job   string
	Key   string
	Value string
	Eq    bool // true for ==, false for !=
}

var (
	reNeedsOutput = regexp.MustCompile(`^needs\.(\w+)\.outputs\.(\w+)\s*(==|!=)\s*'([^']*)'$`)
	reNeedsResult = regexp.MustCompile(`^needs\.(\w+)\.result\s*(==|!=)\s*'([^']*)'$`)
	reEnvEq       = regexp.MustCompile(`^env\.(\w+)\s*(==|!=)\s*'([^']*)'$`)
)

// parseAtom recognizes a single boolean term.
func parseAtom(term string) Atom {
	t := strings.TrimSpace(term)
	switch t {
	case "always()":
		return Atom{Kind: AtomAlways}
	case "success()":
		return Atom{Kind: AtomSuccess}
	case "failure()":
		return Atom{Kind: AtomFailure}
	case "cancelled()":
		return Atom{Kind: AtomCancelled}
	case "":
		return Atom{Kind: AtomAlways}
	}

	if m := reNeedsOutput.FindStringSubmatch(t); m != nil {
		return Atom{Kind: AtomNeedsOutput, Job: m[1], Key: m[2], Eq: m[3] == "==", Value: m[4]}
	}
	if m := reNeedsResult.FindStringSubmatch(t); m != nil {
		return Atom{Kind: AtomNeedsResult, Job: m[1], Eq: m[2] == "==", Value: m[3]}
	}
	if m := reEnvEq.FindStringSubmatch(t); m != nil {
		return Atom{Kind: AtomEnvEq, Key: m[1], Eq: m[2] == "==", Value: m[3]}
	}
	return Atom{Kind: AtomUnknown}
}

// Context supplies the triple an Atom is evaluated against: the
// immutable results of already-completed jobs, the current environment
// snapshot, and — for loop-until only — the iteration state.
type Context struct {
	JobResults map[string]model.JobResult
	Env        map[string]string

	// Loop-until fields; ignored for job guards.
	IsLoopContext   bool
	Iteration       int
	MaxIterations   int
	LastStepSuccess bool

	// StrictMissingNeeds mirrors spec.md §9 Open Question #1: when false
	// (default), a missing job's result defaults to "success" exactly as
	// the source does; when true, a missing job never matches any
	// needs.J.result comparison (treated as absent, not "success").
	StrictMissingNeeds bool

	// OnUnknown is invoked (if non-nil) whenever an atom fails to match
	// the grammar and is resolved fail-open to true; used to funnel a
	// single warning log per spec.md §9 Design Notes.
	OnUnknown func(term string)
}

func (c Context) evalAtom(a Atom, raw string) bool {
	switch a.Kind {
	case AtomAlways:
		return true
	case AtomSuccess:
		if c.IsLoopContext {
			return c.LastStepSuccess
		}
		return true
	case AtomFailure:
		if c.IsLoopContext {
			return !c.LastStepSuccess
		}
		return true
	case AtomCancelled:
		return false
	case AtomNeedsOutput:
		result, ok := c.JobResults[a.Job]
		if !ok {
			return !a.Eq // missing -> == is false, != is true
		}
		match := result.Outputs[a.Key] == a.Value
		if a.Eq {
			return match
		}
		return !match
	case AtomNeedsResult:
		result, ok := c.JobResults[a.Job]
		var normalized string
		if !ok {
			if c.StrictMissingNeeds {
				return !a.Eq
			}
			normalized = "success" // source-compatible default, see spec.md §9 OQ1
		} else {
			normalized = result.NormalizedResult()
		}
		match := normalized == a.Value
		if a.Eq {
			return match
		}
		return !match
	case AtomEnvEq:
		v, ok := c.Env[a.Key]
		if !ok {
			return !a.Eq
		}
		match := v == a.Value
		if a.Eq {
			return match
		}
		return !match
	default:
		if c.OnUnknown != nil {
			c.OnUnknown(raw)
		}
		return true // fail-open, per spec.md §4.C
	}
}

// Eval evaluates a full condition string against ctx. Grammar: terms
// joined by && (binds tighter) and || (binds looser), no parentheses,
// short-circuit evaluation. An empty or whitespace-only condition is
// true.
func Eval(cond string, ctx Context) bool {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return true
	}

	for _, orTerm := range strings.Split(cond, "||") {
		if evalAndChain(orTerm, ctx) {
			return true
		}
	}
	return false
}

func evalAndChain(chain string, ctx Context) bool {
	for _, andTerm := range strings.Split(chain, "&&") {
		atom := parseAtom(andTerm)
		if !ctx.evalAtom(atom, strings.TrimSpace(andTerm)) {
			return false
		}
	}
	return true
}

// EvalLoopUntil evaluates a loop's until: condition. An empty condition
// terminates the loop once iteration >= maxIterations.
func EvalLoopUntil(cond string, iteration, maxIterations int, lastStepSuccess bool, env map[string]string) bool {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return iteration >= maxIterations
	}
	return Eval(cond, Context{
		Env:             env,
		IsLoopContext:   true,
		Iteration:       iteration,
		MaxIterations:   maxIterations,
		LastStepSuccess: lastStepSuccess,
	})
}
