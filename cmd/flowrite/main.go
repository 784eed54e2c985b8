// Command flowrite runs and inspects Flowrite workflow documents.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/tbrandenburg/flowrite/internal/config"
	"github.com/tbrandenburg/flowrite/internal/logger"
	"github.com/tbrandenburg/flowrite/internal/workflowio"
	"github.com/tbrandenburg/flowrite/pkg/engine"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCmd(os.Args[2:]))
	case "create-sample":
		os.Exit(createSampleCmd(os.Args[2:]))
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `flowrite - declarative multi-job workflow execution engine

Usage:
  flowrite run <workflow.yaml> [--verbose]
  flowrite create-sample [-f FILE] [--verbose]`)
}

func runCmd(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "print full error chains on failure")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: flowrite run <workflow.yaml> [--verbose]")
		return 2
	}
	path := fs.Arg(0)
	// Flags may also follow the workflow path, as in the usage line.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "usage: flowrite run <workflow.yaml> [--verbose]")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		printErr(err, *verbose)
		return 1
	}
	log := logger.New(cfg.Logging)

	wf, err := workflowio.Load(path)
	if err != nil {
		printErr(err, *verbose)
		return 1
	}

	sched := engine.NewScheduler(cfg, log)
	result, err := sched.Run(context.Background(), wf)
	if err != nil {
		printErr(err, *verbose)
		return 1
	}

	fmt.Printf("workflow %q: %s\n", result.WorkflowName, result.Status)
	for id, jr := range result.Jobs {
		fmt.Printf("  %s: %s\n", id, jr.Status)
	}

	if result.Status == "Failed" {
		return 1
	}
	return 0
}

func createSampleCmd(args []string) int {
	fs := flag.NewFlagSet("create-sample", flag.ContinueOnError)
	outFile := fs.String("f", "sample_workflow.yaml", "output file path")
	verbose := fs.Bool("verbose", false, "print full error chains on failure")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if _, err := os.Stat(*outFile); err == nil {
		if !confirmOverwrite(*outFile) {
			fmt.Println("aborted: file not overwritten")
			return 1
		}
	}

	if err := os.WriteFile(*outFile, []byte(sampleWorkflowYAML), 0o644); err != nil {
		printErr(err, *verbose)
		return 1
	}
	fmt.Printf("wrote sample workflow to %s\n", *outFile)
	return 0
}

// confirmOverwrite prompts on the controlling terminal before clobbering
// an existing file; a non-TTY stdin (e.g. scripted invocation) defaults
// to "no" rather than blocking.
func confirmOverwrite(path string) bool {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return false
	}
	fmt.Printf("%s already exists, overwrite? [y/N]: ", path)

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		// Fall back to a plain line read if raw mode is unavailable.
		var reply string
		fmt.Scanln(&reply)
		return reply == "y" || reply == "Y"
	}
	defer term.Restore(fd, oldState)

	buf := make([]byte, 1)
	if _, err := os.Stdin.Read(buf); err != nil {
		return false
	}
	fmt.Println()
	return buf[0] == 'y' || buf[0] == 'Y'
}

func printErr(err error, verbose bool) {
	if verbose {
		fmt.Fprintf(os.Stderr, "error: %+v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
}

// sampleWorkflowYAML reproduces the sample document used to walk through
// scenarios S1-S4: a setup job, two downstream jobs that need it (one
// with an until loop and an if: guard on setup's outputs, one with a
// foreach loop), and a final job that depends on both.
const sampleWorkflowYAML = `name: sample-workflow
jobs:
  setup:
    steps:
      - id: init
        run: |
          echo "ready=true" >> "$GITHUB_OUTPUT"
    outputs:
      ready: ${{ steps.init.outputs.ready }}

  job_a:
    needs: [setup]
    if: needs.setup.outputs.ready == 'true'
    loop:
      until: "env.ATTEMPTS == '3'"
      max_iterations: 5
    steps:
      - id: poll
        run: |
          n=$(( ${ATTEMPTS:-0} + 1 ))
          echo "ATTEMPTS=$n" >> "$GITHUB_ENV"
          [ "$n" -ge 3 ]

  job_b:
    needs: [setup]
    loop:
      foreach: "one two three"
    steps:
      - id: echo_item
        run: echo "$FOREACH_ITEM"

  final:
    needs: [job_a, job_b]
    if: needs.job_a.result == 'success' && needs.job_b.result == 'success'
    steps:
      - id: done
        run: echo "all done"
`
