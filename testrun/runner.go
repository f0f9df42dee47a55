package testrun

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"forge/store"
)

const (
	// Timeout is the hard wall-clock limit for one test run.
	Timeout = 300 * time.Second
	// outputCap bounds how much of each stream is kept for storage.
	outputCap = 100_000
)

// Runner executes a project's test suite and keeps a history of results.
type Runner struct {
	store   *store.Store
	timeout time.Duration
	history []Result
}

// NewRunner creates a runner for the given project store.
func NewRunner(s *store.Store) *Runner {
	return &Runner{store: s, timeout: Timeout}
}

// SetTimeout overrides the wall-clock limit; used by tests.
func (r *Runner) SetTimeout(d time.Duration) {
	r.timeout = d
}

// History returns all results recorded by this runner, oldest first.
func (r *Runner) History() []Result {
	return r.history
}

// Run detects the framework (unless customCommand overrides it), executes
// the tests in the project directory, and parses the output. Every exit
// path returns a fully populated Result; errors never escape as Go errors
// because the workflow must continue regardless.
func (r *Runner) Run(ctx context.Context, customCommand string) Result {
	framework, command, ok := Detect(r.store)
	if customCommand != "" {
		command = []string{"sh", "-c", customCommand}
		if !ok {
			framework = "custom"
		}
	} else if !ok {
		result := errorResult("", "no test framework detected in project")
		r.history = append(r.history, result)
		return result
	}

	result := r.execute(ctx, framework, command)
	r.history = append(r.history, result)
	return result
}

func (r *Runner) execute(ctx context.Context, framework string, command []string) Result {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command[0], command[1:]...)
	cmd.Dir = r.store.Root()
	// Children get their own process group so a timeout kills the whole
	// tree, not just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Printf("[testrun] running %s in %s", strings.Join(command, " "), r.store.Root())
	err := cmd.Run()

	result := parseOutput(framework, cap100k(stdout.String()), cap100k(stderr.String()))

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	result.ReturnCode = exitCode

	if result.TotalTests > 0 {
		result.Success = result.Failed == 0 && exitCode == 0
	} else {
		result.Success = err == nil
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("test run timed out after %s", r.timeout))
	case err != nil && result.TotalTests == 0 && len(result.Failures) == 0:
		// Spawn failures and non-test process errors.
		result.Success = false
		result.Errors = append(result.Errors, fmt.Sprintf("test command failed: %v", err))
	}

	return result
}

func cap100k(s string) string {
	if len(s) > outputCap {
		return s[:outputCap]
	}
	return s
}

// FormatFeedback renders a failing result as an action-oriented repair
// instruction delivered to developer agents.
func FormatFeedback(result Result) string {
	var b strings.Builder
	b.WriteString("## Test Results: FAILING\n\n")

	if len(result.Failures) == 0 && len(result.Errors) > 0 {
		b.WriteString("The test suite could not be run:\n")
		for _, e := range result.Errors {
			b.WriteString("- " + e + "\n")
		}
		b.WriteString("\nFix the project so its tests can execute, then emit the corrected files using `update:` blocks.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%d of %d tests failed.\n\n", result.Failed, result.TotalTests)
	for _, f := range result.Failures {
		fmt.Fprintf(&b, "### %s\n", f.Test)
		excerpt := f.Error
		if len(excerpt) > 2000 {
			excerpt = excerpt[:2000] + "\n... (truncated)"
		}
		if strings.TrimSpace(excerpt) != "" {
			b.WriteString("```\n" + strings.TrimRight(excerpt, "\n") + "\n```\n")
		}
	}
	b.WriteString("\nFix every failure above. Emit each corrected file as a complete `update:` block. Do not change the tests unless they are wrong.\n")
	return b.String()
}
