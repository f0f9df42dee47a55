package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"forge/agent"
	"forge/audit"
	"forge/ops"
	"forge/review"
	"forge/security"
	"forge/store"
	"forge/testrun"
)

// ConfigError marks workflow misconfiguration that aborts before any
// agent runs. Everything else is recovered in-loop.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "workflow misconfigured: " + e.Reason
}

// Options configures an iteration workflow.
type Options struct {
	Task             string
	Team             []*agent.Agent
	Store            *store.Store
	MaxIterations    int
	MinIterations    int
	StopOnCompletion bool
	Testing          bool
	TestCommand      string
	Review           bool
	SecurityScan     bool
	Audit            *audit.Logger

	// ContextFiles bounds how many file contents are embedded per
	// context message, most recently edited first.
	ContextFiles int
}

// DefaultOptions fills in the documented defaults around a task, team
// and store.
func DefaultOptions(task string, team []*agent.Agent, s *store.Store) Options {
	return Options{
		Task:             task,
		Team:             team,
		Store:            s,
		MaxIterations:    3,
		MinIterations:    2,
		StopOnCompletion: true,
		Testing:          true,
		Review:           true,
		SecurityScan:     true,
		ContextFiles:     20,
	}
}

// Controller drives the core loop: each iteration gives every agent one
// turn, then tests run, then the stop rule is evaluated. Agent turns are
// strictly sequential; the file system is the ordering oracle that later
// agents observe earlier agents through.
type Controller struct {
	opts     Options
	runner   *testrun.Runner
	reviewer *review.Coordinator

	// pendingReads maps agent ID to file paths the agent asked to read
	// last turn; contents are delivered in its next context message.
	pendingReads map[string][]string
}

// NewController validates options and builds a controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, &ConfigError{Reason: "no project store"}
	}
	if len(opts.Team) == 0 {
		return nil, &ConfigError{Reason: "empty team"}
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}
	if opts.MinIterations < 0 {
		opts.MinIterations = 0
	}
	if opts.ContextFiles <= 0 {
		opts.ContextFiles = 20
	}
	return &Controller{
		opts:         opts,
		runner:       testrun.NewRunner(opts.Store),
		reviewer:     review.NewCoordinator(opts.Store),
		pendingReads: map[string][]string{},
	}, nil
}

// Runner exposes the test runner, letting callers adjust its timeout.
func (c *Controller) Runner() *testrun.Runner {
	return c.runner
}

// Run executes the workflow. The returned Result is populated even when
// err is non-nil (cancellation): it reflects everything completed so far.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		WorkflowID:  uuid.New().String(),
		Task:        c.opts.Task,
		ProjectPath: c.opts.Store.Root(),
	}

	for i := 0; i < c.opts.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return c.finish(result), err
		}

		record := c.runIteration(ctx, i)
		result.Iterations = append(result.Iterations, record)

		if record.TestResult != nil {
			result.FinalTest = record.TestResult
		}

		if c.shouldStop(i, &record) {
			log.Printf("[workflow] early stop at iteration %d (%.0f%% completion)",
				i, record.CompletionRatio()*100)
			break
		}
	}

	if c.opts.SecurityScan {
		report := security.NewScanner(c.opts.Store).Scan()
		result.Security = &report
		c.audit(audit.Event{Kind: "security_scan", Detail: fmt.Sprintf("%d findings", report.Total)})
	}

	return c.finish(result), nil
}

func (c *Controller) finish(result *Result) *Result {
	if files, err := c.opts.Store.List(); err == nil {
		result.Files = files
	}
	return result
}

// runIteration gives every team member one turn, then runs tests and at
// most one repair sub-iteration.
func (c *Controller) runIteration(ctx context.Context, index int) IterationRecord {
	record := IterationRecord{Index: index}

	for _, member := range c.opts.Team {
		if ctx.Err() != nil {
			return record
		}
		turn, outcomes := c.runTurn(ctx, index, member)
		record.Turns = append(record.Turns, turn)
		record.Reviews = append(record.Reviews, outcomes...)
	}

	if c.opts.Testing {
		testResult := c.runner.Run(ctx, c.opts.TestCommand)
		c.audit(audit.Event{Kind: "test_run", Detail: fmt.Sprintf("success=%v total=%d", testResult.Success, testResult.TotalTests)})

		if !testResult.Success && index >= 1 && ctx.Err() == nil {
			c.repair(ctx, testResult)
			testResult = c.runner.Run(ctx, c.opts.TestCommand)
			c.audit(audit.Event{Kind: "test_rerun", Detail: fmt.Sprintf("success=%v", testResult.Success)})
		}
		record.TestResult = &testResult
	}

	return record
}

// runTurn steps one agent and processes its reply. A step failure yields
// an errored, op-free turn; the workflow continues with the next agent.
func (c *Controller) runTurn(ctx context.Context, iteration int, member *agent.Agent) (AgentTurn, []review.Outcome) {
	turn := AgentTurn{Agent: member.Name, Role: string(member.Role)}

	started := time.Now()
	reply, err := member.Step(ctx, c.buildContext(iteration, member))
	c.audit(audit.Event{Kind: "agent_step", Agent: member.Name, Duration: time.Since(started), Err: errString(err)})
	if err != nil {
		log.Printf("[workflow] %s turn failed: %v", member.Name, err)
		turn.Err = err.Error()
		return turn, nil
	}

	parsed := ops.ParseReply(reply)
	turn.CompletionSignal = parsed.Complete
	for _, warning := range parsed.Warnings {
		log.Printf("[workflow] %s: %s", member.Name, warning)
	}

	var authored []string
	for _, op := range parsed.Ops {
		turn.Ops = append(turn.Ops, op)
		if path, ok := c.applyOp(member, op); ok {
			authored = append(authored, path)
		}
	}

	var outcomes []review.Outcome
	if c.opts.Review && member.Role.IsDeveloper() {
		for _, path := range authored {
			outcome := c.reviewer.Review(ctx, member, c.opts.Team, path, c.opts.Task)
			outcomes = append(outcomes, outcome)
			c.audit(audit.Event{Kind: "review", Agent: member.Name, Path: path, Detail: string(outcome.Verdict)})
		}
	}

	return turn, outcomes
}

// applyOp performs one file operation. Returns the authored path for
// create/update ops that actually hit the disk.
func (c *Controller) applyOp(member *agent.Agent, op ops.FileOp) (string, bool) {
	var err error
	switch op.Kind {
	case ops.OpCreate:
		err = c.opts.Store.Create(op.Path, op.Content)
		if errors.Is(err, store.ErrAlreadyExists) {
			err = c.opts.Store.Update(op.Path, op.Content)
		}
	case ops.OpUpdate:
		err = c.opts.Store.Update(op.Path, op.Content)
	case ops.OpRead:
		c.pendingReads[member.ID] = append(c.pendingReads[member.ID], op.Path)
		return "", false
	}

	c.audit(audit.Event{Kind: "file_op", Agent: member.Name, Path: op.Path, Detail: string(op.Kind), Err: errString(err)})
	if err != nil {
		// Ignored targets and invalid paths are rejected silently from
		// the agent's point of view; the warning stays in our logs.
		log.Printf("[workflow] %s: %s %s rejected: %v", member.Name, op.Kind, op.Path, err)
		return "", false
	}
	return op.Path, true
}

// repair is the intra-iteration sub-iteration: every developer gets the
// failure feedback once, in team order, and may emit fixes.
func (c *Controller) repair(ctx context.Context, failed testrun.Result) {
	feedback := testrun.FormatFeedback(failed)

	for _, member := range c.opts.Team {
		if !member.Role.IsDeveloper() || ctx.Err() != nil {
			continue
		}
		reply, err := member.Step(ctx, feedback)
		c.audit(audit.Event{Kind: "repair_step", Agent: member.Name, Err: errString(err)})
		if err != nil {
			log.Printf("[workflow] repair turn for %s failed: %v", member.Name, err)
			continue
		}
		for _, op := range ops.ParseReply(reply).Ops {
			c.applyOp(member, op)
		}
	}
}

// shouldStop applies the early-termination rule: enough iterations have
// completed, at least 70% of the team signalled completion, and tests
// (when enabled) pass.
func (c *Controller) shouldStop(index int, record *IterationRecord) bool {
	if !c.opts.StopOnCompletion {
		return false
	}
	if index+1 < c.opts.MinIterations {
		return false
	}
	if record.CompletionRatio() < 0.7 {
		return false
	}
	if c.opts.Testing && (record.TestResult == nil || !record.TestResult.Success) {
		return false
	}
	return true
}

// buildContext assembles the message an agent sees at the start of its
// turn: the task, the project tree, recent file contents, any files it
// asked to read, and the phase instruction.
func (c *Controller) buildContext(iteration int, member *agent.Agent) string {
	var b strings.Builder

	b.WriteString("# Task\n\n")
	b.WriteString(c.opts.Task)
	b.WriteString("\n\n# Project structure\n\n")
	if tree, err := c.opts.Store.Structure(); err == nil {
		b.WriteString(tree)
	}
	b.WriteString("\n")

	recent, _ := c.opts.Store.ModTimeOrder()
	if len(recent) > c.opts.ContextFiles {
		recent = recent[:c.opts.ContextFiles]
	}

	// Files the agent explicitly asked to read come first and are not
	// truncated away by the recency cap.
	if reads := c.pendingReads[member.ID]; len(reads) > 0 {
		b.WriteString("\n# Files you requested\n")
		for _, path := range reads {
			content, err := c.opts.Store.Read(path)
			if err != nil {
				fmt.Fprintf(&b, "\n%s: file not found\n", path)
				continue
			}
			fmt.Fprintf(&b, "\n## %s\n```\n%s\n```\n", path, truncate(content, 8000))
		}
		delete(c.pendingReads, member.ID)
	}

	if len(recent) > 0 {
		b.WriteString("\n# Current files\n")
		for _, path := range recent {
			content, err := c.opts.Store.Read(path)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "\n## %s\n```\n%s\n```\n", path, truncate(content, 4000))
		}
	}

	b.WriteString("\n# Your instruction\n\n")
	if iteration == 0 {
		b.WriteString("This is the first pass. Create the files your role is responsible for, using the required fence directives.")
	} else {
		b.WriteString("Review the current state of the project. Improve, fix, or extend the files your role is responsible for using `update:` directives. " +
			"If the project fully satisfies the task, say so explicitly.")
	}

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (truncated)"
}

func (c *Controller) audit(event audit.Event) {
	if err := c.opts.Audit.Log(event); err != nil {
		log.Printf("[audit] %v", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
