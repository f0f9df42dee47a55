package orchestrate

import (
	"forge/ops"
	"forge/review"
	"forge/security"
	"forge/testrun"
)

// AgentTurn records one agent's turn within an iteration.
type AgentTurn struct {
	Agent            string       `json:"agent"`
	Role             string       `json:"role"`
	Ops              []ops.FileOp `json:"ops"`
	CompletionSignal bool         `json:"completion_signal"`
	Err              string       `json:"error,omitempty"`
}

// IterationRecord accumulates everything that happened in one pass over
// the team.
type IterationRecord struct {
	Index      int              `json:"index"`
	Turns      []AgentTurn      `json:"turns"`
	TestResult *testrun.Result  `json:"test_result,omitempty"`
	Reviews    []review.Outcome `json:"reviews,omitempty"`
}

// CompletionRatio is the fraction of turns that signalled completion.
// Errored turns count against the ratio; a failing agent has not agreed
// the project is done.
func (r *IterationRecord) CompletionRatio() float64 {
	if len(r.Turns) == 0 {
		return 0
	}
	signalled := 0
	for _, turn := range r.Turns {
		if turn.CompletionSignal {
			signalled++
		}
	}
	return float64(signalled) / float64(len(r.Turns))
}

// Result is the workflow's return value.
type Result struct {
	WorkflowID  string            `json:"workflow_id"`
	Task        string            `json:"task"`
	ProjectPath string            `json:"project_path"`
	Files       []string          `json:"files"`
	Iterations  []IterationRecord `json:"iterations"`
	FinalTest   *testrun.Result   `json:"final_test,omitempty"`
	Security    *security.Report  `json:"security,omitempty"`
}
