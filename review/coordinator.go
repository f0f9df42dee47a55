package review

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"forge/agent"
	"forge/ops"
	"forge/store"
)

// Verdict is the terminal state of a review. Reviews are never
// hard-rejected; bounded rounds force an outcome.
type Verdict string

const (
	VerdictApproved  Verdict = "Approved"
	VerdictWithNotes Verdict = "Accepted-with-notes"
)

// Outcome records one completed review of one file.
type Outcome struct {
	File      string   `json:"file"`
	Rounds    int      `json:"rounds"`
	Reviewers []string `json:"reviewers"`
	Verdict   Verdict  `json:"verdict"`
	Feedback  []string `json:"feedback"`
}

// DefaultMaxRounds bounds the critique/revision cycle.
const DefaultMaxRounds = 2

// securitySensitive marks path substrings that pull the Security Expert
// into the reviewer set.
var securitySensitive = []string{"auth", "login", "password", "token", "crypto", "payment", "security"}

// Coordinator runs the peer-review protocol for files authored during
// an agent's turn.
type Coordinator struct {
	store     *store.Store
	maxRounds int
}

// NewCoordinator creates a coordinator writing revisions into the store.
func NewCoordinator(s *store.Store) *Coordinator {
	return &Coordinator{store: s, maxRounds: DefaultMaxRounds}
}

// SetMaxRounds overrides the round bound; values < 1 are clamped to 1.
func (c *Coordinator) SetMaxRounds(n int) {
	if n < 1 {
		n = 1
	}
	c.maxRounds = n
}

// SelectReviewers picks up to three reviewers for a file, in priority
// order: Lead Developer, the complementary developer, QA, and — for
// security-sensitive paths — the Security Expert. The author never
// reviews its own file.
func SelectReviewers(author *agent.Agent, team []*agent.Agent, path string) []*agent.Agent {
	byRole := map[agent.Role]*agent.Agent{}
	for _, member := range team {
		if member == author {
			continue
		}
		if _, taken := byRole[member.Role]; !taken {
			byRole[member.Role] = member
		}
	}

	var picked []*agent.Agent
	add := func(r agent.Role) {
		if member, ok := byRole[r]; ok && len(picked) < 3 {
			for _, p := range picked {
				if p == member {
					return
				}
			}
			picked = append(picked, member)
		}
	}

	add(agent.RoleLeadDeveloper)
	switch author.Role {
	case agent.RoleBackendDev:
		add(agent.RoleFrontendDev)
	case agent.RoleFrontendDev:
		add(agent.RoleBackendDev)
	}
	add(agent.RoleQATester)
	if isSecuritySensitive(path) {
		add(agent.RoleSecurity)
	}

	return picked
}

func isSecuritySensitive(path string) bool {
	lower := strings.ToLower(path)
	for _, marker := range securitySensitive {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Review conducts up to maxRounds critique/revision cycles on one file.
// Reviewer calls within a round run concurrently; the protocol as a
// whole stays inside the author's turn. Any reviewer or author failure
// degrades to approval with a note — reviews never abort the workflow.
func (c *Coordinator) Review(ctx context.Context, author *agent.Agent, team []*agent.Agent, path, taskContext string) Outcome {
	outcome := Outcome{File: path, Verdict: VerdictApproved, Feedback: []string{}}

	reviewers := SelectReviewers(author, team, path)
	for _, r := range reviewers {
		outcome.Reviewers = append(outcome.Reviewers, r.Name)
	}
	if len(reviewers) == 0 {
		return outcome
	}

	for round := 1; round <= c.maxRounds; round++ {
		outcome.Rounds = round

		content, err := c.store.Read(path)
		if err != nil {
			outcome.Feedback = append(outcome.Feedback, fmt.Sprintf("review aborted: %v", err))
			return outcome
		}

		critiques, notes := c.collectCritiques(ctx, reviewers, path, content, taskContext)
		outcome.Feedback = append(outcome.Feedback, notes...)
		if len(critiques) == 0 {
			if round > 1 {
				outcome.Verdict = VerdictWithNotes
			}
			return outcome
		}

		outcome.Feedback = append(outcome.Feedback, critiques...)
		outcome.Verdict = VerdictWithNotes

		if round == c.maxRounds {
			// Bounded: accept with the outstanding notes on record.
			return outcome
		}

		if !c.requestRevision(ctx, author, path, critiques) {
			return outcome
		}
	}

	return outcome
}

// collectCritiques fans the review prompt out to every reviewer and
// returns the non-approving replies. Reviewer failures count as
// approvals; each one is returned as a note for the outcome's feedback.
func (c *Coordinator) collectCritiques(ctx context.Context, reviewers []*agent.Agent, path, content, taskContext string) (critiques, notes []string) {
	replies := make([]string, len(reviewers))
	errs := make([]error, len(reviewers))

	var wg sync.WaitGroup
	for i, reviewer := range reviewers {
		wg.Add(1)
		go func(i int, reviewer *agent.Agent) {
			defer wg.Done()
			replies[i], errs[i] = reviewer.Step(ctx, reviewPrompt(reviewer, path, content, taskContext))
		}(i, reviewer)
	}
	wg.Wait()

	for i, reviewer := range reviewers {
		if errs[i] != nil {
			log.Printf("[review] %s failed, counting as approval: %v", reviewer.Name, errs[i])
			notes = append(notes, fmt.Sprintf("%s review failed, counted as approval: %v", reviewer.Name, errs[i]))
			continue
		}
		if !isApproval(replies[i]) {
			critiques = append(critiques, fmt.Sprintf("%s: %s", reviewer.Name, strings.TrimSpace(replies[i])))
		}
	}
	return critiques, notes
}

// requestRevision delivers consolidated feedback to the author and
// applies the revision. Only the first update to the file under review
// is applied; any other op in the author's reply is discarded and is not
// carried over to a later turn.
func (c *Coordinator) requestRevision(ctx context.Context, author *agent.Agent, path string, critiques []string) bool {
	var b strings.Builder
	fmt.Fprintf(&b, "Your file `%s` received review feedback:\n\n", path)
	for _, critique := range critiques {
		b.WriteString("- " + critique + "\n")
	}
	fmt.Fprintf(&b, "\nAddress the feedback and emit the complete revised file as:\n```update: %s\n<content>\n```\n", path)

	reply, err := author.Step(ctx, b.String())
	if err != nil {
		log.Printf("[review] author revision failed: %v", err)
		return false
	}

	parsed := ops.ParseReply(reply)
	for _, op := range parsed.Ops {
		if op.Kind == ops.OpUpdate && op.Path == path {
			if err := c.store.Update(op.Path, op.Content); err != nil {
				log.Printf("[review] applying revision failed: %v", err)
			}
			return true
		}
	}
	return true
}

func reviewPrompt(reviewer *agent.Agent, path, content, taskContext string) string {
	rubric := agent.ProfileFor(reviewer.Role).ReviewRubric
	if rubric == "" {
		rubric = "Critique correctness, clarity, and fit with the task."
	}

	var b strings.Builder
	b.WriteString("Review the following file written by a teammate.\n\n")
	fmt.Fprintf(&b, "Task context:\n%s\n\n", taskContext)
	fmt.Fprintf(&b, "File: %s\n```\n%s\n```\n\n", path, content)
	b.WriteString(rubric + "\n\n")
	b.WriteString("If the file is acceptable, reply with exactly: APPROVED.\n")
	b.WriteString("Otherwise list the specific problems to fix.\n")
	return b.String()
}

// isApproval applies the approval heuristic: an explicit approval phrase
// and no outstanding demands.
func isApproval(reply string) bool {
	lower := strings.ToLower(reply)
	approving := strings.Contains(lower, "approved") ||
		strings.Contains(lower, "looks good") ||
		strings.Contains(lower, "no changes")
	if !approving {
		return false
	}
	for _, demand := range []string{"issue", "must fix", "should fix", "problem", "vulnerab"} {
		if strings.Contains(lower, demand) {
			return false
		}
	}
	return true
}
