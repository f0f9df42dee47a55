package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/agent"
	"forge/llm"
	"forge/store"
)

// scriptedClient returns canned replies in order, safely under the
// coordinator's concurrent reviewer fan-out.
type scriptedClient struct {
	mu      sync.Mutex
	replies []string
	calls   int
	err     error
}

func (s *scriptedClient) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	reply := "APPROVED"
	if s.calls < len(s.replies) {
		reply = s.replies[s.calls]
	}
	s.calls++
	return &llm.Response{Content: reply, Model: "fake"}, nil
}

func (s *scriptedClient) Model() string { return "fake" }

func (s *scriptedClient) Available(ctx context.Context) bool { return true }

func member(role agent.Role, client llm.Client) *agent.Agent {
	return agent.New(role, "", client)
}

func fullTeam(client llm.Client) (author *agent.Agent, team []*agent.Agent) {
	author = member(agent.RoleBackendDev, client)
	team = []*agent.Agent{
		member(agent.RoleLeadDeveloper, client),
		author,
		member(agent.RoleFrontendDev, client),
		member(agent.RoleQATester, client),
		member(agent.RoleSecurity, client),
	}
	return author, team
}

func reviewerRoles(agents []*agent.Agent) []agent.Role {
	out := make([]agent.Role, len(agents))
	for i, a := range agents {
		out[i] = a.Role
	}
	return out
}

func TestSelectReviewersBackendAuthor(t *testing.T) {
	author, team := fullTeam(&scriptedClient{})
	picked := SelectReviewers(author, team, "src/api.py")
	assert.Equal(t, []agent.Role{agent.RoleLeadDeveloper, agent.RoleFrontendDev, agent.RoleQATester},
		reviewerRoles(picked))
}

func TestSelectReviewersSecuritySensitivePath(t *testing.T) {
	client := &scriptedClient{}
	author := member(agent.RoleBackendDev, client)
	team := []*agent.Agent{
		author,
		member(agent.RoleQATester, client),
		member(agent.RoleSecurity, client),
	}
	picked := SelectReviewers(author, team, "src/auth/login.py")
	assert.Equal(t, []agent.Role{agent.RoleQATester, agent.RoleSecurity}, reviewerRoles(picked))
}

func TestSelectReviewersExcludesAuthorAndCapsAtThree(t *testing.T) {
	author, team := fullTeam(&scriptedClient{})
	picked := SelectReviewers(author, team, "src/payment.py")
	assert.Len(t, picked, 3)
	for _, r := range picked {
		assert.NotSame(t, author, r)
	}
}

func TestSelectReviewersFrontendAuthorGetsBackend(t *testing.T) {
	client := &scriptedClient{}
	author := member(agent.RoleFrontendDev, client)
	team := []*agent.Agent{author, member(agent.RoleBackendDev, client)}
	picked := SelectReviewers(author, team, "ui/app.js")
	assert.Equal(t, []agent.Role{agent.RoleBackendDev}, reviewerRoles(picked))
}

func newReviewStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "proj"))
	require.NoError(t, err)
	require.NoError(t, s.Create("src/api.py", "def handler(): pass\n"))
	return s
}

func TestReviewAllApproveFirstRound(t *testing.T) {
	s := newReviewStore(t)
	author, team := fullTeam(&scriptedClient{}) // every call returns APPROVED

	outcome := NewCoordinator(s).Review(context.Background(), author, team, "src/api.py", "task")
	assert.Equal(t, VerdictApproved, outcome.Verdict)
	assert.Equal(t, 1, outcome.Rounds)
	assert.Len(t, outcome.Reviewers, 3)
	assert.Empty(t, outcome.Feedback)
}

func TestReviewCritiqueDrivesRevision(t *testing.T) {
	s := newReviewStore(t)

	// Reviewers critique once, then approve; distinct clients keep the
	// scripts per agent.
	critic := &scriptedClient{replies: []string{
		"There is an issue: no input validation.",
		"APPROVED",
	}}
	approver := &scriptedClient{}
	authorClient := &scriptedClient{replies: []string{
		"Fixed.\n```update: src/api.py\ndef handler(x):\n    validate(x)\n```\n",
	}}

	author := member(agent.RoleBackendDev, authorClient)
	team := []*agent.Agent{
		author,
		member(agent.RoleLeadDeveloper, critic),
		member(agent.RoleQATester, approver),
	}

	outcome := NewCoordinator(s).Review(context.Background(), author, team, "src/api.py", "task")
	assert.Equal(t, VerdictWithNotes, outcome.Verdict)
	assert.Equal(t, 2, outcome.Rounds)
	assert.NotEmpty(t, outcome.Feedback)

	content, err := s.Read("src/api.py")
	require.NoError(t, err)
	assert.Contains(t, content, "validate(x)")

	// The revision produced a backup of the original.
	backup, err := os.ReadFile(filepath.Join(s.Root(), "src", "api.py.backup"))
	require.NoError(t, err)
	assert.Equal(t, "def handler(): pass\n", string(backup))
}

func TestReviewMaxRoundsExhausted(t *testing.T) {
	s := newReviewStore(t)
	critic := &scriptedClient{replies: []string{
		"Major issue: unbounded recursion.",
		"Still an issue: unbounded recursion.",
		"Still an issue.",
	}}
	authorClient := &scriptedClient{replies: []string{"I disagree, no changes.\n"}}

	author := member(agent.RoleBackendDev, authorClient)
	team := []*agent.Agent{author, member(agent.RoleLeadDeveloper, critic)}

	c := NewCoordinator(s)
	c.SetMaxRounds(2)
	outcome := c.Review(context.Background(), author, team, "src/api.py", "task")

	assert.Equal(t, VerdictWithNotes, outcome.Verdict)
	assert.Equal(t, 2, outcome.Rounds)
	assert.NotEmpty(t, outcome.Feedback)
}

func TestReviewReviewerFailureCountsAsApproval(t *testing.T) {
	s := newReviewStore(t)
	broken := &scriptedClient{err: errors.New("endpoint down")}

	author := member(agent.RoleBackendDev, &scriptedClient{})
	team := []*agent.Agent{author, member(agent.RoleLeadDeveloper, broken)}

	outcome := NewCoordinator(s).Review(context.Background(), author, team, "src/api.py", "task")
	assert.Equal(t, VerdictApproved, outcome.Verdict)
	assert.Equal(t, 1, outcome.Rounds)
}

func TestReviewNoReviewersAvailable(t *testing.T) {
	s := newReviewStore(t)
	author := member(agent.RoleBackendDev, &scriptedClient{})

	outcome := NewCoordinator(s).Review(context.Background(), author, []*agent.Agent{author}, "src/api.py", "task")
	assert.Equal(t, VerdictApproved, outcome.Verdict)
	assert.Zero(t, outcome.Rounds)
}

func TestIsApproval(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"APPROVED", true},
		{"Looks good to me!", true},
		{"No changes needed.", true},
		{"Approved, but there is an issue with the error handling.", false},
		{"This has a serious problem.", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isApproval(tt.reply), "reply %q", tt.reply)
	}
}
