package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"forge/llm"
)

// Agent binds a role to a completion client and a message history. The
// history grows monotonically, in insertion order, and is mutated only by
// Step. One agent is driven by one goroutine at a time; the iteration
// controller serializes turns.
type Agent struct {
	ID          string
	Role        Role
	Name        string
	Temperature float64

	client  llm.Client
	history []llm.Message
}

// New creates an agent for a role. The display name defaults to the
// role's profile name and can be overridden for multi-instance teams.
func New(role Role, name string, client llm.Client) *Agent {
	profile := ProfileFor(role)
	if name == "" {
		name = profile.DisplayName
	}
	a := &Agent{
		ID:          uuid.New().String(),
		Role:        role,
		Name:        name,
		Temperature: profile.Temperature,
		client:      client,
	}
	a.history = append(a.history, llm.Message{Role: "system", Content: profile.SystemPrompt})
	return a
}

// Step appends the input to the history, invokes the completion endpoint
// with the full history at the agent's temperature, records the reply,
// and returns it. On endpoint failure the input stays in the history and
// the error is surfaced to the caller; there is no silent retry.
func (a *Agent) Step(ctx context.Context, input string) (string, error) {
	a.history = append(a.history, llm.Message{Role: "user", Content: input})

	resp, err := a.client.Generate(ctx, llm.Request{
		Messages:    a.history,
		Temperature: a.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("agent %s step failed: %w", a.Name, err)
	}

	a.history = append(a.history, llm.Message{Role: "assistant", Content: resp.Content})
	return resp.Content, nil
}

// History returns the agent's message history. Callers must not mutate it.
func (a *Agent) History() []llm.Message {
	return a.history
}
