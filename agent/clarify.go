package agent

import (
	"context"
	"log"
	"strings"

	"forge/llm"
)

// ClarifiedTask pairs the rewritten requirements document with the
// original task text.
type ClarifiedTask struct {
	Clarified string
	Original  string
}

// Clarifier rewrites a brief task description into a structured
// requirements document. It never fails: any endpoint problem returns
// the original text unchanged.
type Clarifier struct {
	client llm.Client
}

// NewClarifier creates a clarifier backed by the given client.
func NewClarifier(client llm.Client) *Clarifier {
	return &Clarifier{client: client}
}

const clarifyPrompt = `Rewrite the software task below into a structured requirements document with exactly these sections:

## Goal
## Requirements
## Specifications
## Success Criteria

Keep it concrete and implementation-ready. Do not add features the task does not imply.

Task:
`

// Clarify produces the structured document, or echoes the raw task with
// a warning when the endpoint fails or returns nothing usable.
func (c *Clarifier) Clarify(ctx context.Context, raw string) ClarifiedTask {
	if c.client == nil {
		return ClarifiedTask{Clarified: raw, Original: raw}
	}

	resp, err := c.client.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "You turn vague software tasks into precise requirement documents."},
			{Role: "user", Content: clarifyPrompt + raw},
		},
		Temperature: 0.3,
	})
	if err != nil {
		log.Printf("[clarify] falling back to raw task: %v", err)
		return ClarifiedTask{Clarified: raw, Original: raw}
	}
	clarified := strings.TrimSpace(resp.Content)
	if clarified == "" {
		log.Printf("[clarify] empty clarification, using raw task")
		return ClarifiedTask{Clarified: raw, Original: raw}
	}
	return ClarifiedTask{Clarified: clarified, Original: raw}
}
