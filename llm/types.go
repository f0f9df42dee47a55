package llm

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the completion endpoint cannot be reached.
var ErrUnavailable = errors.New("llm endpoint unavailable")

// Message represents a single message in a conversation
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Request represents a request to an LLM
type Request struct {
	Messages    []Message      `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// Response represents a response from an LLM
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// Client defines the interface for interacting with a chat-completion
// endpoint. Implementations must be safe for sequential reuse; the
// engine never issues concurrent calls on behalf of one agent.
type Client interface {
	// Generate sends a request and returns the completion.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Model returns the model name this client is using.
	Model() string

	// Available checks if the endpoint is reachable and responding.
	Available(ctx context.Context) bool
}

// Config holds connection settings for a completion endpoint.
type Config struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_seconds,omitempty"`
}
