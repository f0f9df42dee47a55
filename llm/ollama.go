package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "http://localhost:11434"

// OllamaClient implements Client against an Ollama-compatible chat API.
type OllamaClient struct {
	model   string
	baseURL string
	http    *http.Client
}

// NewOllamaClient creates a client for the configured endpoint.
func NewOllamaClient(config Config) *OllamaClient {
	base := config.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := time.Duration(config.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaClient{
		model:   config.Model,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

// Generate sends the message history to /api/chat and returns the reply.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (*Response, error) {
	body := map[string]any{
		"model":    c.model,
		"messages": req.Messages,
		"stream":   false,
	}
	options := map[string]any{"temperature": req.Temperature}
	for k, v := range req.Options {
		options[k] = v
	}
	body["options"] = options

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, b)
	}

	var decoded struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("malformed endpoint response: %w", err)
	}

	return &Response{Content: decoded.Message.Content, Model: c.model}, nil
}

// Model returns the model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Available checks if the endpoint is responding.
func (c *OllamaClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
