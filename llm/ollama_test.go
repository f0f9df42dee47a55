package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSendsHistoryAndTemperature(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "hello back"},
		})
	}))
	defer server.Close()

	client := NewOllamaClient(Config{Model: "llama3", BaseURL: server.URL})

	resp, err := client.Generate(context.Background(), Request{
		Messages: []Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
		},
		Temperature: 0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello back", resp.Content)
	assert.Equal(t, "llama3", resp.Model)

	assert.Equal(t, "llama3", captured["model"])
	assert.Equal(t, false, captured["stream"])
	msgs := captured["messages"].([]any)
	assert.Len(t, msgs, 2)
	opts := captured["options"].(map[string]any)
	assert.InDelta(t, 0.4, opts["temperature"].(float64), 1e-9)
}

func TestGenerateSurfacesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOllamaClient(Config{Model: "llama3", BaseURL: server.URL})

	_, err := client.Generate(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestGenerateConnectionRefused(t *testing.T) {
	client := NewOllamaClient(Config{Model: "llama3", BaseURL: "http://127.0.0.1:1"})

	_, err := client.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewOllamaClient(Config{Model: "llama3", BaseURL: server.URL})
	assert.True(t, client.Available(context.Background()))

	down := NewOllamaClient(Config{Model: "llama3", BaseURL: "http://127.0.0.1:1"})
	assert.False(t, down.Available(context.Background()))
}
