package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartgateway/internal/llm"
)

func TestOpenAIClientChat(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{
				"message": map[string]any{
					"content": "hello",
					"tool_calls": []any{map[string]any{
						"id":       "call_1",
						"type":     "function",
						"function": map[string]any{"name": "get_devices", "arguments": "{}"},
					}},
				},
			}},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4},
		})
	}))
	defer server.Close()

	client := llm.NewOpenAIClient("sk-test", server.URL+"/", "")
	resp, err := client.Chat(context.Background(), llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: "hi"}},
		Tools:       []llm.Tool{{Type: "function", Function: llm.FunctionDef{Name: "get_devices"}}},
		Temperature: 0.1,
		MaxTokens:   500,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "get_devices", resp.ToolCalls[0].Function.Name)
	assert.Equal(t, 4, resp.Usage.TotalTokens)

	assert.Equal(t, llm.DefaultModel, got["model"])
	assert.Equal(t, "auto", got["tool_choice"])
	assert.Equal(t, 0.1, got["temperature"])
	assert.Equal(t, 500.0, got["max_tokens"])
}

func TestOpenAIClientDefaultsAndNullContent(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"content":null}}]}`))
	}))
	defer server.Close()

	resp, err := llm.NewOpenAIClient("k", server.URL, "gpt-test").Chat(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Content)
	assert.Equal(t, "gpt-test", got["model"])
	assert.Equal(t, 0.7, got["temperature"])
	assert.Equal(t, 1000.0, got["max_tokens"])
	_, hasChoice := got["tool_choice"]
	assert.False(t, hasChoice)
}

func TestOpenAIClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"api error", http.StatusUnauthorized, `{"error":{"message":"invalid key"}}`, "invalid key"},
		{"opaque error", http.StatusBadGateway, `<html>`, "unknown error"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := llm.NewOpenAIClient("k", server.URL, "").Chat(context.Background(), llm.Request{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
