// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnthropic(t *testing.T, handler http.HandlerFunc) *AnthropicClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewAnthropicClient(Config{
		Model:   "claude-test",
		Region:  "us-east-1",
		BaseURL: server.URL,
		APIKey:  "sk-test",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

// TestNewAnthropicClient_Config verifies configuration errors are eager.
func TestNewAnthropicClient_Config(t *testing.T) {
	_, err := NewAnthropicClient(Config{APIKey: "k"})
	assert.ErrorIs(t, err, ErrModelNotConfigured)

	_, err = NewAnthropicClient(Config{Model: "m"})
	assert.ErrorIs(t, err, ErrAPIKeyMissing)
}

// TestNewClient_Backends verifies backend selection.
func TestNewClient_Backends(t *testing.T) {
	cfg := Config{Model: "m", APIKey: "k"}

	cfg.Backend = ""
	c, err := NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, BackendAnthropic, c.Name())

	cfg.Backend = "OpenAI"
	c, err = NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, BackendOpenAI, c.Name())
	assert.Equal(t, "m", c.Model())

	cfg.Backend = "bedrock-legacy"
	_, err = NewClient(cfg)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

// TestAnthropicClient_Complete verifies the wire format in both directions.
func TestAnthropicClient_Complete(t *testing.T) {
	var captured map[string]any
	client := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"},{"type":"tool_use","id":"tu_1","name":"createTask","input":{"title":"Buy milk"}}],"stop_reason":"tool_use"}`))
	})

	// Arrange
	req := &ChatRequest{
		System:      "be brief",
		MaxTokens:   512,
		Temperature: 0.2,
		Messages: []Message{
			{Role: RoleUser, Content: []ContentBlock{TextBlock("hi")}},
			{Role: RoleAssistant, Content: []ContentBlock{ToolUseBlock("tu_0", "findTasks", json.RawMessage(`{}`))}},
			{Role: RoleUser, Content: []ContentBlock{ToolResultBlock("tu_0", `{"error":"boom"}`, true)}},
		},
		Tools: []ToolDefinition{{Name: "createTask", Description: "d", InputSchema: map[string]any{"type": "object"}}},
	}

	// Act
	resp, err := client.Complete(context.Background(), req)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
	require.Len(t, resp.ToolUses(), 1)
	assert.Equal(t, "tu_1", resp.ToolUses()[0].ID)

	assert.Equal(t, "claude-test", captured["model"])
	assert.Equal(t, "be brief", captured["system"])
	assert.EqualValues(t, 512, captured["max_tokens"])
	assert.InDelta(t, 0.2, captured["temperature"], 0.0001)

	messages := captured["messages"].([]any)
	require.Len(t, messages, 3)
	result := messages[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", result["type"])
	assert.Equal(t, "tu_0", result["tool_use_id"])
	assert.Equal(t, true, result["is_error"])

	tools := captured["tools"].([]any)
	assert.Equal(t, "createTask", tools[0].(map[string]any)["name"])
	assert.NotNil(t, tools[0].(map[string]any)["input_schema"])
}

// TestAnthropicClient_UnstructuredBody verifies a non-JSON 200 degrades to text.
func TestAnthropicClient_UnstructuredBody(t *testing.T) {
	client := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain words"))
	})

	resp, err := client.Complete(context.Background(), &ChatRequest{MaxTokens: 10})

	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, "plain words", resp.Text())
}

// TestAnthropicClient_ProviderErrors verifies status and envelope failures propagate.
func TestAnthropicClient_ProviderErrors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		client := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
		})

		_, err := client.Complete(context.Background(), &ChatRequest{MaxTokens: 10})

		var perr *ProviderError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
		assert.Equal(t, "authentication_error", perr.Type)
	})

	t.Run("error envelope with 200", func(t *testing.T) {
		client := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
		})

		_, err := client.Complete(context.Background(), &ChatRequest{MaxTokens: 10})

		var perr *ProviderError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, "overloaded_error", perr.Type)
		assert.Contains(t, perr.Error(), "Overloaded")
	})
}

// TestAnthropicClient_TransportError verifies unreachable endpoints fail.
func TestAnthropicClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewAnthropicClient(Config{Model: "m", APIKey: "k", BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), &ChatRequest{MaxTokens: 10})
	assert.Error(t, err)
}

// TestSnippet verifies provider bodies are shortened to one line.
func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b", snippet([]byte("a\n  b")))
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, snippet(long), 259)
}
