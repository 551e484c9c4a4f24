// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/AleutianAI/AleutianTasks/services/llm/llmtest"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args []string, opts ...orchestrator.Option) (string, error) {
	t.Helper()
	cmd := newRootCmd(opts...)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// TestVersionCmd verifies version skips config loading.
func TestVersionCmd(t *testing.T) {
	t.Setenv(orchestrator.EnvPort, "not-a-port")

	out, err := execute(t, []string{"version"})

	require.NoError(t, err)
	assert.Equal(t, "taskbot dev\n", out)
}

// TestChatCmd verifies one turn is printed as JSON.
func TestChatCmd(t *testing.T) {
	// Arrange
	t.Setenv(orchestrator.EnvModelID, "test-model")
	mock := llmtest.NewMockClient().QueueText("You have no tasks.")

	// Act
	out, err := execute(t,
		[]string{"--in-memory", "--log-format", "json", "chat", "what", "is", "due?", "--context", "[]"},
		orchestrator.WithLLMClient(mock))

	// Assert
	require.NoError(t, err)
	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "You have no tasks.", resp["reply"])
	assert.Equal(t, []any{}, resp["toolCalls"])

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[0].Content[0].Text, "what is due?")
}

// TestChatCmd_Errors verifies argument and configuration failures.
func TestChatCmd_Errors(t *testing.T) {
	t.Setenv(orchestrator.EnvModelID, "test-model")

	_, err := execute(t, []string{"--in-memory", "chat"}, orchestrator.WithLLMClient(llmtest.NewMockClient()))
	assert.Error(t, err, "prompt is required")

	_, err = execute(t, []string{"--in-memory", "chat", "hi", "--context", "{"},
		orchestrator.WithLLMClient(llmtest.NewMockClient()))
	assert.ErrorContains(t, err, "--context is not valid JSON")

	_, err = execute(t, []string{"--in-memory", "--log-format", "xml", "chat", "hi"})
	assert.ErrorContains(t, err, "unknown log format")

	t.Setenv(orchestrator.EnvModelID, "")
	t.Setenv("BEDROCK_MODEL_ID", "")
	_, err = execute(t, []string{"--in-memory", "chat", "hi"}, orchestrator.WithLLMClient(llmtest.NewMockClient()))
	assert.ErrorIs(t, err, orchestrator.ErrInvalidConfig)
}
