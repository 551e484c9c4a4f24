// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ChatToolRequest Tests
// =============================================================================

func TestChatToolRequest_Validate(t *testing.T) {
	ok := &ChatToolRequest{Prompt: strings.Repeat("a", MaxPromptBytes)}
	assert.NoError(t, ok.Validate(), "exactly the maximum is allowed")

	tooLarge := &ChatToolRequest{Prompt: strings.Repeat("a", MaxPromptBytes+1)}
	assert.Error(t, tooLarge.Validate())

	// Multi-byte runes count by bytes.
	runes := &ChatToolRequest{Prompt: strings.Repeat("é", MaxPromptBytes/2+1)}
	assert.Error(t, runes.Validate())

	assert.NoError(t, (&ChatToolRequest{}).Validate(), "empty prompts are reported by the chat service")
}

func TestChatToolRequest_EnsureDefaults(t *testing.T) {
	req := &ChatToolRequest{}
	req.EnsureDefaults()
	_, err := uuid.Parse(req.RequestID)
	assert.NoError(t, err)

	existing := &ChatToolRequest{RequestID: "req-1"}
	existing.EnsureDefaults()
	assert.Equal(t, "req-1", existing.RequestID)
}

func TestChatToolRequest_DecodeIgnoresRequestID(t *testing.T) {
	var req ChatToolRequest
	require.NoError(t, json.Unmarshal([]byte(`{"prompt":"hi","RequestID":"x"}`), &req))

	assert.Equal(t, "hi", req.Prompt)
	assert.Empty(t, req.RequestID)
}

func TestChatToolRequest_ContextItems(t *testing.T) {
	tests := []struct {
		name    string
		context string
		want    []TaskContextItem
	}{
		{name: "absent", context: "", want: nil},
		{name: "object", context: `{"title":"a"}`, want: nil},
		{name: "string", context: `"tasks"`, want: nil},
		{name: "null", context: `null`, want: nil},
		{name: "broken array", context: `[{"title":`, want: nil},
		{
			name:    "loose scalars",
			context: `[{"title":"Pay rent","status":"completed","dueDate":null,"project":7}, 5, {"assignedTo":["x"],"title":true}]`,
			want: []TaskContextItem{
				{Title: "Pay rent", Status: "completed", Project: "7"},
				{},
				{Title: "true"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &ChatToolRequest{Context: json.RawMessage(tt.context)}
			assert.Equal(t, tt.want, req.ContextItems())
		})
	}
}

func TestChatToolRequest_ContextItemsCap(t *testing.T) {
	parts := make([]string, MaxContextItems+5)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"title":"t%d"}`, i)
	}
	req := &ChatToolRequest{Context: json.RawMessage("[" + strings.Join(parts, ",") + "]")}

	items := req.ContextItems()

	require.Len(t, items, MaxContextItems)
	assert.Equal(t, LooseString("t0"), items[0].Title)
	assert.Equal(t, LooseString(fmt.Sprintf("t%d", MaxContextItems-1)), items[MaxContextItems-1].Title)
}

// =============================================================================
// ToolResult Tests
// =============================================================================

func TestToolResult_MarshalJSON(t *testing.T) {
	success, err := json.Marshal(ToolResult{CallID: "c1", ToolName: "findTasks", Result: []string{"a"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tool_use_id":"c1","name":"findTasks","result":["a"]}`, string(success))

	nilResult, err := json.Marshal(ToolResult{CallID: "c2", ToolName: "updateTask"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tool_use_id":"c2","name":"updateTask","result":null}`, string(nilResult))

	failure, err := json.Marshal(ToolResult{CallID: "c3", ToolName: "createTask", Error: "title is required"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tool_use_id":"c3","name":"createTask","error":"title is required"}`, string(failure))
}

func TestToolResult_Payload(t *testing.T) {
	assert.Equal(t, `{"id":"T1"}`, ToolResult{Result: map[string]string{"id": "T1"}}.Payload())
	assert.Equal(t, `null`, ToolResult{}.Payload())
	assert.Equal(t, `{"error":"boom"}`, ToolResult{Error: "boom"}.Payload())
	assert.Equal(t, `{"error":"unencodable tool result"}`, ToolResult{Result: make(chan int)}.Payload())

	assert.True(t, ToolResult{Error: "boom"}.Failed())
	assert.False(t, ToolResult{}.Failed())
}

func TestChatToolResponse_EmptySlices(t *testing.T) {
	body, err := json.Marshal(ChatToolResponse{Reply: "(no reply)", ToolCalls: []ToolCall{}, ToolResults: []ToolResult{}})
	require.NoError(t, err)

	assert.JSONEq(t, `{"reply":"(no reply)","toolCalls":[],"toolResults":[]}`, string(body))
}

func TestContextItemFromTask(t *testing.T) {
	due := "2025-02-01"
	item := ContextItemFromTask(Task{Title: "Pay rent", Status: StatusDone, DueDate: &due})

	assert.Equal(t, TaskContextItem{Title: "Pay rent", Status: "done", DueDate: "2025-02-01"}, item)
}
