// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llmtest provides a scripted llm.LLMClient for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/AleutianAI/AleutianTasks/services/llm"
)

// MockClient is a scripted llm.LLMClient for tests.
//
// Responses are returned in queue order; once the queue is empty the
// default response (a single "Mock response" text block) is returned.
//
// Thread Safety:
//
//	MockClient is safe for concurrent use.
type MockClient struct {
	mu sync.Mutex

	model           string
	responses       []*llm.ChatResponse
	defaultResponse *llm.ChatResponse
	calls           []*llm.ChatRequest
	responseFunc    func(*llm.ChatRequest) (*llm.ChatResponse, error)
	errorToReturn   error
	errorOnCall     map[int]error
}

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{
		model: "mock-model",
		defaultResponse: &llm.ChatResponse{
			Content:    []llm.ContentBlock{llm.TextBlock("Mock response")},
			StopReason: "end_turn",
		},
		errorOnCall: make(map[int]error),
	}
}

// WithModel sets the model name.
func (c *MockClient) WithModel(model string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
	return c
}

// WithError makes every call fail with err.
func (c *MockClient) WithError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorToReturn = err
	return c
}

// WithErrorOnCall makes only the n-th call (1-based) fail with err.
func (c *MockClient) WithErrorOnCall(n int, err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorOnCall[n] = err
	return c
}

// WithResponseFunc sets a dynamic response function.
func (c *MockClient) WithResponseFunc(f func(*llm.ChatRequest) (*llm.ChatResponse, error)) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseFunc = f
	return c
}

// QueueResponse adds a response to the queue.
func (c *MockClient) QueueResponse(response *llm.ChatResponse) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, response)
	return c
}

// QueueText queues a response made of one text block.
func (c *MockClient) QueueText(text string) *MockClient {
	return c.QueueResponse(&llm.ChatResponse{
		Content:    []llm.ContentBlock{llm.TextBlock(text)},
		StopReason: "end_turn",
	})
}

// QueueToolCall queues a response that invokes one tool.
func (c *MockClient) QueueToolCall(callID, toolName string, arguments map[string]any) *MockClient {
	return c.QueueResponse(&llm.ChatResponse{
		Content:    []llm.ContentBlock{ToolUse(callID, toolName, arguments)},
		StopReason: "tool_use",
	})
}

// ToolUse builds a tool_use block from a Go value.
func ToolUse(callID, toolName string, arguments map[string]any) llm.ContentBlock {
	argsJSON, err := json.Marshal(arguments)
	if err != nil {
		argsJSON = []byte("{}")
	}
	return llm.ToolUseBlock(callID, toolName, argsJSON)
}

// Complete implements llm.LLMClient.
func (c *MockClient) Complete(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, request)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.errorToReturn != nil {
		return nil, c.errorToReturn
	}
	if err, ok := c.errorOnCall[len(c.calls)]; ok {
		return nil, err
	}
	if c.responseFunc != nil {
		return c.responseFunc(request)
	}
	if len(c.responses) > 0 {
		response := c.responses[0]
		c.responses = c.responses[1:]
		return response, nil
	}

	response := *c.defaultResponse
	return &response, nil
}

// Name implements llm.LLMClient.
func (c *MockClient) Name() string { return "mock" }

// Model implements llm.LLMClient.
func (c *MockClient) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Calls returns all recorded requests.
func (c *MockClient) Calls() []*llm.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	calls := make([]*llm.ChatRequest, len(c.calls))
	copy(calls, c.calls)
	return calls
}

// CallCount returns the number of calls made.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Verify ensures all queued responses were consumed.
func (c *MockClient) Verify() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.responses) > 0 {
		return fmt.Errorf("mock: %d queued responses not consumed", len(c.responses))
	}
	return nil
}

var _ llm.LLMClient = (*MockClient)(nil)
