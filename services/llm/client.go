// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm is the model gateway: a provider-neutral request and response
// model plus the hosted backends that speak it.
//
// Clients are constructed once at startup, are read-only afterwards, and are
// shared by every request.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by NewClient.
const (
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
)

// Content block types.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrModelNotConfigured is returned at construction when no target
	// model id is set.
	ErrModelNotConfigured = errors.New("model id is not configured")

	// ErrAPIKeyMissing is returned at construction when the backend needs
	// an API key and none was supplied.
	ErrAPIKeyMissing = errors.New("api key is not configured")

	// ErrUnknownBackend is returned by NewClient for unsupported backends.
	ErrUnknownBackend = errors.New("unknown model backend")
)

// =============================================================================
// Interface
// =============================================================================

// LLMClient is the model gateway contract.
type LLMClient interface {
	// Complete sends one turn to the model.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   request - System prompt, ordered messages, tools and limits
	//
	// Outputs:
	//   *ChatResponse - Ordered content blocks, never nil on success
	//   error - Transport, provider status or provider error envelope only.
	//           An unparseable body is not an error (see DecodeResponse).
	Complete(ctx context.Context, request *ChatRequest) (*ChatResponse, error)

	// Name returns the backend name (e.g. "anthropic").
	Name() string

	// Model returns the configured model id.
	Model() string
}

// =============================================================================
// Request / Response
// =============================================================================

// ChatRequest is one provider-neutral model call.
type ChatRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float32
}

// Message is one conversation turn made of content blocks.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a text, tool_use or tool_result block.
//
// Its JSON form is the Messages API block format, so an assistant turn can be
// echoed back to the provider verbatim.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// Raw is the provider JSON of a block type this package does not model,
	// such as "thinking". It is sent back unchanged.
	Raw json.RawMessage `json:"-"`
}

// MarshalJSON writes Raw as-is when set. Text blocks always carry "text".
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	if len(b.Raw) > 0 {
		return b.Raw, nil
	}
	if b.Type == BlockText {
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: b.Type, Text: b.Text})
	}
	type plain ContentBlock
	return json.Marshal(plain(b))
}

// TextBlock builds a text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool_use block. A nil input is sent as {}.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool_result block.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// ToolDefinition describes a tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ChatResponse is the normalized model reply.
type ChatResponse struct {
	// Content holds the reply blocks in provider order.
	Content []ContentBlock

	// StopReason is the provider's stop reason, if any.
	StopReason string

	// Degraded is set when the body could not be parsed and was wrapped
	// as a single text block.
	Degraded bool

	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// Text returns the trimmed text blocks joined by newlines.
func (r *ChatResponse) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, block := range r.Content {
		if block.Type != BlockText {
			continue
		}
		if text := strings.TrimSpace(block.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// AssistantTurn returns the reply as an assistant message for the next call.
//
// Blocks are kept in provider order, including ones this package does not
// model. Text blocks with no visible text are dropped; the Messages API
// rejects them.
func (r *ChatResponse) AssistantTurn() Message {
	turn := Message{Role: RoleAssistant}
	if r == nil {
		return turn
	}
	turn.Content = make([]ContentBlock, 0, len(r.Content))
	for _, block := range r.Content {
		if block.Type == BlockText && len(block.Raw) == 0 && strings.TrimSpace(block.Text) == "" {
			continue
		}
		turn.Content = append(turn.Content, block)
	}
	return turn
}

// ToolUses returns the tool_use blocks in provider order.
func (r *ChatResponse) ToolUses() []ContentBlock {
	if r == nil {
		return nil
	}
	var uses []ContentBlock
	for _, block := range r.Content {
		if block.Type == BlockToolUse {
			uses = append(uses, block)
		}
	}
	return uses
}

// =============================================================================
// Errors
// =============================================================================

// ProviderError reports a non-2xx status or an error envelope from the
// provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

// Error implements error.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error: %s - %s", e.Provider, e.Type, e.Message)
}

// =============================================================================
// Construction
// =============================================================================

// Config selects and configures a backend.
type Config struct {
	// Backend is "anthropic" or "openai".
	Backend string

	// Model is the target model id. Required.
	Model string

	// Region is recorded for observability; hosted endpoints are global.
	Region string

	// BaseURL overrides the provider endpoint (proxies, tests).
	BaseURL string

	// APIKey authenticates against the provider. Required.
	APIKey string

	// Timeout bounds each HTTP round trip. Defaults to 60s.
	Timeout time.Duration
}

// NewClient builds the client for cfg.Backend.
func NewClient(cfg Config) (LLMClient, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendAnthropic:
		return NewAnthropicClient(cfg)
	case BackendOpenAI:
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.Model) == "" {
		return ErrModelNotConfigured
	}
	if cfg.APIKey == "" {
		return ErrAPIKeyMissing
	}
	return nil
}

func (cfg Config) timeout() time.Duration {
	if cfg.Timeout <= 0 {
		return 60 * time.Second
	}
	return cfg.Timeout
}
