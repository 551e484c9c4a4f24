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
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OpenAIClient speaks the chat completions API of OpenAI and compatible
// servers. Tool calls and tool results are mapped onto the block model.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient validates cfg and builds the client.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.timeout()}

	slog.Info("Initializing OpenAI client", "model", cfg.Model)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Name implements LLMClient.
func (o *OpenAIClient) Name() string { return BackendOpenAI }

// Model implements LLMClient.
func (o *OpenAIClient) Model() string { return o.model }

// Complete implements LLMClient.
func (o *OpenAIClient) Complete(ctx context.Context, request *ChatRequest) (*ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.messages", len(request.Messages)),
	)

	req := openai.ChatCompletionRequest{
		Model:               o.model,
		Messages:            toOpenAIMessages(request.System, request.Messages),
		Tools:               toOpenAITools(request.Tools),
		Temperature:         request.Temperature,
		MaxCompletionTokens: request.MaxTokens,
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "openai call failed")
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &ProviderError{
				Provider:   BackendOpenAI,
				StatusCode: apiErr.HTTPStatusCode,
				Type:       apiErr.Type,
				Message:    apiErr.Message,
			}
		}
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	out := &ChatResponse{
		Duration:     time.Since(start),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return out, nil
	}

	choice := resp.Choices[0]
	out.StopReason = string(choice.FinishReason)
	if choice.Message.Content != "" {
		out.Content = append(out.Content, TextBlock(choice.Message.Content))
	}
	for _, call := range choice.Message.ToolCalls {
		out.Content = append(out.Content, ToolUseBlock(call.ID, call.Function.Name, argumentsJSON(call.Function.Arguments)))
	}
	return out, nil
}

// toOpenAIMessages flattens block messages into chat completion messages.
//
// A user turn made of tool_result blocks becomes one "tool" message per
// block; an assistant turn carries its tool_use blocks as ToolCalls.
func toOpenAIMessages(system string, messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		var (
			texts []string
			calls []openai.ToolCall
		)
		for _, block := range msg.Content {
			switch block.Type {
			case BlockText:
				texts = append(texts, block.Text)
			case BlockToolUse:
				calls = append(calls, openai.ToolCall{
					ID:   block.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      block.Name,
						Arguments: string(block.Input),
					},
				})
			case BlockToolResult:
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: block.ToolUseID,
					Content:    block.Content,
				})
			}
		}

		if len(texts) == 0 && len(calls) == 0 {
			continue
		}
		role := openai.ChatMessageRoleUser
		if msg.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:      role,
			Content:   strings.Join(texts, "\n"),
			ToolCalls: calls,
		})
	}
	return out
}

func toOpenAITools(defs []ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		})
	}
	return tools
}

// argumentsJSON keeps valid argument JSON and wraps anything else as {}.
func argumentsJSON(arguments string) json.RawMessage {
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	return json.RawMessage("{}")
}

var _ LLMClient = (*OpenAIClient)(nil)
