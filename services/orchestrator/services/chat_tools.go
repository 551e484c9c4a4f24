// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic services for the orchestrator.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers. Services are responsible for:
//   - Grounding the model with the caller's task context
//   - Running the tool-use conversation against the model gateway
//   - Dispatching tool calls and reporting their results
//
// Services are designed to be:
//   - Testable: Dependencies are injected via constructors
//   - Stateless: Every request is a fresh conversation
//   - Traceable: All methods accept context for distributed tracing
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianTasks/services/llm"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// chatToolsTracer is the OpenTelemetry tracer for ChatToolService operations.
var chatToolsTracer = otel.Tracer("aleutian.orchestrator.services.chat_tools")

const (
	// SystemPrompt is the persona and tool-use instruction for every turn.
	SystemPrompt = "You are TaskBot, a concise assistant for a task manager. " +
		"Use tools to CREATE/UPDATE/FIND tasks when asked. Ask briefly for missing info."

	// ChatTemperature keeps replies close to deterministic.
	ChatTemperature float32 = 0.2

	// ChatMaxTokens is the output budget of each model call.
	ChatMaxTokens = 512

	// NoReplyText is returned when the model answers without text or tools.
	NoReplyText = "(no reply)"

	// DoneText is returned when the model has nothing to add after tools ran.
	DoneText = "Done."

	// maxConcurrentTools bounds parallel tool dispatch within one turn.
	maxConcurrentTools = 8
)

// Conversation states, recorded as span events.
const (
	StateReceived        = "RECEIVED"
	StateGrounding       = "GROUNDING"
	StateFirstModelCall  = "FIRST_MODEL_CALL"
	StateNoTools         = "NO_TOOLS"
	StateToolsRequested  = "TOOLS_REQUESTED"
	StateDispatching     = "DISPATCHING"
	StateSecondModelCall = "SECOND_MODEL_CALL"
	StateDone            = "DONE"
)

var (
	// ErrPromptRequired is returned when the trimmed prompt is empty.
	ErrPromptRequired = errors.New("prompt required")

	// ErrInvalidRequest is returned when the request fails validation.
	ErrInvalidRequest = errors.New("invalid chat request")
)

// =============================================================================
// Interfaces
// =============================================================================

// ToolDispatcher runs tool calls and describes the available tools.
//
// Implemented by *tools.Registry.
type ToolDispatcher interface {
	// Definitions returns the tool schemas sent to the model.
	Definitions() []llm.ToolDefinition

	// Dispatch runs one call. A nil result with a nil error is valid.
	Dispatch(ctx context.Context, call datatypes.ToolCall) (any, error)
}

// =============================================================================
// Service
// =============================================================================

// ChatToolService runs one stateless tool-using chat turn.
//
// # Description
//
// Process moves through RECEIVED, GROUNDING, FIRST_MODEL_CALL and then
// either NO_TOOLS or TOOLS_REQUESTED, DISPATCHING, SECOND_MODEL_CALL before
// DONE. There are no retries and nothing is kept between requests.
//
// # Thread Safety
//
// Safe for concurrent use. All fields are read-only after construction.
type ChatToolService struct {
	llmClient llm.LLMClient
	tools     ToolDispatcher
	metrics   *observability.ChatMetrics
	tracer    trace.Tracer
	compact   CompactOptions
}

// ChatToolOption configures a ChatToolService.
type ChatToolOption func(*ChatToolService)

// WithMetrics records chat, tool and model metrics.
func WithMetrics(m *observability.ChatMetrics) ChatToolOption {
	return func(s *ChatToolService) {
		s.metrics = m
	}
}

// WithTracer overrides the tracer (tests use an in-memory provider).
func WithTracer(tracer trace.Tracer) ChatToolOption {
	return func(s *ChatToolService) {
		s.tracer = tracer
	}
}

// WithCompactOptions overrides the grounding bounds.
func WithCompactOptions(opts CompactOptions) ChatToolOption {
	return func(s *ChatToolService) {
		s.compact = opts
	}
}

// NewChatToolService creates the chat service.
//
// # Inputs
//
//   - llmClient: The model gateway. Shared, constructed once at startup.
//   - tools: The tool registry.
//   - opts: Optional metrics, tracer and grounding bounds.
func NewChatToolService(llmClient llm.LLMClient, tools ToolDispatcher, opts ...ChatToolOption) *ChatToolService {
	s := &ChatToolService{
		llmClient: llmClient,
		tools:     tools,
		tracer:    chatToolsTracer,
		compact:   DefaultCompactOptions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process runs one chat turn.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - req: The request. Prompt is trimmed before use.
//
// # Outputs
//
//   - *datatypes.ChatToolResponse: Reply plus every tool call and result.
//   - error: ErrPromptRequired / ErrInvalidRequest for bad input, otherwise
//     a model gateway failure. Tool failures are never returned here.
func (s *ChatToolService) Process(ctx context.Context, req *datatypes.ChatToolRequest) (*datatypes.ChatToolResponse, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ChatToolService.Process")
	defer span.End()
	span.AddEvent(StateReceived)

	resp, outcome, err := s.process(ctx, span, req)
	s.metrics.RecordChat(outcome, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		return nil, err
	}
	span.AddEvent(StateDone)
	return resp, nil
}

func (s *ChatToolService) process(ctx context.Context, span trace.Span, req *datatypes.ChatToolRequest) (*datatypes.ChatToolResponse, observability.ChatOutcome, error) {
	req.EnsureDefaults()
	span.SetAttributes(attribute.String("request.id", req.RequestID))

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, observability.OutcomeError, ErrPromptRequired
	}
	if err := req.Validate(); err != nil {
		return nil, observability.OutcomeError, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	// Grounding
	span.AddEvent(StateGrounding)
	items := req.ContextItems()
	grounding := CompactTaskContext(items, s.compact)
	if grounding == "" {
		grounding = "(none)"
	}
	userText := fmt.Sprintf("Tasks Context:\n%s\n\nUser request: %s", grounding, prompt)
	span.SetAttributes(attribute.Int("chat.context_items", len(items)))

	userTurn := llm.Message{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock(userText)}}
	toolDefs := s.tools.Definitions()

	// First model call
	span.AddEvent(StateFirstModelCall)
	first, err := s.callModel(ctx, []llm.Message{userTurn}, toolDefs)
	if err != nil {
		return nil, observability.OutcomeError, fmt.Errorf("first model call: %w", err)
	}

	uses := first.ToolUses()
	if len(uses) == 0 {
		span.AddEvent(StateNoTools)
		reply := first.Text()
		if reply == "" {
			reply = NoReplyText
		}
		return &datatypes.ChatToolResponse{
			Reply:       reply,
			ToolCalls:   []datatypes.ToolCall{},
			ToolResults: []datatypes.ToolResult{},
		}, observability.OutcomeNoTools, nil
	}

	span.AddEvent(StateToolsRequested, trace.WithAttributes(attribute.Int("chat.tool_calls", len(uses))))
	calls := make([]datatypes.ToolCall, len(uses))
	for i, use := range uses {
		calls[i] = datatypes.ToolCall{Type: llm.BlockToolUse, CallID: use.ID, ToolName: use.Name, Input: use.Input}
	}

	span.AddEvent(StateDispatching)
	results := s.dispatchAll(ctx, req.RequestID, calls)

	resultBlocks := make([]llm.ContentBlock, len(results))
	for i, result := range results {
		resultBlocks[i] = llm.ToolResultBlock(result.CallID, result.Payload(), result.Failed())
	}

	// Second model call
	span.AddEvent(StateSecondModelCall)
	second, err := s.callModel(ctx, []llm.Message{
		userTurn,
		first.AssistantTurn(),
		{Role: llm.RoleUser, Content: resultBlocks},
	}, toolDefs)
	if err != nil {
		return nil, observability.OutcomeError, fmt.Errorf("second model call: %w", err)
	}

	reply := second.Text()
	if reply == "" {
		reply = DoneText
	}
	return &datatypes.ChatToolResponse{
		Reply:       reply,
		ToolCalls:   calls,
		ToolResults: results,
	}, observability.OutcomeTools, nil
}

// dispatchAll runs every call concurrently and returns results in call order.
//
// A failing call yields an error result; siblings are unaffected.
func (s *ChatToolService) dispatchAll(ctx context.Context, requestID string, calls []datatypes.ToolCall) []datatypes.ToolResult {
	results := make([]datatypes.ToolResult, len(calls))

	var g errgroup.Group
	g.SetLimit(maxConcurrentTools)
	for i, call := range calls {
		g.Go(func() error {
			result := datatypes.ToolResult{CallID: call.CallID, ToolName: call.ToolName}
			value, err := s.tools.Dispatch(ctx, call)
			if err != nil {
				slog.Warn("TOOL_ERROR",
					"request_id", requestID,
					"tool", call.ToolName,
					"call_id", call.CallID,
					"error", err,
				)
				result.Error = err.Error()
			} else {
				result.Result = value
			}
			s.metrics.RecordToolCall(call.ToolName, err == nil)
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *ChatToolService) callModel(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDefinition) (*llm.ChatResponse, error) {
	resp, err := s.llmClient.Complete(ctx, &llm.ChatRequest{
		System:      SystemPrompt,
		Messages:    messages,
		Tools:       toolDefs,
		MaxTokens:   ChatMaxTokens,
		Temperature: ChatTemperature,
	})
	if err != nil {
		s.metrics.RecordModelCall(s.llmClient.Model(), false, false, 0, 0)
		return nil, err
	}
	if resp == nil {
		resp = &llm.ChatResponse{}
	}
	s.metrics.RecordModelCall(s.llmClient.Model(), true, resp.Degraded, resp.InputTokens, resp.OutputTokens)
	return resp, nil
}
