// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AleutianAI/AleutianTasks/services/llm"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.tasks.tools")

// Option configures a Registry.
type Option func(*taskHandlers)

// WithIDGenerator overrides task id generation (uuid v4 by default).
func WithIDGenerator(newID func() string) Option {
	return func(h *taskHandlers) {
		h.newID = newID
	}
}

// WithClock overrides the clock used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *taskHandlers) {
		h.now = now
	}
}

// Registry dispatches tool calls to the task tools.
//
// # Description
//
// The registry is built once and is read-only afterwards. Tools are kept in
// a fixed order so the definitions sent to the model are stable.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	handlers *taskHandlers
	ordered  []Tool
	byKind   map[ToolKind]Tool
}

// NewRegistry builds the registry over the given task store.
func NewRegistry(taskStore store.TaskStore, opts ...Option) *Registry {
	h := &taskHandlers{
		store: taskStore,
		newID: defaultID,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	r := &Registry{
		handlers: h,
		ordered: []Tool{
			&createTaskTool{h: h},
			&updateTaskTool{h: h},
			&findTasksTool{h: h},
		},
		byKind: make(map[ToolKind]Tool),
	}
	for _, tool := range r.ordered {
		r.byKind[tool.Kind()] = tool
	}
	return r
}

// Definitions returns the model-facing tool definitions in fixed order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.ordered))
	for _, tool := range r.ordered {
		defs = append(defs, tool.Definition())
	}
	return defs
}

// Dispatch runs one tool call.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - call: The tool call requested by the model.
//
// # Outputs
//
//   - any: The tool's result. nil is a valid result (update of unknown id).
//   - error: ErrUnknownTool, *ValidationError, or a store failure.
func (r *Registry) Dispatch(ctx context.Context, call datatypes.ToolCall) (any, error) {
	ctx, span := tracer.Start(ctx, "Registry.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", call.ToolName),
		attribute.String("tool.call_id", call.CallID),
	)

	kind, err := ParseToolKind(call.ToolName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown tool")
		return nil, err
	}

	result, err := r.byKind[kind].Execute(ctx, call.Input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool failed")
		return nil, err
	}
	return result, nil
}

// CreateTask applies the createTask rules outside of a conversation.
func (r *Registry) CreateTask(ctx context.Context, in CreateTaskInput) (datatypes.Task, error) {
	return r.handlers.createTask(ctx, in)
}

// UpdateTask applies the updateTask rules outside of a conversation.
// A nil task with a nil error means the id does not exist.
func (r *Registry) UpdateTask(ctx context.Context, id string, patch json.RawMessage) (*datatypes.Task, error) {
	return r.handlers.updateTask(ctx, UpdateTaskInput{ID: id, Patch: patch})
}

// FindTasks applies the findTasks rules outside of a conversation.
func (r *Registry) FindTasks(ctx context.Context, in FindTasksInput) ([]datatypes.Task, error) {
	return r.handlers.findTasks(ctx, in)
}
