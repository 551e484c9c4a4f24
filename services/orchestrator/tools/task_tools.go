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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianTasks/services/llm"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/store"
	"github.com/google/uuid"
)

// findTasks limits.
const (
	MinFindLimit     = 1
	MaxFindLimit     = 100
	DefaultFindLimit = 20

	// findScanCap bounds the raw records examined by findTasks.
	findScanCap = 1000
)

// =============================================================================
// Inputs
// =============================================================================

// CreateTaskInput is the input of createTask.
//
// Labels stays raw because anything that is not an array of strings is
// replaced by an empty list instead of failing the call.
type CreateTaskInput struct {
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	Status      string          `json:"status"`
	DueDate     *string         `json:"dueDate"`
	Project     *string         `json:"project"`
	AssignedTo  *string         `json:"assignedTo"`
	Labels      json.RawMessage `json:"labels"`
}

// UpdateTaskInput is the input of updateTask.
type UpdateTaskInput struct {
	ID    string          `json:"id"`
	Patch json.RawMessage `json:"patch"`
}

// FindTasksInput is the input of findTasks. A nil Limit means the default.
type FindTasksInput struct {
	Query      string   `json:"query"`
	Status     string   `json:"status"`
	Project    string   `json:"project"`
	AssignedTo string   `json:"assignedTo"`
	DueFrom    string   `json:"dueFrom"`
	DueTo      string   `json:"dueTo"`
	Limit      *float64 `json:"limit"`
}

// decodeInput decodes a tool input object. An empty input is treated as {}.
func decodeInput(raw json.RawMessage, into any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if err := json.Unmarshal(trimmed, into); err != nil {
		return invalid("", fmt.Sprintf("invalid input: %v", err))
	}
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

// taskHandlers holds the behavior shared by the tools and the REST layer.
type taskHandlers struct {
	store store.TaskStore
	newID func() string
	now   func() time.Time
}

// createTask validates the input and inserts a new task.
func (h *taskHandlers) createTask(ctx context.Context, in CreateTaskInput) (datatypes.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return datatypes.Task{}, invalid("title", "title is required")
	}

	status := datatypes.NormalizeStatus(in.Status)
	if status == "" {
		status = datatypes.StatusPending
	}
	if err := checkStatus(status); err != nil {
		return datatypes.Task{}, err
	}

	var labels []string
	if err := json.Unmarshal(in.Labels, &labels); err != nil || labels == nil {
		labels = []string{}
	}

	now := datatypes.Timestamp(h.now())
	task := datatypes.Task{
		ID:          h.newID(),
		Title:       title,
		Description: datatypes.StringOrEmpty(in.Description),
		Status:      status,
		DueDate:     in.DueDate,
		Project:     in.Project,
		AssignedTo:  in.AssignedTo,
		Labels:      labels,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := h.store.Create(ctx, task)
	if err != nil {
		return datatypes.Task{}, fmt.Errorf("create task: %w", err)
	}
	return created, nil
}

// updateTask filters the patch to the allowed fields and applies it.
//
// A nil task with a nil error means the id does not exist.
func (h *taskHandlers) updateTask(ctx context.Context, in UpdateTaskInput) (*datatypes.Task, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, invalid("id", "id is required")
	}

	var patch map[string]json.RawMessage
	trimmed := bytes.TrimSpace(in.Patch)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &patch) != nil {
		return nil, invalid("patch", "patch object is required")
	}

	fields := make(map[string]any, len(patch))
	for name, raw := range patch {
		param, ok := patchableFields[name]
		if !ok {
			continue
		}
		value, err := decodeField(param, raw)
		if err != nil {
			return nil, err
		}
		fields[name] = value
	}
	if len(fields) == 0 {
		return nil, invalid("patch", "patch has no allowed fields")
	}

	updated, err := h.store.Patch(ctx, id, fields)
	if errors.Is(err, store.ErrInvalidPatch) {
		return nil, invalid("patch", err.Error())
	}
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return updated, nil
}

// decodeField type-checks one patch value against its parameter definition.
func decodeField(param ParamDef, raw json.RawMessage) (any, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if param.Name == "title" || param.Name == "status" {
			return nil, invalid(param.Name, param.Name+" cannot be null")
		}
		if param.Type == ParamTypeArray {
			return []string{}, nil
		}
		return nil, nil
	}

	switch param.Type {
	case ParamTypeArray:
		var values []string
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, invalid(param.Name, param.Name+" must be an array of strings")
		}
		return values, nil
	default:
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, invalid(param.Name, param.Name+" must be a string")
		}
		switch param.Name {
		case "status":
			value = datatypes.NormalizeStatus(value)
			if err := checkStatus(value); err != nil {
				return nil, err
			}
		case "title":
			value = strings.TrimSpace(value)
			if value == "" {
				return nil, invalid("title", "title cannot be empty")
			}
		}
		return value, nil
	}
}

func checkStatus(status string) error {
	for _, allowed := range statusEnum {
		if status == allowed {
			return nil
		}
	}
	return invalid("status", fmt.Sprintf("status must be one of %s", strings.Join(statusEnum, ", ")))
}

// findTasks scans, filters, sorts and clamps.
func (h *taskHandlers) findTasks(ctx context.Context, in FindTasksInput) ([]datatypes.Task, error) {
	items, err := h.store.Scan(ctx, findScanCap)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	return FilterTasks(items, in), nil
}

// FilterTasks applies the findTasks filters, ordering and limit to items.
//
// # Description
//
// Filters run in order: case-insensitive substring query over title,
// description, joined labels, project and assignee; exact status (both
// sides normalized), project and assignee; inclusive dueFrom/dueTo compared
// as strings, which excludes tasks without a due date. The result is
// stably sorted by due date with missing dates first and clamped to
// [1, 100] items (default 20). The input slice is not modified.
func FilterTasks(items []datatypes.Task, in FindTasksInput) []datatypes.Task {
	query := strings.ToLower(in.Query)
	status := datatypes.NormalizeStatus(in.Status)

	out := make([]datatypes.Task, 0, len(items))
	for _, t := range items {
		due := datatypes.StringOrEmpty(t.DueDate)
		switch {
		case query != "" && !matchesQuery(t, query):
		case status != "" && datatypes.NormalizeStatus(t.Status) != status:
		case in.Project != "" && datatypes.StringOrEmpty(t.Project) != in.Project:
		case in.AssignedTo != "" && datatypes.StringOrEmpty(t.AssignedTo) != in.AssignedTo:
		case in.DueFrom != "" && (due == "" || due < in.DueFrom):
		case in.DueTo != "" && (due == "" || due > in.DueTo):
		default:
			out = append(out, t.Normalize())
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return datatypes.StringOrEmpty(out[i].DueDate) < datatypes.StringOrEmpty(out[j].DueDate)
	})

	limit := clampLimit(in.Limit)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matchesQuery(t datatypes.Task, query string) bool {
	fields := []string{
		t.Title,
		t.Description,
		strings.Join(t.Labels, " "),
		datatypes.StringOrEmpty(t.Project),
		datatypes.StringOrEmpty(t.AssignedTo),
	}
	for _, field := range fields {
		if field != "" && strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func clampLimit(limit *float64) int {
	if limit == nil {
		return DefaultFindLimit
	}
	// Compare as floats so huge values and NaN never reach the int conversion.
	if *limit >= MaxFindLimit {
		return MaxFindLimit
	}
	if !(*limit >= MinFindLimit) {
		return MinFindLimit
	}
	return int(*limit)
}

// =============================================================================
// Tools
// =============================================================================

type createTaskTool struct{ h *taskHandlers }

func (t *createTaskTool) Kind() ToolKind { return KindCreateTask }

func (t *createTaskTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        KindCreateTask.String(),
		Description: "Create a new task",
		InputSchema: objectSchema(createTaskParams()),
	}
}

func (t *createTaskTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var in CreateTaskInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	return t.h.createTask(ctx, in)
}

type updateTaskTool struct{ h *taskHandlers }

func (t *updateTaskTool) Kind() ToolKind { return KindUpdateTask }

func (t *updateTaskTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        KindUpdateTask.String(),
		Description: "Update fields of an existing task",
		InputSchema: objectSchema(updateTaskParams()),
	}
}

func (t *updateTaskTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var in UpdateTaskInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	updated, err := t.h.updateTask(ctx, in)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, nil
	}
	return *updated, nil
}

type findTasksTool struct{ h *taskHandlers }

func (t *findTasksTool) Kind() ToolKind { return KindFindTasks }

func (t *findTasksTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        KindFindTasks.String(),
		Description: "Search tasks",
		InputSchema: objectSchema(findTasksParams()),
	}
}

func (t *findTasksTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var in FindTasksInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	return t.h.findTasks(ctx, in)
}

func defaultID() string {
	return uuid.NewString()
}
