// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the task orchestrator.
//
// This file contains the Task record owned by the task store, the status
// normalization rule applied at every boundary that touches status, and the
// patch helper used by both the chat tools and the REST handlers.
package datatypes

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// Status
// =============================================================================

const (
	// StatusPending is the default status of a new task.
	StatusPending = "pending"

	// StatusDone marks a finished task.
	StatusDone = "done"

	// statusCompletedLegacy is the legacy spelling of StatusDone. It is
	// rewritten on every read and write and never stored.
	statusCompletedLegacy = "completed"
)

// NormalizeStatus rewrites the legacy "completed" status to "done".
//
// # Description
//
// Every other value is returned unchanged; an empty string stays empty so
// that callers can apply their own default.
//
// # Examples
//
//	NormalizeStatus("completed") // "done"
//	NormalizeStatus("pending")   // "pending"
func NormalizeStatus(status string) string {
	if status == statusCompletedLegacy {
		return StatusDone
	}
	return status
}

// =============================================================================
// Task
// =============================================================================

// Task is a single task record.
//
// # Description
//
// Task is the unit persisted by the task store. Optional text labels
// (DueDate, Project, AssignedTo) are pointers so that JSON null round-trips
// exactly; Labels is never nil once a task has passed through Normalize.
//
// # Fields
//
//   - ID: Opaque unique identifier assigned at creation. Immutable.
//   - Title: Required, non-empty.
//   - Description: Optional, defaults to "".
//   - Status: "pending" or "done".
//   - DueDate: Optional ISO date string or null.
//   - Project, AssignedTo: Optional free-text labels or null.
//   - Labels: Ordered tags, possibly empty.
//   - Plan: Optional plan written by the planner after insert.
//   - CreatedAt: Set once at creation (RFC 3339, UTC).
//   - UpdatedAt: Refreshed on every mutation (RFC 3339, UTC).
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	DueDate     *string  `json:"dueDate"`
	Project     *string  `json:"project"`
	AssignedTo  *string  `json:"assignedTo"`
	Labels      []string `json:"labels"`
	Plan        *Plan    `json:"plan,omitempty"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// Plan is the step-by-step plan generated for a task after insert.
type Plan struct {
	Summary string     `json:"summary,omitempty"`
	Steps   []PlanStep `json:"steps"`
}

// PlanStep is a single step of a Plan.
type PlanStep struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// Normalize returns a copy of the task with status normalized and
// Labels non-nil.
func (t Task) Normalize() Task {
	t.Status = NormalizeStatus(t.Status)
	if t.Labels == nil {
		t.Labels = []string{}
	}
	return t
}

// Timestamp formats a time the way task timestamps are stored.
func Timestamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339Nano)
}

// =============================================================================
// Patching
// =============================================================================

// ApplyPatch returns a copy of the task with the given fields overwritten
// and UpdatedAt set to updatedAt.
//
// # Description
//
// Fields are merged over the task's JSON form and decoded back, so a value
// with the wrong JSON type (for example a numeric title) is rejected rather
// than silently coerced. The status value, if present, is normalized. ID
// and CreatedAt are immutable and cannot be patched.
//
// # Inputs
//
//   - fields: JSON-compatible field values keyed by JSON field name.
//   - updatedAt: The new UpdatedAt timestamp.
//
// # Outputs
//
//   - Task: The patched task.
//   - error: Non-nil if a field value has the wrong type.
func (t Task) ApplyPatch(fields map[string]any, updatedAt string) (Task, error) {
	current, err := json.Marshal(t)
	if err != nil {
		return Task{}, fmt.Errorf("encode task: %w", err)
	}

	merged := map[string]any{}
	if err := json.Unmarshal(current, &merged); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	for key, value := range fields {
		if key == "id" || key == "createdAt" {
			continue
		}
		merged[key] = value
	}
	merged["updatedAt"] = updatedAt

	encoded, err := json.Marshal(merged)
	if err != nil {
		return Task{}, fmt.Errorf("encode patch: %w", err)
	}

	var patched Task
	if err := json.Unmarshal(encoded, &patched); err != nil {
		return Task{}, fmt.Errorf("invalid patch value: %w", err)
	}
	return patched.Normalize(), nil
}

// StringOrEmpty dereferences an optional string.
func StringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
