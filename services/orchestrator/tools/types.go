// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the task tools the chat assistant can call and the
// registry that dispatches them.
//
// Each tool has an enumerated kind, a strongly typed input struct, a schema
// built from the same parameter table the handler validates against, and an
// Execute method. Unknown tool names are rejected at the registry boundary.
//
// Thread Safety:
//
//	All types in this package are safe for concurrent use.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianTasks/services/llm"
)

// =============================================================================
// Tool Kind
// =============================================================================

// ToolKind enumerates the tools known to the registry.
type ToolKind int

const (
	// KindCreateTask creates a new task.
	KindCreateTask ToolKind = iota + 1

	// KindUpdateTask patches an existing task.
	KindUpdateTask

	// KindFindTasks searches tasks.
	KindFindTasks
)

// ErrUnknownTool is returned for tool names outside the enumeration.
var ErrUnknownTool = errors.New("Unknown tool")

var kindNames = map[ToolKind]string{
	KindCreateTask: "createTask",
	KindUpdateTask: "updateTask",
	KindFindTasks:  "findTasks",
}

// String returns the wire name of the tool.
func (k ToolKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ToolKind(%d)", int(k))
}

// ParseToolKind maps a wire name to its kind.
//
// # Outputs
//
//   - ToolKind: The matching kind.
//   - error: "Unknown tool: <name>" (wrapping ErrUnknownTool) otherwise.
func ParseToolKind(name string) (ToolKind, error) {
	for kind, kindName := range kindNames {
		if kindName == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownTool, name)
}

// =============================================================================
// Tool Interface
// =============================================================================

// Tool is implemented by every task tool.
type Tool interface {
	// Kind returns the tool's enumerated kind.
	Kind() ToolKind

	// Definition returns the model-facing description and input schema.
	Definition() llm.ToolDefinition

	// Execute decodes the raw input into the tool's typed input and runs it.
	//
	// Outputs:
	//   any - JSON-encodable result; nil is a valid "not found" result
	//   error - *ValidationError for bad input, or a store failure
	Execute(ctx context.Context, input json.RawMessage) (any, error)
}

// =============================================================================
// Errors
// =============================================================================

// ValidationError reports tool input that was rejected before any store
// access.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
