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
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxPromptBytes is the maximum size of a chat prompt.
	MaxPromptBytes = 32 * 1024 // 32KB

	// MaxContextItems is the number of caller-supplied task records kept
	// for grounding. Records past this index are ignored.
	MaxContextItems = 50
)

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes checks byte length, not rune count.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxPromptBytes
}

// =============================================================================
// Chat Request / Response
// =============================================================================

// ChatToolRequest is the body of POST /chat.
//
// # Description
//
// Each request is a fresh, stateless conversation. Context carries the
// caller's view of current tasks and is used only for grounding; it is kept
// raw so that a non-array value degrades to "no context" instead of failing
// the request.
//
// # Fields
//
//   - RequestID: Generated server-side for log and trace correlation.
//   - Prompt: Required. Trimmed before use; at most 32KB.
//   - Context: Optional array of task-like records.
type ChatToolRequest struct {
	RequestID string          `json:"-"`
	Prompt    string          `json:"prompt" validate:"maxbytes"`
	Context   json.RawMessage `json:"context,omitempty"`
}

// Validate checks field constraints. An empty prompt is reported by the
// chat service, which trims it first.
func (r *ChatToolRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults fills in server-generated fields.
func (r *ChatToolRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
}

// ContextItems decodes the Context field leniently.
//
// # Description
//
// Anything other than a JSON array yields no items. Elements that are not
// objects decode to an empty item, which the compactor renders with
// placeholders. At most MaxContextItems items are returned.
func (r *ChatToolRequest) ContextItems() []TaskContextItem {
	trimmed := bytes.TrimSpace(r.Context)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil
	}
	if len(raw) > MaxContextItems {
		raw = raw[:MaxContextItems]
	}

	items := make([]TaskContextItem, 0, len(raw))
	for _, element := range raw {
		var item TaskContextItem
		if err := json.Unmarshal(element, &item); err != nil {
			item = TaskContextItem{}
		}
		items = append(items, item)
	}
	return items
}

// ChatToolResponse is the 200 body of POST /chat.
//
// ToolCalls and ToolResults are always present (possibly empty) so callers
// can inspect what the assistant did.
type ChatToolResponse struct {
	Reply       string       `json:"reply"`
	ToolCalls   []ToolCall   `json:"toolCalls"`
	ToolResults []ToolResult `json:"toolResults"`
}

// =============================================================================
// Tool Calls
// =============================================================================

// ToolCall is a tool invocation requested by the model.
//
// It mirrors the provider's tool_use block and is consumed exactly once by
// the tool dispatch step.
type ToolCall struct {
	Type     string          `json:"type"`
	CallID   string          `json:"id"`
	ToolName string          `json:"name"`
	Input    json.RawMessage `json:"input"`
}

// ToolResult is the outcome of one ToolCall.
//
// # Description
//
// Exactly one of Result or Error is meaningful. A successful call may carry
// a nil Result (for example an update of an unknown id), which is encoded
// as JSON null rather than dropped.
type ToolResult struct {
	CallID   string
	ToolName string
	Result   any
	Error    string
}

// Failed reports whether the tool call failed.
func (r ToolResult) Failed() bool {
	return r.Error != ""
}

// MarshalJSON encodes {tool_use_id, name, result} or {tool_use_id, name, error}.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			CallID   string `json:"tool_use_id"`
			ToolName string `json:"name"`
			Error    string `json:"error"`
		}{r.CallID, r.ToolName, r.Error})
	}
	return json.Marshal(struct {
		CallID   string `json:"tool_use_id"`
		ToolName string `json:"name"`
		Result   any    `json:"result"`
	}{r.CallID, r.ToolName, r.Result})
}

// Payload returns the JSON sent back to the model for this result:
// the result itself on success, {"error": message} on failure.
func (r ToolResult) Payload() string {
	var (
		encoded []byte
		err     error
	)
	if r.Failed() {
		encoded, err = json.Marshal(map[string]string{"error": r.Error})
	} else {
		encoded, err = json.Marshal(r.Result)
	}
	if err != nil {
		encoded, _ = json.Marshal(map[string]string{"error": "unencodable tool result"})
	}
	return string(encoded)
}

// =============================================================================
// Grounding Context
// =============================================================================

// TaskContextItem is a caller-supplied, task-like record used for grounding.
//
// Every field is optional and tolerant of the JSON scalar type it arrives as.
type TaskContextItem struct {
	Title      LooseString `json:"title"`
	Status     LooseString `json:"status"`
	AssignedTo LooseString `json:"assignedTo"`
	DueDate    LooseString `json:"dueDate"`
	Project    LooseString `json:"project"`
}

// ContextItemFromTask converts a stored task into a grounding item.
func ContextItemFromTask(t Task) TaskContextItem {
	return TaskContextItem{
		Title:      LooseString(t.Title),
		Status:     LooseString(t.Status),
		AssignedTo: LooseString(StringOrEmpty(t.AssignedTo)),
		DueDate:    LooseString(StringOrEmpty(t.DueDate)),
		Project:    LooseString(StringOrEmpty(t.Project)),
	}
}

// LooseString decodes any JSON scalar into its text form.
// null, arrays and objects decode to "".
type LooseString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *LooseString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = LooseString(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*s = LooseString(num.String())
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*s = LooseString(strconv.FormatBool(b))
		return nil
	}

	*s = ""
	return nil
}
