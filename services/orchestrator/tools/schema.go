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
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
)

// ParamType is the JSON schema type of a tool parameter.
type ParamType string

const (
	ParamTypeString  ParamType = "string"
	ParamTypeInt     ParamType = "integer"
	ParamTypeArray   ParamType = "array"
	ParamTypeObject  ParamType = "object"
	ParamTypeUnknown ParamType = ""
)

// ParamDef defines a single tool parameter.
type ParamDef struct {
	Name     string
	Type     ParamType
	Enum     []string
	Items    ParamType
	Minimum  *int
	Maximum  *int
	Required bool

	// Properties describes nested fields of an object parameter.
	Properties []ParamDef
}

// schema renders the parameter as a JSON schema fragment.
func (p ParamDef) schema() map[string]any {
	out := map[string]any{"type": string(p.Type)}
	if len(p.Enum) > 0 {
		enum := make([]any, len(p.Enum))
		for i, v := range p.Enum {
			enum[i] = v
		}
		out["enum"] = enum
	}
	if p.Items != ParamTypeUnknown {
		out["items"] = map[string]any{"type": string(p.Items)}
	}
	if p.Minimum != nil {
		out["minimum"] = *p.Minimum
	}
	if p.Maximum != nil {
		out["maximum"] = *p.Maximum
	}
	if len(p.Properties) > 0 {
		out["properties"] = properties(p.Properties)
	}
	return out
}

func properties(params []ParamDef) map[string]any {
	props := make(map[string]any, len(params))
	for _, p := range params {
		props[p.Name] = p.schema()
	}
	return props
}

// objectSchema builds a top-level input_schema from a parameter table.
func objectSchema(params []ParamDef) map[string]any {
	out := map[string]any{
		"type":       string(ParamTypeObject),
		"properties": properties(params),
	}
	var required []any
	for _, p := range params {
		if p.Required {
			required = append(required, p.Name)
		}
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func intPtr(v int) *int { return &v }

// =============================================================================
// Parameter Tables
// =============================================================================

// statusEnum is the set of accepted status values.
var statusEnum = []string{datatypes.StatusPending, datatypes.StatusDone}

// taskFieldParams are the writable task fields. createTask accepts all of
// them and updateTask accepts exactly these inside "patch".
var taskFieldParams = []ParamDef{
	{Name: "title", Type: ParamTypeString},
	{Name: "description", Type: ParamTypeString},
	{Name: "status", Type: ParamTypeString, Enum: statusEnum},
	{Name: "dueDate", Type: ParamTypeString},
	{Name: "project", Type: ParamTypeString},
	{Name: "assignedTo", Type: ParamTypeString},
	{Name: "labels", Type: ParamTypeArray, Items: ParamTypeString},
}

// patchableFields is the allowed patch set, derived from taskFieldParams.
var patchableFields = func() map[string]ParamDef {
	fields := make(map[string]ParamDef, len(taskFieldParams))
	for _, p := range taskFieldParams {
		fields[p.Name] = p
	}
	return fields
}()

func createTaskParams() []ParamDef {
	params := make([]ParamDef, len(taskFieldParams))
	copy(params, taskFieldParams)
	params[0].Required = true
	return params
}

func updateTaskParams() []ParamDef {
	return []ParamDef{
		{Name: "id", Type: ParamTypeString, Required: true},
		{Name: "patch", Type: ParamTypeObject, Required: true, Properties: taskFieldParams},
	}
}

func findTasksParams() []ParamDef {
	return []ParamDef{
		{Name: "query", Type: ParamTypeString},
		{Name: "status", Type: ParamTypeString, Enum: statusEnum},
		{Name: "project", Type: ParamTypeString},
		{Name: "assignedTo", Type: ParamTypeString},
		{Name: "dueFrom", Type: ParamTypeString},
		{Name: "dueTo", Type: ParamTypeString},
		{Name: "limit", Type: ParamTypeInt, Minimum: intPtr(MinFindLimit), Maximum: intPtr(MaxFindLimit)},
	}
}
