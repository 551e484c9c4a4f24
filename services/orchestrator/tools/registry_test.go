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
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseToolKind verifies the enumeration and the unknown-tool failure.
func TestParseToolKind(t *testing.T) {
	for _, name := range []string{"createTask", "updateTask", "findTasks"} {
		kind, err := ParseToolKind(name)
		require.NoError(t, err)
		assert.Equal(t, name, kind.String())
	}

	_, err := ParseToolKind("deleteTask")
	require.ErrorIs(t, err, ErrUnknownTool)
	assert.Equal(t, "Unknown tool: deleteTask", err.Error())

	assert.Equal(t, "ToolKind(99)", ToolKind(99).String())
}

// TestDispatch_UnknownTool verifies unknown names fail instead of no-op.
func TestDispatch_UnknownTool(t *testing.T) {
	r, counting := newTestRegistry(t)

	_, err := r.Dispatch(context.Background(), call("dropTable", `{}`))

	assert.EqualError(t, err, "Unknown tool: dropTable")
	assert.Zero(t, counting.writes.Load())
}

// TestDefinitions_Order verifies the stable tool order sent to the model.
func TestDefinitions_Order(t *testing.T) {
	r, _ := newTestRegistry(t)

	defs := r.Definitions()

	require.Len(t, defs, 3)
	assert.Equal(t, "createTask", defs[0].Name)
	assert.Equal(t, "updateTask", defs[1].Name)
	assert.Equal(t, "findTasks", defs[2].Name)
	for _, def := range defs {
		assert.NotEmpty(t, def.Description)
		assert.Equal(t, "object", def.InputSchema["type"])
	}
	assert.Equal(t, []any{"title"}, defs[0].InputSchema["required"])
	assert.Equal(t, []any{"id", "patch"}, defs[1].InputSchema["required"])
	assert.NotContains(t, defs[2].InputSchema, "required")
}

// jsonFields returns the JSON tag names of a struct type.
func jsonFields(v any) []string {
	typ := reflect.TypeOf(v)
	names := make([]string, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		tag := strings.Split(typ.Field(i).Tag.Get("json"), ",")[0]
		if tag != "" && tag != "-" {
			names = append(names, tag)
		}
	}
	sort.Strings(names)
	return names
}

func schemaFields(schema map[string]any) []string {
	props := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TestSchemas_MatchInputs guards against drift between what the model is
// told and what the handlers decode.
func TestSchemas_MatchInputs(t *testing.T) {
	r, _ := newTestRegistry(t)
	defs := r.Definitions()

	assert.Equal(t, jsonFields(CreateTaskInput{}), schemaFields(defs[0].InputSchema))
	assert.Equal(t, jsonFields(UpdateTaskInput{}), schemaFields(defs[1].InputSchema))
	assert.Equal(t, jsonFields(FindTasksInput{}), schemaFields(defs[2].InputSchema))

	patch := defs[1].InputSchema["properties"].(map[string]any)["patch"].(map[string]any)
	allowed := make([]string, 0, len(patchableFields))
	for name := range patchableFields {
		allowed = append(allowed, name)
	}
	sort.Strings(allowed)
	assert.Equal(t, allowed, schemaFields(patch))
	assert.ElementsMatch(t, []string{"title", "description", "status", "dueDate", "project", "assignedTo", "labels"}, allowed)
}

// TestSchemas_StatusEnum verifies every status field advertises {pending, done}.
func TestSchemas_StatusEnum(t *testing.T) {
	r, _ := newTestRegistry(t)
	defs := r.Definitions()
	want := []any{"pending", "done"}

	createStatus := defs[0].InputSchema["properties"].(map[string]any)["status"].(map[string]any)
	assert.Equal(t, want, createStatus["enum"])

	patch := defs[1].InputSchema["properties"].(map[string]any)["patch"].(map[string]any)
	patchStatus := patch["properties"].(map[string]any)["status"].(map[string]any)
	assert.Equal(t, want, patchStatus["enum"])

	findProps := defs[2].InputSchema["properties"].(map[string]any)
	assert.Equal(t, want, findProps["status"].(map[string]any)["enum"])
	limit := findProps["limit"].(map[string]any)
	assert.Equal(t, "integer", limit["type"])
	assert.Equal(t, MinFindLimit, limit["minimum"])
	assert.Equal(t, MaxFindLimit, limit["maximum"])
}
