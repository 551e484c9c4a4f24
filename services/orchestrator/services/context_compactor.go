// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"strings"

	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
)

const (
	// DefaultContextItems is the number of task records rendered for grounding.
	DefaultContextItems = datatypes.MaxContextItems

	// DefaultContextChars is the character budget of the grounding block.
	DefaultContextChars = 4000

	// omittedMarker is appended when the block was cut at the budget.
	omittedMarker = "\n• …"
)

// CompactOptions bounds the grounding block.
type CompactOptions struct {
	MaxItems int
	MaxChars int
}

// DefaultCompactOptions returns the standard 50 item / 4000 character bounds.
func DefaultCompactOptions() CompactOptions {
	return CompactOptions{MaxItems: DefaultContextItems, MaxChars: DefaultContextChars}
}

// CompactTaskContext renders task records as a short text block for the model.
//
// # Description
//
// Each record becomes one line:
//
//	"• <title> | status:<status> | assignee:<who> | due:<date> | project:<name>"
//
// Missing values render as "(untitled)", "pending", "-", "-" and "general".
// Status is normalized. Only the first MaxItems records are used. When the
// block exceeds MaxChars characters it is cut at that boundary (never inside
// a multi-byte character) and "\n• …" is appended.
//
// # Inputs
//
//   - tasks: Caller-supplied records. Not modified.
//   - opts: Bounds. Non-positive values fall back to the defaults.
//
// # Outputs
//
//   - string: The block, or "" when there are no records.
//
// # Examples
//
//	CompactTaskContext([]datatypes.TaskContextItem{{Title: "Buy milk"}}, DefaultCompactOptions())
//	// "• Buy milk | status:pending | assignee:- | due:- | project:general"
func CompactTaskContext(tasks []datatypes.TaskContextItem, opts CompactOptions) string {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultContextItems
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultContextChars
	}
	if len(tasks) > opts.MaxItems {
		tasks = tasks[:opts.MaxItems]
	}

	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, contextLine(t))
	}
	block := strings.Join(lines, "\n")

	runes := []rune(block)
	if len(runes) > opts.MaxChars {
		return string(runes[:opts.MaxChars]) + omittedMarker
	}
	return block
}

func contextLine(t datatypes.TaskContextItem) string {
	status := datatypes.NormalizeStatus(orDefault(t.Status, datatypes.StatusPending))

	var b strings.Builder
	b.WriteString("• ")
	b.WriteString(orDefault(t.Title, "(untitled)"))
	b.WriteString(" | status:")
	b.WriteString(status)
	b.WriteString(" | assignee:")
	b.WriteString(orDefault(t.AssignedTo, "-"))
	b.WriteString(" | due:")
	b.WriteString(orDefault(t.DueDate, "-"))
	b.WriteString(" | project:")
	b.WriteString(orDefault(t.Project, "general"))
	return b.String()
}

func orDefault(value datatypes.LooseString, fallback string) string {
	if value == "" {
		return fallback
	}
	return string(value)
}
