// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
)

const (
	// FallbackSummary is the summary of a plan recovered from free text.
	FallbackSummary = "Auto-generated plan"

	// MaxFallbackSteps caps the steps recovered from free text.
	MaxFallbackSteps = 10
)

// lineSplit matches one or more line breaks.
var lineSplit = regexp.MustCompile(`(\r?\n)+`)

// bulletPrefix matches leading bullets, dashes and list numbering.
var bulletPrefix = regexp.MustCompile(`^\s*[-•\d.]+\s*`)

// ParsePlan turns model output into a plan.
//
// # Description
//
// Decoding happens in two stages:
//
//  1. Structured: the text is a JSON object of the form
//     {"summary": string, "steps": [{"title": string, "detail": string}]}.
//  2. Fallback: the text is split into lines, bullets and numbering are
//     stripped, blank lines are dropped and the first MaxFallbackSteps
//     lines become step titles under FallbackSummary.
//
// ParsePlan is pure and never fails; empty input yields a fallback plan
// with no steps.
//
// # Examples
//
//	ParsePlan("1. Draft outline\n2. Review")
//	// Plan{Summary: "Auto-generated plan", Steps: [{Title: "Draft outline"}, {Title: "Review"}]}
func ParsePlan(text string) datatypes.Plan {
	if plan, ok := parseStructured(text); ok {
		return plan
	}
	return parseLines(text)
}

func parseStructured(text string) (datatypes.Plan, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return datatypes.Plan{}, false
	}

	var plan datatypes.Plan
	if err := json.Unmarshal([]byte(trimmed), &plan); err != nil {
		return datatypes.Plan{}, false
	}
	if plan.Steps == nil {
		plan.Steps = []datatypes.PlanStep{}
	}
	return plan, true
}

func parseLines(text string) datatypes.Plan {
	steps := make([]datatypes.PlanStep, 0, MaxFallbackSteps)
	for _, line := range lineSplit.Split(text, -1) {
		title := strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if title == "" {
			continue
		}
		steps = append(steps, datatypes.PlanStep{Title: title})
		if len(steps) == MaxFallbackSteps {
			break
		}
	}
	return datatypes.Plan{Summary: FallbackSummary, Steps: steps}
}
