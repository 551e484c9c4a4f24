// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy_engine screens chat prompts for sensitive data before they
// are forwarded to a model provider.
package policy_engine

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianTasks/services/policy_engine/enforcement"
	"gopkg.in/yaml.v3"
)

// PolicyEngine holds the compiled classification rules. Read-only after
// construction and safe for concurrent use.
type PolicyEngine struct {
	Classifications []Classification
}

// NewPolicyEngine loads the rules embedded in the binary.
func NewPolicyEngine() (*PolicyEngine, error) {
	return NewPolicyEngineFromYAML(enforcement.PromptScreeningPatterns)
}

// NewPolicyEngineFromYAML builds an engine from a rule document.
//
// # Outputs
//
//   - error: The document is malformed, a confidence value is unknown or a
//     regex does not compile.
func NewPolicyEngineFromYAML(data []byte) (*PolicyEngine, error) {
	var rules RuleFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the policy rules: %w", err)
	}
	if err := rules.compile(); err != nil {
		return nil, err
	}
	return &PolicyEngine{Classifications: rules.Classifications}, nil
}

// Classify returns the name of the highest priority classification with a
// matching pattern, or "public".
func (e *PolicyEngine) Classify(text string) string {
	for _, classification := range e.Classifications {
		for _, pattern := range classification.Patterns {
			if pattern.compiled.MatchString(text) {
				return classification.Name
			}
		}
	}
	return "public"
}

// Scan reports every pattern match, line by line, in priority order within
// each line.
func (e *PolicyEngine) Scan(text string) []Finding {
	var findings []Finding
	for lineNum, line := range strings.Split(text, "\n") {
		for _, classification := range e.Classifications {
			for _, pattern := range classification.Patterns {
				match := pattern.compiled.FindString(line)
				if match == "" {
					continue
				}
				findings = append(findings, Finding{
					Classification: classification.Name,
					PatternID:      pattern.ID,
					Description:    pattern.Description,
					Confidence:     pattern.Confidence,
					LineNumber:     lineNum + 1,
					Blocking:       classification.Block,
					Match:          strings.TrimSpace(match),
				})
			}
		}
	}
	return findings
}

// Screen returns only the findings whose classification blocks the
// request. An empty result means the text may be forwarded.
func (e *PolicyEngine) Screen(text string) []Finding {
	var blocking []Finding
	for _, f := range e.Scan(text) {
		if f.Blocking {
			blocking = append(blocking, f)
		}
	}
	return blocking
}
