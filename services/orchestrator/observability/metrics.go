// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring the chat
// assistant. Metrics include:
//   - Chat request counters and latency (by outcome)
//   - Tool call counters (by tool and status)
//   - Model call counters, token usage and degraded replies (by model)
//   - Planner runs (by status)
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every Record method is a no-op on a nil *ChatMetrics, so components can
// run without metrics in tests.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for task assistant metrics
const tasksSubsystem = "tasks"

// ChatMetrics holds all Prometheus metrics for the task assistant.
//
// # Fields
//
//   - ChatRequestsTotal: Chat requests by outcome
//   - ChatDurationSeconds: End-to-end chat latency by outcome
//   - ToolCallsTotal: Tool dispatches by tool and status
//   - ModelCallsTotal: Model gateway calls by model and status
//   - TokensTotal: Tokens by direction and model
//   - DegradedRepliesTotal: Unstructured model replies wrapped as text
//   - PlannerRunsTotal: Planner attempts by status
type ChatMetrics struct {
	// Labels: outcome (no_tools, tools, error)
	ChatRequestsTotal *prometheus.CounterVec

	// Labels: outcome (no_tools, tools, error)
	ChatDurationSeconds *prometheus.HistogramVec

	// Labels: tool, status (success, error)
	ToolCallsTotal *prometheus.CounterVec

	// Labels: model, status (success, error)
	ModelCallsTotal *prometheus.CounterVec

	// Labels: direction (input, output), model
	TokensTotal *prometheus.CounterVec

	// Labels: model
	DegradedRepliesTotal *prometheus.CounterVec

	// Labels: status (planned, skipped, error)
	PlannerRunsTotal *prometheus.CounterVec
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors. Each service instance owns one, so several instances (as in
// tests) never collide on registration.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewChatMetrics creates and registers all metrics on reg.
//
// # Examples
//
//	reg := prometheus.NewRegistry()
//	m := observability.NewChatMetrics(reg)
func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	factory := promauto.With(reg)

	return &ChatMetrics{
		ChatRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: tasksSubsystem,
				Name:      "chat_requests_total",
				Help:      "Total chat requests by outcome",
			},
			[]string{"outcome"},
		),

		ChatDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: tasksSubsystem,
				Name:      "chat_duration_seconds",
				Help:      "End-to-end chat duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),

		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: tasksSubsystem,
				Name:      "tool_calls_total",
				Help:      "Total tool dispatches by tool and status",
			},
			[]string{"tool", "status"},
		),

		ModelCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: tasksSubsystem,
				Name:      "model_calls_total",
				Help:      "Total model gateway calls by model and status",
			},
			[]string{"model", "status"},
		),

		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: tasksSubsystem,
				Name:      "tokens_total",
				Help:      "Total tokens processed by direction and model",
			},
			[]string{"direction", "model"},
		),

		DegradedRepliesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: tasksSubsystem,
				Name:      "degraded_replies_total",
				Help:      "Model replies that could not be parsed and were wrapped as text",
			},
			[]string{"model"},
		),

		PlannerRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: tasksSubsystem,
				Name:      "planner_runs_total",
				Help:      "Planner attempts by status",
			},
			[]string{"status"},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// ChatOutcome labels how a chat request ended.
type ChatOutcome string

const (
	// OutcomeNoTools is a reply produced without tool use.
	OutcomeNoTools ChatOutcome = "no_tools"

	// OutcomeTools is a reply produced after dispatching tools.
	OutcomeTools ChatOutcome = "tools"

	// OutcomeError is a request that failed.
	OutcomeError ChatOutcome = "error"
)

// PlannerStatus labels a planner attempt.
type PlannerStatus string

const (
	PlannerPlanned PlannerStatus = "planned"
	PlannerSkipped PlannerStatus = "skipped"
	PlannerError   PlannerStatus = "error"
)

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordChat records a finished chat request and its duration.
func (m *ChatMetrics) RecordChat(outcome ChatOutcome, seconds float64) {
	if m == nil {
		return
	}
	m.ChatRequestsTotal.WithLabelValues(string(outcome)).Inc()
	m.ChatDurationSeconds.WithLabelValues(string(outcome)).Observe(seconds)
}

// RecordToolCall records one tool dispatch.
func (m *ChatMetrics) RecordToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, statusLabel(success)).Inc()
}

// RecordModelCall records one model gateway call.
//
// # Inputs
//
//   - model: The model id.
//   - success: Whether the call returned a response.
//   - degraded: Whether the response was wrapped as text.
//   - inputTokens, outputTokens: Reported usage, zero if unknown.
func (m *ChatMetrics) RecordModelCall(model string, success, degraded bool, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.ModelCallsTotal.WithLabelValues(model, statusLabel(success)).Inc()
	if degraded {
		m.DegradedRepliesTotal.WithLabelValues(model).Inc()
	}
	if inputTokens > 0 {
		m.TokensTotal.WithLabelValues("input", model).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.TokensTotal.WithLabelValues("output", model).Add(float64(outputTokens))
	}
}

// RecordPlannerRun records one planner attempt.
func (m *ChatMetrics) RecordPlannerRun(status PlannerStatus) {
	if m == nil {
		return
	}
	m.PlannerRunsTotal.WithLabelValues(string(status)).Inc()
}
