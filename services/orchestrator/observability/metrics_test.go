// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// newTestMetrics creates metrics on an isolated registry so tests do not
// collide with the global one.
func newTestMetrics(t *testing.T) *ChatMetrics {
	t.Helper()
	return NewChatMetrics(prometheus.NewRegistry())
}

// TestRecordChat verifies request counters and the latency histogram.
func TestRecordChat(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordChat(OutcomeTools, 1.2)
	m.RecordChat(OutcomeTools, 0.4)
	m.RecordChat(OutcomeError, 0.1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("tools")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("no_tools")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ChatDurationSeconds))
}

// TestRecordToolCall verifies per-tool status labels.
func TestRecordToolCall(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordToolCall("createTask", true)
	m.RecordToolCall("createTask", false)
	m.RecordToolCall("findTasks", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("createTask", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("createTask", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("findTasks", "success")))
}

// TestRecordModelCall verifies tokens and degraded replies.
func TestRecordModelCall(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordModelCall("claude", true, false, 100, 20)
	m.RecordModelCall("claude", true, true, 0, 0)
	m.RecordModelCall("claude", false, false, 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ModelCallsTotal.WithLabelValues("claude", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelCallsTotal.WithLabelValues("claude", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DegradedRepliesTotal.WithLabelValues("claude")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.TokensTotal.WithLabelValues("input", "claude")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.TokensTotal.WithLabelValues("output", "claude")))
}

// TestRecordPlannerRun verifies planner status counters.
func TestRecordPlannerRun(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordPlannerRun(PlannerPlanned)
	m.RecordPlannerRun(PlannerSkipped)
	m.RecordPlannerRun(PlannerSkipped)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlannerRunsTotal.WithLabelValues("planned")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PlannerRunsTotal.WithLabelValues("skipped")))
}

// TestNilMetrics verifies recording on nil metrics is a no-op.
func TestNilMetrics(t *testing.T) {
	var m *ChatMetrics

	assert.NotPanics(t, func() {
		m.RecordChat(OutcomeNoTools, 1)
		m.RecordToolCall("findTasks", true)
		m.RecordModelCall("m", true, true, 1, 1)
		m.RecordPlannerRun(PlannerError)
	})
}

// TestNewRegistry verifies runtime collectors are present and chat metrics
// register without conflict.
func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	m := NewChatMetrics(reg)
	m.RecordChat(OutcomeNoTools, 0.2)

	families, err := reg.Gather()
	assert.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
	assert.True(t, names["aleutian_tasks_chat_requests_total"])
}
