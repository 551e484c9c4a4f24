// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner attaches a step-by-step plan to newly created tasks.
//
// # Description
//
// The planner subscribes to task inserts published by the task store, asks
// the model for a plan and writes it back onto the task. Runs are best
// effort: failures are logged and counted, never retried.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianTasks/services/llm"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("aleutian.tasks.planner")

const (
	// PlanSystemPrompt constrains the model to the plan JSON schema.
	PlanSystemPrompt = `Return ONLY JSON in this schema: {"summary": string, "steps":[{"title": string, "detail": string}]}. ` +
		"No backticks, no prose. Keep 5-10 concrete steps."

	// PlanTemperature keeps plans close to deterministic.
	PlanTemperature float32 = 0.2

	// PlanMaxTokens is the output budget of a plan request.
	PlanMaxTokens = 700

	// DefaultTaskTimeout bounds one planning run.
	DefaultTaskTimeout = 60 * time.Second

	// DefaultQueueSize is the number of inserts buffered ahead of the worker.
	DefaultQueueSize = 64
)

// ErrAlreadyRunning is returned by Start when the planner is running.
var ErrAlreadyRunning = errors.New("planner is already running")

// Planner generates plans for inserted tasks.
//
// # Description
//
// Start launches two goroutines: one forwards inserts from the
// InsertWatcher into a bounded queue, the other plans queued tasks one at a
// time. Stop cancels both and waits for them.
//
// # Thread Safety
//
// Start, Stop and PlanTask are safe for concurrent use.
type Planner struct {
	tasks   store.TaskStore
	watcher store.InsertWatcher
	client  llm.LLMClient
	metrics *observability.ChatMetrics

	taskTimeout time.Duration
	queueSize   int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Planner.
type Option func(*Planner)

// WithMetrics records planner runs.
func WithMetrics(m *observability.ChatMetrics) Option {
	return func(p *Planner) { p.metrics = m }
}

// WithTaskTimeout overrides DefaultTaskTimeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Planner) {
		if d > 0 {
			p.taskTimeout = d
		}
	}
}

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// New creates a planner.
//
// # Inputs
//
//   - tasks: Store the plan is written to.
//   - watcher: Source of insert notifications.
//   - client: Model gateway used to generate plans.
//   - opts: Optional metrics, timeout and queue size.
func New(tasks store.TaskStore, watcher store.InsertWatcher, client llm.LLMClient, opts ...Option) *Planner {
	p := &Planner{
		tasks:       tasks,
		watcher:     watcher,
		client:      client,
		taskTimeout: DefaultTaskTimeout,
		queueSize:   DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins watching for inserts.
//
// # Inputs
//
//   - ctx: Parent context. Cancelling it stops the planner.
//
// # Outputs
//
//   - error: ErrAlreadyRunning if Start was already called without Stop.
func (p *Planner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	queue := make(chan datatypes.Task, p.queueSize)
	p.wg.Add(2)
	go p.watch(runCtx, queue)
	go p.work(runCtx, queue)

	slog.Info("Planner started", "model", p.client.Model(), "queue_size", p.queueSize)
	return nil
}

// Stop cancels the planner and waits for its goroutines. Safe to call
// multiple times.
func (p *Planner) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	slog.Info("Planner stopped")
}

func (p *Planner) watch(ctx context.Context, queue chan<- datatypes.Task) {
	defer p.wg.Done()
	defer close(queue)

	err := p.watcher.WatchInserts(ctx, func(task datatypes.Task) {
		select {
		case queue <- task:
		case <-ctx.Done():
		}
	})
	if err != nil {
		slog.Error("Planner insert watch failed", "error", err)
	}
}

func (p *Planner) work(ctx context.Context, queue <-chan datatypes.Task) {
	defer p.wg.Done()
	for task := range queue {
		if ctx.Err() != nil {
			return
		}
		taskCtx, cancel := context.WithTimeout(ctx, p.taskTimeout)
		_, _ = p.PlanTask(taskCtx, task)
		cancel()
	}
}

// PlanTask generates and stores a plan for one inserted task.
//
// # Description
//
// Tasks without an id or title, or that already carry a plan, are skipped.
// Otherwise the model is asked for a plan and the task's plan and
// updatedAt fields are patched. A task deleted in the meantime counts as
// skipped.
//
// # Outputs
//
//   - observability.PlannerStatus: planned, skipped or error.
//   - error: The model or store failure, already logged.
func (p *Planner) PlanTask(ctx context.Context, task datatypes.Task) (observability.PlannerStatus, error) {
	ctx, span := tracer.Start(ctx, "Planner.PlanTask")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", task.ID))

	if task.ID == "" || strings.TrimSpace(task.Title) == "" || task.Plan != nil {
		p.metrics.RecordPlannerRun(observability.PlannerSkipped)
		return observability.PlannerSkipped, nil
	}

	plan, err := p.GeneratePlan(ctx, task)
	if err != nil {
		return p.fail(span, task.ID, err)
	}

	updated, err := p.tasks.Patch(ctx, task.ID, map[string]any{"plan": plan})
	if err != nil {
		return p.fail(span, task.ID, fmt.Errorf("write plan: %w", err))
	}
	if updated == nil {
		slog.Info("Planner skipped deleted task", "task_id", task.ID)
		p.metrics.RecordPlannerRun(observability.PlannerSkipped)
		return observability.PlannerSkipped, nil
	}

	slog.Info("plan_written", "task_id", task.ID, "steps", len(plan.Steps))
	span.SetAttributes(attribute.Int("plan.steps", len(plan.Steps)))
	p.metrics.RecordPlannerRun(observability.PlannerPlanned)
	return observability.PlannerPlanned, nil
}

func (p *Planner) fail(span trace.Span, taskID string, err error) (observability.PlannerStatus, error) {
	slog.Error("plan_error", "task_id", taskID, "error", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "plan failed")
	p.metrics.RecordPlannerRun(observability.PlannerError)
	return observability.PlannerError, err
}

// GeneratePlan asks the model for a plan for the given task.
func (p *Planner) GeneratePlan(ctx context.Context, task datatypes.Task) (datatypes.Plan, error) {
	resp, err := p.client.Complete(ctx, &llm.ChatRequest{
		System: PlanSystemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: []llm.ContentBlock{llm.TextBlock(PlanPrompt(task))},
		}},
		MaxTokens:   PlanMaxTokens,
		Temperature: PlanTemperature,
	})
	if err != nil {
		return datatypes.Plan{}, fmt.Errorf("generate plan: %w", err)
	}
	return ParsePlan(resp.Text()), nil
}

// PlanPrompt renders the user message describing the task.
func PlanPrompt(task datatypes.Task) string {
	var b strings.Builder
	b.WriteString("Define a step-by-step plan to accomplish this high-level story.\n")
	fmt.Fprintf(&b, "Title: %s\n", task.Title)
	fmt.Fprintf(&b, "Description: %s\n", task.Description)
	fmt.Fprintf(&b, "Project: %s\n", datatypes.StringOrEmpty(task.Project))
	fmt.Fprintf(&b, "DueDate: %s\n", datatypes.StringOrEmpty(task.DueDate))
	b.WriteString("Return 5-10 steps.")
	return b.String()
}
