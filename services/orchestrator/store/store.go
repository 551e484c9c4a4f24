// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides the task store used by the chat tools, the REST
// handlers and the planner.
//
// The store owns all consistency guarantees: conditional insert on id and
// single-item read-after-write on patch. It applies no business rules
// beyond status normalization on read and write.
//
// Thread Safety:
//
//	All implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
)

// DefaultScanLimit caps a bulk scan when the caller passes a non-positive limit.
const DefaultScanLimit = 1000

var (
	// ErrDuplicateID is returned by Create when a task with the same id
	// already exists. It is reported, never retried.
	ErrDuplicateID = errors.New("task id already exists")

	// ErrNotFound is returned by Get and Delete for unknown ids.
	ErrNotFound = errors.New("task not found")

	// ErrUnavailable wraps failures of the underlying storage engine.
	ErrUnavailable = errors.New("task store unavailable")

	// ErrInvalidPatch is returned by Patch when a field value has the
	// wrong type for the task schema.
	ErrInvalidPatch = errors.New("invalid patch")
)

// TaskStore is the collaborator interface consumed by tools, handlers and
// the planner.
type TaskStore interface {
	// Create inserts the task if no task with the same id exists.
	//
	// Outputs:
	//   datatypes.Task - The stored (normalized) task
	//   error - ErrDuplicateID, or ErrUnavailable on storage failure
	Create(ctx context.Context, task datatypes.Task) (datatypes.Task, error)

	// Get returns the task with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (datatypes.Task, error)

	// Patch overwrites the given fields, refreshes updatedAt and returns
	// the post-update record. A nil task with a nil error means the id does
	// not exist; this is a "not found" signal, not a failure.
	Patch(ctx context.Context, id string, fields map[string]any) (*datatypes.Task, error)

	// Scan returns at most limit tasks in storage order.
	Scan(ctx context.Context, limit int) ([]datatypes.Task, error)

	// Delete removes the task, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// InsertWatcher is implemented by stores that can stream newly inserted
// tasks, the way a table change stream would.
type InsertWatcher interface {
	// WatchInserts calls fn for every task inserted after the call starts.
	// It blocks until ctx is cancelled.
	WatchInserts(ctx context.Context, fn func(datatypes.Task)) error
}
