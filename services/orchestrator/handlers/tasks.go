// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/store"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/tools"
	"github.com/gin-gonic/gin"
)

// TaskWriter applies the create and update rules shared with the chat tools.
// Implemented by *tools.Registry.
type TaskWriter interface {
	CreateTask(ctx context.Context, in tools.CreateTaskInput) (datatypes.Task, error)
	UpdateTask(ctx context.Context, id string, patch json.RawMessage) (*datatypes.Task, error)
}

// HandleListTasks serves GET /tasks.
func HandleListTasks(tasks store.TaskStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := tasks.Scan(c.Request.Context(), store.DefaultScanLimit)
		if err != nil {
			writeTaskError(c, "list", err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

// HandleGetTask serves GET /tasks/:id.
func HandleGetTask(tasks store.TaskStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := tasks.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeTaskError(c, "get", err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// HandleCreateTask serves POST /tasks.
//
// The body follows the createTask tool input. The id is always generated.
func HandleCreateTask(writer TaskWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in tools.CreateTaskInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}

		task, err := writer.CreateTask(c.Request.Context(), in)
		if err != nil {
			writeTaskError(c, "create", err)
			return
		}
		c.JSON(http.StatusCreated, task)
	}
}

// HandleUpdateTask serves PUT /tasks/:id.
//
// The body is a patch object filtered by the updateTask rules.
func HandleUpdateTask(writer TaskWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil || !json.Valid(raw) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}

		task, err := writer.UpdateTask(c.Request.Context(), c.Param("id"), raw)
		if err != nil {
			writeTaskError(c, "update", err)
			return
		}
		if task == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// HandleDeleteTask serves DELETE /tasks/:id. Deleting an unknown id is
// not an error.
func HandleDeleteTask(tasks store.TaskStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := tasks.Delete(c.Request.Context(), c.Param("id"))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeTaskError(c, "delete", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// writeTaskError maps task errors to status codes.
func writeTaskError(c *gin.Context, op string, err error) {
	var verr *tools.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, store.ErrDuplicateID):
		c.JSON(http.StatusConflict, gin.H{"error": "task already exists"})
	case errors.Is(err, store.ErrUnavailable):
		slog.Error("Task store unavailable", "op", op, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task store unavailable"})
	default:
		slog.Error("Task request failed", "op", op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
