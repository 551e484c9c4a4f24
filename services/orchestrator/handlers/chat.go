// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers of the task service.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianTasks/services/llm"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/services"
	"github.com/AleutianAI/AleutianTasks/services/policy_engine"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var chatTracer = otel.Tracer("aleutian.orchestrator.handlers")

// ChatProcessor runs one chat turn. Implemented by *services.ChatToolService.
type ChatProcessor interface {
	Process(ctx context.Context, req *datatypes.ChatToolRequest) (*datatypes.ChatToolResponse, error)
}

// PromptScreener reports findings that must stop a prompt from reaching
// the model. Implemented by *policy_engine.PolicyEngine.
type PromptScreener interface {
	Screen(text string) []policy_engine.Finding
}

// HandleChat serves POST /chat.
//
// # Description
//
// An empty body is treated as {}. Responses:
//   - 200 {reply, toolCalls, toolResults}
//   - 400 {"error": "invalid JSON body"} when the body does not parse
//   - 400 {"error": "prompt required"} when the trimmed prompt is empty
//   - 403 {"error": "prompt contains sensitive data", "findings": [...]}
//     when screen is non-nil and blocks the prompt
//   - 500 {"error": "Chat error", "message": <short>} otherwise
//
// The full error is logged server-side; the 500 message never echoes
// provider or store internals.
func HandleChat(chat ChatProcessor, screen PromptScreener) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			raw = []byte("{}")
		}

		var req datatypes.ChatToolRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			slog.Warn("Failed to parse the chat request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}

		if screen != nil {
			if findings := screen.Screen(req.Prompt); len(findings) > 0 {
				span.AddEvent("PROMPT_BLOCKED")
				slog.Warn("Blocked chat request due to policy violation",
					"findings", len(findings),
					"pattern", findings[0].PatternID,
				)
				c.JSON(http.StatusForbidden, gin.H{
					"error":    "prompt contains sensitive data",
					"findings": findings,
				})
				return
			}
		}

		resp, err := chat.Process(ctx, &req)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, resp)
		case errors.Is(err, services.ErrPromptRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "prompt required"})
		case errors.Is(err, services.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": "prompt too large"})
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "chat failed")
			slog.Error("Chat request failed", "request_id", req.RequestID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Chat error",
				"message": chatErrorMessage(err),
			})
		}
	}
}

// chatErrorMessage maps an internal failure to a short client message.
func chatErrorMessage(err error) string {
	var providerErr *llm.ProviderError
	switch {
	case errors.Is(err, llm.ErrModelNotConfigured), errors.Is(err, llm.ErrAPIKeyMissing):
		return "model not configured"
	case errors.Is(err, context.DeadlineExceeded):
		return "model request timed out"
	case errors.As(err, &providerErr):
		return "model provider error"
	default:
		return "internal error"
	}
}
