// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianTasks/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/store"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the collaborators the routes are bound to.
//
// # Fields
//
//   - ServiceName: Reported by /health.
//   - Chat: Serves POST /chat.
//   - Screen: Optional prompt screen for POST /chat.
//   - Tasks: Backs list, get and delete.
//   - Writer: Backs create and update with the tool rules.
//   - Gatherer: When non-nil, /metrics exposes it.
//   - Now: Clock for /health. Defaults to time.Now.
type Dependencies struct {
	ServiceName string
	Chat        handlers.ChatProcessor
	Screen      handlers.PromptScreener
	Tasks       store.TaskStore
	Writer      handlers.TaskWriter
	Gatherer    prometheus.Gatherer
	Now         func() time.Time
}

// SetupRoutes registers every route on the router.
//
// Middleware (CORS, tracing, logging) is installed by the caller before
// this is invoked so that it also covers the 404 handler.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health", handlers.HealthCheck(deps.ServiceName, deps.Now))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	router.POST("/chat", handlers.HandleChat(deps.Chat, deps.Screen))

	tasks := router.Group("/tasks")
	{
		tasks.GET("", handlers.HandleListTasks(deps.Tasks))
		tasks.POST("", handlers.HandleCreateTask(deps.Writer))
		tasks.GET("/:id", handlers.HandleGetTask(deps.Tasks))
		tasks.PUT("/:id", handlers.HandleUpdateTask(deps.Writer))
		tasks.DELETE("/:id", handlers.HandleDeleteTask(deps.Tasks))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "route not found",
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
	})
}
