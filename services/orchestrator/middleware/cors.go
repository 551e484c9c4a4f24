// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the task service.
//
// # Request Flow
//
//	Request
//	   │
//	   ▼
//	CORS ──► OPTIONS answered here with 200
//	   │
//	   ▼
//	RequestLogger
//	   │
//	   ▼
//	Handler
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// =============================================================================
// CORS
// =============================================================================

const (
	allowOrigin  = "*"
	allowHeaders = "Content-Type,Authorization"
	allowMethods = "GET,POST,PUT,DELETE,OPTIONS"
)

// CORS sets permissive CORS headers on every response.
//
// # Description
//
// Every response carries Access-Control-Allow-Origin, -Headers and
// -Methods. Preflight OPTIONS requests are answered with 200 and an empty
// body without reaching any handler, whether or not a route exists.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware for router.Use.
//
// # Examples
//
//	router := gin.New()
//	router.Use(middleware.CORS())
//
// # Limitations
//
//   - Origins are not restricted.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
