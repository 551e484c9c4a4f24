// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command taskbot runs the conversational task assistant.
//
// # Usage
//
//	# Serve the HTTP API (reads .env, --config and the environment)
//	taskbot serve --config taskbot.yaml
//
//	# One chat turn against the local store, printed as JSON
//	taskbot chat "add a task to renew my passport"
//
// # Environment Variables
//
//   - MODEL_ID: Target model id (required)
//   - MODEL_BACKEND: anthropic (default) or openai
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: Provider key
//   - TASKBOT_PORT: HTTP server port (default: 8080)
//   - TASKS_DATA_DIR: BadgerDB directory (default: ./data/tasks)
//
// See services/orchestrator/config.go for the full list.
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
