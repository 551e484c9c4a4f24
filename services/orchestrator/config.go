// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianTasks/services/llm"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadConfig.
const (
	EnvPort           = "TASKBOT_PORT"
	EnvModelBackend   = "MODEL_BACKEND"
	EnvModelID        = "MODEL_ID"
	EnvModelRegion    = "MODEL_REGION"
	EnvModelBaseURL   = "MODEL_BASE_URL"
	EnvAnthropicKey   = "ANTHROPIC_API_KEY"
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvDataDir        = "TASKS_DATA_DIR"
	EnvOTelEndpoint   = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvTracingEnabled = "TRACING_ENABLED"
	EnvMetricsEnabled = "METRICS_ENABLED"
	EnvPlannerEnabled = "PLANNER_ENABLED"
	EnvScreenPrompts  = "SCREEN_PROMPTS"
	EnvLogLevel       = "LOG_LEVEL"
	EnvGinMode        = "GIN_MODE"

	// Legacy names, used when the MODEL_* variable is unset.
	envLegacyModelID = "BEDROCK_MODEL_ID"
	envLegacyRegion  = "BEDROCK_REGION"
)

// LoadConfig builds a Config from a .env file, an optional YAML file and
// the environment, in increasing order of precedence.
//
// # Inputs
//
//   - path: YAML config file. Empty means none.
//
// # Outputs
//
//   - Config: Defaults applied, not yet validated (New validates).
//   - error: File read or parse failures, or ErrInvalidConfig for
//     malformed environment values.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Ignoring unreadable .env file", "error", err)
	}
	return loadConfig(path, os.LookupEnv)
}

func loadConfig(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return applyConfigDefaults(cfg), nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(names ...string) (string, bool) {
		for _, name := range names {
			if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}

	var problems []string

	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s must be an integer, got %q", EnvPort, v))
		} else {
			cfg.Port = port
		}
	}
	if v, ok := get(EnvModelBackend); ok {
		cfg.Model.Backend = strings.ToLower(v)
	}
	if v, ok := get(EnvModelID, envLegacyModelID); ok {
		cfg.Model.ID = v
	}
	if v, ok := get(EnvModelRegion, envLegacyRegion); ok {
		cfg.Model.Region = v
	}
	if v, ok := get(EnvModelBaseURL); ok {
		cfg.Model.BaseURL = v
	}

	keyVar := EnvAnthropicKey
	if cfg.Model.Backend == llm.BackendOpenAI {
		keyVar = EnvOpenAIKey
	}
	if v, ok := get(keyVar); ok {
		cfg.Model.APIKey = v
	}

	if v, ok := get(EnvDataDir); ok {
		cfg.DataDir = v
	}
	if v, ok := get(EnvOTelEndpoint); ok {
		cfg.OTelEndpoint = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := get(EnvGinMode); ok {
		cfg.GinMode = v
	}

	for name, target := range map[string]*bool{
		EnvTracingEnabled: &cfg.TracingEnabled,
		EnvMetricsEnabled: &cfg.MetricsEnabled,
		EnvPlannerEnabled: &cfg.PlannerEnabled,
		EnvScreenPrompts:  &cfg.ScreenPrompts,
	} {
		v, ok := get(name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s must be a boolean, got %q", name, v))
			continue
		}
		*target = b
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
