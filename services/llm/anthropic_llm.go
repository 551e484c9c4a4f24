// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	anthropicAPIVersion = "2023-06-01"
	defaultBaseURL      = "https://api.anthropic.com/v1/messages"

	// maxResponseBytes bounds how much of a provider body is read.
	maxResponseBytes = 4 << 20
)

var tracer = otel.Tracer("aleutian.tasks.llm")

type anthropicRequest struct {
	Model       string           `json:"model"`
	System      string           `json:"system,omitempty"`
	Messages    []Message        `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature *float32         `json:"temperature,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
}

// --- Client Implementation ---

// AnthropicClient calls the Anthropic Messages API over plain HTTP.
//
// The API key lives in a memguard enclave and is only decrypted while a
// request is being built.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     *memguard.Enclave
	model      string
	region     string
	baseURL    string
}

// NewAnthropicClient validates cfg and builds the client.
//
// # Outputs
//
//   - *AnthropicClient: Ready to use and safe for concurrent calls.
//   - error: ErrModelNotConfigured or ErrAPIKeyMissing.
func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	slog.Info("Initializing Anthropic client", "model", cfg.Model, "region", cfg.Region)
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: cfg.timeout()},
		apiKey:     memguard.NewEnclave([]byte(cfg.APIKey)),
		model:      cfg.Model,
		region:     cfg.Region,
		baseURL:    baseURL,
	}, nil
}

// Name implements LLMClient.
func (a *AnthropicClient) Name() string { return BackendAnthropic }

// Model implements LLMClient.
func (a *AnthropicClient) Model() string { return a.model }

// Complete implements LLMClient.
func (a *AnthropicClient) Complete(ctx context.Context, request *ChatRequest) (*ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "AnthropicClient.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", a.model),
		attribute.String("llm.region", a.region),
		attribute.Int("llm.messages", len(request.Messages)),
		attribute.Int("llm.tools", len(request.Tools)),
	)

	payload := anthropicRequest{
		Model:     a.model,
		System:    request.System,
		Messages:  request.Messages,
		MaxTokens: request.MaxTokens,
		Tools:     request.Tools,
	}
	if request.Temperature > 0 {
		temp := request.Temperature
		payload.Temperature = &temp
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	key, err := a.apiKey.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open api key enclave: %w", err)
	}
	req.Header.Set("x-api-key", strings.Clone(key.String()))
	key.Destroy()
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	slog.Debug("Sending request to Anthropic", "model", a.model, "messages", len(request.Messages))

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read error")
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &ProviderError{Provider: BackendAnthropic, StatusCode: resp.StatusCode, Message: snippet(raw)}
		if env := decodeEnvelope(raw); env != nil {
			perr.Type = env.Type
			perr.Message = env.Message
		}
		span.RecordError(perr)
		span.SetStatus(codes.Error, "provider status")
		return nil, perr
	}
	if env := decodeEnvelope(raw); env != nil {
		perr := &ProviderError{Provider: BackendAnthropic, Type: env.Type, Message: env.Message}
		span.RecordError(perr)
		span.SetStatus(codes.Error, "provider error")
		return nil, perr
	}

	decoded := DecodeResponse(raw)
	decoded.Duration = time.Since(start)
	if decoded.Degraded {
		slog.Warn("Anthropic response was not structured; wrapped as text", "body_length", len(raw))
		span.SetAttributes(attribute.Bool("llm.degraded", true))
	}
	return decoded, nil
}

// snippet returns a short, single-line excerpt of a provider body.
func snippet(raw []byte) string {
	const limit = 256
	runes := []rune(strings.Join(strings.Fields(string(raw)), " "))
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return string(runes)
}

var _ LLMClient = (*AnthropicClient)(nil)
