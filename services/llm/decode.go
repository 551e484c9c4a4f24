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
	"encoding/json"
	"strings"
)

// messagesResponse is the structured form of a Messages API reply body.
type messagesResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []json.RawMessage `json:"content"`
	StopReason string            `json:"stop_reason"`
	OutputText *string           `json:"output_text,omitempty"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *providerEnvelope `json:"error,omitempty"`
}

type providerEnvelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DecodeResponse turns a raw provider body into a ChatResponse.
//
// # Description
//
// Decoding runs in two explicit stages:
//
//  1. Strict structured parse of the Messages API shape. Blocks keep their
//     order. Types other than text and tool_use (such as "thinking") keep
//     their raw JSON so the assistant turn can be echoed back unchanged.
//     A body with no text or tool_use blocks but an "output_text" field
//     gets one text block holding it.
//  2. If stage 1 fails, the whole raw body becomes a single text block and
//     the response is marked Degraded.
//
// DecodeResponse never fails and never inspects error envelopes; callers
// check those first with decodeEnvelope.
//
// # Examples
//
//	DecodeResponse([]byte(`{"content":[{"type":"text","text":"hi"}]}`)).Text() // "hi"
//	DecodeResponse([]byte("not json")).Degraded                              // true
func DecodeResponse(raw []byte) *ChatResponse {
	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return degraded(raw)
	}

	resp := &ChatResponse{
		StopReason:   parsed.StopReason,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		Content:      make([]ContentBlock, 0, len(parsed.Content)),
	}
	modeled := 0
	for _, rawBlock := range parsed.Content {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(rawBlock, &head); err != nil {
			return degraded(raw)
		}
		if head.Type == "" {
			continue
		}
		if head.Type != BlockText && head.Type != BlockToolUse {
			resp.Content = append(resp.Content, ContentBlock{Type: head.Type, Raw: rawBlock})
			continue
		}
		modeled++
		var block ContentBlock
		if err := json.Unmarshal(rawBlock, &block); err != nil {
			return degraded(raw)
		}
		if block.Type == BlockText {
			resp.Content = append(resp.Content, TextBlock(block.Text))
		} else {
			resp.Content = append(resp.Content, ToolUseBlock(block.ID, block.Name, block.Input))
		}
	}

	if modeled == 0 && parsed.OutputText != nil {
		resp.Content = append(resp.Content, TextBlock(*parsed.OutputText))
	}
	return resp
}

// decodeEnvelope returns the provider error envelope, if the body has one.
func decodeEnvelope(raw []byte) *providerEnvelope {
	var parsed struct {
		Error *providerEnvelope `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	if parsed.Error == nil || (parsed.Error.Type == "" && parsed.Error.Message == "") {
		return nil
	}
	return parsed.Error
}

func degraded(raw []byte) *ChatResponse {
	return &ChatResponse{
		Content:  []ContentBlock{TextBlock(strings.TrimSpace(string(raw)))},
		Degraded: true,
	}
}
