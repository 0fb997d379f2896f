// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the inference-service client abstraction for the
// audit engine.
//
// The engine consumes text generation and embeddings through the Client
// interface; concrete backends (OpenAI, Ollama) are selected at startup.
// Backends must tolerate slow responses and outright failure — every caller
// in the engine treats inference output as advisory and substitutes a
// documented neutral default when a call fails (see ParseStructured).
package llm

import "context"

// Message is one turn of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage reports token accounting for one inference call, when the
// backend provides it.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is the outcome of one chat call.
type ChatResult struct {
	Text  string      `json:"text"`
	Usage *TokenUsage `json:"usage,omitempty"`
}

// GenerationParams tunes a generation or chat call. Nil fields use backend
// defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Int returns a pointer to v, for the optional GenerationParams fields.
func Int(v int) *int { return &v }

// Float32 returns a pointer to v, for the optional GenerationParams fields.
func Float32(v float32) *float32 { return &v }

// Client defines the standard interface for any inference backend.
type Client interface {
	// Chat runs one inference call over a full message transcript.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (*ChatResult, error)

	// Generate runs one inference call over a single prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Embed returns an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}
