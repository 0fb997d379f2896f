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
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client against the OpenAI API (or any
// OpenAI-compatible endpoint via OPENAI_BASE_URL).
type OpenAIClient struct {
	client     *openai.Client
	model      string
	embedModel string
}

// NewOpenAIClient creates an OpenAI-backed client from environment
// configuration. The API key is read from OPENAI_API_KEY, falling back to the
// container secret at /run/secrets/openai_api_key.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	embedModel := os.Getenv("OPENAI_EMBED_MODEL")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from container secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	if embedModel == "" {
		embedModel = string(openai.SmallEmbedding3)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	slog.Info("Initializing OpenAI client", "model", model, "embed_model", embedModel)
	return &OpenAIClient{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		embedModel: embedModel,
	}, nil
}

// Chat implements the Client interface.
func (o *OpenAIClient) Chat(ctx context.Context, messages []Message,
	params GenerationParams) (*ChatResult, error) {

	slog.Debug("Chat via OpenAI", "model", o.model, "messages", len(messages))
	req := openai.ChatCompletionRequest{Model: o.model}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	applyParams(&req, params)

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return nil, fmt.Errorf("OpenAI returned no choices")
	}
	return &ChatResult{
		Text: resp.Choices[0].Message.Content,
		Usage: &TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Generate implements the Client interface by wrapping the prompt in a
// single-turn chat call.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string,
	params GenerationParams) (string, error) {

	result, err := o.Chat(ctx, []Message{{Role: "user", Content: prompt}}, params)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Embed implements the Client interface.
func (o *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.embedModel),
	})
	if err != nil {
		slog.Error("OpenAI embedding call failed", "error", err)
		return nil, fmt.Errorf("OpenAI embedding call failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("OpenAI returned no embedding data")
	}
	return resp.Data[0].Embedding, nil
}

func applyParams(req *openai.ChatCompletionRequest, params GenerationParams) {
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
}

var _ Client = (*OpenAIClient)(nil)
