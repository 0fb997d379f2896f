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
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.audit.llm.ollama")

// OllamaClient implements Client against a local Ollama server.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	embedModel string
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	CreatedAt       string  `json:"created_at"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaClient creates an Ollama-backed client from environment
// configuration (OLLAMA_BASE_URL, OLLAMA_MODEL, OLLAMA_EMBED_MODEL).
func NewOllamaClient() (*OllamaClient, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	model := os.Getenv("OLLAMA_MODEL")
	embedModel := os.Getenv("OLLAMA_EMBED_MODEL")
	if baseURL == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}
	if model == "" {
		slog.Warn("OLLAMA_MODEL not set, defaulting to gpt-oss")
		model = "gpt-oss"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "default_model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		model:      model,
		embedModel: embedModel,
	}, nil
}

// Chat implements the Client interface.
func (o *OllamaClient) Chat(ctx context.Context, messages []Message,
	params GenerationParams) (*ChatResult, error) {

	ctx, span := tracer.Start(ctx, "OllamaClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	slog.Debug("Chat via Ollama", "model", o.model)
	payload := ollamaChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
		Options:  o.options(params),
	}
	respBody, err := o.post(ctx, "/api/chat", payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		slog.Error("Failed to parse JSON chat response from Ollama", "error", err,
			"response", string(respBody))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse Ollama chat response: %w", err)
	}
	if ollamaResp.Message.Role != "assistant" {
		slog.Warn("Ollama chat response message role was not 'assistant'", "role", ollamaResp.Message.Role)
	}
	return &ChatResult{
		Text: ollamaResp.Message.Content,
		Usage: &TokenUsage{
			PromptTokens:     ollamaResp.PromptEvalCount,
			CompletionTokens: ollamaResp.EvalCount,
			TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
		},
	}, nil
}

// Generate implements the Client interface by wrapping the prompt in a
// single-turn chat call.
func (o *OllamaClient) Generate(ctx context.Context, prompt string,
	params GenerationParams) (string, error) {

	result, err := o.Chat(ctx, []Message{{Role: "user", Content: prompt}}, params)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Embed implements the Client interface.
func (o *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Embed")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.embedModel))

	respBody, err := o.post(ctx, "/api/embeddings", ollamaEmbedRequest{
		Model:  o.embedModel,
		Prompt: text,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	var resp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse Ollama embedding response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return resp.Embedding, nil
}

// post sends a JSON payload and returns the raw response body, mapping
// non-200 statuses (including missing models) to errors.
func (o *OllamaClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request to Ollama: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request to Ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		slog.Error("Ollama API call failed", "error", err)
		return nil, fmt.Errorf("Ollama API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from Ollama: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			var errResp struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(respBody, &errResp); err == nil &&
				strings.Contains(errResp.Error, "model") && strings.Contains(errResp.Error, "not found") {
				slog.Warn("Ollama model not found", "model", o.model)
				return nil, fmt.Errorf("model '%s' not found. Please run: 'ollama pull %s'", o.model, o.model)
			}
		}
		slog.Error("Ollama returned an error", "status_code", resp.StatusCode, "response", string(respBody))
		return nil, fmt.Errorf("Ollama failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (o *OllamaClient) options(params GenerationParams) map[string]interface{} {
	options := make(map[string]interface{})
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	} else {
		options["temperature"] = float32(0.2)
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	} else {
		options["top_p"] = float32(0.9)
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	} else {
		options["num_predict"] = 8192
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	return options
}

var _ Client = (*OllamaClient)(nil)
