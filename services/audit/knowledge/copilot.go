// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/observability"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

var copilotTracer = otel.Tracer("aleutian.audit.knowledge.copilot")

// retrievalLimit is how many knowledge entries are surfaced as context for
// one copilot turn.
const retrievalLimit = 5

// contextSnippetChars bounds each entry's contribution to the context block.
const contextSnippetChars = 400

// titleChars bounds the auto-generated conversation title.
const titleChars = 100

// systemPreamble opens every new compliance conversation.
const systemPreamble = "You are a compliance copilot for quality audit teams. " +
	"Answer using the provided organizational knowledge where possible, cite the " +
	"referenced documents by title, and say clearly when the knowledge base does " +
	"not cover a question. Never invent regulatory requirements."

// apologyMessage is returned when the inference service fails. Chat is a
// blocking interactive surface: it always returns something.
const apologyMessage = "I'm sorry — I wasn't able to process that question just now. " +
	"Please try again in a moment."

// Copilot is the stateful multi-turn conversation manager layered on
// knowledge retrieval and the inference service.
type Copilot struct {
	records *storage.Store
	store   *Store
	llm     llm.Client
}

// NewCopilot creates a Copilot over the given knowledge store.
func NewCopilot(records *storage.Store, store *Store, client llm.Client) *Copilot {
	return &Copilot{records: records, store: store, llm: client}
}

// Chat processes one copilot turn.
//
// # Description
//
// Loads or creates the conversation, retrieves up to five relevant knowledge
// entries (incrementing their usage counts), injects them as a bounded
// system context block, invokes the inference service over the full
// transcript, appends both turns, and persists the transcript. An inference
// failure yields the apology fallback instead of an error.
//
// # Errors
//
//   - *datatypes.NotFoundError: ConversationID set but the conversation does
//     not exist, or belongs to a different user or organization.
func (c *Copilot) Chat(ctx context.Context, orgID, userID string, req datatypes.ChatRequest) (datatypes.ChatResponse, error) {
	ctx, span := copilotTracer.Start(ctx, "Copilot.Chat")
	defer span.End()

	if err := datatypes.Validate(&req); err != nil {
		return datatypes.ChatResponse{}, fmt.Errorf("invalid chat request: %w", err)
	}

	conv, err := c.loadOrCreate(ctx, orgID, userID, req)
	if err != nil {
		return datatypes.ChatResponse{}, err
	}
	span.SetAttributes(
		attribute.String("conversation.id", conv.ID),
		attribute.Int("conversation.turns", len(conv.Messages)),
	)

	sources, contextBlock := c.retrieve(ctx, orgID, req.Message)

	now := time.Now().UTC()
	if conv.Title == "" {
		conv.Title = defaultTitle(req.Message)
	}
	conv.Messages = append(conv.Messages, datatypes.ConversationMessage{
		Role:      datatypes.RoleUser,
		Content:   req.Message,
		Timestamp: now,
	})

	reply, ok := c.generate(ctx, conv, contextBlock)
	if !ok {
		sources = nil
	}

	conv.Messages = append(conv.Messages, datatypes.ConversationMessage{
		Role:      datatypes.RoleAssistant,
		Content:   reply,
		Timestamp: time.Now().UTC(),
		Sources:   sources,
	})
	conv.UpdatedAt = time.Now().UTC()

	if err := storage.Put(c.records, datatypes.KindConversation, orgID, conv.ID, conv); err != nil {
		return datatypes.ChatResponse{}, err
	}

	return datatypes.ChatResponse{
		ConversationID: conv.ID,
		Message:        reply,
		Sources:        append([]string{}, sources...),
	}, nil
}

// GetConversation returns one conversation, enforcing user ownership.
func (c *Copilot) GetConversation(ctx context.Context, orgID, userID, id string) (datatypes.ComplianceConversation, error) {
	conv, err := storage.Get[datatypes.ComplianceConversation](c.records, datatypes.KindConversation, orgID, id)
	if err != nil {
		return datatypes.ComplianceConversation{}, err
	}
	if conv.UserID != userID {
		// Ownership mismatch is indistinguishable from absence to the caller.
		return datatypes.ComplianceConversation{}, &datatypes.NotFoundError{Kind: datatypes.KindConversation, ID: id}
	}
	return conv, nil
}

// ListConversations returns the user's conversations, most recently updated
// first.
func (c *Copilot) ListConversations(ctx context.Context, orgID, userID string, opt storage.ListOptions) ([]datatypes.ComplianceConversation, error) {
	return storage.List(c.records, datatypes.KindConversation, orgID,
		func(conv datatypes.ComplianceConversation) bool { return conv.UserID == userID },
		func(a, b datatypes.ComplianceConversation) bool { return a.UpdatedAt.After(b.UpdatedAt) },
		opt)
}

func (c *Copilot) loadOrCreate(ctx context.Context, orgID, userID string, req datatypes.ChatRequest) (datatypes.ComplianceConversation, error) {
	if req.ConversationID != "" {
		return c.GetConversation(ctx, orgID, userID, req.ConversationID)
	}

	now := time.Now().UTC()
	return datatypes.ComplianceConversation{
		ID:             datatypes.NewID(),
		OrganizationID: orgID,
		UserID:         userID,
		Context:        req.Context,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// retrieve surfaces knowledge entries for the incoming message and formats
// the bounded context block. Retrieval failure costs context, not the turn.
func (c *Copilot) retrieve(ctx context.Context, orgID, message string) ([]string, string) {
	entries, err := c.store.Search(ctx, orgID, datatypes.SearchRequest{
		Query: message,
		Limit: retrievalLimit,
	})
	if err != nil {
		slog.Warn("Knowledge retrieval failed, answering without context", "error", err)
		return nil, ""
	}
	if len(entries) == 0 {
		return nil, ""
	}

	var b strings.Builder
	b.WriteString("Relevant organizational compliance knowledge:\n")
	sources := make([]string, 0, len(entries))
	for _, e := range entries {
		snippet := e.Summary
		if snippet == "" {
			snippet = e.Content
		}
		snippet = truncateRunes(snippet, contextSnippetChars)
		fmt.Fprintf(&b, "- %s: %s\n", e.Title, snippet)
		sources = append(sources, e.ID)
	}
	return sources, b.String()
}

// generate invokes the inference service over the full transcript. The
// system preamble and the retrieval context block are injected at call time;
// the persisted transcript holds only user and assistant turns. The second
// return value is false when the apology fallback was substituted.
func (c *Copilot) generate(ctx context.Context, conv datatypes.ComplianceConversation, contextBlock string) (string, bool) {
	messages := make([]llm.Message, 0, len(conv.Messages)+2)
	messages = append(messages, llm.Message{Role: datatypes.RoleSystem, Content: systemPreamble})
	if contextBlock != "" {
		messages = append(messages, llm.Message{Role: datatypes.RoleSystem, Content: contextBlock})
	}
	for _, m := range conv.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	result, err := c.llm.Chat(ctx, messages, llm.GenerationParams{})
	observability.ObserveInference("copilot_chat", start, err)
	if err != nil {
		slog.Warn("Copilot inference failed, returning apology fallback",
			"conversation_id", conv.ID, "error", err)
		observability.CountFallback("copilot_chat")
		return apologyMessage, false
	}
	return result.Text, true
}

func defaultTitle(message string) string {
	return truncateRunes(strings.TrimSpace(message), titleChars)
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
