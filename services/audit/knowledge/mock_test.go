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
	"errors"

	"github.com/AleutianAI/AleutianAudit/services/llm"
)

// stubClient is a programmable inference backend. Unset hooks fail, which
// exercises the advisory-degradation paths.
type stubClient struct {
	generateFn func(prompt string) (string, error)
	chatFn     func(messages []llm.Message) (string, error)
	embedFn    func(text string) ([]float32, error)

	chatCalls     [][]llm.Message
	generateCalls []string
}

var _ llm.Client = (*stubClient)(nil)

func (s *stubClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	s.generateCalls = append(s.generateCalls, prompt)
	if s.generateFn == nil {
		return "", errors.New("stub: generate not configured")
	}
	return s.generateFn(prompt)
}

func (s *stubClient) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (*llm.ChatResult, error) {
	snapshot := make([]llm.Message, len(messages))
	copy(snapshot, messages)
	s.chatCalls = append(s.chatCalls, snapshot)
	if s.chatFn == nil {
		return nil, errors.New("stub: chat not configured")
	}
	text, err := s.chatFn(messages)
	if err != nil {
		return nil, err
	}
	return &llm.ChatResult{Text: text}, nil
}

func (s *stubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedFn == nil {
		return nil, errors.New("stub: embed not configured")
	}
	return s.embedFn(text)
}
