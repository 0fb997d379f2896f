// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge provides the versioned compliance knowledge store, the
// conversational compliance copilot, and point-in-time compliance checks.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/observability"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

// Strategy selects how search ranks entries.
type Strategy string

const (
	// StrategyLexical ranks by containment matching across title, summary,
	// and content. This is the baseline and needs no inference service.
	StrategyLexical Strategy = "lexical"

	// StrategySemantic ranks by cosine similarity between the query
	// embedding and stored entry embeddings. Entries without an embedding
	// fall back to lexical scoring within the same result set. A failed
	// query embedding degrades the whole call to lexical ranking.
	StrategySemantic Strategy = "semantic"
)

// searchCacheTTL is how long a ranking is memoized. The cache affects only
// latency: rankings are recomputed from live records after expiry.
const searchCacheTTL = 30 * time.Second

// defaultSearchLimit applies when a search request does not set a limit.
const defaultSearchLimit = 10

// Store is the compliance knowledge store.
//
// Search is deliberately not read-only: every surfaced entry's usage count is
// incremented as a side effect, once per call per returned entry. The counts
// are approximate by design (lossy-safe under concurrency).
type Store struct {
	records  *storage.Store
	cache    *storage.Cache
	llm      llm.Client
	strategy Strategy
	group    singleflight.Group
}

// NewStore creates a knowledge Store. cache may be nil; its absence changes
// latency, never correctness.
func NewStore(records *storage.Store, cache *storage.Cache, client llm.Client, strategy Strategy) *Store {
	if strategy == "" {
		strategy = StrategyLexical
	}
	return &Store{records: records, cache: cache, llm: client, strategy: strategy}
}

// CreateEntryRequest is the payload for adding a knowledge document.
type CreateEntryRequest struct {
	Title         string     `json:"title" validate:"required"`
	Content       string     `json:"content" validate:"required"`
	Summary       string     `json:"summary,omitempty"`
	Category      string     `json:"category" validate:"required"`
	DocumentType  string     `json:"document_type" validate:"required"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
}

// CreateEntry persists a new active knowledge entry. When the store runs the
// semantic strategy, an embedding is computed best-effort; a failed embedding
// leaves the entry searchable lexically.
func (s *Store) CreateEntry(ctx context.Context, orgID, userID string, req CreateEntryRequest) (datatypes.KnowledgeEntry, error) {
	if err := datatypes.Validate(&req); err != nil {
		return datatypes.KnowledgeEntry{}, fmt.Errorf("invalid knowledge entry: %w", err)
	}

	now := time.Now().UTC()
	entry := datatypes.KnowledgeEntry{
		ID:             datatypes.NewID(),
		OrganizationID: orgID,
		Title:          req.Title,
		Content:        req.Content,
		Summary:        req.Summary,
		Category:       req.Category,
		DocumentType:   req.DocumentType,
		EffectiveDate:  req.EffectiveDate,
		ExpiryDate:     req.ExpiryDate,
		Status:         datatypes.KnowledgeStatusActive,
		CreatedBy:      userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.strategy == StrategySemantic {
		entry.Embedding = s.embed(ctx, req.Title+"\n"+req.Content)
	}

	if err := storage.Put(s.records, datatypes.KindKnowledgeEntry, orgID, entry.ID, entry); err != nil {
		return datatypes.KnowledgeEntry{}, err
	}
	return entry, nil
}

// GetEntry returns one entry.
func (s *Store) GetEntry(ctx context.Context, orgID, id string) (datatypes.KnowledgeEntry, error) {
	return storage.Get[datatypes.KnowledgeEntry](s.records, datatypes.KindKnowledgeEntry, orgID, id)
}

// UpdateEntry replaces an entry's content fields. Usage count and identity
// are preserved; the embedding is recomputed when content changes under the
// semantic strategy.
func (s *Store) UpdateEntry(ctx context.Context, orgID, id string, req CreateEntryRequest) (datatypes.KnowledgeEntry, error) {
	if err := datatypes.Validate(&req); err != nil {
		return datatypes.KnowledgeEntry{}, fmt.Errorf("invalid knowledge entry: %w", err)
	}
	var embedding []float32
	if s.strategy == StrategySemantic {
		embedding = s.embed(ctx, req.Title+"\n"+req.Content)
	}
	return storage.Update(s.records, datatypes.KindKnowledgeEntry, orgID, id,
		func(e *datatypes.KnowledgeEntry) error {
			e.Title = req.Title
			e.Content = req.Content
			e.Summary = req.Summary
			e.Category = req.Category
			e.DocumentType = req.DocumentType
			e.EffectiveDate = req.EffectiveDate
			e.ExpiryDate = req.ExpiryDate
			if embedding != nil {
				e.Embedding = embedding
			}
			e.UpdatedAt = time.Now().UTC()
			return nil
		})
}

// ArchiveEntry removes an entry from active retrieval without deleting it.
func (s *Store) ArchiveEntry(ctx context.Context, orgID, id string) (datatypes.KnowledgeEntry, error) {
	return storage.Update(s.records, datatypes.KindKnowledgeEntry, orgID, id,
		func(e *datatypes.KnowledgeEntry) error {
			e.Status = datatypes.KnowledgeStatusArchived
			e.UpdatedAt = time.Now().UTC()
			return nil
		})
}

// ListEntries returns the organization's entries, newest first.
func (s *Store) ListEntries(ctx context.Context, orgID string, opt storage.ListOptions) ([]datatypes.KnowledgeEntry, error) {
	return storage.List(s.records, datatypes.KindKnowledgeEntry, orgID, nil,
		func(a, b datatypes.KnowledgeEntry) bool { return a.CreatedAt.After(b.CreatedAt) }, opt)
}

// Search returns active entries ranked against the query and increments each
// returned entry's usage count by exactly one.
//
// # Description
//
// The ranking itself is idempotent for an unchanged store and is memoized
// for a short window (deduplicating concurrent identical queries via
// singleflight). The usage-count side effect applies on every call,
// including cache hits.
func (s *Store) Search(ctx context.Context, orgID string, req datatypes.SearchRequest) ([]datatypes.KnowledgeEntry, error) {
	if err := datatypes.Validate(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}

	ids, err := s.rankedIDs(ctx, orgID, req)
	if err != nil {
		return nil, err
	}

	out := make([]datatypes.KnowledgeEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := storage.Update(s.records, datatypes.KindKnowledgeEntry, orgID, id,
			func(e *datatypes.KnowledgeEntry) error {
				e.UsageCount++
				return nil
			})
		if err != nil {
			if datatypes.IsNotFound(err) {
				// Entry deleted since the ranking was cached; skip it.
				continue
			}
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// rankedIDs computes (or recalls) the ordered entry ids for a query.
func (s *Store) rankedIDs(ctx context.Context, orgID string, req datatypes.SearchRequest) ([]string, error) {
	key := searchCacheKey(orgID, req)
	if s.cache != nil {
		if raw, ok := s.cache.Get(key); ok {
			var ids []string
			if err := json.Unmarshal(raw, &ids); err == nil {
				return ids, nil
			}
		}
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		ids, err := s.rank(ctx, orgID, req)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if raw, err := json.Marshal(ids); err == nil {
				s.cache.Set(key, raw, searchCacheTTL)
			}
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (s *Store) rank(ctx context.Context, orgID string, req datatypes.SearchRequest) ([]string, error) {
	match := func(e datatypes.KnowledgeEntry) bool {
		if e.Status != datatypes.KnowledgeStatusActive {
			return false
		}
		if req.Category != "" && e.Category != req.Category {
			return false
		}
		if req.DocumentType != "" && e.DocumentType != req.DocumentType {
			return false
		}
		return true
	}
	entries, err := storage.List(s.records, datatypes.KindKnowledgeEntry, orgID, match, nil, storage.ListOptions{})
	if err != nil {
		return nil, err
	}

	var queryEmb []float32
	if s.strategy == StrategySemantic {
		queryEmb = s.embed(ctx, req.Query)
	}

	terms := queryTerms(req.Query)
	type hit struct {
		id    string
		title string
		score float64
	}
	var hits []hit
	for _, e := range entries {
		var score float64
		if queryEmb != nil && len(e.Embedding) > 0 {
			score = cosine(queryEmb, e.Embedding)
		} else {
			score = lexicalScore(terms, e)
		}
		if score <= 0 {
			continue
		}
		hits = append(hits, hit{id: e.ID, title: e.Title, score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].title < hits[j].title
	})
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}

// embed returns the embedding for text, or nil on failure. Embedding failure
// is an advisory degradation: retrieval falls back to lexical matching.
func (s *Store) embed(ctx context.Context, text string) []float32 {
	start := time.Now()
	emb, err := s.llm.Embed(ctx, text)
	observability.ObserveInference("knowledge_embed", start, err)
	if err != nil {
		slog.Warn("Embedding failed, falling back to lexical matching", "error", err)
		observability.CountFallback("knowledge_embed")
		return nil
	}
	return emb
}

func searchCacheKey(orgID string, req datatypes.SearchRequest) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d",
		orgID, strings.ToLower(req.Query), req.Category, req.DocumentType, req.Limit)))
	return fmt.Sprintf("search/%s/%x", orgID, sum[:12])
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// lexicalScore weights containment matches: title 3, summary 2, content 1.
func lexicalScore(terms []string, e datatypes.KnowledgeEntry) float64 {
	title := strings.ToLower(e.Title)
	summary := strings.ToLower(e.Summary)
	content := strings.ToLower(e.Content)

	var score float64
	for _, t := range terms {
		if strings.Contains(title, t) {
			score += 3
		}
		if strings.Contains(summary, t) {
			score += 2
		}
		if strings.Contains(content, t) {
			score += 1
		}
	}
	return score
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
