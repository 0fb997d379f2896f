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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
)

func newTestStore(t *testing.T, client *stubClient, strategy Strategy) *Store {
	t.Helper()
	s, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewStore(s, storage.NewCache(s), client, strategy)
}

func seedEntry(t *testing.T, ks *Store, orgID, title, content string) datatypes.KnowledgeEntry {
	t.Helper()
	e, err := ks.CreateEntry(context.Background(), orgID, "user-1", CreateEntryRequest{
		Title:        title,
		Content:      content,
		Category:     "sop",
		DocumentType: "procedure",
	})
	require.NoError(t, err)
	return e
}

func TestCreateEntry(t *testing.T) {
	ks := newTestStore(t, &stubClient{}, StrategyLexical)
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		e := seedEntry(t, ks, "org-1", "Welding SOP", "Purge lines before welding stainless.")
		assert.Equal(t, datatypes.KnowledgeStatusActive, e.Status)
		assert.Zero(t, e.UsageCount)

		got, err := ks.GetEntry(ctx, "org-1", e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.Title, got.Title)
	})

	t.Run("missing required fields", func(t *testing.T) {
		_, err := ks.CreateEntry(ctx, "org-1", "user-1", CreateEntryRequest{Title: "no content"})
		assert.Error(t, err)
	})
}

func TestUpdateEntry_PreservesUsageCount(t *testing.T) {
	ks := newTestStore(t, &stubClient{}, StrategyLexical)
	ctx := context.Background()
	e := seedEntry(t, ks, "org-1", "Calibration SOP", "Calibrate torque wrenches monthly.")

	// Drive the usage count up via a search hit.
	_, err := ks.Search(ctx, "org-1", datatypes.SearchRequest{Query: "calibration"})
	require.NoError(t, err)

	updated, err := ks.UpdateEntry(ctx, "org-1", e.ID, CreateEntryRequest{
		Title:        "Calibration SOP v2",
		Content:      "Calibrate torque wrenches weekly.",
		Category:     "sop",
		DocumentType: "procedure",
	})
	require.NoError(t, err)
	assert.Equal(t, "Calibration SOP v2", updated.Title)
	assert.Equal(t, 1, updated.UsageCount, "usage count must survive content updates")
	assert.True(t, updated.UpdatedAt.After(e.UpdatedAt) || updated.UpdatedAt.Equal(e.UpdatedAt))
}

func TestArchiveEntry_ExcludedFromSearch(t *testing.T) {
	ks := newTestStore(t, &stubClient{}, StrategyLexical)
	ctx := context.Background()
	e := seedEntry(t, ks, "org-1", "Obsolete spec", "Legacy torque values.")

	archived, err := ks.ArchiveEntry(ctx, "org-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.KnowledgeStatusArchived, archived.Status)

	out, err := ks.Search(ctx, "org-1", datatypes.SearchRequest{Query: "torque"})
	require.NoError(t, err)
	assert.Empty(t, out)

	// Still retrievable directly.
	got, err := ks.GetEntry(ctx, "org-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.KnowledgeStatusArchived, got.Status)
}

func TestSearch_LexicalRanking(t *testing.T) {
	ks := newTestStore(t, &stubClient{}, StrategyLexical)
	ctx := context.Background()

	titleHit := seedEntry(t, ks, "org-1", "Welding procedure", "General fabrication notes.")
	contentHit := seedEntry(t, ks, "org-1", "Fabrication notes", "Covers welding and brazing.")
	seedEntry(t, ks, "org-1", "Shipping checklist", "Pack and label crates.")

	out, err := ks.Search(ctx, "org-1", datatypes.SearchRequest{Query: "welding"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, titleHit.ID, out[0].ID, "title matches outrank content matches")
	assert.Equal(t, contentHit.ID, out[1].ID)
}

func TestSearch_UsageCountIncrementsEveryCall(t *testing.T) {
	ks := newTestStore(t, &stubClient{}, StrategyLexical)
	ctx := context.Background()
	e := seedEntry(t, ks, "org-1", "Welding SOP", "Purge lines before welding.")

	for i := 1; i <= 3; i++ {
		out, err := ks.Search(ctx, "org-1", datatypes.SearchRequest{Query: "welding"})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, i, out[0].UsageCount,
			"usage count applies on every call, cached rankings included")
	}

	got, err := ks.GetEntry(ctx, "org-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UsageCount)
}

func TestSearch_Filters(t *testing.T) {
	ks := newTestStore(t, &stubClient{}, StrategyLexical)
	ctx := context.Background()

	sop, err := ks.CreateEntry(ctx, "org-1", "user-1", CreateEntryRequest{
		Title: "Welding SOP", Content: "steps", Category: "sop", DocumentType: "procedure",
	})
	require.NoError(t, err)
	_, err = ks.CreateEntry(ctx, "org-1", "user-1", CreateEntryRequest{
		Title: "Welding standard", Content: "requirements", Category: "standard", DocumentType: "spec",
	})
	require.NoError(t, err)

	out, err := ks.Search(ctx, "org-1", datatypes.SearchRequest{Query: "welding", Category: "sop"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, sop.ID, out[0].ID)
}

func TestSearch_Limit(t *testing.T) {
	ks := newTestStore(t, &stubClient{}, StrategyLexical)
	ctx := context.Background()
	for _, title := range []string{"Welding A", "Welding B", "Welding C"} {
		seedEntry(t, ks, "org-1", title, "welding content")
	}

	out, err := ks.Search(ctx, "org-1", datatypes.SearchRequest{Query: "welding", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestSearch_SemanticFallsBackLexicallyOnEmbedFailure(t *testing.T) {
	// embedFn unset: every Embed call fails.
	ks := newTestStore(t, &stubClient{}, StrategySemantic)
	ctx := context.Background()
	seedEntry(t, ks, "org-1", "Welding SOP", "Purge lines before welding.")

	out, err := ks.Search(ctx, "org-1", datatypes.SearchRequest{Query: "welding"})
	require.NoError(t, err, "embedding failure must degrade, not error")
	assert.Len(t, out, 1)
}

func TestSearch_SemanticRanksByCosine(t *testing.T) {
	// One-dimensional embeddings keyed off the text make similarity ordering
	// deterministic: the query embeds to 1.0, near to 0.9, far to 0.1.
	client := &stubClient{embedFn: func(text string) ([]float32, error) {
		switch {
		case text == "pressure relief":
			return []float32{1, 0}, nil
		case text == "Relief valves\nSizing pressure relief valves.":
			return []float32{0.9, 0.1}, nil
		default:
			return []float32{0.1, 0.9}, nil
		}
	}}
	ks := newTestStore(t, client, StrategySemantic)
	ctx := context.Background()

	near := seedEntry(t, ks, "org-1", "Relief valves", "Sizing pressure relief valves.")
	seedEntry(t, ks, "org-1", "Crane inspection", "Annual crane checks.")

	out, err := ks.Search(ctx, "org-1", datatypes.SearchRequest{Query: "pressure relief"})
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, near.ID, out[0].ID)
}

func TestSearch_RejectsEmptyQuery(t *testing.T) {
	ks := newTestStore(t, &stubClient{}, StrategyLexical)
	_, err := ks.Search(context.Background(), "org-1", datatypes.SearchRequest{})
	assert.Error(t, err)
}
