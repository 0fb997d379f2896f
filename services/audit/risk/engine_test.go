// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAudit/services/audit/config"
	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

// mockClient is a scripted inference backend. Each call consumes the next
// scripted response; running past the script returns an error.
type mockClient struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (m *mockClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", errors.New("mock: no scripted response")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *mockClient) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (*llm.ChatResult, error) {
	text, err := m.Generate(ctx, "", params)
	if err != nil {
		return nil, err
	}
	return &llm.ChatResult{Text: text}, nil
}

func (m *mockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("mock: embeddings not scripted")
}

var _ llm.Client = (*mockClient)(nil)

func newTestEngine(t *testing.T, client llm.Client) (*Engine, *DataStore) {
	t.Helper()
	s, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	data := NewDataStore(s)
	return NewEngine(s, data, client, config.NewRepository(s)), data
}

func TestIngestAndWindow(t *testing.T) {
	_, data := newTestEngine(t, &mockClient{})
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	points, err := data.Ingest(ctx, "org-1", []DataPointInput{
		{EntityType: "supplier", EntityID: "sup-1", MetricName: "defect_rate", Value: 0.02, Timestamp: base},
		{EntityType: "supplier", EntityID: "sup-1", MetricName: "defect_rate", Value: 0.05, Timestamp: base.Add(24 * time.Hour)},
		{EntityType: "process", EntityID: "line-3", MetricName: "scrap_rate", Value: 0.10, Timestamp: base.Add(48 * time.Hour)},
	})
	require.NoError(t, err)
	assert.Len(t, points, 3)

	t.Run("entity filter", func(t *testing.T) {
		out, err := data.Window(ctx, "org-1", WindowFilter{
			EntityRef: &datatypes.EntityRef{EntityType: "supplier", EntityID: "sup-1"},
		})
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("period is half open", func(t *testing.T) {
		out, err := data.Window(ctx, "org-1", WindowFilter{
			Period: &datatypes.Period{From: base, To: base.Add(48 * time.Hour)},
		})
		require.NoError(t, err)
		assert.Len(t, out, 2, "a point exactly at To must be excluded")
	})

	t.Run("newest first", func(t *testing.T) {
		out, err := data.Window(ctx, "org-1", WindowFilter{})
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, "scrap_rate", out[0].MetricName)
	})

	t.Run("missing required field rejected", func(t *testing.T) {
		_, err := data.Ingest(ctx, "org-1", []DataPointInput{
			{EntityType: "supplier", MetricName: "defect_rate"},
		})
		assert.Error(t, err)
	})
}

func TestRunAssessment_ScoredResult(t *testing.T) {
	client := &mockClient{responses: []string{`{
		"overall_score": 81.4,
		"quality_score": 70,
		"process_score": 60,
		"supplier_score": 90,
		"compliance_score": 75,
		"risk_factors": [{"factor": "supplier defect trend", "weight": 0.3, "score": 88, "description": "rising"}],
		"analysis": "Supplier defect rates are trending up.",
		"recommendations": ["audit supplier sup-1"],
		"suggested_resources": ["quality engineer"]
	}`}}
	engine, _ := newTestEngine(t, client)

	got, err := engine.RunAssessment(context.Background(), "org-1", "user-1",
		datatypes.RunAssessmentRequest{AssessmentType: "supplier"})
	require.NoError(t, err)

	assert.InDelta(t, 81.4, got.OverallRiskScore, 0.001)
	assert.Equal(t, datatypes.AssessmentStatusActive, got.Status)
	assert.Equal(t, "user-1", got.CreatedBy)
	assert.NotEmpty(t, got.AssessmentNumber)
	require.Len(t, got.RiskFactors, 1)
	assert.Equal(t, "Supplier defect rates are trending up.", got.AnalysisText)

	stored, err := engine.GetAssessment(context.Background(), "org-1", got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ID, stored.ID)
}

func TestRunAssessment_InferenceFailureUsesNeutralDefaults(t *testing.T) {
	engine, _ := newTestEngine(t, &mockClient{err: errors.New("backend down")})

	got, err := engine.RunAssessment(context.Background(), "org-1", "user-1",
		datatypes.RunAssessmentRequest{AssessmentType: "process"})
	require.NoError(t, err, "inference failure must not reject the assessment")

	assert.Equal(t, float64(50), got.OverallRiskScore)
	assert.Equal(t, float64(50), got.QualityScore)
	assert.Equal(t, float64(50), got.ProcessScore)
	assert.Equal(t, float64(50), got.SupplierScore)
	assert.Equal(t, float64(50), got.ComplianceScore)
	assert.Empty(t, got.RiskFactors)
	assert.Empty(t, got.Recommendations)
}

func TestRunAssessment_MalformedOutputUsesNeutralDefaults(t *testing.T) {
	engine, _ := newTestEngine(t, &mockClient{responses: []string{"the risk seems moderate overall"}})

	got, err := engine.RunAssessment(context.Background(), "org-1", "user-1",
		datatypes.RunAssessmentRequest{AssessmentType: "process"})
	require.NoError(t, err)
	assert.Equal(t, float64(50), got.OverallRiskScore)
}

func TestRunAssessment_ScoresClamped(t *testing.T) {
	client := &mockClient{responses: []string{`{
		"overall_score": 240,
		"quality_score": -12,
		"process_score": 55,
		"supplier_score": 101,
		"compliance_score": 0,
		"risk_factors": [{"factor": "overflow", "score": 900}]
	}`}}
	engine, _ := newTestEngine(t, client)

	got, err := engine.RunAssessment(context.Background(), "org-1", "user-1",
		datatypes.RunAssessmentRequest{AssessmentType: "quality"})
	require.NoError(t, err)

	assert.Equal(t, float64(100), got.OverallRiskScore)
	assert.Equal(t, float64(0), got.QualityScore)
	assert.Equal(t, float64(55), got.ProcessScore)
	assert.Equal(t, float64(100), got.SupplierScore)
	require.Len(t, got.RiskFactors, 1)
	assert.Equal(t, float64(100), got.RiskFactors[0].Score)
}

func TestRunAssessment_SupersedesPriorActiveOfSameScope(t *testing.T) {
	// Neutral defaults are fine here; only the status bookkeeping matters.
	engine, _ := newTestEngine(t, &mockClient{err: errors.New("backend down")})
	ctx := context.Background()

	first, err := engine.RunAssessment(ctx, "org-1", "user-1",
		datatypes.RunAssessmentRequest{AssessmentType: "supplier"})
	require.NoError(t, err)

	process, err := engine.RunAssessment(ctx, "org-1", "user-1",
		datatypes.RunAssessmentRequest{AssessmentType: "process"})
	require.NoError(t, err)

	scoped, err := engine.RunAssessment(ctx, "org-1", "user-1",
		datatypes.RunAssessmentRequest{
			AssessmentType: "supplier",
			EntityRef:      &datatypes.EntityRef{EntityType: "supplier", EntityID: "sup-1"},
		})
	require.NoError(t, err)

	second, err := engine.RunAssessment(ctx, "org-1", "user-1",
		datatypes.RunAssessmentRequest{AssessmentType: "supplier"})
	require.NoError(t, err)

	status := func(id string) string {
		a, err := engine.GetAssessment(ctx, "org-1", id)
		require.NoError(t, err)
		return a.Status
	}
	assert.Equal(t, datatypes.AssessmentStatusSuperseded, status(first.ID),
		"same type and scope gets superseded, never deleted")
	assert.Equal(t, datatypes.AssessmentStatusActive, status(second.ID))
	assert.Equal(t, datatypes.AssessmentStatusActive, status(process.ID),
		"other assessment types stay active")
	assert.Equal(t, datatypes.AssessmentStatusActive, status(scoped.ID),
		"entity-scoped assessments are a separate scope")
}

func TestRunAssessment_RejectsInvalidRequest(t *testing.T) {
	engine, _ := newTestEngine(t, &mockClient{})

	_, err := engine.RunAssessment(context.Background(), "org-1", "user-1",
		datatypes.RunAssessmentRequest{})
	assert.Error(t, err)
}

func TestListAssessments_NewestFirst(t *testing.T) {
	client := &mockClient{responses: []string{
		`{"overall_score": 10}`,
		`{"overall_score": 20}`,
	}}
	engine, _ := newTestEngine(t, client)
	ctx := context.Background()

	first, err := engine.RunAssessment(ctx, "org-1", "user-1",
		datatypes.RunAssessmentRequest{AssessmentType: "quality"})
	require.NoError(t, err)
	second, err := engine.RunAssessment(ctx, "org-1", "user-1",
		datatypes.RunAssessmentRequest{AssessmentType: "quality"})
	require.NoError(t, err)

	list, err := engine.ListAssessments(ctx, "org-1", storage.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	// Both were created within the same instant on fast machines; accept
	// either order in that case, otherwise newest must come first.
	if list[0].AssessmentDate.After(list[1].AssessmentDate) {
		assert.Equal(t, second.ID, list[0].ID)
	}
	_ = first
}

func TestGenerateTasksFromAssessment(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, taskOutput string) (*Engine, datatypes.RiskAssessment, *mockClient) {
		t.Helper()
		client := &mockClient{responses: []string{`{
			"overall_score": 85,
			"risk_factors": [
				{"factor": "weld porosity", "score": 90},
				{"factor": "late deliveries", "score": 62},
				{"factor": "paperwork gaps", "score": 30}
			]
		}`, taskOutput}}
		engine, _ := newTestEngine(t, client)
		a, err := engine.RunAssessment(ctx, "org-1", "user-1",
			datatypes.RunAssessmentRequest{AssessmentType: "quality"})
		require.NoError(t, err)
		return engine, a, client
	}

	t.Run("creates tasks and counts them", func(t *testing.T) {
		engine, a, _ := seed(t, `[
			{"title": "Inspect weld line", "description": "porosity spike", "priority": "high", "risk_score": 90},
			{"title": "Review supplier SLAs", "priority": "medium", "risk_score": 62}
		]`)

		tasks, err := engine.GenerateTasksFromAssessment(ctx, "org-1", "user-1",
			datatypes.GenerateTasksRequest{AssessmentID: a.ID, MinRiskScore: 60, MaxTasks: 5})
		require.NoError(t, err)
		require.Len(t, tasks, 2)

		for _, task := range tasks {
			assert.Equal(t, datatypes.TaskSourceRiskAssessment, task.Source)
			assert.True(t, task.AIGenerated)
			assert.Equal(t, datatypes.TaskStatusPending, task.Status)
			assert.NotEmpty(t, task.TaskNumber)
		}
		assert.Equal(t, "high", tasks[0].Priority)

		updated, err := engine.GetAssessment(ctx, "org-1", a.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.TasksGenerated,
			"counter must increment by the number actually created")
	})

	t.Run("truncates to max tasks", func(t *testing.T) {
		engine, a, _ := seed(t, `[
			{"title": "t1", "risk_score": 80},
			{"title": "t2", "risk_score": 80},
			{"title": "t3", "risk_score": 80}
		]`)

		tasks, err := engine.GenerateTasksFromAssessment(ctx, "org-1", "user-1",
			datatypes.GenerateTasksRequest{AssessmentID: a.ID, MinRiskScore: 50, MaxTasks: 2})
		require.NoError(t, err)
		assert.Len(t, tasks, 2)
	})

	t.Run("blank titles are skipped", func(t *testing.T) {
		engine, a, _ := seed(t, `[
			{"title": "  ", "risk_score": 80},
			{"title": "Real task", "risk_score": 80}
		]`)

		tasks, err := engine.GenerateTasksFromAssessment(ctx, "org-1", "user-1",
			datatypes.GenerateTasksRequest{AssessmentID: a.ID, MinRiskScore: 50, MaxTasks: 5})
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "Real task", tasks[0].Title)
	})

	t.Run("malformed output creates no tasks", func(t *testing.T) {
		engine, a, _ := seed(t, "I would suggest auditing the weld line.")

		tasks, err := engine.GenerateTasksFromAssessment(ctx, "org-1", "user-1",
			datatypes.GenerateTasksRequest{AssessmentID: a.ID, MinRiskScore: 50, MaxTasks: 5})
		require.NoError(t, err)
		assert.Empty(t, tasks)

		updated, err := engine.GetAssessment(ctx, "org-1", a.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, updated.TasksGenerated)
	})

	t.Run("no eligible factors skips inference", func(t *testing.T) {
		engine, a, client := seed(t, `unused`)

		tasks, err := engine.GenerateTasksFromAssessment(ctx, "org-1", "user-1",
			datatypes.GenerateTasksRequest{AssessmentID: a.ID, MinRiskScore: 95, MaxTasks: 5})
		require.NoError(t, err)
		assert.Empty(t, tasks)
		assert.Equal(t, 1, client.calls, "only the scoring call should have happened")
	})

	t.Run("unknown assessment", func(t *testing.T) {
		engine, _, _ := seed(t, `[]`)
		_, err := engine.GenerateTasksFromAssessment(ctx, "org-1", "user-1",
			datatypes.GenerateTasksRequest{AssessmentID: "missing", MinRiskScore: 50, MaxTasks: 5})
		assert.True(t, datatypes.IsNotFound(err))
	})
}

func TestRunAssessment_AutoGeneratesTasksWhenConfigured(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{responses: []string{
		`{"overall_score": 88, "risk_factors": [{"factor": "hot spot", "score": 92}]}`,
		`[{"title": "Containment audit", "priority": "critical", "risk_score": 92}]`,
	}}
	engine, _ := newTestEngine(t, client)

	_, err := engine.cfg.Update(ctx, "org-1", func(cfg *datatypes.AuditConfiguration) {
		cfg.AutoGenerateTasks = true
		cfg.AutoGenerateThreshold = 70
	})
	require.NoError(t, err)

	got, err := engine.RunAssessment(ctx, "org-1", "user-1",
		datatypes.RunAssessmentRequest{AssessmentType: "quality"})
	require.NoError(t, err)
	assert.Equal(t, 1, got.TasksGenerated)
	assert.Equal(t, 2, client.calls)
}
