// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

// stubClient answers Generate with a fixed response or error.
type stubClient struct {
	response string
	err      error
}

var _ llm.Client = (*stubClient)(nil)

func (s *stubClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubClient) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (*llm.ChatResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResult{Text: s.response}, nil
}

func (s *stubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("stub: no embeddings")
}

func newTestLifecycle(t *testing.T, client llm.Client) *Lifecycle {
	t.Helper()
	s, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewLifecycle(s, client)
}

func seedTask(t *testing.T, l *Lifecycle) datatypes.AuditTask {
	t.Helper()
	task, err := l.CreateTask(context.Background(), "org-1", "user-1", datatypes.CreateTaskRequest{
		Title:     "Audit weld line 3",
		AuditType: "process",
	})
	require.NoError(t, err)
	return task
}

func TestCreateTask_Defaults(t *testing.T) {
	l := newTestLifecycle(t, &stubClient{})

	task := seedTask(t, l)
	assert.Equal(t, datatypes.TaskStatusPending, task.Status)
	assert.Equal(t, datatypes.PriorityMedium, task.Priority)
	assert.Equal(t, datatypes.TaskSourceManual, task.Source)
	assert.False(t, task.AIGenerated)
	assert.NotEmpty(t, task.TaskNumber)
}

func TestCreateTask_RejectsInvalid(t *testing.T) {
	l := newTestLifecycle(t, &stubClient{})

	_, err := l.CreateTask(context.Background(), "org-1", "user-1",
		datatypes.CreateTaskRequest{Title: "no audit type"})
	assert.Error(t, err)

	_, err = l.CreateTask(context.Background(), "org-1", "user-1",
		datatypes.CreateTaskRequest{Title: "t", AuditType: "process", Priority: "urgent"})
	assert.Error(t, err, "priority outside the enum is rejected")
}

func TestTaskTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("pending to in_progress", func(t *testing.T) {
		l := newTestLifecycle(t, &stubClient{})
		task := seedTask(t, l)

		started, err := l.StartTask(ctx, "org-1", task.ID)
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusInProgress, started.Status)
	})

	t.Run("start is not idempotent", func(t *testing.T) {
		l := newTestLifecycle(t, &stubClient{})
		task := seedTask(t, l)
		_, err := l.StartTask(ctx, "org-1", task.ID)
		require.NoError(t, err)

		_, err = l.StartTask(ctx, "org-1", task.ID)
		assert.True(t, datatypes.IsInvariant(err))
	})

	t.Run("cancel from pending and in_progress", func(t *testing.T) {
		l := newTestLifecycle(t, &stubClient{})
		task := seedTask(t, l)
		cancelled, err := l.CancelTask(ctx, "org-1", task.ID)
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusCancelled, cancelled.Status)

		task = seedTask(t, l)
		_, err = l.StartTask(ctx, "org-1", task.ID)
		require.NoError(t, err)
		_, err = l.CancelTask(ctx, "org-1", task.ID)
		require.NoError(t, err)
	})

	t.Run("cancellation is terminal", func(t *testing.T) {
		l := newTestLifecycle(t, &stubClient{})
		task := seedTask(t, l)
		_, err := l.CancelTask(ctx, "org-1", task.ID)
		require.NoError(t, err)

		_, err = l.StartTask(ctx, "org-1", task.ID)
		assert.True(t, datatypes.IsInvariant(err))
		_, _, err = l.CompleteTask(ctx, "org-1", "user-1", task.ID, datatypes.CompleteTaskRequest{})
		assert.True(t, datatypes.IsInvariant(err))
	})

	t.Run("unknown task", func(t *testing.T) {
		l := newTestLifecycle(t, &stubClient{})
		_, err := l.StartTask(ctx, "org-1", "missing")
		assert.True(t, datatypes.IsNotFound(err))
	})
}

func TestCompleteTask(t *testing.T) {
	ctx := context.Background()

	t.Run("clean audit with zero findings", func(t *testing.T) {
		l := newTestLifecycle(t, &stubClient{})
		task := seedTask(t, l)

		done, findings, err := l.CompleteTask(ctx, "org-1", "user-1", task.ID,
			datatypes.CompleteTaskRequest{Notes: "no issues found"})
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusCompleted, done.Status)
		assert.Equal(t, "no issues found", done.CompletionNote)
		require.NotNil(t, done.CompletedAt)
		assert.Empty(t, findings)
	})

	t.Run("findings recorded with completion", func(t *testing.T) {
		l := newTestLifecycle(t, &stubClient{
			response: `{"analysis": "fixture wear", "recommendations": ["replace fixture", "add check"]}`,
		})
		task := seedTask(t, l)

		done, findings, err := l.CompleteTask(ctx, "org-1", "user-1", task.ID,
			datatypes.CompleteTaskRequest{Findings: []datatypes.FindingInput{
				{Title: "Porosity above limit", Severity: datatypes.SeverityMajor},
				{Title: "Missing traveler signature"},
			}})
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusCompleted, done.Status)
		require.Len(t, findings, 2)
		assert.Equal(t, datatypes.SeverityMajor, findings[0].Severity)
		assert.Equal(t, datatypes.SeverityMinor, findings[1].Severity, "severity defaults to minor")
		assert.Equal(t, task.ID, findings[0].AuditTaskID)

		listed, err := l.ListFindings(ctx, "org-1", task.ID, storage.ListOptions{})
		require.NoError(t, err)
		assert.Len(t, listed, 2)
	})

	t.Run("completed is terminal", func(t *testing.T) {
		l := newTestLifecycle(t, &stubClient{})
		task := seedTask(t, l)
		_, _, err := l.CompleteTask(ctx, "org-1", "user-1", task.ID, datatypes.CompleteTaskRequest{})
		require.NoError(t, err)

		_, _, err = l.CompleteTask(ctx, "org-1", "user-1", task.ID, datatypes.CompleteTaskRequest{})
		assert.True(t, datatypes.IsInvariant(err))
	})

	t.Run("invalid finding aborts before status change", func(t *testing.T) {
		l := newTestLifecycle(t, &stubClient{})
		task := seedTask(t, l)

		_, _, err := l.CompleteTask(ctx, "org-1", "user-1", task.ID,
			datatypes.CompleteTaskRequest{Findings: []datatypes.FindingInput{{Title: ""}}})
		require.Error(t, err)

		cur, err := l.GetTask(ctx, "org-1", task.ID)
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusPending, cur.Status)
	})
}

func TestCreateFinding_AdvisoryAnalysis(t *testing.T) {
	ctx := context.Background()

	t.Run("successful analysis attached", func(t *testing.T) {
		l := newTestLifecycle(t, &stubClient{
			response: `{"analysis": "tooling drift", "recommendations": ["recalibrate", "retrain", "re-inspect lot"]}`,
		})
		task := seedTask(t, l)

		finding, err := l.CreateFinding(ctx, "org-1", "user-1", task.ID,
			datatypes.FindingInput{Title: "Out-of-tolerance bores", Severity: datatypes.SeverityCritical})
		require.NoError(t, err)
		require.NotNil(t, finding.AIAnalysis)
		assert.Equal(t, "tooling drift", *finding.AIAnalysis)
		assert.Len(t, finding.AIRecommendations, 3)
	})

	t.Run("inference failure degrades to empty analysis", func(t *testing.T) {
		l := newTestLifecycle(t, &stubClient{err: errors.New("backend down")})
		task := seedTask(t, l)

		finding, err := l.CreateFinding(ctx, "org-1", "user-1", task.ID,
			datatypes.FindingInput{Title: "Out-of-tolerance bores"})
		require.NoError(t, err, "findings are never blocked on analysis")
		assert.Nil(t, finding.AIAnalysis)
		assert.NotNil(t, finding.AIRecommendations)
		assert.Empty(t, finding.AIRecommendations)
	})

	t.Run("finding requires an existing task", func(t *testing.T) {
		l := newTestLifecycle(t, &stubClient{})
		_, err := l.CreateFinding(ctx, "org-1", "user-1", "missing",
			datatypes.FindingInput{Title: "orphan"})
		assert.True(t, datatypes.IsNotFound(err))
	})
}

func TestDeleteTask_CascadesFindings(t *testing.T) {
	l := newTestLifecycle(t, &stubClient{err: errors.New("no analysis")})
	ctx := context.Background()
	task := seedTask(t, l)

	f1, err := l.CreateFinding(ctx, "org-1", "user-1", task.ID, datatypes.FindingInput{Title: "f1"})
	require.NoError(t, err)
	f2, err := l.CreateFinding(ctx, "org-1", "user-1", task.ID, datatypes.FindingInput{Title: "f2"})
	require.NoError(t, err)

	require.NoError(t, l.DeleteTask(ctx, "org-1", task.ID))

	_, err = l.GetTask(ctx, "org-1", task.ID)
	assert.True(t, datatypes.IsNotFound(err))
	_, err = l.GetFinding(ctx, "org-1", f1.ID)
	assert.True(t, datatypes.IsNotFound(err), "findings must not outlive their task")
	_, err = l.GetFinding(ctx, "org-1", f2.ID)
	assert.True(t, datatypes.IsNotFound(err))

	assert.True(t, datatypes.IsNotFound(l.DeleteTask(ctx, "org-1", task.ID)))
}

func TestListTasks_StatusFilter(t *testing.T) {
	l := newTestLifecycle(t, &stubClient{})
	ctx := context.Background()

	a := seedTask(t, l)
	seedTask(t, l)
	_, err := l.StartTask(ctx, "org-1", a.ID)
	require.NoError(t, err)

	pending, err := l.ListTasks(ctx, "org-1", datatypes.TaskStatusPending, storage.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := l.ListTasks(ctx, "org-1", "", storage.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
