// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tasks implements the audit task lifecycle and its findings.
//
// Tasks move pending -> in_progress -> completed, with cancelled reachable
// from pending or in_progress. Findings exist only as children of a task:
// completing a task persists its findings before the status flips, and
// deleting a task removes every child finding before the task itself, so no
// finding ever outlives its task.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/observability"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

var taskTracer = otel.Tracer("aleutian.audit.tasks")

// Lifecycle owns audit task state transitions and finding creation.
type Lifecycle struct {
	records *storage.Store
	llm     llm.Client
}

// NewLifecycle creates a task Lifecycle.
func NewLifecycle(records *storage.Store, client llm.Client) *Lifecycle {
	return &Lifecycle{records: records, llm: client}
}

// CreateTask creates a manual task. Tasks always start pending.
func (l *Lifecycle) CreateTask(ctx context.Context, orgID, userID string, req datatypes.CreateTaskRequest) (datatypes.AuditTask, error) {
	if err := datatypes.Validate(&req); err != nil {
		return datatypes.AuditTask{}, fmt.Errorf("invalid task request: %w", err)
	}
	priority := req.Priority
	if priority == "" {
		priority = datatypes.PriorityMedium
	}
	task := datatypes.AuditTask{
		ID:             datatypes.NewID(),
		OrganizationID: orgID,
		TaskNumber:     datatypes.NewRefNumber(datatypes.PrefixAuditTask),
		Title:          req.Title,
		Description:    req.Description,
		AuditType:      req.AuditType,
		Source:         datatypes.TaskSourceManual,
		Priority:       priority,
		Status:         datatypes.TaskStatusPending,
		AssignedTo:     req.AssignedTo,
		DueDate:        req.DueDate,
		CreatedBy:      userID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := storage.Put(l.records, datatypes.KindAuditTask, orgID, task.ID, task); err != nil {
		return datatypes.AuditTask{}, err
	}
	slog.Info("Audit task created", "org_id", orgID, "task_number", task.TaskNumber)
	return task, nil
}

// GetTask returns one task.
func (l *Lifecycle) GetTask(ctx context.Context, orgID, id string) (datatypes.AuditTask, error) {
	return storage.Get[datatypes.AuditTask](l.records, datatypes.KindAuditTask, orgID, id)
}

// ListTasks returns the organization's tasks, newest first, optionally
// filtered by status.
func (l *Lifecycle) ListTasks(ctx context.Context, orgID, status string, opt storage.ListOptions) ([]datatypes.AuditTask, error) {
	var match func(datatypes.AuditTask) bool
	if status != "" {
		match = func(t datatypes.AuditTask) bool { return t.Status == status }
	}
	return storage.List(l.records, datatypes.KindAuditTask, orgID, match,
		func(a, b datatypes.AuditTask) bool { return a.CreatedAt.After(b.CreatedAt) }, opt)
}

// StartTask moves a pending task to in_progress.
func (l *Lifecycle) StartTask(ctx context.Context, orgID, id string) (datatypes.AuditTask, error) {
	return storage.Update(l.records, datatypes.KindAuditTask, orgID, id,
		func(t *datatypes.AuditTask) error {
			if t.Status != datatypes.TaskStatusPending {
				return &datatypes.InvariantError{Op: "StartTask",
					Reason: fmt.Sprintf("cannot start task in status %q", t.Status)}
			}
			t.Status = datatypes.TaskStatusInProgress
			return nil
		})
}

// CancelTask cancels a pending or in_progress task. Cancellation is terminal.
func (l *Lifecycle) CancelTask(ctx context.Context, orgID, id string) (datatypes.AuditTask, error) {
	return storage.Update(l.records, datatypes.KindAuditTask, orgID, id,
		func(t *datatypes.AuditTask) error {
			if t.Status != datatypes.TaskStatusPending && t.Status != datatypes.TaskStatusInProgress {
				return &datatypes.InvariantError{Op: "CancelTask",
					Reason: fmt.Sprintf("cannot cancel task in status %q", t.Status)}
			}
			t.Status = datatypes.TaskStatusCancelled
			return nil
		})
}

// CompleteTask completes a task, recording any supplied findings.
//
// # Description
//
// Every supplied finding is created and persisted before the task's status
// flips to completed. Completing with zero findings is valid (a clean audit).
// A task may be completed from pending or in_progress.
func (l *Lifecycle) CompleteTask(ctx context.Context, orgID, userID, id string, req datatypes.CompleteTaskRequest) (datatypes.AuditTask, []datatypes.AuditFinding, error) {
	ctx, span := taskTracer.Start(ctx, "Lifecycle.CompleteTask")
	defer span.End()

	if err := datatypes.Validate(&req); err != nil {
		return datatypes.AuditTask{}, nil, fmt.Errorf("invalid completion request: %w", err)
	}

	task, err := l.GetTask(ctx, orgID, id)
	if err != nil {
		return datatypes.AuditTask{}, nil, err
	}
	if task.Status != datatypes.TaskStatusPending && task.Status != datatypes.TaskStatusInProgress {
		return datatypes.AuditTask{}, nil, &datatypes.InvariantError{Op: "CompleteTask",
			Reason: fmt.Sprintf("cannot complete task in status %q", task.Status)}
	}

	findings := make([]datatypes.AuditFinding, 0, len(req.Findings))
	for _, in := range req.Findings {
		finding, err := l.CreateFinding(ctx, orgID, userID, id, in)
		if err != nil {
			return datatypes.AuditTask{}, findings, err
		}
		findings = append(findings, finding)
	}
	span.SetAttributes(attribute.Int("task.findings", len(findings)))

	now := time.Now().UTC()
	task, err = storage.Update(l.records, datatypes.KindAuditTask, orgID, id,
		func(t *datatypes.AuditTask) error {
			t.Status = datatypes.TaskStatusCompleted
			t.CompletedAt = &now
			t.CompletionNote = req.Notes
			return nil
		})
	if err != nil {
		return datatypes.AuditTask{}, findings, err
	}
	slog.Info("Audit task completed",
		"org_id", orgID, "task_number", task.TaskNumber, "findings", len(findings))
	return task, findings, nil
}

// DeleteTask removes a task and all of its findings. Child findings are
// deleted before the task so no finding outlives its task.
func (l *Lifecycle) DeleteTask(ctx context.Context, orgID, id string) error {
	if _, err := l.GetTask(ctx, orgID, id); err != nil {
		return err
	}
	findings, err := l.ListFindings(ctx, orgID, id, storage.ListOptions{})
	if err != nil {
		return err
	}
	for _, f := range findings {
		if err := storage.Delete(l.records, datatypes.KindAuditFinding, orgID, f.ID); err != nil && !datatypes.IsNotFound(err) {
			return err
		}
	}
	if err := storage.Delete(l.records, datatypes.KindAuditTask, orgID, id); err != nil {
		return err
	}
	slog.Info("Audit task deleted", "org_id", orgID, "task_id", id, "cascaded_findings", len(findings))
	return nil
}

// findingAnalysis is the structure requested from the inference service for
// one finding.
type findingAnalysis struct {
	Analysis        string   `json:"analysis"`
	Recommendations []string `json:"recommendations"`
}

// CreateFinding creates a finding under a task.
//
// # Description
//
// Attempts an inference call for a short root-cause analysis and 3-5
// recommendations. Findings are never blocked on the advisory analysis: on
// failure the finding is created with a nil analysis and an empty
// recommendation list.
func (l *Lifecycle) CreateFinding(ctx context.Context, orgID, userID, taskID string, in datatypes.FindingInput) (datatypes.AuditFinding, error) {
	ctx, span := taskTracer.Start(ctx, "Lifecycle.CreateFinding")
	defer span.End()

	if err := datatypes.Validate(&in); err != nil {
		return datatypes.AuditFinding{}, fmt.Errorf("invalid finding: %w", err)
	}
	if _, err := l.GetTask(ctx, orgID, taskID); err != nil {
		return datatypes.AuditFinding{}, err
	}

	severity := in.Severity
	if severity == "" {
		severity = datatypes.SeverityMinor
	}
	finding := datatypes.AuditFinding{
		ID:                      datatypes.NewID(),
		OrganizationID:          orgID,
		FindingNumber:           datatypes.NewRefNumber(datatypes.PrefixFinding),
		AuditTaskID:             taskID,
		Title:                   in.Title,
		Description:             in.Description,
		Severity:                severity,
		Category:                in.Category,
		AIRecommendations:       []string{},
		CorrectiveActionDueDate: in.CorrectiveActionDueDate,
		CreatedBy:               userID,
		CreatedAt:               time.Now().UTC(),
	}

	if analysis, recommendations, ok := l.analyze(ctx, finding); ok {
		finding.AIAnalysis = &analysis
		finding.AIRecommendations = recommendations
	}

	if err := storage.Put(l.records, datatypes.KindAuditFinding, orgID, finding.ID, finding); err != nil {
		return datatypes.AuditFinding{}, err
	}
	slog.Info("Audit finding created",
		"org_id", orgID, "finding_number", finding.FindingNumber, "task_id", taskID)
	return finding, nil
}

// GetFinding returns one finding.
func (l *Lifecycle) GetFinding(ctx context.Context, orgID, id string) (datatypes.AuditFinding, error) {
	return storage.Get[datatypes.AuditFinding](l.records, datatypes.KindAuditFinding, orgID, id)
}

// ListFindings returns findings, newest first. When taskID is non-empty only
// that task's findings are returned.
func (l *Lifecycle) ListFindings(ctx context.Context, orgID, taskID string, opt storage.ListOptions) ([]datatypes.AuditFinding, error) {
	var match func(datatypes.AuditFinding) bool
	if taskID != "" {
		match = func(f datatypes.AuditFinding) bool { return f.AuditTaskID == taskID }
	}
	return storage.List(l.records, datatypes.KindAuditFinding, orgID, match,
		func(a, b datatypes.AuditFinding) bool { return a.CreatedAt.After(b.CreatedAt) }, opt)
}

// analyze asks the inference service for a root-cause analysis. The third
// return value is false when the advisory call failed or parsed empty.
func (l *Lifecycle) analyze(ctx context.Context, finding datatypes.AuditFinding) (string, []string, bool) {
	prompt := buildFindingPrompt(finding)

	start := time.Now()
	raw, err := l.llm.Generate(ctx, prompt, llm.GenerationParams{})
	observability.ObserveInference("finding_analysis", start, err)
	if err != nil {
		slog.Warn("Finding analysis inference failed, persisting without analysis",
			"finding_number", finding.FindingNumber, "error", err)
		observability.CountFallback("finding_analysis")
		return "", nil, false
	}

	parsed, ok := llm.ParseStructured(raw, findingAnalysis{})
	if !ok || strings.TrimSpace(parsed.Analysis) == "" {
		slog.Warn("Finding analysis output failed to parse, persisting without analysis",
			"finding_number", finding.FindingNumber)
		observability.CountFallback("finding_analysis")
		return "", nil, false
	}
	if parsed.Recommendations == nil {
		parsed.Recommendations = []string{}
	}
	return parsed.Analysis, parsed.Recommendations, true
}

func buildFindingPrompt(finding datatypes.AuditFinding) string {
	var b strings.Builder
	b.WriteString("You are a quality audit analyst. Provide a short root-cause analysis ")
	b.WriteString("and 3-5 corrective recommendations for this finding.\n\n")
	fmt.Fprintf(&b, "Title: %s\nSeverity: %s\nCategory: %s\nDescription: %s\n\n",
		finding.Title, finding.Severity, finding.Category, finding.Description)
	b.WriteString("Respond with a single JSON object: ")
	b.WriteString(`{"analysis":"","recommendations":["","",""]}`)
	return b.String()
}
