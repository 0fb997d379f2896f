// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// =============================================================================
// Audit Tasks
// =============================================================================

// Task status values. The lifecycle is pending -> in_progress -> completed,
// with cancelled reachable from pending or in_progress.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

// Task source values.
const (
	TaskSourceManual         = "manual"
	TaskSourceRiskAssessment = "risk_assessment"
	TaskSourceScheduled      = "scheduled"
)

// Task and proposal priority values, lowest to highest.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// AuditTask is a unit of audit work. Tasks own zero or more findings; deleting
// a task cascades to its findings.
type AuditTask struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	TaskNumber     string     `json:"task_number"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	AuditType      string     `json:"audit_type"`
	Source         string     `json:"source"`
	Priority       string     `json:"priority"`
	Status         string     `json:"status"`
	RiskScore      *float64   `json:"risk_score,omitempty"`
	AssignedTo     string     `json:"assigned_to,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	AIGenerated    bool       `json:"ai_generated"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CompletionNote string     `json:"completion_note,omitempty"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
}

// =============================================================================
// Audit Findings
// =============================================================================

// Finding severity values.
const (
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

// AuditFinding is created only as a child of an audit task and never orphaned.
// AIAnalysis and AIRecommendations are advisory: when the inference service is
// unavailable the finding is still created with a nil analysis and an empty
// recommendation list.
type AuditFinding struct {
	ID                      string     `json:"id"`
	OrganizationID          string     `json:"organization_id"`
	FindingNumber           string     `json:"finding_number"`
	AuditTaskID             string     `json:"audit_task_id"`
	Title                   string     `json:"title"`
	Description             string     `json:"description"`
	Severity                string     `json:"severity"`
	Category                string     `json:"category"`
	AIAnalysis              *string    `json:"ai_analysis,omitempty"`
	AIRecommendations       []string   `json:"ai_recommendations"`
	CorrectiveActionDueDate *time.Time `json:"corrective_action_due_date,omitempty"`
	CreatedBy               string     `json:"created_by"`
	CreatedAt               time.Time  `json:"created_at"`
}
