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
// Audit Configuration
// =============================================================================

// RiskScoreWeights are the per-dimension weights applied when composing an
// overall risk score. Weights are stored as-is and intentionally not
// normalized to sum to 1.
type RiskScoreWeights struct {
	Quality    float64 `json:"quality"`
	Process    float64 `json:"process"`
	Supplier   float64 `json:"supplier"`
	Compliance float64 `json:"compliance"`
}

// RiskThresholds are the lower boundaries of each risk band.
type RiskThresholds struct {
	Low      float64 `json:"low"`
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// ApprovalLevelConfig declares one default approval level: the role expected
// to approve and the minimum proposal priority at which the level applies.
type ApprovalLevelConfig struct {
	Level       int    `json:"level"`
	Role        string `json:"role"`
	MinPriority string `json:"min_priority"`
}

// NotificationSettings controls outbound notification toggles. Delivery is an
// external concern; the engine only persists the preferences.
type NotificationSettings struct {
	NotifyOnCriticalRisk bool `json:"notify_on_critical_risk"`
	NotifyOnTaskOverdue  bool `json:"notify_on_task_overdue"`
	NotifyOnApproval     bool `json:"notify_on_approval"`
}

// AuditConfiguration is the singleton per-organization tuning record, lazily
// created with defaults on first access. Callers always receive a snapshot
// value; shared in-memory state is never mutated.
type AuditConfiguration struct {
	ID                    string               `json:"id"`
	OrganizationID        string               `json:"organization_id"`
	RiskScoreWeights      RiskScoreWeights     `json:"risk_score_weights"`
	RiskThresholds        RiskThresholds       `json:"risk_thresholds"`
	ApprovalLevels        []ApprovalLevelConfig `json:"approval_levels"`
	AutoGenerateTasks     bool                 `json:"auto_generate_tasks"`
	AutoGenerateThreshold float64              `json:"auto_generate_threshold"`
	NotificationSettings  NotificationSettings `json:"notification_settings"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// =============================================================================
// Audit Schedules
// =============================================================================

// Schedule run status values.
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// AuditSchedule is bookkeeping for a recurring engine run. The trigger itself
// is external (cron/queue); the engine only records run outcomes and computes
// the next fire time from the cron expression.
type AuditSchedule struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Name           string     `json:"name"`
	AuditType      string     `json:"audit_type"`
	CronExpr       string     `json:"cron_expr"`
	IsActive       bool       `json:"is_active"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	RunCount       int        `json:"run_count"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
}
