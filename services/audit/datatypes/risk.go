// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the persisted aggregates and request types for
// the audit orchestration engine.
//
// Aggregates are plain structs serialized as JSON into the record store. All
// aggregates carry an opaque UUID primary key plus an organization id; most
// also carry a human-readable reference number (see refnum.go). Mutation
// rules (append-only lists, monotonic counters, write-once snapshots) are
// documented per type and enforced by the owning service package.
package datatypes

import "time"

// Record kind constants used as key prefixes in the record store.
const (
	KindRiskDataPoint  = "risk_data_point"
	KindRiskAssessment = "risk_assessment"
	KindAuditTask      = "audit_task"
	KindAuditFinding   = "audit_finding"
	KindKnowledgeEntry = "knowledge_entry"
	KindCheck          = "compliance_check"
	KindConversation   = "compliance_conversation"
	KindStudy          = "commonality_study"
	KindProposal       = "improvement_proposal"
	KindSchedule       = "audit_schedule"
	KindConfiguration  = "audit_configuration"
)

// =============================================================================
// Risk Data Points
// =============================================================================

// RiskDataPoint is a single timestamped operational measurement attributed to
// an entity. Data points are immutable once created; their lifecycle ends only
// via retention deletion.
type RiskDataPoint struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	MetricName     string    `json:"metric_name"`
	Value          float64   `json:"value"`
	Timestamp      time.Time `json:"timestamp"`
	Processed      bool      `json:"processed"`
}

// =============================================================================
// Risk Assessments
// =============================================================================

// Assessment status values. Assessments are never deleted, only superseded.
const (
	AssessmentStatusActive     = "active"
	AssessmentStatusSuperseded = "superseded"
)

// RiskFactor is one weighted contributor to a composite risk score.
type RiskFactor struct {
	Factor      string  `json:"factor"`
	Score       float64 `json:"score"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// EntityRef optionally scopes an assessment or study to a single entity.
type EntityRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// Period is a half-open time window [From, To).
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// RiskAssessment is the composite output of one scoring run.
//
// # Mutation Rules
//
// Created once per run. TasksGenerated is the only field mutated afterwards,
// and only monotonically upward as tasks are derived from the assessment.
// All scores lie in [0,100]; the scoring engine clamps defensively because the
// source of truth (an external model) is untrusted.
type RiskAssessment struct {
	ID               string     `json:"id"`
	OrganizationID   string     `json:"organization_id"`
	AssessmentNumber string     `json:"assessment_number"`
	AssessmentType   string     `json:"assessment_type"`
	EntityRef        *EntityRef `json:"entity_ref,omitempty"`
	AssessmentDate   time.Time  `json:"assessment_date"`
	Period           *Period    `json:"period,omitempty"`

	OverallRiskScore float64 `json:"overall_risk_score"`
	QualityScore     float64 `json:"quality_score"`
	ProcessScore     float64 `json:"process_score"`
	SupplierScore    float64 `json:"supplier_score"`
	ComplianceScore  float64 `json:"compliance_score"`

	RiskFactors        []RiskFactor `json:"risk_factors"`
	AnalysisText       string       `json:"analysis_text"`
	Recommendations    []string     `json:"recommendations"`
	SuggestedResources []string     `json:"suggested_resources"`

	TasksGenerated int    `json:"tasks_generated"`
	Status         string `json:"status"`
	CreatedBy      string `json:"created_by"`
}
