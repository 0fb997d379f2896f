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
// Commonality Studies
// =============================================================================

// Study status values. A study either completes or the whole run is not
// recorded; callers never observe a partial persisted state.
const (
	StudyStatusRunning   = "running"
	StudyStatusCompleted = "completed"
	StudyStatusFailed    = "failed"
)

// Study approval status values (single-step sign-off on the study itself,
// unrelated to the improvement-proposal approval chain).
const (
	StudyApprovalPending  = "pending"
	StudyApprovalApproved = "approved"
	StudyApprovalRejected = "rejected"
)

// ReactStep is one Thought -> Action -> Observation entry in a study's trace.
// The trace is append-only during execution and yields a fully auditable
// transcript of the agent's reasoning regardless of how the loop terminated.
type ReactStep struct {
	Step        int       `json:"step"`
	Thought     string    `json:"thought"`
	Action      string    `json:"action"`
	Observation string    `json:"observation"`
	Timestamp   time.Time `json:"timestamp"`
}

// Pattern is a recurring cross-entity quality pattern surfaced by a study.
type Pattern struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Occurrences int     `json:"occurrences"`
	Confidence  float64 `json:"confidence"`
}

// SupplierInsight summarizes observed behavior for one supplier entity.
type SupplierInsight struct {
	SupplierID  string  `json:"supplier_id"`
	Observation string  `json:"observation"`
	MetricValue float64 `json:"metric_value"`
}

// CommonalityStudy is the persisted output of one bounded reasoning run.
// Immutable once Status is completed, aside from the approval sign-off fields.
type CommonalityStudy struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	StudyNumber    string     `json:"study_number"`
	Title          string     `json:"title"`
	StudyType      string     `json:"study_type"`
	AnalysisWindow *Period    `json:"analysis_window,omitempty"`
	EntityFilters  *EntityRef `json:"entity_filters,omitempty"`

	ReactTrace       []ReactStep       `json:"react_trace"`
	PatternsFound    []Pattern         `json:"patterns_found"`
	Recommendations  []string          `json:"recommendations"`
	SupplierInsights []SupplierInsight `json:"supplier_insights"`
	VariantAnalysis  string            `json:"variant_analysis,omitempty"`

	Status           string     `json:"status"`
	RequiresApproval bool       `json:"requires_approval"`
	ApprovalStatus   string     `json:"approval_status"`
	ApprovalComments string     `json:"approval_comments,omitempty"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
