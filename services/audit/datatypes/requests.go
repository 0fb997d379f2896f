// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the request payloads for the engine's stateful
// operations, with validation via go-playground/validator. CRUD request
// payloads live with their handlers; only payloads shared across service
// packages are defined here.

package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxChatMessageBytes bounds a single copilot message to keep prompt
	// sizes predictable.
	MaxChatMessageBytes = 32 * 1024

	// MaxFindingsPerCompletion bounds the findings accepted in a single
	// task completion.
	MaxFindingsPerCompletion = 50
)

// validate is the shared validator instance for request payloads.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxChatMessageBytes
	})
}

// Validate runs struct validation on any request payload in this package.
func Validate(v any) error {
	return validate.Struct(v)
}

// =============================================================================
// Risk Scoring
// =============================================================================

// RunAssessmentRequest parameterizes one risk scoring run.
type RunAssessmentRequest struct {
	AssessmentType string     `json:"assessment_type" validate:"required"`
	EntityRef      *EntityRef `json:"entity_ref,omitempty"`
	Period         *Period    `json:"period,omitempty"`
}

// GenerateTasksRequest derives audit tasks from an existing assessment.
type GenerateTasksRequest struct {
	AssessmentID string  `json:"assessment_id" validate:"required"`
	MinRiskScore float64 `json:"min_risk_score" validate:"gte=0,lte=100"`
	MaxTasks     int     `json:"max_tasks" validate:"gte=1,lte=20"`
}

// =============================================================================
// Knowledge / Copilot
// =============================================================================

// SearchRequest is a knowledge store retrieval query.
type SearchRequest struct {
	Query        string `json:"query" validate:"required"`
	Category     string `json:"category,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	Limit        int    `json:"limit,omitempty" validate:"gte=0,lte=50"`
}

// ChatRequest is one copilot turn. ConversationID is empty for a new
// conversation.
type ChatRequest struct {
	Message        string `json:"message" validate:"required,maxbytes"`
	ConversationID string `json:"conversation_id,omitempty"`
	Context        string `json:"context,omitempty"`
}

// ChatResponse is the copilot's reply for one turn.
type ChatResponse struct {
	ConversationID string   `json:"conversation_id"`
	Message        string   `json:"message"`
	Sources        []string `json:"sources"`
}

// RunCheckRequest evaluates an entity against a list of standards.
type RunCheckRequest struct {
	EntityType string   `json:"entity_type" validate:"required"`
	EntityID   string   `json:"entity_id" validate:"required"`
	Standards  []string `json:"standards" validate:"required,min=1"`
}

// =============================================================================
// Tasks / Findings
// =============================================================================

// CreateTaskRequest creates a manual audit task.
type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	AuditType   string     `json:"audit_type" validate:"required"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// FindingInput is one finding payload supplied when completing a task or
// creating a finding directly.
type FindingInput struct {
	Title                   string     `json:"title" validate:"required"`
	Description             string     `json:"description"`
	Severity                string     `json:"severity" validate:"omitempty,oneof=minor major critical"`
	Category                string     `json:"category"`
	CorrectiveActionDueDate *time.Time `json:"corrective_action_due_date,omitempty"`
}

// CompleteTaskRequest completes a task, optionally recording findings.
// Completing with zero findings is valid (a clean audit).
type CompleteTaskRequest struct {
	Notes    string         `json:"notes,omitempty"`
	Findings []FindingInput `json:"findings" validate:"max=50,dive"`
}

// =============================================================================
// Commonality Studies
// =============================================================================

// RunStudyRequest starts one bounded reasoning run.
type RunStudyRequest struct {
	Title            string     `json:"title" validate:"required"`
	StudyType        string     `json:"study_type" validate:"required"`
	AnalysisWindow   *Period    `json:"analysis_window,omitempty"`
	EntityFilters    *EntityRef `json:"entity_filters,omitempty"`
	RequiresApproval bool       `json:"requires_approval"`
}

// ApproveStudyRequest is the single-step sign-off on a study.
type ApproveStudyRequest struct {
	Approved bool   `json:"approved"`
	Comments string `json:"comments,omitempty"`
}

// =============================================================================
// Approval Workflow
// =============================================================================

// CreateProposalRequest creates a draft improvement proposal, optionally
// seeded from a commonality study.
type CreateProposalRequest struct {
	Title               string   `json:"title" validate:"required"`
	Description         string   `json:"description"`
	Category            string   `json:"category"`
	Priority            string   `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	CommonalityStudyID  string   `json:"commonality_study_id,omitempty"`
	ImplementationSteps []string `json:"implementation_steps" validate:"max=50"`
}

// ChainLevelInput declares one approval level at submission time.
type ChainLevelInput struct {
	Level       int    `json:"level" validate:"gte=1"`
	Role        string `json:"role" validate:"required"`
	MinPriority string `json:"min_priority,omitempty"`
}

// SubmitProposalRequest installs the approval chain and submits the proposal.
type SubmitProposalRequest struct {
	ApprovalChain []ChainLevelInput `json:"approval_chain" validate:"required,min=1,dive"`
}

// ApproveProposalRequest resolves the proposal's current approval level.
type ApproveProposalRequest struct {
	Approved bool   `json:"approved"`
	Comments string `json:"comments,omitempty"`
}
