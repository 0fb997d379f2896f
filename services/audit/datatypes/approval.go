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
// Improvement Proposals
// =============================================================================

// Proposal status values. The lifecycle is
// draft -> submitted -> under_review <-> (approved | rejected) -> implementing -> completed.
const (
	ProposalStatusDraft        = "draft"
	ProposalStatusSubmitted    = "submitted"
	ProposalStatusUnderReview  = "under_review"
	ProposalStatusApproved     = "approved"
	ProposalStatusRejected     = "rejected"
	ProposalStatusImplementing = "implementing"
	ProposalStatusCompleted    = "completed"
)

// Chain entry status values.
const (
	ChainStatusPending  = "pending"
	ChainStatusApproved = "approved"
	ChainStatusRejected = "rejected"
)

// Implementation step status values.
const (
	StepStatusPending = "pending"
	StepStatusDone    = "done"
)

// ImplementationStep is one ordered step of a proposal's implementation plan.
type ImplementationStep struct {
	Order       int    `json:"order"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// ChainEntry is one level of a proposal's approval chain.
//
// Levels are 1-based and resolved strictly in sequence: level k cannot be
// evaluated before level k-1 resolves to approved. Rejection at any level is
// terminal for the proposal.
type ChainEntry struct {
	Level      int        `json:"level"`
	Role       string     `json:"role"`
	ApproverID string     `json:"approver_id,omitempty"`
	Status     string     `json:"status"`
	Comments   string     `json:"comments,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// ImprovementProposal is a proposed process improvement, optionally seeded
// from a commonality study.
//
// CurrentApprovalLevel is a 1-based index into ApprovalChain. Invariant: all
// chain entries at index < CurrentApprovalLevel-1 are resolved, all entries at
// index >= CurrentApprovalLevel-1 are pending.
type ImprovementProposal struct {
	ID                 string `json:"id"`
	OrganizationID     string `json:"organization_id"`
	ProposalNumber     string `json:"proposal_number"`
	CommonalityStudyID string `json:"commonality_study_id,omitempty"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	Category           string `json:"category"`
	Priority           string `json:"priority"`

	ImplementationSteps  []ImplementationStep `json:"implementation_steps"`
	Status               string               `json:"status"`
	ApprovalChain        []ChainEntry         `json:"approval_chain"`
	CurrentApprovalLevel int                  `json:"current_approval_level"`

	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}
