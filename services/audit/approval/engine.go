// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package approval drives the sequential multi-level approval workflow over
// improvement proposals.
//
// The chain is strictly ordered: level k cannot be evaluated before level
// k-1 resolves to approved, resolved levels never reopen, and rejection at
// any level is terminal. Every resolution is a conditional update inside one
// storage transaction, so concurrent approvers cannot double-resolve a
// level.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
)

var approvalTracer = otel.Tracer("aleutian.audit.approval")

// Engine owns the proposal state machine.
type Engine struct {
	records *storage.Store
}

// NewEngine creates an approval Engine.
func NewEngine(records *storage.Store) *Engine {
	return &Engine{records: records}
}

// CreateProposal creates a draft proposal.
func (e *Engine) CreateProposal(ctx context.Context, orgID, userID string, req datatypes.CreateProposalRequest) (datatypes.ImprovementProposal, error) {
	if err := datatypes.Validate(&req); err != nil {
		return datatypes.ImprovementProposal{}, fmt.Errorf("invalid proposal request: %w", err)
	}
	priority := req.Priority
	if priority == "" {
		priority = datatypes.PriorityMedium
	}
	steps := make([]datatypes.ImplementationStep, len(req.ImplementationSteps))
	for i, desc := range req.ImplementationSteps {
		steps[i] = datatypes.ImplementationStep{
			Order:       i + 1,
			Description: desc,
			Status:      datatypes.StepStatusPending,
		}
	}
	proposal := datatypes.ImprovementProposal{
		ID:                  datatypes.NewID(),
		OrganizationID:      orgID,
		ProposalNumber:      datatypes.NewRefNumber(datatypes.PrefixProposal),
		CommonalityStudyID:  req.CommonalityStudyID,
		Title:               req.Title,
		Description:         req.Description,
		Category:            req.Category,
		Priority:            priority,
		ImplementationSteps: steps,
		Status:              datatypes.ProposalStatusDraft,
		ApprovalChain:       []datatypes.ChainEntry{},
		CreatedBy:           userID,
		CreatedAt:           time.Now().UTC(),
	}
	if err := storage.Put(e.records, datatypes.KindProposal, orgID, proposal.ID, proposal); err != nil {
		return datatypes.ImprovementProposal{}, err
	}
	slog.Info("Improvement proposal created",
		"org_id", orgID, "proposal_number", proposal.ProposalNumber)
	return proposal, nil
}

// GetProposal returns one proposal.
func (e *Engine) GetProposal(ctx context.Context, orgID, id string) (datatypes.ImprovementProposal, error) {
	return storage.Get[datatypes.ImprovementProposal](e.records, datatypes.KindProposal, orgID, id)
}

// ListProposals returns the organization's proposals, newest first,
// optionally filtered by status.
func (e *Engine) ListProposals(ctx context.Context, orgID, status string, opt storage.ListOptions) ([]datatypes.ImprovementProposal, error) {
	var match func(datatypes.ImprovementProposal) bool
	if status != "" {
		match = func(p datatypes.ImprovementProposal) bool { return p.Status == status }
	}
	return storage.List(e.records, datatypes.KindProposal, orgID, match,
		func(a, b datatypes.ImprovementProposal) bool { return a.CreatedAt.After(b.CreatedAt) }, opt)
}

// SubmitProposal installs the approval chain and moves the proposal out of
// draft.
//
// # Description
//
// Chain entries are installed in ascending level order with pending status
// and no approver. The proposal becomes submitted with
// currentApprovalLevel=1. Only draft proposals may be submitted.
func (e *Engine) SubmitProposal(ctx context.Context, orgID, userID, id string, req datatypes.SubmitProposalRequest) (datatypes.ImprovementProposal, error) {
	ctx, span := approvalTracer.Start(ctx, "Engine.SubmitProposal")
	defer span.End()

	if err := datatypes.Validate(&req); err != nil {
		return datatypes.ImprovementProposal{}, fmt.Errorf("invalid submission: %w", err)
	}
	if err := validateChain(req.ApprovalChain); err != nil {
		return datatypes.ImprovementProposal{}, err
	}

	now := time.Now().UTC()
	proposal, err := storage.Update(e.records, datatypes.KindProposal, orgID, id,
		func(p *datatypes.ImprovementProposal) error {
			if p.Status != datatypes.ProposalStatusDraft {
				return &datatypes.InvariantError{Op: "SubmitProposal",
					Reason: fmt.Sprintf("cannot submit proposal in status %q", p.Status)}
			}
			chain := make([]datatypes.ChainEntry, len(req.ApprovalChain))
			for i, in := range req.ApprovalChain {
				chain[i] = datatypes.ChainEntry{
					Level:  in.Level,
					Role:   in.Role,
					Status: datatypes.ChainStatusPending,
				}
			}
			p.ApprovalChain = chain
			p.Status = datatypes.ProposalStatusSubmitted
			p.CurrentApprovalLevel = 1
			p.SubmittedAt = &now
			return nil
		})
	if err != nil {
		return datatypes.ImprovementProposal{}, err
	}
	slog.Info("Proposal submitted for approval",
		"org_id", orgID,
		"proposal_number", proposal.ProposalNumber,
		"chain_levels", len(proposal.ApprovalChain),
	)
	return proposal, nil
}

// ApproveProposal resolves the proposal's current approval level.
//
// # Description
//
// The chain entry at currentApprovalLevel-1 is resolved with the caller's
// decision. Rejection at any level is terminal. Approval at the final level
// moves the proposal to approved; approval with levels remaining moves it to
// under_review and advances currentApprovalLevel. The whole resolution runs
// as one conditional update, so a concurrently resolved level surfaces as an
// invariant violation instead of a double resolution.
func (e *Engine) ApproveProposal(ctx context.Context, orgID, userID, id string, req datatypes.ApproveProposalRequest) (datatypes.ImprovementProposal, error) {
	ctx, span := approvalTracer.Start(ctx, "Engine.ApproveProposal")
	defer span.End()

	now := time.Now().UTC()
	proposal, err := storage.Update(e.records, datatypes.KindProposal, orgID, id,
		func(p *datatypes.ImprovementProposal) error {
			switch p.Status {
			case datatypes.ProposalStatusSubmitted, datatypes.ProposalStatusUnderReview:
			default:
				return &datatypes.InvariantError{Op: "ApproveProposal",
					Reason: fmt.Sprintf("cannot resolve approval on proposal in status %q", p.Status)}
			}
			idx := p.CurrentApprovalLevel - 1
			if idx < 0 || idx >= len(p.ApprovalChain) {
				return &datatypes.InvariantError{Op: "ApproveProposal",
					Reason: fmt.Sprintf("approval level %d is outside the chain", p.CurrentApprovalLevel)}
			}
			entry := &p.ApprovalChain[idx]
			if entry.Status != datatypes.ChainStatusPending {
				return &datatypes.InvariantError{Op: "ApproveProposal",
					Reason: fmt.Sprintf("level %d already resolved to %q", entry.Level, entry.Status)}
			}

			entry.ApproverID = userID
			entry.Comments = req.Comments
			entry.Timestamp = &now
			if !req.Approved {
				entry.Status = datatypes.ChainStatusRejected
				p.Status = datatypes.ProposalStatusRejected
				return nil
			}
			entry.Status = datatypes.ChainStatusApproved
			if p.CurrentApprovalLevel == len(p.ApprovalChain) {
				p.Status = datatypes.ProposalStatusApproved
			} else {
				p.Status = datatypes.ProposalStatusUnderReview
				p.CurrentApprovalLevel++
			}
			return nil
		})
	if err != nil {
		return datatypes.ImprovementProposal{}, err
	}
	slog.Info("Proposal approval level resolved",
		"org_id", orgID,
		"proposal_number", proposal.ProposalNumber,
		"status", proposal.Status,
		"current_level", proposal.CurrentApprovalLevel,
	)
	return proposal, nil
}

// StartImplementation moves an approved proposal to implementing.
func (e *Engine) StartImplementation(ctx context.Context, orgID, id string) (datatypes.ImprovementProposal, error) {
	return storage.Update(e.records, datatypes.KindProposal, orgID, id,
		func(p *datatypes.ImprovementProposal) error {
			if p.Status != datatypes.ProposalStatusApproved {
				return &datatypes.InvariantError{Op: "StartImplementation",
					Reason: fmt.Sprintf("cannot implement proposal in status %q", p.Status)}
			}
			p.Status = datatypes.ProposalStatusImplementing
			return nil
		})
}

// CompleteProposal moves an implementing proposal to completed and marks all
// implementation steps done.
func (e *Engine) CompleteProposal(ctx context.Context, orgID, id string) (datatypes.ImprovementProposal, error) {
	return storage.Update(e.records, datatypes.KindProposal, orgID, id,
		func(p *datatypes.ImprovementProposal) error {
			if p.Status != datatypes.ProposalStatusImplementing {
				return &datatypes.InvariantError{Op: "CompleteProposal",
					Reason: fmt.Sprintf("cannot complete proposal in status %q", p.Status)}
			}
			for i := range p.ImplementationSteps {
				p.ImplementationSteps[i].Status = datatypes.StepStatusDone
			}
			p.Status = datatypes.ProposalStatusCompleted
			return nil
		})
}

// DeleteProposal removes a draft proposal. Submitted proposals are part of
// the approval record and cannot be deleted.
func (e *Engine) DeleteProposal(ctx context.Context, orgID, id string) error {
	proposal, err := e.GetProposal(ctx, orgID, id)
	if err != nil {
		return err
	}
	if proposal.Status != datatypes.ProposalStatusDraft {
		return &datatypes.InvariantError{Op: "DeleteProposal",
			Reason: fmt.Sprintf("cannot delete proposal in status %q", proposal.Status)}
	}
	return storage.Delete(e.records, datatypes.KindProposal, orgID, id)
}

// validateChain requires contiguous 1-based levels.
func validateChain(chain []datatypes.ChainLevelInput) error {
	for i, entry := range chain {
		if entry.Level != i+1 {
			return &datatypes.InvariantError{Op: "SubmitProposal",
				Reason: fmt.Sprintf("chain levels must be contiguous from 1, got %d at position %d", entry.Level, i)}
		}
	}
	return nil
}
