// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAudit/services/audit/approval"
	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/middleware"
)

// CreateProposal creates a draft improvement proposal.
func CreateProposal(engine *approval.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateProposalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		proposal, err := engine.CreateProposal(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, proposal)
	}
}

// GetProposal returns one proposal.
func GetProposal(engine *approval.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		proposal, err := engine.GetProposal(c.Request.Context(),
			middleware.OrgID(c), c.Param("proposalId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, proposal)
	}
}

// ListProposals returns the organization's proposals, optionally filtered by
// ?status=.
func ListProposals(engine *approval.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		proposals, err := engine.ListProposals(c.Request.Context(),
			middleware.OrgID(c), c.Query("status"), listOptions(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"proposals": proposals})
	}
}

// SubmitProposal installs the approval chain and submits the proposal.
func SubmitProposal(engine *approval.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SubmitProposalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		proposal, err := engine.SubmitProposal(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), c.Param("proposalId"), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, proposal)
	}
}

// ApproveProposal resolves the proposal's current approval level.
func ApproveProposal(engine *approval.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ApproveProposalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		proposal, err := engine.ApproveProposal(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), c.Param("proposalId"), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, proposal)
	}
}

// StartImplementation moves an approved proposal to implementing.
func StartImplementation(engine *approval.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		proposal, err := engine.StartImplementation(c.Request.Context(),
			middleware.OrgID(c), c.Param("proposalId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, proposal)
	}
}

// CompleteProposal moves an implementing proposal to completed.
func CompleteProposal(engine *approval.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		proposal, err := engine.CompleteProposal(c.Request.Context(),
			middleware.OrgID(c), c.Param("proposalId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, proposal)
	}
}

// DeleteProposal removes a draft proposal.
func DeleteProposal(engine *approval.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := engine.DeleteProposal(c.Request.Context(),
			middleware.OrgID(c), c.Param("proposalId")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}
