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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAudit/services/audit/commonality"
	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/middleware"
)

// RunStudy executes one bounded commonality reasoning run.
func RunStudy(agent *commonality.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RunStudyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Info("Received commonality study request",
			"org_id", middleware.OrgID(c), "study_type", req.StudyType)
		study, err := agent.RunStudy(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, study)
	}
}

// GetStudy returns one study, trace included.
func GetStudy(agent *commonality.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		study, err := agent.GetStudy(c.Request.Context(),
			middleware.OrgID(c), c.Param("studyId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, study)
	}
}

// ListStudies returns the organization's studies.
func ListStudies(agent *commonality.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		studies, err := agent.ListStudies(c.Request.Context(),
			middleware.OrgID(c), listOptions(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"studies": studies})
	}
}

// ApproveStudy records the single-step sign-off on a study.
func ApproveStudy(agent *commonality.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ApproveStudyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		study, err := agent.ApproveStudy(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), c.Param("studyId"), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, study)
	}
}
