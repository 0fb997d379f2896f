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

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/middleware"
	"github.com/AleutianAI/AleutianAudit/services/audit/risk"
)

// IngestDataPoints accepts a batch of risk signals.
func IngestDataPoints(data *risk.DataStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var inputs []risk.DataPointInput
		if err := c.ShouldBindJSON(&inputs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		points, err := data.Ingest(c.Request.Context(), middleware.OrgID(c), inputs)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"ingested": len(points), "data_points": points})
	}
}

// RunAssessment executes one risk scoring run.
func RunAssessment(engine *risk.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RunAssessmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Info("Received risk assessment request",
			"org_id", middleware.OrgID(c), "assessment_type", req.AssessmentType)
		assessment, err := engine.RunAssessment(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, assessment)
	}
}

// GetAssessment returns one assessment.
func GetAssessment(engine *risk.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		assessment, err := engine.GetAssessment(c.Request.Context(),
			middleware.OrgID(c), c.Param("assessmentId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, assessment)
	}
}

// ListAssessments returns the organization's assessments.
func ListAssessments(engine *risk.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		assessments, err := engine.ListAssessments(c.Request.Context(),
			middleware.OrgID(c), listOptions(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"assessments": assessments})
	}
}

// GenerateTasks derives audit tasks from an assessment.
func GenerateTasks(engine *risk.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.GenerateTasksRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.AssessmentID = c.Param("assessmentId")
		tasks, err := engine.GenerateTasksFromAssessment(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"generated": len(tasks), "tasks": tasks})
	}
}
