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

	"github.com/AleutianAI/AleutianAudit/services/audit/knowledge"
	"github.com/AleutianAI/AleutianAudit/services/audit/middleware"
	"github.com/AleutianAI/AleutianAudit/services/audit/risk"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
	"github.com/AleutianAI/AleutianAudit/services/audit/tasks"
)

// DashboardStats is the read-side summary for one organization.
type DashboardStats struct {
	TasksByStatus         map[string]int `json:"tasks_by_status"`
	LatestAssessmentScore *float64       `json:"latest_assessment_score,omitempty"`
	ComplianceRate        float64        `json:"compliance_rate"`
}

// Stats aggregates the dashboard summary: open task counts by status, the
// latest assessment's overall score, and the compliance rate over recent
// checks.
func Stats(lifecycle *tasks.Lifecycle, engine *risk.Engine, checker *knowledge.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		orgID := middleware.OrgID(c)

		taskList, err := lifecycle.ListTasks(ctx, orgID, "", storage.ListOptions{})
		if err != nil {
			respondError(c, err)
			return
		}
		byStatus := map[string]int{}
		for _, t := range taskList {
			byStatus[t.Status]++
		}

		stats := DashboardStats{TasksByStatus: byStatus}

		assessments, err := engine.ListAssessments(ctx, orgID, storage.ListOptions{Limit: 1})
		if err != nil {
			respondError(c, err)
			return
		}
		if len(assessments) > 0 {
			score := assessments[0].OverallRiskScore
			stats.LatestAssessmentScore = &score
		}

		rate, err := checker.ComplianceRate(ctx, orgID)
		if err != nil {
			respondError(c, err)
			return
		}
		stats.ComplianceRate = rate

		c.JSON(http.StatusOK, stats)
	}
}
