// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianAudit/services/audit/approval"
	"github.com/AleutianAI/AleutianAudit/services/audit/commonality"
	"github.com/AleutianAI/AleutianAudit/services/audit/config"
	"github.com/AleutianAI/AleutianAudit/services/audit/handlers"
	"github.com/AleutianAI/AleutianAudit/services/audit/knowledge"
	"github.com/AleutianAI/AleutianAudit/services/audit/middleware"
	"github.com/AleutianAI/AleutianAudit/services/audit/risk"
	"github.com/AleutianAI/AleutianAudit/services/audit/tasks"
)

// Engines bundles the initialized engine components for route registration.
type Engines struct {
	Data      *risk.DataStore
	Risk      *risk.Engine
	Knowledge *knowledge.Store
	Copilot   *knowledge.Copilot
	Checker   *knowledge.Checker
	Tasks     *tasks.Lifecycle
	Agent     *commonality.Agent
	Approval  *approval.Engine
	Config    *config.Repository
	Schedules *config.ScheduleRegistry
}

// SetupRoutes registers all HTTP routes.
func SetupRoutes(router *gin.Engine, e Engines) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.IdentityMiddleware())
	{
		v1.GET("/stats", handlers.Stats(e.Tasks, e.Risk, e.Checker))

		// Risk signals and assessments
		riskRoutes := v1.Group("/risk")
		{
			riskRoutes.POST("/data", handlers.IngestDataPoints(e.Data))
			riskRoutes.POST("/assessments", handlers.RunAssessment(e.Risk))
			riskRoutes.GET("/assessments", handlers.ListAssessments(e.Risk))
			riskRoutes.GET("/assessments/:assessmentId", handlers.GetAssessment(e.Risk))
			riskRoutes.POST("/assessments/:assessmentId/tasks", handlers.GenerateTasks(e.Risk))
		}

		// Knowledge store and compliance copilot
		kb := v1.Group("/knowledge")
		{
			kb.POST("/entries", handlers.CreateEntry(e.Knowledge))
			kb.GET("/entries", handlers.ListEntries(e.Knowledge))
			kb.GET("/entries/:entryId", handlers.GetEntry(e.Knowledge))
			kb.PUT("/entries/:entryId", handlers.UpdateEntry(e.Knowledge))
			kb.DELETE("/entries/:entryId", handlers.ArchiveEntry(e.Knowledge))
			kb.POST("/search", handlers.SearchEntries(e.Knowledge))
		}
		compliance := v1.Group("/compliance")
		{
			compliance.POST("/chat", handlers.Chat(e.Copilot))
			compliance.GET("/conversations", handlers.ListConversations(e.Copilot))
			compliance.GET("/conversations/:conversationId", handlers.GetConversation(e.Copilot))
			compliance.POST("/checks", handlers.RunCheck(e.Checker))
			compliance.GET("/checks", handlers.ListChecks(e.Checker))
			compliance.GET("/checks/:checkId", handlers.GetCheck(e.Checker))
		}

		// Audit tasks and findings
		taskRoutes := v1.Group("/tasks")
		{
			taskRoutes.POST("", handlers.CreateTask(e.Tasks))
			taskRoutes.GET("", handlers.ListTasks(e.Tasks))
			taskRoutes.GET("/:taskId", handlers.GetTask(e.Tasks))
			taskRoutes.POST("/:taskId/start", handlers.StartTask(e.Tasks))
			taskRoutes.POST("/:taskId/cancel", handlers.CancelTask(e.Tasks))
			taskRoutes.POST("/:taskId/complete", handlers.CompleteTask(e.Tasks))
			taskRoutes.DELETE("/:taskId", handlers.DeleteTask(e.Tasks))
			taskRoutes.POST("/:taskId/findings", handlers.CreateFinding(e.Tasks))
			taskRoutes.GET("/:taskId/findings", handlers.ListFindings(e.Tasks))
		}

		// Commonality studies
		studies := v1.Group("/studies")
		{
			studies.POST("", handlers.RunStudy(e.Agent))
			studies.GET("", handlers.ListStudies(e.Agent))
			studies.GET("/:studyId", handlers.GetStudy(e.Agent))
			studies.POST("/:studyId/approve", handlers.ApproveStudy(e.Agent))
		}

		// Improvement proposals
		proposals := v1.Group("/proposals")
		{
			proposals.POST("", handlers.CreateProposal(e.Approval))
			proposals.GET("", handlers.ListProposals(e.Approval))
			proposals.GET("/:proposalId", handlers.GetProposal(e.Approval))
			proposals.POST("/:proposalId/submit", handlers.SubmitProposal(e.Approval))
			proposals.POST("/:proposalId/approve", handlers.ApproveProposal(e.Approval))
			proposals.POST("/:proposalId/implement", handlers.StartImplementation(e.Approval))
			proposals.POST("/:proposalId/complete", handlers.CompleteProposal(e.Approval))
			proposals.DELETE("/:proposalId", handlers.DeleteProposal(e.Approval))
		}

		// Organization configuration and schedules
		admin := v1.Group("/config")
		{
			admin.GET("", handlers.GetConfig(e.Config))
			admin.PUT("", handlers.UpdateConfig(e.Config))
			admin.POST("/schedules", handlers.CreateSchedule(e.Schedules))
			admin.GET("/schedules", handlers.ListSchedules(e.Schedules))
			admin.GET("/schedules/:scheduleId", handlers.GetSchedule(e.Schedules))
			admin.PUT("/schedules/:scheduleId/active", handlers.SetScheduleActive(e.Schedules))
			admin.DELETE("/schedules/:scheduleId", handlers.DeleteSchedule(e.Schedules))
		}
	}
}
