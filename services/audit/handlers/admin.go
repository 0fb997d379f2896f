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

	"github.com/AleutianAI/AleutianAudit/services/audit/config"
	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/middleware"
)

// UpdateConfigRequest carries the mutable portions of the organization
// configuration. Nil sections keep their current values.
type UpdateConfigRequest struct {
	RiskScoreWeights      *datatypes.RiskScoreWeights      `json:"risk_score_weights,omitempty"`
	RiskThresholds        *datatypes.RiskThresholds        `json:"risk_thresholds,omitempty"`
	ApprovalLevels        []datatypes.ApprovalLevelConfig  `json:"approval_levels,omitempty"`
	AutoGenerateTasks     *bool                            `json:"auto_generate_tasks,omitempty"`
	AutoGenerateThreshold *float64                         `json:"auto_generate_threshold,omitempty"`
	NotificationSettings  *datatypes.NotificationSettings  `json:"notification_settings,omitempty"`
}

// GetConfig returns the organization configuration, lazily created with
// defaults on first access.
func GetConfig(repo *config.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := repo.GetOrInit(c.Request.Context(), middleware.OrgID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// UpdateConfig applies a partial configuration update.
func UpdateConfig(repo *config.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateConfigRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg, err := repo.Update(c.Request.Context(), middleware.OrgID(c),
			func(cur *datatypes.AuditConfiguration) {
				if req.RiskScoreWeights != nil {
					cur.RiskScoreWeights = *req.RiskScoreWeights
				}
				if req.RiskThresholds != nil {
					cur.RiskThresholds = *req.RiskThresholds
				}
				if req.ApprovalLevels != nil {
					cur.ApprovalLevels = req.ApprovalLevels
				}
				if req.AutoGenerateTasks != nil {
					cur.AutoGenerateTasks = *req.AutoGenerateTasks
				}
				if req.AutoGenerateThreshold != nil {
					cur.AutoGenerateThreshold = *req.AutoGenerateThreshold
				}
				if req.NotificationSettings != nil {
					cur.NotificationSettings = *req.NotificationSettings
				}
			})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// CreateSchedule declares one recurring assessment run.
func CreateSchedule(registry *config.ScheduleRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req config.CreateScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sched, err := registry.Create(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sched)
	}
}

// GetSchedule returns one schedule.
func GetSchedule(registry *config.ScheduleRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		sched, err := registry.Get(c.Request.Context(),
			middleware.OrgID(c), c.Param("scheduleId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sched)
	}
}

// ListSchedules returns the organization's schedules.
func ListSchedules(registry *config.ScheduleRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheds, err := registry.List(c.Request.Context(),
			middleware.OrgID(c), listOptions(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"schedules": scheds})
	}
}

// setActiveRequest toggles a schedule.
type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetScheduleActive toggles a schedule without touching its run history.
func SetScheduleActive(registry *config.ScheduleRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sched, err := registry.SetActive(c.Request.Context(),
			middleware.OrgID(c), c.Param("scheduleId"), req.Active)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sched)
	}
}

// DeleteSchedule removes a schedule.
func DeleteSchedule(registry *config.ScheduleRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := registry.Delete(c.Request.Context(),
			middleware.OrgID(c), c.Param("scheduleId")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}
