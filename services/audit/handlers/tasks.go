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

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/middleware"
	"github.com/AleutianAI/AleutianAudit/services/audit/tasks"
)

// CreateTask creates a manual audit task.
func CreateTask(lifecycle *tasks.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		task, err := lifecycle.CreateTask(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, task)
	}
}

// GetTask returns one task.
func GetTask(lifecycle *tasks.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := lifecycle.GetTask(c.Request.Context(),
			middleware.OrgID(c), c.Param("taskId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// ListTasks returns the organization's tasks, optionally filtered by
// ?status=.
func ListTasks(lifecycle *tasks.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := lifecycle.ListTasks(c.Request.Context(),
			middleware.OrgID(c), c.Query("status"), listOptions(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tasks": list})
	}
}

// StartTask moves a pending task to in_progress.
func StartTask(lifecycle *tasks.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := lifecycle.StartTask(c.Request.Context(),
			middleware.OrgID(c), c.Param("taskId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// CancelTask cancels a pending or in_progress task.
func CancelTask(lifecycle *tasks.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := lifecycle.CancelTask(c.Request.Context(),
			middleware.OrgID(c), c.Param("taskId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// CompleteTask completes a task, recording any supplied findings.
func CompleteTask(lifecycle *tasks.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CompleteTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		task, findings, err := lifecycle.CompleteTask(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), c.Param("taskId"), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"task": task, "findings": findings})
	}
}

// DeleteTask removes a task and cascades to its findings.
func DeleteTask(lifecycle *tasks.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := lifecycle.DeleteTask(c.Request.Context(),
			middleware.OrgID(c), c.Param("taskId")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

// CreateFinding records a finding under a task.
func CreateFinding(lifecycle *tasks.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in datatypes.FindingInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		finding, err := lifecycle.CreateFinding(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), c.Param("taskId"), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, finding)
	}
}

// ListFindings returns a task's findings.
func ListFindings(lifecycle *tasks.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		findings, err := lifecycle.ListFindings(c.Request.Context(),
			middleware.OrgID(c), c.Param("taskId"), listOptions(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"findings": findings})
	}
}
