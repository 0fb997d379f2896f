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
	"github.com/AleutianAI/AleutianAudit/services/audit/knowledge"
	"github.com/AleutianAI/AleutianAudit/services/audit/middleware"
)

// CreateEntry stores a new knowledge entry.
func CreateEntry(store *knowledge.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req knowledge.CreateEntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entry, err := store.CreateEntry(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

// GetEntry returns one knowledge entry.
func GetEntry(store *knowledge.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := store.GetEntry(c.Request.Context(),
			middleware.OrgID(c), c.Param("entryId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

// UpdateEntry replaces a knowledge entry's content.
func UpdateEntry(store *knowledge.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req knowledge.CreateEntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entry, err := store.UpdateEntry(c.Request.Context(),
			middleware.OrgID(c), c.Param("entryId"), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

// ArchiveEntry archives an entry, removing it from retrieval.
func ArchiveEntry(store *knowledge.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := store.ArchiveEntry(c.Request.Context(),
			middleware.OrgID(c), c.Param("entryId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

// ListEntries returns the organization's knowledge entries.
func ListEntries(store *knowledge.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := store.ListEntries(c.Request.Context(),
			middleware.OrgID(c), listOptions(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}

// SearchEntries runs a retrieval query over the knowledge store.
func SearchEntries(store *knowledge.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entries, err := store.Search(c.Request.Context(), middleware.OrgID(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": entries})
	}
}

// Chat handles one compliance copilot turn.
func Chat(copilot *knowledge.Copilot) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp, err := copilot.Chat(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// GetConversation returns one of the caller's conversations.
func GetConversation(copilot *knowledge.Copilot) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := copilot.GetConversation(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), c.Param("conversationId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

// ListConversations returns the caller's conversations.
func ListConversations(copilot *knowledge.Copilot) gin.HandlerFunc {
	return func(c *gin.Context) {
		convs, err := copilot.ListConversations(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), listOptions(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversations": convs})
	}
}

// RunCheck evaluates an entity against a list of standards.
func RunCheck(checker *knowledge.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RunCheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		check, err := checker.RunCheck(c.Request.Context(),
			middleware.OrgID(c), middleware.UserID(c), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, check)
	}
}

// GetCheck returns one compliance check.
func GetCheck(checker *knowledge.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		check, err := checker.GetCheck(c.Request.Context(),
			middleware.OrgID(c), c.Param("checkId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, check)
	}
}

// ListChecks returns the organization's compliance checks.
func ListChecks(checker *knowledge.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks, err := checker.ListChecks(c.Request.Context(),
			middleware.OrgID(c), listOptions(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"checks": checks})
	}
}
