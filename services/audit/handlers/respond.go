// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers exposes the audit engines over HTTP.
//
// Handlers are thin: they bind and hand off to an engine, then map the
// engine's error taxonomy onto status codes. All domain decisions live in
// the engine packages.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
)

// respondError maps the engine error taxonomy onto HTTP status codes:
// NotFound -> 404, InvariantViolation -> 409, validation -> 400, otherwise
// 500 with the detail kept out of the response body.
func respondError(c *gin.Context, err error) {
	switch {
	case datatypes.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case datatypes.IsInvariant(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case isValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// isValidation reports whether err originated from payload validation.
func isValidation(err error) bool {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return true
	}
	// Engines wrap validation failures with an "invalid ..." prefix.
	return strings.HasPrefix(err.Error(), "invalid ")
}

// listOptions reads ?limit= and ?offset= pagination parameters.
func listOptions(c *gin.Context) storage.ListOptions {
	var opt storage.ListOptions
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		opt.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		opt.Offset = v
	}
	return opt
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "audit"})
}
