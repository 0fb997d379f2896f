// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the audit service.
//
// # Identity Flow
//
// Every engine operation is scoped by an organization id and attributed to
// an acting user id. The identity middleware extracts both from request
// headers and stores them in the Gin context for downstream handlers:
//
//	Request
//	   │
//	   ▼
//	IdentityMiddleware
//	   │
//	   ├─► X-Org-ID    (falls back to "default-org")
//	   ├─► X-User-ID   (falls back to "local-user")
//	   │
//	   └─► Store both in context
//	           │
//	           ▼
//	       Handler (retrieves via OrgID / UserID)
//
// The fallbacks let the service run standalone without an identity gateway
// in front of it; deployments with a gateway always set both headers.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// =============================================================================
// Context Keys
// =============================================================================

// Typed context keys prevent collisions with other context values.
const (
	orgIDKey  = "aleutian_audit_org_id"
	userIDKey = "aleutian_audit_user_id"
)

// Header names the identity middleware reads.
const (
	HeaderOrgID  = "X-Org-ID"
	HeaderUserID = "X-User-ID"
)

// Standalone fallbacks applied when no identity gateway set the headers.
const (
	DefaultOrgID  = "default-org"
	DefaultUserID = "local-user"
)

// =============================================================================
// Context Helpers
// =============================================================================

// OrgID returns the organization id scoping the current request.
// IdentityMiddleware guarantees a non-empty value.
func OrgID(c *gin.Context) string {
	if v, exists := c.Get(orgIDKey); exists {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return DefaultOrgID
}

// UserID returns the acting user id for the current request.
// IdentityMiddleware guarantees a non-empty value.
func UserID(c *gin.Context) string {
	if v, exists := c.Get(userIDKey); exists {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return DefaultUserID
}

// =============================================================================
// Identity Middleware
// =============================================================================

// IdentityMiddleware extracts the organization and user identity headers and
// stores them in the Gin context.
//
// # Description
//
// Missing or blank headers fall back to the standalone defaults rather than
// rejecting the request: the engine enforces isolation through org-scoped
// storage keys, so an unknown organization simply sees an empty dataset.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := strings.TrimSpace(c.GetHeader(HeaderOrgID))
		if org == "" {
			org = DefaultOrgID
		}
		user := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if user == "" {
			user = DefaultUserID
		}
		c.Set(orgIDKey, org)
		c.Set(userIDKey, user)
		c.Next()
	}
}
