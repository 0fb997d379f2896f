// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// =============================================================================
// Knowledge Entries
// =============================================================================

// Knowledge entry status values.
const (
	KnowledgeStatusActive   = "active"
	KnowledgeStatusArchived = "archived"
)

// KnowledgeEntry is a stored compliance/process document usable both for
// direct lookup and as retrieval context for the copilot.
//
// UsageCount increments on every retrieval hit; approximate counting is
// acceptable (no strict linearizability required). The optional embedding
// enables cosine-similarity ranking behind the same search interface as the
// lexical baseline.
type KnowledgeEntry struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Summary        string     `json:"summary,omitempty"`
	Category       string     `json:"category"`
	DocumentType   string     `json:"document_type"`
	Embedding      []float32  `json:"embedding,omitempty"`
	EffectiveDate  *time.Time `json:"effective_date,omitempty"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	Status         string     `json:"status"`
	UsageCount     int        `json:"usage_count"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// =============================================================================
// Compliance Checks
// =============================================================================

// Overall check status values.
const (
	CheckStatusCompliant          = "compliant"
	CheckStatusNonCompliant       = "non_compliant"
	CheckStatusPartiallyCompliant = "partially_compliant"
)

// CheckResult is one per-requirement verdict inside a compliance check.
type CheckResult struct {
	Requirement string `json:"requirement"`
	Status      string `json:"status"`
	Evidence    string `json:"evidence,omitempty"`
	Gap         string `json:"gap,omitempty"`
}

// ComplianceCheck is a write-once snapshot of a point-in-time evaluation of an
// entity against a set of standards.
type ComplianceCheck struct {
	ID               string        `json:"id"`
	OrganizationID   string        `json:"organization_id"`
	CheckNumber      string        `json:"check_number"`
	EntityType       string        `json:"entity_type"`
	EntityID         string        `json:"entity_id"`
	StandardsChecked []string      `json:"standards_checked"`
	OverallStatus    string        `json:"overall_status"`
	ComplianceScore  float64       `json:"compliance_score"`
	CheckResults     []CheckResult `json:"check_results"`
	RequiresAction   bool          `json:"requires_action"`
	ActionItems      []string      `json:"action_items"`
	CheckedBy        string        `json:"checked_by"`
	CheckedAt        time.Time     `json:"checked_at"`
}

// =============================================================================
// Compliance Conversations
// =============================================================================

// Message roles, matching inference-service chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is one turn in a compliance conversation. Sources lists
// the knowledge entry ids surfaced as context for an assistant reply.
type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []string  `json:"sources,omitempty"`
}

// ComplianceConversation accumulates all turns of one copilot conversation.
// Messages is ordered and append-only; the conversation is never truncated
// automatically. The title defaults to a prefix of the first user message and
// is never overwritten thereafter.
type ComplianceConversation struct {
	ID             string                `json:"id"`
	OrganizationID string                `json:"organization_id"`
	UserID         string                `json:"user_id"`
	Title          string                `json:"title,omitempty"`
	Messages       []ConversationMessage `json:"messages"`
	Context        string                `json:"context,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}
