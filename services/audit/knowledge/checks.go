// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/observability"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

var checkTracer = otel.Tracer("aleutian.audit.knowledge.checks")

// complianceRateWindow is the number of most-recent checks sampled by
// ComplianceRate, regardless of date range.
const complianceRateWindow = 100

// neutralCheckScore is substituted for the compliance score when the
// inference call fails or its output cannot be parsed.
const neutralCheckScore = 50

// Checker runs point-in-time compliance evaluations of an entity against a
// set of standards. Checks are write-once snapshots; they are never updated
// after creation.
//
// # Failure Policy
//
// The evaluation is advisory: a check record is always created. On inference
// failure or malformed output the checker substitutes a partially_compliant
// verdict with a neutral score and empty result lists.
type Checker struct {
	records *storage.Store
	llm     llm.Client
}

// NewChecker creates a compliance Checker.
func NewChecker(records *storage.Store, client llm.Client) *Checker {
	return &Checker{records: records, llm: client}
}

// checkOutcome is the structure requested from the inference service for one
// compliance check. All fields are untrusted and normalized after parsing.
type checkOutcome struct {
	OverallStatus   string                `json:"overall_status"`
	ComplianceScore float64               `json:"compliance_score"`
	CheckResults    []datatypes.CheckResult `json:"check_results"`
	RequiresAction  bool                  `json:"requires_action"`
	ActionItems     []string              `json:"action_items"`
}

// neutralOutcome is the fallback substituted on advisory degradation.
func neutralOutcome() checkOutcome {
	return checkOutcome{
		OverallStatus:   datatypes.CheckStatusPartiallyCompliant,
		ComplianceScore: neutralCheckScore,
		CheckResults:    []datatypes.CheckResult{},
		ActionItems:     []string{},
	}
}

// RunCheck evaluates an entity against the requested standards and persists a
// write-once ComplianceCheck snapshot.
func (c *Checker) RunCheck(ctx context.Context, orgID, userID string, req datatypes.RunCheckRequest) (datatypes.ComplianceCheck, error) {
	ctx, span := checkTracer.Start(ctx, "Checker.RunCheck")
	defer span.End()

	if err := datatypes.Validate(&req); err != nil {
		return datatypes.ComplianceCheck{}, fmt.Errorf("invalid check request: %w", err)
	}
	span.SetAttributes(
		attribute.String("check.entity_type", req.EntityType),
		attribute.Int("check.standards", len(req.Standards)),
	)

	outcome := c.evaluate(ctx, req)

	check := datatypes.ComplianceCheck{
		ID:               datatypes.NewID(),
		OrganizationID:   orgID,
		CheckNumber:      datatypes.NewRefNumber(datatypes.PrefixCheck),
		EntityType:       req.EntityType,
		EntityID:         req.EntityID,
		StandardsChecked: req.Standards,
		OverallStatus:    normalizeCheckStatus(outcome.OverallStatus),
		ComplianceScore:  clampCheckScore(outcome.ComplianceScore),
		CheckResults:     normalizeResults(outcome.CheckResults),
		RequiresAction:   outcome.RequiresAction,
		ActionItems:      outcome.ActionItems,
		CheckedBy:        userID,
		CheckedAt:        time.Now().UTC(),
	}
	if check.ActionItems == nil {
		check.ActionItems = []string{}
	}
	if err := storage.Put(c.records, datatypes.KindCheck, orgID, check.ID, check); err != nil {
		return datatypes.ComplianceCheck{}, err
	}
	slog.Info("Compliance check recorded",
		"org_id", orgID,
		"check_number", check.CheckNumber,
		"overall_status", check.OverallStatus,
		"compliance_score", check.ComplianceScore,
	)
	return check, nil
}

// GetCheck returns one compliance check.
func (c *Checker) GetCheck(ctx context.Context, orgID, id string) (datatypes.ComplianceCheck, error) {
	return storage.Get[datatypes.ComplianceCheck](c.records, datatypes.KindCheck, orgID, id)
}

// ListChecks returns the organization's checks, newest first.
func (c *Checker) ListChecks(ctx context.Context, orgID string, opt storage.ListOptions) ([]datatypes.ComplianceCheck, error) {
	return storage.List(c.records, datatypes.KindCheck, orgID, nil,
		func(a, b datatypes.ComplianceCheck) bool { return a.CheckedAt.After(b.CheckedAt) }, opt)
}

// ComplianceRate reports the percentage of compliant checks among the most
// recent complianceRateWindow checks. The fixed-size recent window is
// intentional. Returns 0 when no checks exist.
func (c *Checker) ComplianceRate(ctx context.Context, orgID string) (float64, error) {
	recent, err := storage.List(c.records, datatypes.KindCheck, orgID, nil,
		func(a, b datatypes.ComplianceCheck) bool { return a.CheckedAt.After(b.CheckedAt) },
		storage.ListOptions{Limit: complianceRateWindow})
	if err != nil {
		return 0, err
	}
	if len(recent) == 0 {
		return 0, nil
	}
	compliant := 0
	for _, check := range recent {
		if check.OverallStatus == datatypes.CheckStatusCompliant {
			compliant++
		}
	}
	return float64(compliant) / float64(len(recent)) * 100, nil
}

// evaluate asks the inference service for a verdict, substituting the neutral
// outcome on any failure.
func (c *Checker) evaluate(ctx context.Context, req datatypes.RunCheckRequest) checkOutcome {
	prompt := buildCheckPrompt(req)

	start := time.Now()
	raw, err := c.llm.Generate(ctx, prompt, llm.GenerationParams{})
	observability.ObserveInference("compliance_check", start, err)
	if err != nil {
		slog.Warn("Compliance check inference failed, using neutral verdict", "error", err)
		observability.CountFallback("compliance_check")
		return neutralOutcome()
	}

	outcome, ok := llm.ParseStructured(raw, neutralOutcome())
	if !ok {
		slog.Warn("Compliance check output failed to parse, using neutral verdict")
		observability.CountFallback("compliance_check")
	}
	return outcome
}

func buildCheckPrompt(req datatypes.RunCheckRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a compliance auditor. Evaluate %s %s against these standards:\n",
		req.EntityType, req.EntityID)
	for _, s := range req.Standards {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("\nRespond with a single JSON object: ")
	b.WriteString(`{"overall_status":"compliant|non_compliant|partially_compliant",` +
		`"compliance_score":0-100,` +
		`"check_results":[{"requirement":"","status":"","evidence":"","gap":""}],` +
		`"requires_action":false,"action_items":[""]}`)
	return b.String()
}

func normalizeCheckStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case datatypes.CheckStatusCompliant:
		return datatypes.CheckStatusCompliant
	case datatypes.CheckStatusNonCompliant:
		return datatypes.CheckStatusNonCompliant
	default:
		return datatypes.CheckStatusPartiallyCompliant
	}
}

func normalizeResults(results []datatypes.CheckResult) []datatypes.CheckResult {
	if results == nil {
		return []datatypes.CheckResult{}
	}
	out := make([]datatypes.CheckResult, len(results))
	for i, r := range results {
		r.Status = normalizeCheckStatus(r.Status)
		out[i] = r
	}
	return out
}

func clampCheckScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
