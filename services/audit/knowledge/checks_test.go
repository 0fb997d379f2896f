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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
)

func newTestChecker(t *testing.T, client *stubClient) *Checker {
	t.Helper()
	s, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewChecker(s, client)
}

func checkReq() datatypes.RunCheckRequest {
	return datatypes.RunCheckRequest{
		EntityType: "supplier",
		EntityID:   "sup-1",
		Standards:  []string{"ISO 9001", "AS9100"},
	}
}

func TestRunCheck_ParsedVerdict(t *testing.T) {
	client := &stubClient{generateFn: func(prompt string) (string, error) {
		return `{
			"overall_status": "COMPLIANT",
			"compliance_score": 93.5,
			"check_results": [
				{"requirement": "ISO 9001 8.4", "status": "compliant", "evidence": "supplier scorecards"},
				{"requirement": "AS9100 8.1.4", "status": "weird", "gap": "no counterfeit-parts plan"}
			],
			"requires_action": true,
			"action_items": ["document counterfeit-parts controls"]
		}`, nil
	}}
	checker := newTestChecker(t, client)

	check, err := checker.RunCheck(context.Background(), "org-1", "user-1", checkReq())
	require.NoError(t, err)

	assert.Equal(t, datatypes.CheckStatusCompliant, check.OverallStatus,
		"status casing is normalized")
	assert.InDelta(t, 93.5, check.ComplianceScore, 0.001)
	require.Len(t, check.CheckResults, 2)
	assert.Equal(t, datatypes.CheckStatusPartiallyCompliant, check.CheckResults[1].Status,
		"unrecognized per-requirement statuses normalize to partially compliant")
	assert.True(t, check.RequiresAction)
	assert.Equal(t, []string{"document counterfeit-parts controls"}, check.ActionItems)
	assert.NotEmpty(t, check.CheckNumber)
	assert.Equal(t, "user-1", check.CheckedBy)

	got, err := checker.GetCheck(context.Background(), "org-1", check.ID)
	require.NoError(t, err)
	assert.Equal(t, check.ID, got.ID)
}

func TestRunCheck_NeutralVerdictOnFailure(t *testing.T) {
	// generateFn unset: every inference call fails.
	checker := newTestChecker(t, &stubClient{})

	check, err := checker.RunCheck(context.Background(), "org-1", "user-1", checkReq())
	require.NoError(t, err, "a check is always recorded")

	assert.Equal(t, datatypes.CheckStatusPartiallyCompliant, check.OverallStatus)
	assert.Equal(t, float64(50), check.ComplianceScore)
	assert.Empty(t, check.CheckResults)
	assert.False(t, check.RequiresAction)
	assert.NotNil(t, check.ActionItems)
	assert.Empty(t, check.ActionItems)
}

func TestRunCheck_MalformedOutputIsNeutral(t *testing.T) {
	client := &stubClient{generateFn: func(prompt string) (string, error) {
		return "The supplier looks broadly fine to me.", nil
	}}
	checker := newTestChecker(t, client)

	check, err := checker.RunCheck(context.Background(), "org-1", "user-1", checkReq())
	require.NoError(t, err)
	assert.Equal(t, datatypes.CheckStatusPartiallyCompliant, check.OverallStatus)
	assert.Equal(t, float64(50), check.ComplianceScore)
}

func TestRunCheck_ScoreClamped(t *testing.T) {
	client := &stubClient{generateFn: func(prompt string) (string, error) {
		return `{"overall_status": "non_compliant", "compliance_score": -40}`, nil
	}}
	checker := newTestChecker(t, client)

	check, err := checker.RunCheck(context.Background(), "org-1", "user-1", checkReq())
	require.NoError(t, err)
	assert.Equal(t, datatypes.CheckStatusNonCompliant, check.OverallStatus)
	assert.Equal(t, float64(0), check.ComplianceScore)
}

func TestRunCheck_RejectsInvalidRequest(t *testing.T) {
	checker := newTestChecker(t, &stubClient{})

	_, err := checker.RunCheck(context.Background(), "org-1", "user-1",
		datatypes.RunCheckRequest{EntityType: "supplier", EntityID: "sup-1"})
	assert.Error(t, err, "at least one standard is required")
}

func TestComplianceRate(t *testing.T) {
	script := []string{
		`{"overall_status": "compliant", "compliance_score": 95}`,
		`{"overall_status": "compliant", "compliance_score": 90}`,
		`{"overall_status": "non_compliant", "compliance_score": 20}`,
		`{"overall_status": "partially_compliant", "compliance_score": 55}`,
	}
	client := &stubClient{generateFn: func(prompt string) (string, error) {
		resp := script[0]
		script = script[1:]
		return resp, nil
	}}
	checker := newTestChecker(t, client)
	ctx := context.Background()

	t.Run("no checks yet", func(t *testing.T) {
		rate, err := checker.ComplianceRate(ctx, "org-1")
		require.NoError(t, err)
		assert.Equal(t, float64(0), rate)
	})

	for range 4 {
		_, err := checker.RunCheck(ctx, "org-1", "user-1", checkReq())
		require.NoError(t, err)
	}

	t.Run("percent compliant of recent window", func(t *testing.T) {
		rate, err := checker.ComplianceRate(ctx, "org-1")
		require.NoError(t, err)
		assert.InDelta(t, 50.0, rate, 0.001)
	})

	t.Run("scoped per organization", func(t *testing.T) {
		rate, err := checker.ComplianceRate(ctx, "org-2")
		require.NoError(t, err)
		assert.Equal(t, float64(0), rate)
	})
}

func TestListChecks_NewestFirst(t *testing.T) {
	client := &stubClient{generateFn: func(prompt string) (string, error) {
		return `{"overall_status": "compliant", "compliance_score": 90}`, nil
	}}
	checker := newTestChecker(t, client)
	ctx := context.Background()

	for range 3 {
		_, err := checker.RunCheck(ctx, "org-1", "user-1", checkReq())
		require.NoError(t, err)
	}

	list, err := checker.ListChecks(ctx, "org-1", storage.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[1].CheckedAt.After(list[0].CheckedAt))
}
