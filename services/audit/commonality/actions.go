// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package commonality

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
)

// ActionKind is one member of the closed action set the agent may select.
type ActionKind string

const (
	ActionAnalyzeDefects   ActionKind = "ANALYZE_DEFECTS"
	ActionCompareSuppliers ActionKind = "COMPARE_SUPPLIERS"
	ActionCheckProcess     ActionKind = "CHECK_PROCESS"
	ActionFindRootCause    ActionKind = "FIND_ROOT_CAUSE"
	ActionComplete         ActionKind = "COMPLETE"
)

// ParseAction maps raw model output onto the closed action set. Anything
// outside the set resolves to COMPLETE: ambiguity terminates the loop rather
// than looping on bad input.
func ParseAction(raw string) ActionKind {
	switch ActionKind(strings.ToUpper(strings.TrimSpace(raw))) {
	case ActionAnalyzeDefects:
		return ActionAnalyzeDefects
	case ActionCompareSuppliers:
		return ActionCompareSuppliers
	case ActionCheckProcess:
		return ActionCheckProcess
	case ActionFindRootCause:
		return ActionFindRootCause
	default:
		return ActionComplete
	}
}

// actionSampleCap bounds the records pulled by one action execution.
const actionSampleCap = 200

// studyContext accumulates partial results across loop iterations. It is
// never reset mid-run; each action contributes its own namespaced slice.
type studyContext struct {
	studyType string
	filters   *datatypes.EntityRef
	window    *datatypes.Period

	findings         []datatypes.AuditFinding
	patterns         []datatypes.Pattern
	supplierInsights []datatypes.SupplierInsight
	processNotes     []string
	rootCauses       []string
}

// execute runs one action. Every action is a pure, deterministic dispatch
// over stored records; there are no inference calls here. The returned
// observation goes into the trace verbatim, and complete=true ends the loop.
func (a *Agent) execute(ctx context.Context, orgID string, action ActionKind, sc *studyContext) (string, bool, error) {
	switch action {
	case ActionAnalyzeDefects:
		return a.analyzeDefects(ctx, orgID, sc)
	case ActionCompareSuppliers:
		return a.compareSuppliers(ctx, orgID, sc)
	case ActionCheckProcess:
		return a.checkProcess(ctx, orgID, sc)
	case ActionFindRootCause:
		return a.findRootCause(sc)
	case ActionComplete:
		return "Analysis complete; no further investigation required.", true, nil
	default:
		// ParseAction makes this unreachable; treat like COMPLETE anyway.
		return "Unknown action; terminating analysis.", true, nil
	}
}

// analyzeDefects groups the organization's findings by category and records
// recurring categories as patterns.
func (a *Agent) analyzeDefects(ctx context.Context, orgID string, sc *studyContext) (string, bool, error) {
	findings, err := storage.List(a.records, datatypes.KindAuditFinding, orgID,
		func(f datatypes.AuditFinding) bool { return sc.inWindow(f.CreatedAt) },
		func(x, y datatypes.AuditFinding) bool { return x.CreatedAt.After(y.CreatedAt) },
		storage.ListOptions{Limit: actionSampleCap})
	if err != nil {
		return "", false, err
	}
	sc.findings = append(sc.findings, findings...)

	byCategory := map[string]int{}
	for _, f := range findings {
		cat := f.Category
		if cat == "" {
			cat = "uncategorized"
		}
		byCategory[cat]++
	}
	for _, cat := range sortedKeys(byCategory) {
		n := byCategory[cat]
		if n < 2 {
			continue
		}
		sc.patterns = append(sc.patterns, datatypes.Pattern{
			Name:        cat,
			Description: fmt.Sprintf("%d findings share category %q", n, cat),
			Occurrences: n,
			Confidence:  recurrenceConfidence(n, len(findings)),
		})
	}
	return fmt.Sprintf("Reviewed %d findings across %d categories; %d recurring patterns recorded.",
		len(findings), len(byCategory), len(sc.patterns)), false, nil
}

// compareSuppliers averages supplier-scoped data points per supplier.
func (a *Agent) compareSuppliers(ctx context.Context, orgID string, sc *studyContext) (string, bool, error) {
	points, err := storage.List(a.records, datatypes.KindRiskDataPoint, orgID,
		func(p datatypes.RiskDataPoint) bool {
			return p.EntityType == "supplier" && sc.inWindow(p.Timestamp) && sc.matchesFilter(p)
		},
		func(x, y datatypes.RiskDataPoint) bool { return x.Timestamp.After(y.Timestamp) },
		storage.ListOptions{Limit: actionSampleCap})
	if err != nil {
		return "", false, err
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	for _, p := range points {
		sums[p.EntityID] += p.Value
		counts[p.EntityID]++
	}
	for _, id := range sortedKeys(counts) {
		mean := sums[id] / float64(counts[id])
		sc.supplierInsights = append(sc.supplierInsights, datatypes.SupplierInsight{
			SupplierID:  id,
			Observation: fmt.Sprintf("mean signal %.3f over %d data points", mean, counts[id]),
			MetricValue: mean,
		})
	}
	return fmt.Sprintf("Compared %d suppliers over %d data points.", len(counts), len(points)), false, nil
}

// checkProcess summarizes process-scoped metric activity.
func (a *Agent) checkProcess(ctx context.Context, orgID string, sc *studyContext) (string, bool, error) {
	points, err := storage.List(a.records, datatypes.KindRiskDataPoint, orgID,
		func(p datatypes.RiskDataPoint) bool {
			return p.EntityType == "process" && sc.inWindow(p.Timestamp) && sc.matchesFilter(p)
		},
		func(x, y datatypes.RiskDataPoint) bool { return x.Timestamp.After(y.Timestamp) },
		storage.ListOptions{Limit: actionSampleCap})
	if err != nil {
		return "", false, err
	}

	metrics := map[string]int{}
	for _, p := range points {
		metrics[p.MetricName]++
	}
	for _, name := range sortedKeys(metrics) {
		sc.processNotes = append(sc.processNotes,
			fmt.Sprintf("process metric %q observed %d times", name, metrics[name]))
	}
	return fmt.Sprintf("Checked %d process metrics over %d data points.", len(metrics), len(points)), false, nil
}

// findRootCause ranks the already-accumulated patterns by occurrence and
// nominates the most frequent ones as root-cause candidates. Operates purely
// on context accumulated by earlier steps.
func (a *Agent) findRootCause(sc *studyContext) (string, bool, error) {
	ranked := make([]datatypes.Pattern, len(sc.patterns))
	copy(ranked, sc.patterns)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Occurrences > ranked[j].Occurrences })

	for i, p := range ranked {
		if i >= 3 {
			break
		}
		sc.rootCauses = append(sc.rootCauses,
			fmt.Sprintf("candidate root cause: %s (%d occurrences)", p.Name, p.Occurrences))
	}
	if len(sc.rootCauses) == 0 {
		return "No recurring patterns accumulated yet; no root-cause candidates.", false, nil
	}
	return fmt.Sprintf("Nominated %d root-cause candidates from accumulated patterns.",
		len(sc.rootCauses)), false, nil
}

// matchesFilter applies the study's optional entity filter to a data point.
// The filter narrows by id only; the per-action entity type is fixed by the
// action itself.
func (sc *studyContext) matchesFilter(p datatypes.RiskDataPoint) bool {
	if sc.filters == nil || sc.filters.EntityID == "" {
		return true
	}
	return p.EntityID == sc.filters.EntityID
}

// inWindow reports whether ts falls inside the study's analysis window
// [From, To). An absent window admits everything.
func (sc *studyContext) inWindow(ts time.Time) bool {
	if sc.window == nil {
		return true
	}
	return !ts.Before(sc.window.From) && ts.Before(sc.window.To)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// recurrenceConfidence is a bounded share-of-total heuristic.
func recurrenceConfidence(occurrences, total int) float64 {
	if total == 0 {
		return 0
	}
	c := float64(occurrences) / float64(total)
	if c > 1 {
		c = 1
	}
	return c
}
