// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package commonality runs bounded Thought -> Action -> Observation loops
// that investigate cross-entity quality patterns.
//
// The loop is bounded twice: by a hard iteration cap and by a wall-clock
// budget. Action selection happens over a closed enum, and any unparseable
// model output resolves to COMPLETE, so the loop cannot run away on bad
// input. A study is persisted only once the loop and synthesis finish;
// callers never observe a partially executed run.
package commonality

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

var studyTracer = otel.Tracer("aleutian.audit.commonality")

const (
	// defaultMaxIterations bounds the loop when no explicit cap is
	// configured.
	defaultMaxIterations = 5

	// defaultWallBudget bounds one run's total wall-clock time. Thought and
	// selection calls that would push past the budget are skipped and the
	// run proceeds straight to synthesis.
	defaultWallBudget = 2 * time.Minute

	// fallbackThought is substituted whenever thought generation fails; the
	// loop never aborts over it.
	fallbackThought = "Analyzing patterns in the accumulated findings and signals."
)

// Agent executes commonality studies.
type Agent struct {
	records       *storage.Store
	llm           llm.Client
	maxIterations int
	wallBudget    time.Duration
}

// NewAgent creates a study Agent with the default iteration and wall-clock
// bounds.
func NewAgent(records *storage.Store, client llm.Client) *Agent {
	return &Agent{
		records:       records,
		llm:           client,
		maxIterations: defaultMaxIterations,
		wallBudget:    defaultWallBudget,
	}
}

// WithBounds overrides the iteration cap and wall-clock budget.
// Non-positive values keep the current setting.
func (a *Agent) WithBounds(maxIterations int, wallBudget time.Duration) *Agent {
	if maxIterations > 0 {
		a.maxIterations = maxIterations
	}
	if wallBudget > 0 {
		a.wallBudget = wallBudget
	}
	return a
}

// actionChoice is the structure requested from the inference service for one
// action selection.
type actionChoice struct {
	Action      string `json:"action"`
	Description string `json:"description"`
}

// synthesisResult is the structure requested from the final synthesis call.
type synthesisResult struct {
	Patterns         []datatypes.Pattern         `json:"patterns"`
	Recommendations  []string                    `json:"recommendations"`
	SupplierInsights []datatypes.SupplierInsight `json:"supplier_insights"`
	VariantAnalysis  string                      `json:"variant_analysis"`
}

// RunStudy executes one bounded reasoning run and persists the completed
// study.
//
// # Description
//
// Each iteration generates a thought, selects an action from the closed set,
// executes it deterministically against stored records, and appends the full
// step to the trace. The loop ends when an action reports completion, the
// iteration cap is reached, or the wall-clock budget expires. A final
// synthesis call condenses the accumulated context; on synthesis failure the
// study keeps the deterministic partial results and empty defaults. The
// study is always persisted with status completed once the loop finishes.
func (a *Agent) RunStudy(ctx context.Context, orgID, userID string, req datatypes.RunStudyRequest) (datatypes.CommonalityStudy, error) {
	ctx, span := studyTracer.Start(ctx, "Agent.RunStudy")
	defer span.End()

	if err := datatypes.Validate(&req); err != nil {
		return datatypes.CommonalityStudy{}, fmt.Errorf("invalid study request: %w", err)
	}

	sc := &studyContext{
		studyType: req.StudyType,
		filters:   req.EntityFilters,
		window:    req.AnalysisWindow,
	}
	start := time.Now()
	trace := make([]datatypes.ReactStep, 0, a.maxIterations)

	for i := 0; i < a.maxIterations; i++ {
		if time.Since(start) > a.wallBudget {
			slog.Warn("Study wall-clock budget exhausted", "org_id", orgID, "steps", i)
			break
		}

		thought := a.think(ctx, sc, i)
		action, description := a.selectAction(ctx, sc, i)
		observability.CountReactStep(string(action))

		observation, complete, err := a.execute(ctx, orgID, action, sc)
		if err != nil {
			return datatypes.CommonalityStudy{}, fmt.Errorf("action %s failed: %w", action, err)
		}

		trace = append(trace, datatypes.ReactStep{
			Step:        i + 1,
			Thought:     thought,
			Action:      description,
			Observation: observation,
			Timestamp:   time.Now().UTC(),
		})
		if complete {
			break
		}
	}
	span.SetAttributes(attribute.Int("study.steps", len(trace)))

	synthesis := a.synthesize(ctx, sc)

	study := datatypes.CommonalityStudy{
		ID:               datatypes.NewID(),
		OrganizationID:   orgID,
		StudyNumber:      datatypes.NewRefNumber(datatypes.PrefixStudy),
		Title:            req.Title,
		StudyType:        req.StudyType,
		AnalysisWindow:   req.AnalysisWindow,
		EntityFilters:    req.EntityFilters,
		ReactTrace:       trace,
		PatternsFound:    mergePatterns(sc.patterns, synthesis.Patterns),
		Recommendations:  synthesis.Recommendations,
		SupplierInsights: mergeInsights(sc.supplierInsights, synthesis.SupplierInsights),
		VariantAnalysis:  synthesis.VariantAnalysis,
		Status:           datatypes.StudyStatusCompleted,
		RequiresApproval: req.RequiresApproval,
		ApprovalStatus:   datatypes.StudyApprovalPending,
		CreatedBy:        userID,
		CreatedAt:        time.Now().UTC(),
	}
	if study.Recommendations == nil {
		study.Recommendations = []string{}
	}
	if err := storage.Put(a.records, datatypes.KindStudy, orgID, study.ID, study); err != nil {
		return datatypes.CommonalityStudy{}, err
	}
	slog.Info("Commonality study completed",
		"org_id", orgID,
		"study_number", study.StudyNumber,
		"steps", len(trace),
		"patterns", len(study.PatternsFound),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return study, nil
}

// GetStudy returns one study.
func (a *Agent) GetStudy(ctx context.Context, orgID, id string) (datatypes.CommonalityStudy, error) {
	return storage.Get[datatypes.CommonalityStudy](a.records, datatypes.KindStudy, orgID, id)
}

// ListStudies returns the organization's studies, newest first.
func (a *Agent) ListStudies(ctx context.Context, orgID string, opt storage.ListOptions) ([]datatypes.CommonalityStudy, error) {
	return storage.List(a.records, datatypes.KindStudy, orgID, nil,
		func(x, y datatypes.CommonalityStudy) bool { return x.CreatedAt.After(y.CreatedAt) }, opt)
}

// ApproveStudy records the single-step sign-off on a study. This is
// independent of the improvement-proposal approval chain.
func (a *Agent) ApproveStudy(ctx context.Context, orgID, userID, id string, req datatypes.ApproveStudyRequest) (datatypes.CommonalityStudy, error) {
	return storage.Update(a.records, datatypes.KindStudy, orgID, id,
		func(s *datatypes.CommonalityStudy) error {
			if s.ApprovalStatus != datatypes.StudyApprovalPending {
				return &datatypes.InvariantError{Op: "ApproveStudy",
					Reason: fmt.Sprintf("study already %s", s.ApprovalStatus)}
			}
			if req.Approved {
				s.ApprovalStatus = datatypes.StudyApprovalApproved
			} else {
				s.ApprovalStatus = datatypes.StudyApprovalRejected
			}
			s.ApprovalComments = req.Comments
			s.ApprovedBy = userID
			now := time.Now().UTC()
			s.ApprovedAt = &now
			return nil
		})
}

// think asks for a one-to-two sentence statement of what to investigate
// next, substituting the generic fallback on any failure.
func (a *Agent) think(ctx context.Context, sc *studyContext, step int) string {
	prompt := buildThoughtPrompt(sc, step)

	start := time.Now()
	raw, err := a.llm.Generate(ctx, prompt, llm.GenerationParams{MaxTokens: llm.Int(120)})
	observability.ObserveInference("study_thought", start, err)
	if err != nil || strings.TrimSpace(raw) == "" {
		if err != nil {
			slog.Warn("Thought generation failed, using fallback", "step", step, "error", err)
		}
		observability.CountFallback("study_thought")
		return fallbackThought
	}
	return strings.TrimSpace(raw)
}

// selectAction asks for one member of the closed action set. Unparseable
// output resolves to COMPLETE.
func (a *Agent) selectAction(ctx context.Context, sc *studyContext, step int) (ActionKind, string) {
	prompt := buildActionPrompt(sc, step)

	start := time.Now()
	raw, err := a.llm.Generate(ctx, prompt, llm.GenerationParams{MaxTokens: llm.Int(200)})
	observability.ObserveInference("study_action", start, err)
	if err != nil {
		slog.Warn("Action selection failed, completing study", "step", step, "error", err)
		observability.CountFallback("study_action")
		return ActionComplete, "Complete the analysis"
	}

	choice, ok := llm.ParseStructured(raw, actionChoice{Action: string(ActionComplete)})
	if !ok {
		slog.Warn("Action selection output failed to parse, completing study", "step", step)
		observability.CountFallback("study_action")
	}
	action := ParseAction(choice.Action)
	description := strings.TrimSpace(choice.Description)
	if description == "" {
		description = string(action)
	}
	return action, description
}

// synthesize condenses the accumulated context, substituting empty defaults
// on failure. The study always persists.
func (a *Agent) synthesize(ctx context.Context, sc *studyContext) synthesisResult {
	prompt := buildSynthesisPrompt(sc)

	start := time.Now()
	raw, err := a.llm.Generate(ctx, prompt, llm.GenerationParams{})
	observability.ObserveInference("study_synthesis", start, err)
	if err != nil {
		slog.Warn("Study synthesis failed, keeping deterministic results", "error", err)
		observability.CountFallback("study_synthesis")
		return synthesisResult{}
	}

	result, ok := llm.ParseStructured(raw, synthesisResult{})
	if !ok {
		slog.Warn("Study synthesis output failed to parse, keeping deterministic results")
		observability.CountFallback("study_synthesis")
	}
	return result
}

func buildThoughtPrompt(sc *studyContext, step int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are investigating cross-entity quality commonality (study type %q), step %d.\n",
		sc.studyType, step+1)
	fmt.Fprintf(&b, "Accumulated so far: %d findings, %d patterns, %d supplier insights, %d process notes.\n",
		len(sc.findings), len(sc.patterns), len(sc.supplierInsights), len(sc.processNotes))
	b.WriteString("State in one or two sentences what to investigate next. Respond with plain text only.")
	return b.String()
}

func buildActionPrompt(sc *studyContext, step int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Commonality study (type %q), step %d. Pick exactly one next action:\n", sc.studyType, step+1)
	b.WriteString("- ANALYZE_DEFECTS: group recorded findings into recurring patterns\n")
	b.WriteString("- COMPARE_SUPPLIERS: compare supplier signal averages\n")
	b.WriteString("- CHECK_PROCESS: summarize process metric activity\n")
	b.WriteString("- FIND_ROOT_CAUSE: rank accumulated patterns into root-cause candidates\n")
	b.WriteString("- COMPLETE: no further investigation needed\n\n")
	fmt.Fprintf(&b, "Accumulated: %d patterns, %d supplier insights, %d root-cause candidates.\n\n",
		len(sc.patterns), len(sc.supplierInsights), len(sc.rootCauses))
	b.WriteString("Respond with a single JSON object: ")
	b.WriteString(`{"action":"ANALYZE_DEFECTS|COMPARE_SUPPLIERS|CHECK_PROCESS|FIND_ROOT_CAUSE|COMPLETE","description":""}`)
	return b.String()
}

func buildSynthesisPrompt(sc *studyContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Synthesize the results of a %q commonality study.\n\n", sc.studyType)
	if len(sc.patterns) > 0 {
		b.WriteString("Patterns:\n")
		for _, p := range sc.patterns {
			fmt.Fprintf(&b, "- %s: %s\n", p.Name, p.Description)
		}
	}
	if len(sc.supplierInsights) > 0 {
		b.WriteString("Supplier insights:\n")
		for _, s := range sc.supplierInsights {
			fmt.Fprintf(&b, "- %s: %s\n", s.SupplierID, s.Observation)
		}
	}
	for _, note := range sc.processNotes {
		fmt.Fprintf(&b, "- %s\n", note)
	}
	for _, rc := range sc.rootCauses {
		fmt.Fprintf(&b, "- %s\n", rc)
	}
	b.WriteString("\nRespond with a single JSON object: ")
	b.WriteString(`{"patterns":[{"name":"","description":"","occurrences":0,"confidence":0}],` +
		`"recommendations":[""],` +
		`"supplier_insights":[{"supplier_id":"","observation":"","metric_value":0}],` +
		`"variant_analysis":""}`)
	return b.String()
}

// mergePatterns keeps the deterministic patterns and appends synthesis
// additions whose names are not already present.
func mergePatterns(deterministic, synthesized []datatypes.Pattern) []datatypes.Pattern {
	out := make([]datatypes.Pattern, 0, len(deterministic)+len(synthesized))
	seen := map[string]bool{}
	for _, p := range deterministic {
		out = append(out, p)
		seen[p.Name] = true
	}
	for _, p := range synthesized {
		if p.Name == "" || seen[p.Name] {
			continue
		}
		out = append(out, p)
		seen[p.Name] = true
	}
	return out
}

func mergeInsights(deterministic, synthesized []datatypes.SupplierInsight) []datatypes.SupplierInsight {
	out := make([]datatypes.SupplierInsight, 0, len(deterministic)+len(synthesized))
	seen := map[string]bool{}
	for _, s := range deterministic {
		out = append(out, s)
		seen[s.SupplierID] = true
	}
	for _, s := range synthesized {
		if s.SupplierID == "" || seen[s.SupplierID] {
			continue
		}
		out = append(out, s)
		seen[s.SupplierID] = true
	}
	return out
}
