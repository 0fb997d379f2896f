// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAudit/services/audit/config"
	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/observability"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

var riskTracer = otel.Tracer("aleutian.audit.risk")

// windowCap bounds the number of data points fed into one scoring prompt.
const windowCap = 200

// neutralScore is the documented default substituted for every dimension when
// the inference call fails or its output cannot be parsed.
const neutralScore = 50

// Engine computes composite risk assessments from ingested signals and
// derives audit tasks from the results.
//
// # Failure Policy
//
// The scoring narrative is advisory, not authoritative: an assessment is
// always created. If the inference call fails or returns malformed output,
// the engine substitutes neutral defaults (all scores 50, empty factor and
// recommendation lists) and proceeds.
type Engine struct {
	records *storage.Store
	data    *DataStore
	llm     llm.Client
	cfg     *config.Repository
}

// NewEngine creates a scoring Engine.
func NewEngine(records *storage.Store, data *DataStore, client llm.Client, cfg *config.Repository) *Engine {
	return &Engine{records: records, data: data, llm: client, cfg: cfg}
}

// scoringResult is the structure requested from the inference service for one
// scoring run. All scores are untrusted and clamped after parsing.
type scoringResult struct {
	OverallScore       float64               `json:"overall_score"`
	QualityScore       float64               `json:"quality_score"`
	ProcessScore       float64               `json:"process_score"`
	SupplierScore      float64               `json:"supplier_score"`
	ComplianceScore    float64               `json:"compliance_score"`
	RiskFactors        []datatypes.RiskFactor `json:"risk_factors"`
	Analysis           string                `json:"analysis"`
	Recommendations    []string              `json:"recommendations"`
	SuggestedResources []string              `json:"suggested_resources"`
}

// neutralScoring is the fallback substituted on advisory degradation.
func neutralScoring() scoringResult {
	return scoringResult{
		OverallScore:       neutralScore,
		QualityScore:       neutralScore,
		ProcessScore:       neutralScore,
		SupplierScore:      neutralScore,
		ComplianceScore:    neutralScore,
		RiskFactors:        []datatypes.RiskFactor{},
		Recommendations:    []string{},
		SuggestedResources: []string{},
	}
}

// RunAssessment executes one scoring run and persists the assessment.
//
// # Description
//
// Pulls up to windowCap data points in the requested window, asks the
// inference service for a structured composite score, validates and clamps
// the result, and persists a new active RiskAssessment. The assessment is
// never rejected due to inference failure. Earlier active assessments of the
// same type and entity scope are marked superseded; assessments are never
// deleted.
//
// When the organization's configuration enables auto-generated tasks and the
// overall score reaches the configured threshold, tasks are derived
// immediately after the assessment is persisted.
func (e *Engine) RunAssessment(ctx context.Context, orgID, userID string, req datatypes.RunAssessmentRequest) (datatypes.RiskAssessment, error) {
	ctx, span := riskTracer.Start(ctx, "Engine.RunAssessment")
	defer span.End()

	if err := datatypes.Validate(&req); err != nil {
		return datatypes.RiskAssessment{}, fmt.Errorf("invalid assessment request: %w", err)
	}

	cfg, err := e.cfg.GetOrInit(ctx, orgID)
	if err != nil {
		return datatypes.RiskAssessment{}, err
	}

	points, err := e.data.Window(ctx, orgID, WindowFilter{
		EntityRef: req.EntityRef,
		Period:    req.Period,
		Limit:     windowCap,
	})
	if err != nil {
		return datatypes.RiskAssessment{}, err
	}
	span.SetAttributes(attribute.Int("risk.data_points", len(points)))

	result := e.score(ctx, cfg, req, points)

	assessment := datatypes.RiskAssessment{
		ID:                 datatypes.NewID(),
		OrganizationID:     orgID,
		AssessmentNumber:   datatypes.NewRefNumber(datatypes.PrefixAssessment),
		AssessmentType:     req.AssessmentType,
		EntityRef:          req.EntityRef,
		AssessmentDate:     time.Now().UTC(),
		Period:             req.Period,
		OverallRiskScore:   clampScore(result.OverallScore),
		QualityScore:       clampScore(result.QualityScore),
		ProcessScore:       clampScore(result.ProcessScore),
		SupplierScore:      clampScore(result.SupplierScore),
		ComplianceScore:    clampScore(result.ComplianceScore),
		RiskFactors:        clampFactors(result.RiskFactors),
		AnalysisText:       result.Analysis,
		Recommendations:    result.Recommendations,
		SuggestedResources: result.SuggestedResources,
		Status:             datatypes.AssessmentStatusActive,
		CreatedBy:          userID,
	}
	if err := storage.Put(e.records, datatypes.KindRiskAssessment, orgID, assessment.ID, assessment); err != nil {
		return datatypes.RiskAssessment{}, err
	}
	e.supersedePrior(orgID, assessment)
	slog.Info("Risk assessment created",
		"org_id", orgID,
		"assessment_number", assessment.AssessmentNumber,
		"overall_score", assessment.OverallRiskScore,
	)

	if cfg.AutoGenerateTasks && assessment.OverallRiskScore >= cfg.AutoGenerateThreshold {
		generated, err := e.GenerateTasksFromAssessment(ctx, orgID, userID, datatypes.GenerateTasksRequest{
			AssessmentID: assessment.ID,
			MinRiskScore: cfg.AutoGenerateThreshold,
			MaxTasks:     5,
		})
		if err != nil {
			slog.Warn("Auto task generation failed", "assessment_id", assessment.ID, "error", err)
		} else {
			assessment.TasksGenerated = len(generated)
		}
	}

	return assessment, nil
}

// supersedePrior marks earlier active assessments of the same type and entity
// scope superseded, leaving the newest assessment the only active one. The
// new assessment is already persisted; a bookkeeping failure here is logged
// rather than surfaced.
func (e *Engine) supersedePrior(orgID string, next datatypes.RiskAssessment) {
	prior, err := storage.List(e.records, datatypes.KindRiskAssessment, orgID,
		func(a datatypes.RiskAssessment) bool {
			return a.ID != next.ID &&
				a.Status == datatypes.AssessmentStatusActive &&
				a.AssessmentType == next.AssessmentType &&
				sameEntityRef(a.EntityRef, next.EntityRef)
		}, nil, storage.ListOptions{})
	if err != nil {
		slog.Warn("Listing prior assessments failed", "org_id", orgID, "error", err)
		return
	}
	for _, p := range prior {
		_, err := storage.Update(e.records, datatypes.KindRiskAssessment, orgID, p.ID,
			func(a *datatypes.RiskAssessment) error {
				a.Status = datatypes.AssessmentStatusSuperseded
				return nil
			})
		if err != nil {
			slog.Warn("Superseding prior assessment failed", "assessment_id", p.ID, "error", err)
		}
	}
}

func sameEntityRef(a, b *datatypes.EntityRef) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// GetAssessment returns one assessment.
func (e *Engine) GetAssessment(ctx context.Context, orgID, id string) (datatypes.RiskAssessment, error) {
	return storage.Get[datatypes.RiskAssessment](e.records, datatypes.KindRiskAssessment, orgID, id)
}

// ListAssessments returns the organization's assessments, newest first.
func (e *Engine) ListAssessments(ctx context.Context, orgID string, opt storage.ListOptions) ([]datatypes.RiskAssessment, error) {
	return storage.List(e.records, datatypes.KindRiskAssessment, orgID, nil,
		func(a, b datatypes.RiskAssessment) bool { return a.AssessmentDate.After(b.AssessmentDate) }, opt)
}

// taskCandidate is one proposed task from the inference service.
type taskCandidate struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	RiskScore   float64 `json:"risk_score"`
}

// GenerateTasksFromAssessment derives audit tasks from an assessment's risk
// factors.
//
// # Description
//
// Re-reads the assessment, restricts to factors scoring at least
// MinRiskScore, and asks the inference service to propose up to MaxTasks
// tasks. Each accepted task is persisted with source=risk_assessment and
// ai_generated=true; the assessment's tasks_generated counter is incremented
// by the count actually created. Malformed model output yields zero tasks,
// never a partial or corrupt task.
func (e *Engine) GenerateTasksFromAssessment(ctx context.Context, orgID, userID string, req datatypes.GenerateTasksRequest) ([]datatypes.AuditTask, error) {
	ctx, span := riskTracer.Start(ctx, "Engine.GenerateTasksFromAssessment")
	defer span.End()

	if err := datatypes.Validate(&req); err != nil {
		return nil, fmt.Errorf("invalid task generation request: %w", err)
	}

	assessment, err := e.GetAssessment(ctx, orgID, req.AssessmentID)
	if err != nil {
		return nil, err
	}

	var eligible []datatypes.RiskFactor
	for _, f := range assessment.RiskFactors {
		if f.Score >= req.MinRiskScore {
			eligible = append(eligible, f)
		}
	}
	span.SetAttributes(attribute.Int("risk.eligible_factors", len(eligible)))

	candidates := e.proposeTasks(ctx, assessment, eligible, req.MaxTasks)
	if len(candidates) > req.MaxTasks {
		candidates = candidates[:req.MaxTasks]
	}

	tasks := make([]datatypes.AuditTask, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.Title) == "" {
			continue
		}
		score := clampScore(c.RiskScore)
		task := datatypes.AuditTask{
			ID:             datatypes.NewID(),
			OrganizationID: orgID,
			TaskNumber:     datatypes.NewRefNumber(datatypes.PrefixAuditTask),
			Title:          c.Title,
			Description:    c.Description,
			AuditType:      assessment.AssessmentType,
			Source:         datatypes.TaskSourceRiskAssessment,
			Priority:       normalizePriority(c.Priority),
			Status:         datatypes.TaskStatusPending,
			RiskScore:      &score,
			AIGenerated:    true,
			CreatedBy:      userID,
			CreatedAt:      time.Now().UTC(),
		}
		if err := storage.Put(e.records, datatypes.KindAuditTask, orgID, task.ID, task); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if len(tasks) > 0 {
		_, err = storage.Update(e.records, datatypes.KindRiskAssessment, orgID, assessment.ID,
			func(a *datatypes.RiskAssessment) error {
				a.TasksGenerated += len(tasks)
				return nil
			})
		if err != nil {
			return nil, err
		}
	}

	slog.Info("Generated tasks from assessment",
		"assessment_id", assessment.ID,
		"requested_max", req.MaxTasks,
		"created", len(tasks),
	)
	return tasks, nil
}

// score asks the inference service for a composite scoring of the window,
// substituting the neutral default on any failure.
func (e *Engine) score(ctx context.Context, cfg datatypes.AuditConfiguration, req datatypes.RunAssessmentRequest, points []datatypes.RiskDataPoint) scoringResult {
	prompt := buildScoringPrompt(cfg, req, points)

	start := time.Now()
	raw, err := e.llm.Generate(ctx, prompt, llm.GenerationParams{})
	observability.ObserveInference("risk_scoring", start, err)
	if err != nil {
		slog.Warn("Risk scoring inference failed, using neutral defaults", "error", err)
		observability.CountFallback("risk_scoring")
		return neutralScoring()
	}

	result, ok := llm.ParseStructured(raw, neutralScoring())
	if !ok {
		slog.Warn("Risk scoring output failed to parse, using neutral defaults")
		observability.CountFallback("risk_scoring")
	}
	return result
}

// proposeTasks asks the inference service for task candidates, substituting
// an empty list on any failure.
func (e *Engine) proposeTasks(ctx context.Context, assessment datatypes.RiskAssessment, factors []datatypes.RiskFactor, maxTasks int) []taskCandidate {
	if len(factors) == 0 {
		return nil
	}
	prompt := buildTaskPrompt(assessment, factors, maxTasks)

	start := time.Now()
	raw, err := e.llm.Generate(ctx, prompt, llm.GenerationParams{})
	observability.ObserveInference("task_generation", start, err)
	if err != nil {
		slog.Warn("Task generation inference failed, creating no tasks", "error", err)
		observability.CountFallback("task_generation")
		return nil
	}

	candidates, ok := llm.ParseStructured(raw, []taskCandidate{})
	if !ok {
		slog.Warn("Task generation output failed to parse, creating no tasks")
		observability.CountFallback("task_generation")
	}
	return candidates
}

func buildScoringPrompt(cfg datatypes.AuditConfiguration, req datatypes.RunAssessmentRequest, points []datatypes.RiskDataPoint) string {
	var b strings.Builder
	b.WriteString("You are a quality audit risk analyst. Score the operational risk of the ")
	b.WriteString(req.AssessmentType)
	b.WriteString(" assessment window below.\n\n")
	fmt.Fprintf(&b, "Dimension weights (as configured, not normalized): quality=%.2f process=%.2f supplier=%.2f compliance=%.2f\n\n",
		cfg.RiskScoreWeights.Quality, cfg.RiskScoreWeights.Process,
		cfg.RiskScoreWeights.Supplier, cfg.RiskScoreWeights.Compliance)
	b.WriteString("Data points (newest first):\n")
	for _, p := range points {
		fmt.Fprintf(&b, "- %s %s/%s %s=%.3f\n",
			p.Timestamp.Format(time.RFC3339), p.EntityType, p.EntityID, p.MetricName, p.Value)
	}
	b.WriteString("\nRespond with a single JSON object: ")
	b.WriteString(`{"overall_score":0-100,"quality_score":0-100,"process_score":0-100,` +
		`"supplier_score":0-100,"compliance_score":0-100,` +
		`"risk_factors":[{"factor":"","score":0-100,"weight":0-1,"description":""}],` +
		`"analysis":"","recommendations":[""],"suggested_resources":[""]}`)
	return b.String()
}

func buildTaskPrompt(assessment datatypes.RiskAssessment, factors []datatypes.RiskFactor, maxTasks int) string {
	factorJSON, _ := json.Marshal(factors)
	var b strings.Builder
	fmt.Fprintf(&b, "Risk assessment %s scored %.1f overall.\n", assessment.AssessmentNumber, assessment.OverallRiskScore)
	fmt.Fprintf(&b, "Propose at most %d audit tasks addressing these risk factors:\n%s\n\n", maxTasks, factorJSON)
	b.WriteString("Respond with a JSON array: ")
	b.WriteString(`[{"title":"","description":"","priority":"low|medium|high|critical","risk_score":0-100}]`)
	return b.String()
}

// clampScore clamps a model-supplied score to [0,100]. The source of truth is
// untrusted.
func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampFactors(factors []datatypes.RiskFactor) []datatypes.RiskFactor {
	if factors == nil {
		return []datatypes.RiskFactor{}
	}
	out := make([]datatypes.RiskFactor, len(factors))
	for i, f := range factors {
		f.Score = clampScore(f.Score)
		out[i] = f
	}
	return out
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case datatypes.PriorityLow:
		return datatypes.PriorityLow
	case datatypes.PriorityHigh:
		return datatypes.PriorityHigh
	case datatypes.PriorityCritical:
		return datatypes.PriorityCritical
	default:
		return datatypes.PriorityMedium
	}
}
