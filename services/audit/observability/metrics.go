// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the audit engine.
//
// # Description
//
// Metrics cover the engine's stateful operations and its inference-service
// usage. The advisory-degradation counter is the operationally interesting
// one: a rising rate means the engine is running on neutral defaults instead
// of model output.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "aleutian"

const auditSubsystem = "audit"

// EngineMetrics holds all Prometheus metrics for audit engine operations.
type EngineMetrics struct {
	// OperationsTotal counts engine operations.
	// Labels: component (risk, knowledge, tasks, commonality, approval),
	// operation, status (success, error)
	OperationsTotal *prometheus.CounterVec

	// InferenceCallsTotal counts inference-service calls.
	// Labels: site (risk_scoring, task_generation, finding_analysis,
	// copilot_chat, agent_thought, agent_action, synthesis, check), status
	InferenceCallsTotal *prometheus.CounterVec

	// AdvisoryFallbacksTotal counts neutral-default substitutions after an
	// inference failure or malformed model output.
	// Labels: site
	AdvisoryFallbacksTotal *prometheus.CounterVec

	// InferenceDurationSeconds measures inference call latency.
	// Labels: site
	InferenceDurationSeconds *prometheus.HistogramVec

	// ReactStepsTotal counts executed ReAct loop steps.
	// Labels: action
	ReactStepsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of EngineMetrics.
var DefaultMetrics *EngineMetrics

var initOnce sync.Once

// InitMetrics initializes the DefaultMetrics singleton. Safe to call more
// than once; only the first call registers collectors.
func InitMetrics() {
	initOnce.Do(func() {
		DefaultMetrics = &EngineMetrics{
			OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: auditSubsystem,
				Name:      "operations_total",
				Help:      "Audit engine operations by component, operation, and status.",
			}, []string{"component", "operation", "status"}),
			InferenceCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: auditSubsystem,
				Name:      "inference_calls_total",
				Help:      "Inference service calls by call site and status.",
			}, []string{"site", "status"}),
			AdvisoryFallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: auditSubsystem,
				Name:      "advisory_fallbacks_total",
				Help:      "Neutral-default substitutions after inference failure or malformed output.",
			}, []string{"site"}),
			InferenceDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: auditSubsystem,
				Name:      "inference_duration_seconds",
				Help:      "Latency of inference service calls.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			}, []string{"site"}),
			ReactStepsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: auditSubsystem,
				Name:      "react_steps_total",
				Help:      "Executed ReAct loop steps by action kind.",
			}, []string{"action"}),
		}
	})
}

// ObserveInference records one inference call's outcome and latency.
// No-op when metrics are not initialized (e.g. in unit tests).
func ObserveInference(site string, start time.Time, err error) {
	if DefaultMetrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.InferenceCallsTotal.WithLabelValues(site, status).Inc()
	DefaultMetrics.InferenceDurationSeconds.WithLabelValues(site).Observe(time.Since(start).Seconds())
}

// CountFallback records one advisory-degradation substitution.
func CountFallback(site string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.AdvisoryFallbacksTotal.WithLabelValues(site).Inc()
}

// CountOperation records one engine operation outcome.
func CountOperation(component, operation string, err error) {
	if DefaultMetrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.OperationsTotal.WithLabelValues(component, operation, status).Inc()
}

// CountReactStep records one executed ReAct step.
func CountReactStep(action string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.ReactStepsTotal.WithLabelValues(action).Inc()
}
