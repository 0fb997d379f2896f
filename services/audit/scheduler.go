// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AleutianAI/AleutianAudit/services/audit/config"
	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/risk"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
)

// sweepTimeout bounds one full sweep, including the assessment runs it
// triggers.
const sweepTimeout = 10 * time.Minute

// ScheduleRunner periodically sweeps active schedules whose next fire time
// has passed and triggers an assessment run for each.
//
// # Description
//
// The registry owns the bookkeeping (next fire time, run history); the
// runner is the trigger. Each due schedule gets one assessment run, then
// MarkRun records the outcome and recomputes the next fire time, so a
// schedule never double-fires within one sweep cycle.
type ScheduleRunner struct {
	records   *storage.Store
	engine    *risk.Engine
	schedules *config.ScheduleRegistry
	runner    *cron.Cron
}

// NewScheduleRunner creates a runner sweeping at the given interval.
func NewScheduleRunner(records *storage.Store, engine *risk.Engine, schedules *config.ScheduleRegistry, sweep time.Duration) (*ScheduleRunner, error) {
	r := &ScheduleRunner{
		records:   records,
		engine:    engine,
		schedules: schedules,
		runner:    cron.New(),
	}
	spec := fmt.Sprintf("@every %s", sweep)
	if _, err := r.runner.AddFunc(spec, r.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep interval %q: %w", spec, err)
	}
	return r, nil
}

// Start begins sweeping in a background goroutine.
func (r *ScheduleRunner) Start() {
	r.runner.Start()
	slog.Info("Schedule runner started")
}

// Stop halts sweeping and waits for an in-flight sweep to finish.
func (r *ScheduleRunner) Stop() {
	ctx := r.runner.Stop()
	<-ctx.Done()
	slog.Info("Schedule runner stopped")
}

// sweep runs every active schedule that is due.
func (r *ScheduleRunner) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	now := time.Now().UTC()
	due, err := storage.ListAllOrgs(r.records, datatypes.KindSchedule,
		func(s datatypes.AuditSchedule) bool {
			return s.IsActive && s.NextRunAt != nil && !s.NextRunAt.After(now)
		})
	if err != nil {
		slog.Error("Schedule sweep failed", "error", err)
		return
	}

	for _, sched := range due {
		r.fire(ctx, sched)
	}
}

// fire runs one scheduled assessment and records the outcome.
func (r *ScheduleRunner) fire(ctx context.Context, sched datatypes.AuditSchedule) {
	slog.Info("Firing scheduled assessment",
		"org_id", sched.OrganizationID, "schedule", sched.Name, "audit_type", sched.AuditType)

	_, err := r.engine.RunAssessment(ctx, sched.OrganizationID, sched.CreatedBy,
		datatypes.RunAssessmentRequest{AssessmentType: sched.AuditType})
	status := datatypes.RunStatusSuccess
	if err != nil {
		status = datatypes.RunStatusFailed
		slog.Error("Scheduled assessment failed",
			"org_id", sched.OrganizationID, "schedule", sched.Name, "error", err)
	}

	if _, err := r.schedules.MarkRun(ctx, sched.OrganizationID, sched.ID, status); err != nil {
		slog.Error("Failed to record schedule run",
			"org_id", sched.OrganizationID, "schedule", sched.Name, "error", err)
	}
}
