// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
)

// ScheduleRegistry is bookkeeping for recurring engine runs. The trigger is
// external (cron/queue); the registry records outcomes and computes the next
// fire time from the schedule's cron expression.
type ScheduleRegistry struct {
	records *storage.Store
	parser  cron.Parser
}

// NewScheduleRegistry creates a ScheduleRegistry using the standard 5-field
// cron format.
func NewScheduleRegistry(records *storage.Store) *ScheduleRegistry {
	return &ScheduleRegistry{
		records: records,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// CreateScheduleRequest declares one recurring run.
type CreateScheduleRequest struct {
	Name      string `json:"name" validate:"required"`
	AuditType string `json:"audit_type" validate:"required"`
	CronExpr  string `json:"cron_expr" validate:"required"`
	IsActive  bool   `json:"is_active"`
}

// Create validates the cron expression, computes the first fire time, and
// persists the schedule.
func (s *ScheduleRegistry) Create(ctx context.Context, orgID, userID string, req CreateScheduleRequest) (datatypes.AuditSchedule, error) {
	if err := datatypes.Validate(&req); err != nil {
		return datatypes.AuditSchedule{}, fmt.Errorf("invalid schedule: %w", err)
	}
	sched, err := s.parser.Parse(req.CronExpr)
	if err != nil {
		return datatypes.AuditSchedule{}, fmt.Errorf("invalid cron expression %q: %w", req.CronExpr, err)
	}

	now := time.Now().UTC()
	next := sched.Next(now)
	rec := datatypes.AuditSchedule{
		ID:             datatypes.NewID(),
		OrganizationID: orgID,
		Name:           req.Name,
		AuditType:      req.AuditType,
		CronExpr:       req.CronExpr,
		IsActive:       req.IsActive,
		NextRunAt:      &next,
		CreatedBy:      userID,
		CreatedAt:      now,
	}
	if err := storage.Put(s.records, datatypes.KindSchedule, orgID, rec.ID, rec); err != nil {
		return datatypes.AuditSchedule{}, err
	}
	return rec, nil
}

// Get returns one schedule.
func (s *ScheduleRegistry) Get(ctx context.Context, orgID, id string) (datatypes.AuditSchedule, error) {
	return storage.Get[datatypes.AuditSchedule](s.records, datatypes.KindSchedule, orgID, id)
}

// List returns the organization's schedules ordered by creation time.
func (s *ScheduleRegistry) List(ctx context.Context, orgID string, opt storage.ListOptions) ([]datatypes.AuditSchedule, error) {
	return storage.List(s.records, datatypes.KindSchedule, orgID, nil,
		func(a, b datatypes.AuditSchedule) bool { return a.CreatedAt.Before(b.CreatedAt) }, opt)
}

// SetActive toggles a schedule without touching its run history.
func (s *ScheduleRegistry) SetActive(ctx context.Context, orgID, id string, active bool) (datatypes.AuditSchedule, error) {
	return storage.Update(s.records, datatypes.KindSchedule, orgID, id,
		func(rec *datatypes.AuditSchedule) error {
			rec.IsActive = active
			return nil
		})
}

// MarkRun records the outcome of one externally triggered run: last-run
// fields, a monotonically increasing run counter, and the recomputed next
// fire time.
func (s *ScheduleRegistry) MarkRun(ctx context.Context, orgID, id, status string) (datatypes.AuditSchedule, error) {
	now := time.Now().UTC()
	return storage.Update(s.records, datatypes.KindSchedule, orgID, id,
		func(rec *datatypes.AuditSchedule) error {
			rec.LastRunAt = &now
			rec.LastRunStatus = status
			rec.RunCount++
			if sched, err := s.parser.Parse(rec.CronExpr); err == nil {
				next := sched.Next(now)
				rec.NextRunAt = &next
			}
			return nil
		})
}

// Delete removes a schedule.
func (s *ScheduleRegistry) Delete(ctx context.Context, orgID, id string) error {
	return storage.Delete(s.records, datatypes.KindSchedule, orgID, id)
}
