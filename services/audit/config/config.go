// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config provides the per-organization audit configuration and the
// schedule registry.
//
// The configuration record is a lazily created singleton per organization.
// Callers always receive an immutable snapshot value; there is no shared
// mutable in-memory configuration state.
package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
)

// configRecordID is the fixed record id of the per-organization singleton.
const configRecordID = "singleton"

// Repository reads and writes per-organization audit configuration.
type Repository struct {
	records *storage.Store
}

// NewRepository creates a configuration Repository.
func NewRepository(records *storage.Store) *Repository {
	return &Repository{records: records}
}

// Defaults returns the configuration installed on first access for an
// organization. Weights are intentionally not normalized to sum to 1; they
// are consumed as-is by the scoring engine.
func Defaults(orgID string) datatypes.AuditConfiguration {
	return datatypes.AuditConfiguration{
		ID:             datatypes.NewID(),
		OrganizationID: orgID,
		RiskScoreWeights: datatypes.RiskScoreWeights{
			Quality:    0.30,
			Process:    0.25,
			Supplier:   0.25,
			Compliance: 0.20,
		},
		RiskThresholds: datatypes.RiskThresholds{
			Low:      25,
			Medium:   50,
			High:     75,
			Critical: 90,
		},
		ApprovalLevels: []datatypes.ApprovalLevelConfig{
			{Level: 1, Role: "quality_manager", MinPriority: datatypes.PriorityLow},
			{Level: 2, Role: "operations_director", MinPriority: datatypes.PriorityHigh},
		},
		AutoGenerateTasks:     false,
		AutoGenerateThreshold: 70,
		NotificationSettings: datatypes.NotificationSettings{
			NotifyOnCriticalRisk: true,
			NotifyOnTaskOverdue:  true,
			NotifyOnApproval:     true,
		},
		UpdatedAt: time.Now().UTC(),
	}
}

// GetOrInit returns the organization's configuration, creating it with
// defaults on first access.
//
// # Description
//
// The returned value is a snapshot: mutating it has no effect on the stored
// record. Two concurrent first accesses may both attempt the initial write;
// the record id is fixed, so the second write is an idempotent replace of
// identical defaults.
func (r *Repository) GetOrInit(ctx context.Context, orgID string) (datatypes.AuditConfiguration, error) {
	cfg, err := storage.Get[datatypes.AuditConfiguration](r.records, datatypes.KindConfiguration, orgID, configRecordID)
	if err == nil {
		return cfg, nil
	}
	if !datatypes.IsNotFound(err) {
		return datatypes.AuditConfiguration{}, err
	}

	cfg = Defaults(orgID)
	slog.Info("Initializing default audit configuration", "org_id", orgID)
	if err := storage.Put(r.records, datatypes.KindConfiguration, orgID, configRecordID, cfg); err != nil {
		return datatypes.AuditConfiguration{}, err
	}
	return cfg, nil
}

// Update replaces tunable fields of the organization's configuration and
// returns the new snapshot. The configuration is initialized first if the
// organization has none.
func (r *Repository) Update(ctx context.Context, orgID string, mutate func(*datatypes.AuditConfiguration)) (datatypes.AuditConfiguration, error) {
	if _, err := r.GetOrInit(ctx, orgID); err != nil {
		return datatypes.AuditConfiguration{}, err
	}
	return storage.Update(r.records, datatypes.KindConfiguration, orgID, configRecordID,
		func(cfg *datatypes.AuditConfiguration) error {
			mutate(cfg)
			cfg.UpdatedAt = time.Now().UTC()
			return nil
		})
}
