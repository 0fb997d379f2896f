// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package risk provides time-series signal ingestion and composite risk
// scoring for the audit engine.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
)

// DataStore is the append-only store of operational risk signals. Data
// points are immutable once ingested.
type DataStore struct {
	records *storage.Store
}

// NewDataStore creates a DataStore over the given record store.
func NewDataStore(records *storage.Store) *DataStore {
	return &DataStore{records: records}
}

// DataPointInput is one measurement to ingest.
type DataPointInput struct {
	EntityType string    `json:"entity_type" validate:"required"`
	EntityID   string    `json:"entity_id" validate:"required"`
	MetricName string    `json:"metric_name" validate:"required"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}

// Ingest appends a batch of data points. Missing timestamps default to now.
func (d *DataStore) Ingest(ctx context.Context, orgID string, inputs []DataPointInput) ([]datatypes.RiskDataPoint, error) {
	out := make([]datatypes.RiskDataPoint, 0, len(inputs))
	for i := range inputs {
		in := inputs[i]
		if err := datatypes.Validate(&in); err != nil {
			return nil, fmt.Errorf("data point %d: %w", i, err)
		}
		ts := in.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		p := datatypes.RiskDataPoint{
			ID:             datatypes.NewID(),
			OrganizationID: orgID,
			EntityType:     in.EntityType,
			EntityID:       in.EntityID,
			MetricName:     in.MetricName,
			Value:          in.Value,
			Timestamp:      ts,
		}
		if err := storage.Put(d.records, datatypes.KindRiskDataPoint, orgID, p.ID, p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// WindowFilter selects data points for a scoring or study run.
type WindowFilter struct {
	// EntityRef, when set, restricts to one entity.
	EntityRef *datatypes.EntityRef
	// Period, when set, restricts to the half-open window [From, To).
	Period *datatypes.Period
	// Limit caps the returned points, newest first. The cap exists to bound
	// prompt size; 0 applies no cap.
	Limit int
}

// Window returns data points matching the filter, newest first.
func (d *DataStore) Window(ctx context.Context, orgID string, f WindowFilter) ([]datatypes.RiskDataPoint, error) {
	match := func(p datatypes.RiskDataPoint) bool {
		if f.EntityRef != nil {
			if p.EntityType != f.EntityRef.EntityType || p.EntityID != f.EntityRef.EntityID {
				return false
			}
		}
		if f.Period != nil {
			if p.Timestamp.Before(f.Period.From) || !p.Timestamp.Before(f.Period.To) {
				return false
			}
		}
		return true
	}
	newestFirst := func(a, b datatypes.RiskDataPoint) bool {
		return a.Timestamp.After(b.Timestamp)
	}
	return storage.List(d.records, datatypes.KindRiskDataPoint, orgID, match, newestFirst,
		storage.ListOptions{Limit: f.Limit})
}
