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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
)

func newTestRepo(t *testing.T) (*Repository, *storage.Store) {
	t.Helper()
	s, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewRepository(s), s
}

func TestGetOrInit(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	cfg, err := repo.GetOrInit(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", cfg.OrganizationID)
	assert.InDelta(t, 0.30, cfg.RiskScoreWeights.Quality, 0.001)
	assert.Equal(t, float64(75), cfg.RiskThresholds.High)
	assert.False(t, cfg.AutoGenerateTasks)
	require.Len(t, cfg.ApprovalLevels, 2)

	// A second access returns the stored record, not fresh defaults.
	again, err := repo.GetOrInit(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, again.ID)
}

func TestUpdate(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	got, err := repo.Update(ctx, "org-1", func(cfg *datatypes.AuditConfiguration) {
		cfg.AutoGenerateTasks = true
		cfg.AutoGenerateThreshold = 80
		cfg.RiskThresholds.Critical = 95
	})
	require.NoError(t, err)
	assert.True(t, got.AutoGenerateTasks)
	assert.Equal(t, float64(80), got.AutoGenerateThreshold)
	assert.Equal(t, float64(95), got.RiskThresholds.Critical)

	// Untouched fields survive.
	assert.InDelta(t, 0.30, got.RiskScoreWeights.Quality, 0.001)

	cur, err := repo.GetOrInit(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, cur.AutoGenerateTasks)
}

func TestConfigIsPerOrganization(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Update(ctx, "org-1", func(cfg *datatypes.AuditConfiguration) {
		cfg.AutoGenerateTasks = true
	})
	require.NoError(t, err)

	other, err := repo.GetOrInit(ctx, "org-2")
	require.NoError(t, err)
	assert.False(t, other.AutoGenerateTasks)
}

func TestScheduleRegistry(t *testing.T) {
	ctx := context.Background()

	newRegistry := func(t *testing.T) *ScheduleRegistry {
		s, err := storage.OpenInMemory()
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return NewScheduleRegistry(s)
	}

	t.Run("create computes first fire time", func(t *testing.T) {
		reg := newRegistry(t)
		sched, err := reg.Create(ctx, "org-1", "user-1", CreateScheduleRequest{
			Name:      "weekly supplier audit",
			AuditType: "supplier",
			CronExpr:  "0 6 * * 1",
			IsActive:  true,
		})
		require.NoError(t, err)
		require.NotNil(t, sched.NextRunAt)
		assert.True(t, sched.NextRunAt.After(time.Now().UTC().Add(-time.Minute)))
		assert.Equal(t, time.Monday, sched.NextRunAt.Weekday())
		assert.Equal(t, 6, sched.NextRunAt.Hour())
		assert.Zero(t, sched.RunCount)
	})

	t.Run("invalid cron expression rejected", func(t *testing.T) {
		reg := newRegistry(t)
		_, err := reg.Create(ctx, "org-1", "user-1", CreateScheduleRequest{
			Name:      "broken",
			AuditType: "supplier",
			CronExpr:  "not a cron line",
		})
		assert.Error(t, err)
	})

	t.Run("mark run advances bookkeeping", func(t *testing.T) {
		reg := newRegistry(t)
		sched, err := reg.Create(ctx, "org-1", "user-1", CreateScheduleRequest{
			Name:      "hourly process sweep",
			AuditType: "process",
			CronExpr:  "0 * * * *",
			IsActive:  true,
		})
		require.NoError(t, err)
		before := *sched.NextRunAt

		ran, err := reg.MarkRun(ctx, "org-1", sched.ID, "success")
		require.NoError(t, err)
		assert.Equal(t, 1, ran.RunCount)
		assert.Equal(t, "success", ran.LastRunStatus)
		require.NotNil(t, ran.LastRunAt)
		require.NotNil(t, ran.NextRunAt)
		assert.False(t, ran.NextRunAt.Before(before),
			"the next fire time never moves backwards")

		ran, err = reg.MarkRun(ctx, "org-1", sched.ID, "failed")
		require.NoError(t, err)
		assert.Equal(t, 2, ran.RunCount)
		assert.Equal(t, "failed", ran.LastRunStatus)
	})

	t.Run("set active toggles without touching history", func(t *testing.T) {
		reg := newRegistry(t)
		sched, err := reg.Create(ctx, "org-1", "user-1", CreateScheduleRequest{
			Name:      "daily", AuditType: "quality", CronExpr: "0 0 * * *", IsActive: true,
		})
		require.NoError(t, err)
		_, err = reg.MarkRun(ctx, "org-1", sched.ID, "success")
		require.NoError(t, err)

		got, err := reg.SetActive(ctx, "org-1", sched.ID, false)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.Equal(t, 1, got.RunCount)
	})

	t.Run("delete", func(t *testing.T) {
		reg := newRegistry(t)
		sched, err := reg.Create(ctx, "org-1", "user-1", CreateScheduleRequest{
			Name: "gone", AuditType: "quality", CronExpr: "0 0 * * *",
		})
		require.NoError(t, err)
		require.NoError(t, reg.Delete(ctx, "org-1", sched.ID))
		_, err = reg.Get(ctx, "org-1", sched.ID)
		assert.True(t, datatypes.IsNotFound(err))
	})
}
