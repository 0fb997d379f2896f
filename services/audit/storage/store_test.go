// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
)

type widget struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	in := widget{ID: "w1", Name: "valve", Count: 3}
	require.NoError(t, Put(s, "widget", "org-1", in.ID, in))

	out, err := Get[widget](s, "widget", "org-1", "w1")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := Get[widget](s, "widget", "org-1", "missing")
	require.Error(t, err)
	assert.True(t, datatypes.IsNotFound(err))
}

func TestOrganizationIsolation(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, Put(s, "widget", "org-1", "w1", widget{ID: "w1"}))

	_, err := Get[widget](s, "widget", "org-2", "w1")
	assert.True(t, datatypes.IsNotFound(err), "records must not leak across organizations")

	list, err := List[widget](s, "widget", "org-2", nil, nil, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, Put(s, "widget", "org-1", "w1", widget{ID: "w1"}))
	require.NoError(t, Delete(s, "widget", "org-1", "w1"))

	_, err := Get[widget](s, "widget", "org-1", "w1")
	assert.True(t, datatypes.IsNotFound(err))

	err = Delete(s, "widget", "org-1", "w1")
	assert.True(t, datatypes.IsNotFound(err), "deleting a missing record must be distinguishable")
}

func TestList_FilterSortPaginate(t *testing.T) {
	s := openTestStore(t)

	for _, w := range []widget{
		{ID: "a", Name: "alpha", Count: 3},
		{ID: "b", Name: "beta", Count: 1},
		{ID: "c", Name: "gamma", Count: 2},
		{ID: "d", Name: "delta", Count: 5},
	} {
		require.NoError(t, Put(s, "widget", "org-1", w.ID, w))
	}

	t.Run("filter", func(t *testing.T) {
		out, err := List(s, "widget", "org-1",
			func(w widget) bool { return w.Count >= 2 }, nil, ListOptions{})
		require.NoError(t, err)
		assert.Len(t, out, 3)
	})

	t.Run("sort descending", func(t *testing.T) {
		out, err := List[widget](s, "widget", "org-1", nil,
			func(a, b widget) bool { return a.Count > b.Count }, ListOptions{})
		require.NoError(t, err)
		require.Len(t, out, 4)
		assert.Equal(t, "d", out[0].ID)
		assert.Equal(t, "b", out[3].ID)
	})

	t.Run("offset and limit", func(t *testing.T) {
		out, err := List[widget](s, "widget", "org-1", nil,
			func(a, b widget) bool { return a.Count > b.Count },
			ListOptions{Offset: 1, Limit: 2})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "a", out[0].ID)
		assert.Equal(t, "c", out[1].ID)
	})

	t.Run("offset past end", func(t *testing.T) {
		out, err := List[widget](s, "widget", "org-1", nil, nil, ListOptions{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestListAllOrgs(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, Put(s, "widget", "org-1", "w1", widget{ID: "w1"}))
	require.NoError(t, Put(s, "widget", "org-2", "w2", widget{ID: "w2"}))
	require.NoError(t, Put(s, "other", "org-1", "x1", widget{ID: "x1"}))

	out, err := ListAllOrgs[widget](s, "widget", nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestUpdate(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, Put(s, "widget", "org-1", "w1", widget{ID: "w1", Count: 1}))

	t.Run("applies mutation", func(t *testing.T) {
		out, err := Update(s, "widget", "org-1", "w1", func(w *widget) error {
			w.Count++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Count)
	})

	t.Run("mutate error aborts and propagates", func(t *testing.T) {
		sentinel := errors.New("rejected")
		_, err := Update(s, "widget", "org-1", "w1", func(w *widget) error {
			w.Count = 999
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)

		cur, err := Get[widget](s, "widget", "org-1", "w1")
		require.NoError(t, err)
		assert.Equal(t, 2, cur.Count, "aborted mutation must not persist")
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := Update(s, "widget", "org-1", "nope", func(w *widget) error { return nil })
		assert.True(t, datatypes.IsNotFound(err))
	})

	t.Run("concurrent increments all land", func(t *testing.T) {
		require.NoError(t, Put(s, "widget", "org-1", "ctr", widget{ID: "ctr"}))
		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					_, err := Update(s, "widget", "org-1", "ctr", func(w *widget) error {
						w.Count++
						return nil
					})
					if err == nil {
						return
					}
				}
			}()
		}
		wg.Wait()

		cur, err := Get[widget](s, "widget", "org-1", "ctr")
		require.NoError(t, err)
		assert.Equal(t, n, cur.Count)
	})
}

func TestCache(t *testing.T) {
	s := openTestStore(t)
	c := NewCache(s)

	t.Run("set and get", func(t *testing.T) {
		c.Set("k1", []byte("v1"), time.Minute)
		got, ok := c.Get("k1")
		require.True(t, ok)
		assert.Equal(t, []byte("v1"), got)
	})

	t.Run("miss", func(t *testing.T) {
		_, ok := c.Get("absent")
		assert.False(t, ok)
	})

	t.Run("invalidate", func(t *testing.T) {
		c.Set("k2", []byte("v2"), time.Minute)
		c.Invalidate("k2")
		_, ok := c.Get("k2")
		assert.False(t, ok)
	})

	t.Run("cache keys do not collide with records", func(t *testing.T) {
		c.Set("widget/org-1/w1", []byte("cached"), time.Minute)
		_, err := Get[widget](s, "widget", "org-1", "w1")
		assert.True(t, datatypes.IsNotFound(err))
	})
}
