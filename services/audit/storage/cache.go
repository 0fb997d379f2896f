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
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// cachePrefix namespaces cache keys away from record keys in the shared DB.
const cachePrefix = "cache"

// Cache is a short-lived key/value memo cache over the same BadgerDB, using
// Badger's native entry TTL for expiry.
//
// The cache memoizes idempotent read results only; its absence changes
// latency, never correctness. Misses and storage errors are therefore
// indistinguishable to callers — both report "not cached".
type Cache struct {
	db *badger.DB
}

// NewCache creates a Cache sharing the store's database.
func NewCache(s *Store) *Cache {
	return &Cache{db: s.DB()}
}

func cacheKey(key string) []byte {
	return []byte(fmt.Sprintf("%s/%s", cachePrefix, key))
}

// Get returns the cached value for key, or ok=false on miss or expiry.
func (c *Cache) Get(key string) ([]byte, bool) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			// Treat as a miss; the cache is best-effort.
			return nil, false
		}
		return nil, false
	}
	return val, true
}

// Set stores val under key for ttl. Failures are swallowed: a write that
// doesn't land just means the next read is a miss.
func (c *Cache) Set(key string, val []byte, ttl time.Duration) {
	_ = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(key), val).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// Invalidate removes a cached value before its TTL elapses.
func (c *Cache) Invalidate(key string) {
	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(cacheKey(key))
	})
}
