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
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
)

// recordPrefix namespaces record keys away from cache keys in the shared DB.
const recordPrefix = "rec"

// updateRetries is the number of attempts for conditional updates that hit a
// transaction conflict. Conflicts only occur under concurrent writes to the
// same key, so a small bound suffices.
const updateRetries = 3

// =============================================================================
// Store
// =============================================================================

// Store is the organization-scoped record store.
//
// # Description
//
// Records are keyed rec/{kind}/{orgID}/{id} and serialized as JSON. Every
// operation takes the organization id, so a caller can never read or mutate
// another organization's records. Individual key writes are serialized by
// Badger's transaction layer; Update provides compare-and-set semantics for
// read-modify-write flows.
//
// # Thread Safety
//
// Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens a Store with the given configuration.
func Open(cfg Config) (*Store, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an in-memory Store for testing.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying BadgerDB for the memo cache, which shares the
// same database under a different key prefix.
func (s *Store) DB() *badger.DB {
	return s.db
}

func recordKey(kind, orgID, id string) []byte {
	return []byte(fmt.Sprintf("%s/%s/%s/%s", recordPrefix, kind, orgID, id))
}

func scanPrefix(kind, orgID string) []byte {
	return []byte(fmt.Sprintf("%s/%s/%s/", recordPrefix, kind, orgID))
}

// =============================================================================
// Generic Record Operations
// =============================================================================

// Put creates or replaces the record (kind, orgID, id).
func Put[T any](s *Store, kind, orgID, id string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", kind, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(kind, orgID, id), raw)
	})
	if err != nil {
		return fmt.Errorf("put %s record: %w", kind, err)
	}
	return nil
}

// Get loads the record (kind, orgID, id).
//
// Returns *datatypes.NotFoundError if the record does not exist in the
// caller's organization.
func Get[T any](s *Store, kind, orgID, id string) (T, error) {
	var v T
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(kind, orgID, id))
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			return json.Unmarshal(raw, &v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return v, &datatypes.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return v, fmt.Errorf("get %s record: %w", kind, err)
	}
	return v, nil
}

// Delete removes the record (kind, orgID, id). Deleting a missing record
// returns *datatypes.NotFoundError so callers can distinguish it.
func Delete(s *Store, kind, orgID, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(kind, orgID, id)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &datatypes.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return fmt.Errorf("delete %s record: %w", kind, err)
	}
	return nil
}

// ListOptions controls pagination of List results.
type ListOptions struct {
	// Limit caps the number of returned records. 0 means no limit.
	Limit int
	// Offset skips records after filtering and sorting.
	Offset int
}

// List scans all records of one kind in one organization, applying an
// optional filter and sort before pagination.
//
// # Inputs
//
//   - match: Optional predicate; nil keeps every record.
//   - less: Optional sort order; nil leaves key (insertion id) order.
//   - opt: Pagination applied after filtering and sorting.
//
// # Limitations
//
//   - The scan is O(records of this kind in this organization). Record
//     volumes here are per-organization audit aggregates, not telemetry.
func List[T any](s *Store, kind, orgID string, match func(T) bool, less func(a, b T) bool, opt ListOptions) ([]T, error) {
	var out []T
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := scanPrefix(kind, orgID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var v T
			err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &v)
			})
			if err != nil {
				return fmt.Errorf("decode %s record: %w", kind, err)
			}
			if match == nil || match(v) {
				out = append(out, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", kind, err)
	}

	if less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	if opt.Offset > 0 {
		if opt.Offset >= len(out) {
			return nil, nil
		}
		out = out[opt.Offset:]
	}
	if opt.Limit > 0 && len(out) > opt.Limit {
		out = out[:opt.Limit]
	}
	return out, nil
}

// ListAllOrgs scans all records of one kind across every organization.
// Reserved for background sweeps (the schedule runner); request-scoped code
// always uses the org-scoped List.
func ListAllOrgs[T any](s *Store, kind string, match func(T) bool) ([]T, error) {
	var out []T
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(fmt.Sprintf("%s/%s/", recordPrefix, kind))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var v T
			err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &v)
			})
			if err != nil {
				return fmt.Errorf("decode %s record: %w", kind, err)
			}
			if match == nil || match(v) {
				out = append(out, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s records: %w", kind, err)
	}
	return out, nil
}

// Update applies mutate to the record (kind, orgID, id) inside a transaction.
//
// # Description
//
// Read-modify-write with compare-and-set semantics: the read and write happen
// in one Badger transaction, so a concurrent conflicting update causes a
// commit conflict, which is retried a bounded number of times with mutate
// re-applied to the fresh value. Errors returned by mutate abort the update
// and propagate unchanged, so services can reject invariant violations from
// inside the critical section.
//
// # Outputs
//
//   - T: The record value after a successful mutation.
//   - error: *datatypes.NotFoundError, the mutate error, or a storage error.
func Update[T any](s *Store, kind, orgID, id string, mutate func(*T) error) (T, error) {
	var v T
	var lastErr error
	for attempt := 0; attempt < updateRetries; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			key := recordKey(kind, orgID, id)
			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			var cur T
			if err := item.Value(func(raw []byte) error {
				return json.Unmarshal(raw, &cur)
			}); err != nil {
				return fmt.Errorf("decode %s record: %w", kind, err)
			}
			if err := mutate(&cur); err != nil {
				return err
			}
			raw, err := json.Marshal(cur)
			if err != nil {
				return fmt.Errorf("marshal %s record: %w", kind, err)
			}
			if err := txn.Set(key, raw); err != nil {
				return err
			}
			v = cur
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			lastErr = err
			continue
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return v, &datatypes.NotFoundError{Kind: kind, ID: id}
		}
		return v, err
	}
	return v, fmt.Errorf("update %s record: %w", kind, lastErr)
}
