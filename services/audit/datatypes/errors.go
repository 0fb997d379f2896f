// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// NotFoundError indicates that a referenced aggregate does not exist or does
// not belong to the caller's organization. It is surfaced directly to callers
// and is never retried.
type NotFoundError struct {
	// Kind is the aggregate kind (e.g. "audit_task").
	Kind string
	// ID is the identifier that failed to resolve.
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// InvariantError indicates a programmer-facing violation of a state-machine
// invariant, such as resolving an approval level out of order or completing a
// cancelled task. These are rejected rather than silently coerced.
type InvariantError struct {
	// Op is the operation that was attempted.
	Op string
	// Reason describes the violated invariant.
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// IsInvariant reports whether err is (or wraps) an InvariantError.
func IsInvariant(err error) bool {
	var iv *InvariantError
	return errors.As(err, &iv)
}
