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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reference number prefixes for human-readable aggregate numbers.
const (
	PrefixAssessment = "RA"
	PrefixAuditTask  = "AT"
	PrefixFinding    = "AF"
	PrefixCheck      = "CC"
	PrefixStudy      = "CS"
	PrefixProposal   = "IP"
)

// NewRefNumber generates a human-readable reference number of the form
// {PREFIX}-{yyyymmdd-hhmmss}-{6 hex chars}.
//
// # Description
//
// Reference numbers are unique per organization but need not be globally
// unique; the random fragment makes same-second collisions within one
// organization vanishingly unlikely. Primary keys remain opaque UUIDs —
// reference numbers exist only for humans and exports.
//
// # Inputs
//
//   - prefix: One of the Prefix* constants.
//
// # Outputs
//
//   - string: The generated reference number, e.g. "RA-20250901-142312-9F3A1C".
func NewRefNumber(prefix string) string {
	u := uuid.New()
	frag := strings.ToUpper(fmt.Sprintf("%x", u[:3]))
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().UTC().Format("20060102-150405"), frag)
}

// NewID generates an opaque globally unique aggregate identifier.
func NewID() string {
	return uuid.NewString()
}
