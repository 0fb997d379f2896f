// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"encoding/json"
	"strings"
)

// ParseStructured extracts and decodes a JSON value of type T from raw model
// output, substituting fallback when the output cannot be parsed.
//
// # Description
//
// This is the single parse-then-validate-then-default helper used at every
// inference call site that requests JSON. Models routinely wrap JSON in
// markdown fences or prose; ParseStructured strips fences, locates the first
// JSON object or array in the text, and unmarshals it. Any failure returns
// the fallback — malformed model output is treated identically to an
// inference failure and must never propagate as a hard error.
//
// # Inputs
//
//   - raw: The model's textual output.
//   - fallback: The neutral default to substitute when parsing fails.
//
// # Outputs
//
//   - T: The decoded value, or fallback.
//   - bool: true when the model output parsed, false when the fallback was
//     substituted. Callers use this to log and count the degradation.
func ParseStructured[T any](raw string, fallback T) (T, bool) {
	candidate := extractJSON(raw)
	if candidate == "" {
		return fallback, false
	}
	var v T
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return fallback, false
	}
	return v, true
}

// extractJSON returns the first balanced JSON object or array in raw, after
// stripping markdown code fences. Returns "" if none is found.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "```") {
		// Take the content of the first fenced block if one exists.
		if start := strings.Index(s, "```"); start >= 0 {
			rest := s[start+3:]
			// Skip an optional language tag on the fence line.
			if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
				rest = rest[nl+1:]
			}
			if end := strings.Index(rest, "```"); end >= 0 {
				s = strings.TrimSpace(rest[:end])
			}
		}
	}

	start := -1
	for i, r := range s {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
