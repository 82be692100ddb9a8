// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation collects wiring and content defects into a single,
// ordered result so every problem can be reported in one pass.
//
// The same Result type is used by the pipeline builder for wiring defects
// (unknown catalog keys, type mismatches, cycles) and by catalog-entry
// inspectors for content defects. Callers accumulate errors, merge results
// from several inspections, and finally call Err to obtain either nil or an
// *AggregateError grouping every defect by the catalog key or binding it
// concerns.
//
// # Error Kinds
//
// Every Error carries a Kind. Kind implements error, so callers can match on
// it directly:
//
//	if errors.Is(err, validation.UnknownKey) {
//	    // at least one unknown catalog key was reported
//	}
//
// # Thread Safety
//
// Result is NOT safe for concurrent mutation. Build it in one goroutine and
// hand it off once complete.
package validation
