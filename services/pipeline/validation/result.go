// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"fmt"
	"strings"
)

// Result is an ordered collection of defects from one or more inspections.
//
// The zero value is an empty, valid result.
type Result struct {
	errs []*Error
}

// Add appends errors in order. Nil errors are ignored.
func (r *Result) Add(errs ...*Error) {
	for _, e := range errs {
		if e != nil {
			r.errs = append(r.errs, e)
		}
	}
}

// Addf appends a keyed error built from a format string.
func (r *Result) Addf(kind Kind, key, format string, args ...any) {
	r.Add(KeyError(kind, key, format, args...))
}

// Merge appends every error of other after the errors already present.
func (r *Result) Merge(other Result) {
	r.errs = append(r.errs, other.errs...)
}

// Errors returns a copy of the accumulated errors.
func (r *Result) Errors() []*Error {
	out := make([]*Error, len(r.errs))
	copy(out, r.errs)
	return out
}

// Len returns the number of errors.
func (r *Result) Len() int {
	return len(r.errs)
}

// Valid reports whether no errors were recorded.
func (r *Result) Valid() bool {
	return len(r.errs) == 0
}

// ByKind returns the errors of the given kind, in order.
func (r *Result) ByKind(kind Kind) []*Error {
	var out []*Error
	for _, e := range r.errs {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Err converts the result into an error.
//
// Description:
//
//	Returns nil when the result is valid. Otherwise returns an
//	*AggregateError holding a snapshot of every error, labelled with scope
//	(for example `pipeline "churn"`). Scope may be empty.
func (r *Result) Err(scope string) error {
	if r.Valid() {
		return nil
	}
	return &AggregateError{Scope: scope, Result: Result{errs: r.Errors()}}
}

// AggregateError is the fatal form of a non-empty Result.
type AggregateError struct {
	Scope  string
	Result Result
}

// Errors returns every contained error.
func (e *AggregateError) Errors() []*Error {
	return e.Result.Errors()
}

// Error groups the contained errors by subject, in first-appearance order.
//
// Example output:
//
//	pipeline "churn": 2 validation errors
//	  catalog key "raw_rows":
//	    - [UnknownKey] not registered in catalog (input slot "data" of "split")
//	  binding "report":
//	    - [MissingBinding] input slot "metrics" is not mapped
func (e *AggregateError) Error() string {
	var b strings.Builder
	if e.Scope != "" {
		b.WriteString(e.Scope)
		b.WriteString(": ")
	}
	n := e.Result.Len()
	if n == 1 {
		b.WriteString("1 validation error")
	} else {
		fmt.Fprintf(&b, "%d validation errors", n)
	}

	var subjects []string
	grouped := make(map[string][]*Error)
	for _, ve := range e.Result.errs {
		s := ve.Subject()
		if _, seen := grouped[s]; !seen {
			subjects = append(subjects, s)
		}
		grouped[s] = append(grouped[s], ve)
	}

	for _, s := range subjects {
		fmt.Fprintf(&b, "\n  %s:", s)
		for _, ve := range grouped[s] {
			b.WriteString("\n    - ")
			b.WriteString(ve.line())
		}
	}
	return b.String()
}

// Unwrap exposes every contained error, so errors.Is(err, Kind) matches
// when any contained error has that kind.
func (e *AggregateError) Unwrap() []error {
	out := make([]error, 0, e.Result.Len())
	for _, ve := range e.Result.errs {
		out = append(out, ve)
	}
	return out
}
