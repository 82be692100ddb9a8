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
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_ZeroValueIsValid(t *testing.T) {
	var r Result
	assert.True(t, r.Valid())
	assert.Equal(t, 0, r.Len())
	assert.NoError(t, r.Err("anything"))
}

func TestResult_AddIgnoresNil(t *testing.T) {
	var r Result
	r.Add(nil, KeyError(UnknownKey, "a", "missing"), nil)
	assert.Equal(t, 1, r.Len())
}

func TestResult_Addf(t *testing.T) {
	var r Result
	r.Addf(InspectionFailure, "rows", "%d null values", 3)
	errs := r.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "rows", errs[0].Key)
	assert.Equal(t, "3 null values", errs[0].Message)
}

func TestResult_MergePreservesOrder(t *testing.T) {
	var first, second Result
	first.Add(KeyError(UnknownKey, "a", "one"))
	first.Add(KeyError(TypeMismatch, "b", "two"))
	second.Add(BindingError(MissingBinding, "n", "three"))

	first.Merge(second)

	errs := first.Errors()
	require.Len(t, errs, 3)
	assert.Equal(t, "one", errs[0].Message)
	assert.Equal(t, "two", errs[1].Message)
	assert.Equal(t, "three", errs[2].Message)
	assert.Equal(t, 1, second.Len(), "merge must not modify the merged result")
}

func TestResult_ErrorsReturnsCopy(t *testing.T) {
	var r Result
	r.Add(KeyError(UnknownKey, "a", "one"))
	errs := r.Errors()
	errs[0] = nil
	assert.NotNil(t, r.Errors()[0])
}

func TestResult_ByKind(t *testing.T) {
	var r Result
	r.Add(KeyError(UnknownKey, "a", "one"))
	r.Add(KeyError(TypeMismatch, "b", "two"))
	r.Add(KeyError(UnknownKey, "c", "three"))

	unknown := r.ByKind(UnknownKey)
	require.Len(t, unknown, 2)
	assert.Equal(t, "a", unknown[0].Key)
	assert.Equal(t, "c", unknown[1].Key)
	assert.Empty(t, r.ByKind(CyclicDependency))
}

func TestError_Subject(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"key wins", &Error{Key: "k", Binding: "b"}, `catalog key "k"`},
		{"binding", &Error{Binding: "b"}, `binding "b"`},
		{"neither", &Error{}, "pipeline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Subject())
		})
	}
}

func TestError_IsKindAndCause(t *testing.T) {
	err := Wrap(InspectionFailure, "raw", io.ErrUnexpectedEOF, "load failed")

	assert.True(t, errors.Is(err, InspectionFailure))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.Is(err, UnknownKey))
	assert.Contains(t, err.Error(), "unexpected EOF")
}

func TestError_DetailsRendered(t *testing.T) {
	err := &Error{Kind: CyclicDependency, Message: "cycle", Details: []string{"a", "b"}}
	assert.Equal(t, "pipeline: [CyclicDependency] cycle (a, b)", err.Error())
}

func TestAggregateError_GroupsBySubject(t *testing.T) {
	var r Result
	r.Add(KeyError(UnknownKey, "raw", "not registered"))
	r.Add(BindingError(MissingBinding, "split", "slot train unmapped"))
	r.Add(KeyError(TypeMismatch, "raw", "wrong type"))

	err := r.Err(`pipeline "p"`)
	require.Error(t, err)

	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	assert.Len(t, agg.Errors(), 3)

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, `pipeline "p": 3 validation errors`))
	// Both errors for "raw" appear together under one heading, before the binding group.
	rawIdx := strings.Index(msg, `catalog key "raw":`)
	splitIdx := strings.Index(msg, `binding "split":`)
	require.GreaterOrEqual(t, rawIdx, 0)
	require.Greater(t, splitIdx, rawIdx)
	assert.Equal(t, 1, strings.Count(msg, `catalog key "raw":`))
	assert.Less(t, strings.Index(msg, "wrong type"), splitIdx)
}

func TestAggregateError_IsMatchesAnyKind(t *testing.T) {
	var r Result
	r.Add(KeyError(UnknownKey, "a", "x"))
	r.Add(KeyError(TypeMismatch, "b", "y"))
	err := r.Err("")

	assert.True(t, errors.Is(err, UnknownKey))
	assert.True(t, errors.Is(err, TypeMismatch))
	assert.False(t, errors.Is(err, CyclicDependency))
}

func TestAggregateError_SnapshotIndependentOfResult(t *testing.T) {
	var r Result
	r.Add(KeyError(UnknownKey, "a", "x"))
	err := r.Err("")
	r.Add(KeyError(UnknownKey, "b", "y"))

	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	assert.Len(t, agg.Errors(), 1)
}

func TestAggregateError_SingularHeading(t *testing.T) {
	var r Result
	r.Add(KeyError(UnknownKey, "a", "x"))
	assert.True(t, strings.HasPrefix(r.Err("").Error(), "1 validation error\n"))
}
