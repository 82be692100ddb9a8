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

// Kind classifies a defect reported by the kernel.
type Kind string

// Wiring-time kinds. These are collected exhaustively before any node runs.
const (
	DuplicateKey     Kind = "DuplicateKey"
	UnknownKey       Kind = "UnknownKey"
	TypeMismatch     Kind = "TypeMismatch"
	MissingBinding   Kind = "MissingBinding"
	CyclicDependency Kind = "CyclicDependency"
	UnknownSlot      Kind = "UnknownSlot"
	DuplicateSlot    Kind = "DuplicateSlot"
	DuplicateNode    Kind = "DuplicateNode"
	UnknownNodeType  Kind = "UnknownNodeType"
	InvalidNode      Kind = "InvalidNode"
)

// Run-time kinds.
const (
	InspectionFailure    Kind = "InspectionFailure"
	NodeExecutionFailure Kind = "NodeExecutionFailure"
	Cancelled            Kind = "Cancelled"
)

// Registry kinds.
const (
	DuplicateName   Kind = "DuplicateName"
	UnknownPipeline Kind = "UnknownPipeline"
)

// Error implements the error interface so a Kind can be used as an
// errors.Is target.
func (k Kind) Error() string {
	return string(k)
}

// Error is a single defect.
//
// Description:
//
//	Key names the catalog entry the defect concerns and Binding names the
//	node binding. Either or both may be empty. Details holds optional
//	structured context such as the participants of a cycle. Cause holds an
//	underlying error (I/O failure, node error) when there is one.
type Error struct {
	Key     string
	Binding string
	Kind    Kind
	Message string
	Details []string
	Cause   error
}

// KeyError creates an Error about a catalog key.
func KeyError(kind Kind, key, format string, args ...any) *Error {
	return &Error{Key: key, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// BindingError creates an Error about a node binding.
func BindingError(kind Kind, binding, format string, args ...any) *Error {
	return &Error{Binding: binding, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around cause.
func Wrap(kind Kind, key string, cause error, format string, args ...any) *Error {
	return &Error{Key: key, Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Subject returns the label used to group this error in reports.
func (e *Error) Subject() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("catalog key %q", e.Key)
	case e.Binding != "":
		return fmt.Sprintf("binding %q", e.Binding)
	default:
		return "pipeline"
	}
}

// Error returns "<subject>: [Kind] message[: cause]".
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Subject())
	b.WriteString(": ")
	b.WriteString(e.line())
	return b.String()
}

// line renders the error without its subject.
func (e *Error) line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if len(e.Details) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Details, ", "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the Kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
