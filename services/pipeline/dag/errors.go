// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dag

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dag package.
var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateNodeType is returned when a node type ID is registered twice.
	ErrDuplicateNodeType = errors.New("node type already registered")

	// ErrAlreadyRunning is returned when an executor is started while a run is in progress.
	ErrAlreadyRunning = errors.New("executor is already running")

	// ErrNodePanic is returned when a node's Transform panics.
	ErrNodePanic = errors.New("node panicked")

	// ErrNodeTimeout is returned by WithDeadline when a node exceeds its deadline.
	ErrNodeTimeout = errors.New("node execution timed out")
)

// NodeError wraps an error with the node that caused it.
type NodeError struct {
	NodeID string
	Err    error
}

// Error returns the error message.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying error.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// NewNodeError creates a NodeError.
func NewNodeError(nodeID string, err error) *NodeError {
	return &NodeError{NodeID: nodeID, Err: err}
}
