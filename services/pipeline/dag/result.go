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
	"fmt"
	"time"

	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// NodeFailure records one node that failed during a run.
type NodeFailure struct {
	NodeID string
	Err    error
}

// RunResult contains the outcome of one pipeline run.
type RunResult struct {
	// RunID uniquely identifies the run.
	RunID string

	// Pipeline is the pipeline name.
	Pipeline string

	// Status is RunSucceeded, RunFailed, or RunCancelled once Run returns.
	// A cancelled run is never RunFailed; Cause == validation.Cancelled is
	// the signal to branch on for code that treats cancellation as a failure.
	Status RunStatus

	// Cause is the kind of the first defect that stopped the run: one of
	// NodeExecutionFailure, InspectionFailure, or Cancelled. Empty on success.
	Cause validation.Kind

	// Completed lists nodes that finished successfully, in completion order.
	Completed []string

	// Failures lists every node that failed, in failure order.
	Failures []NodeFailure

	// NotRun lists nodes never dispatched, in execution order.
	NotRun []string

	// StartedAt is when the run began.
	StartedAt time.Time

	// Duration is the total run time.
	Duration time.Duration

	// NodeDurations maps each dispatched node to its execution time.
	NodeDurations map[string]time.Duration

	cancelErr error
}

// Succeeded reports whether every node completed.
func (r *RunResult) Succeeded() bool {
	return r.Status == RunSucceeded
}

// Cancelled reports whether the run stopped because its context ended.
func (r *RunResult) Cancelled() bool {
	return r.Status == RunCancelled
}

// Ran reports whether nodeID completed successfully.
func (r *RunResult) Ran(nodeID string) bool {
	for _, id := range r.Completed {
		if id == nodeID {
			return true
		}
	}
	return false
}

// Failure returns the error of nodeID if it failed.
func (r *RunResult) Failure(nodeID string) (error, bool) {
	for _, f := range r.Failures {
		if f.NodeID == nodeID {
			return f.Err, true
		}
	}
	return nil, false
}

// Err returns nil for a successful run. Otherwise it returns the first
// failure, or the cancellation, wrapped with the pipeline name.
func (r *RunResult) Err() error {
	switch r.Status {
	case RunFailed, RunCancelled:
	default:
		return nil
	}
	if r.Status == RunCancelled || len(r.Failures) == 0 {
		return fmt.Errorf("pipeline %q: %w", r.Pipeline,
			validation.Wrap(validation.Cancelled, "", r.cancelErr, "run cancelled before completion"))
	}
	return fmt.Errorf("pipeline %q: %w", r.Pipeline, r.Failures[0].Err)
}
