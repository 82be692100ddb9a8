// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"errors"
	"time"

	"github.com/AleutianAI/datapipe/services/pipeline/dag"
	"github.com/AleutianAI/datapipe/services/pipeline/registry"
	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

// PipelineSummary is one entry of the pipeline listing.
type PipelineSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// NodeView describes one node of a built pipeline.
type NodeView struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Input     string            `json:"input"`
	Output    string            `json:"output"`
	Inputs    map[string]string `json:"inputs,omitempty"`
	Outputs   map[string]string `json:"outputs,omitempty"`
	DependsOn []string          `json:"depends_on,omitempty"`
}

// EdgeView is one derived dependency.
type EdgeView struct {
	From string `json:"from"`
	To   string `json:"to"`
	Key  string `json:"key"`
}

// PipelineView is the wiring of a pipeline built with default parameters.
type PipelineView struct {
	PipelineSummary
	Order      []string   `json:"order"`
	Nodes      []NodeView `json:"nodes"`
	Edges      []EdgeView `json:"edges"`
	SourceKeys []string   `json:"source_keys"`
}

// FailureView is one failed node.
type FailureView struct {
	Node  string `json:"node"`
	Error string `json:"error"`
}

// RunView is the JSON form of a dag.RunResult.
type RunView struct {
	RunID      string        `json:"run_id"`
	Pipeline   string        `json:"pipeline"`
	Status     string        `json:"status"`
	Cause      string        `json:"cause,omitempty"`
	Completed  []string      `json:"completed"`
	Failures   []FailureView `json:"failures,omitempty"`
	NotRun     []string      `json:"not_run,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	DurationMS int64         `json:"duration_ms"`
}

// ErrorView describes one defect in an error response.
type ErrorView struct {
	Kind    string   `json:"kind"`
	Subject string   `json:"subject"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string      `json:"error"`
	Errors []ErrorView `json:"errors,omitempty"`
}

// RunRequest is the body of a run submission.
type RunRequest struct {
	Params  map[string]any `json:"params"`
	Workers int            `json:"workers" binding:"gte=0,lte=1024"`
}

// Summarize converts a registration to its listing form.
func Summarize(reg registry.Registration) PipelineSummary {
	tags := reg.Tags
	if tags == nil {
		tags = []string{}
	}
	return PipelineSummary{Name: reg.Name, Description: reg.Description, Tags: tags}
}

// Describe renders the wiring of p.
func Describe(reg registry.Registration, p *dag.Pipeline) PipelineView {
	view := PipelineView{
		PipelineSummary: Summarize(reg),
		Order:           p.Order(),
		SourceKeys:      p.SourceKeys(),
	}
	for _, id := range p.Order() {
		b, _ := p.Binding(id)
		desc := b.Descriptor()
		view.Nodes = append(view.Nodes, NodeView{
			ID:        id,
			Type:      desc.TypeID,
			Input:     desc.Input.String(),
			Output:    desc.Output.String(),
			Inputs:    b.Inputs(),
			Outputs:   b.Outputs(),
			DependsOn: p.Dependencies(id),
		})
	}
	for _, e := range p.Edges() {
		view.Edges = append(view.Edges, EdgeView{From: e.From, To: e.To, Key: e.Key})
	}
	return view
}

// ViewRun converts res to its JSON form.
func ViewRun(res *dag.RunResult) RunView {
	view := RunView{
		RunID:      res.RunID,
		Pipeline:   res.Pipeline,
		Status:     string(res.Status),
		Cause:      string(res.Cause),
		Completed:  res.Completed,
		NotRun:     res.NotRun,
		StartedAt:  res.StartedAt,
		DurationMS: res.Duration.Milliseconds(),
	}
	if view.Completed == nil {
		view.Completed = []string{}
	}
	for _, f := range res.Failures {
		view.Failures = append(view.Failures, FailureView{Node: f.NodeID, Error: f.Err.Error()})
	}
	return view
}

// viewErrors flattens the validation errors carried by err.
func viewErrors(err error) []ErrorView {
	var agg *validation.AggregateError
	if errors.As(err, &agg) {
		out := make([]ErrorView, 0, len(agg.Errors()))
		for _, e := range agg.Errors() {
			out = append(out, viewError(e))
		}
		return out
	}
	var ve *validation.Error
	if errors.As(err, &ve) {
		return []ErrorView{viewError(ve)}
	}
	return nil
}

func viewError(e *validation.Error) ErrorView {
	return ErrorView{Kind: string(e.Kind), Subject: e.Subject(), Message: e.Message, Details: e.Details}
}
