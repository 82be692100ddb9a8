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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

// Inputs maps input slot names to loaded collections. Each value is a []T
// matching the slot's declared type.
type Inputs map[string]any

// Outputs maps output slot names to produced collections. Each value must be
// a []T matching the slot's declared type.
type Outputs map[string]any

// Node is a unit of computation.
//
// Description:
//
//	Transform receives the collections loaded for the node's input slots and
//	returns the collections for its output slots. It never touches the
//	catalog. A node with a NoData input receives an empty, non-nil Inputs.
//	The Outputs of a node with a NoData output shape are discarded.
//
// Thread Safety:
//
//	A node instance executes at most once per run.
type Node interface {
	Transform(ctx context.Context, in Inputs) (Outputs, error)
}

// NodeFunc adapts a function to Node.
type NodeFunc func(ctx context.Context, in Inputs) (Outputs, error)

// Transform calls f.
func (f NodeFunc) Transform(ctx context.Context, in Inputs) (Outputs, error) {
	return f(ctx, in)
}

// Env carries per-binding construction data to a node type's constructor.
type Env struct {
	// NodeID is the unique ID of the binding within its pipeline.
	NodeID string

	// Params is the parameter value given to Factory.Describe.
	Params any

	// Logger is pre-scoped with the node ID.
	Logger *slog.Logger
}

// Descriptor is produced by a Factory for one node type and parameter set.
// It is the input to Bind.
type Descriptor struct {
	TypeID string
	Input  Shape
	Output Shape
	Params any
}

// In returns the collection in slot, asserting it is a []T.
func In[T any](in Inputs, slot string) ([]T, error) {
	v, ok := in[slot]
	if !ok {
		return nil, fmt.Errorf("%w: no input slot %q", ErrInvalidInput, slot)
	}
	items, ok := v.([]T)
	if !ok {
		return nil, validation.BindingError(validation.TypeMismatch, "",
			"input slot %q holds %T, want []%s", slot, v, catalog.TypeOf[T]())
	}
	return items, nil
}

// SingleInput returns the collection of a Single-shaped input.
func SingleInput[T any](in Inputs) ([]T, error) {
	return In[T](in, SingleSlot)
}

// SingleOutput wraps items as the Outputs of a Single-shaped output.
func SingleOutput[T any](items []T) Outputs {
	return Outputs{SingleSlot: items}
}

// WithDeadline bounds every Transform call of node by d.
//
// The node receives a derived context with the deadline applied. Exceeding
// it yields an error wrapping ErrNodeTimeout.
func WithDeadline(node Node, d time.Duration) Node {
	return &deadlineNode{inner: node, timeout: d}
}

type deadlineNode struct {
	inner   Node
	timeout time.Duration
}

func (n *deadlineNode) Transform(ctx context.Context, in Inputs) (Outputs, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	out, err := n.inner.Transform(ctx, in)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s: %w", ErrNodeTimeout, n.timeout, err)
	}
	return out, err
}
