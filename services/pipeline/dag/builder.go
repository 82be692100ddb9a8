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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/datapipe/pkg/logging"
	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

// Builder assembles bindings into a validated Pipeline.
//
// Thread Safety: NOT safe for concurrent use.
type Builder struct {
	name     string
	catalog  *catalog.Catalog
	factory  *Factory
	logger   *slog.Logger
	bindings []*Binding
	nilCount int
}

// NewBuilder creates a builder for a pipeline called name.
func NewBuilder(name string, cat *catalog.Catalog, factory *Factory) *Builder {
	return &Builder{name: name, catalog: cat, factory: factory}
}

// WithLogger sets the logger handed to node constructors. Without it Build
// uses the logger carried by its context.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Add appends bindings in order. Order breaks ties in the execution order.
func (b *Builder) Add(bindings ...*Binding) *Builder {
	for _, bd := range bindings {
		if bd == nil {
			b.nilCount++
			continue
		}
		b.bindings = append(b.bindings, bd)
	}
	return b
}

// Build validates the wiring and derives the execution order.
//
// Description:
//
//	Every defect is collected before Build returns; nothing stops at the
//	first one. The checks are, per binding in insertion order: mapping
//	problems, duplicate node IDs, unmapped slots, unknown keys, element type
//	mismatches, keys written by more than one node, and node construction.
//	The dependency graph is then derived, with an edge from the writer of a
//	key to each reader of it, and topologically sorted.
//
//	Unknown keys are reported once per slot mapped to them: an unregistered
//	key written by one node and read by another yields two UnknownKey errors.
//
// Inputs:
//
//	ctx - Context carrying the logger. Must not be nil.
//
// Outputs:
//
//	*Pipeline - The validated pipeline.
//	error     - A *validation.AggregateError listing every defect, or
//	            ErrNilContext / ErrInvalidInput for unusable arguments.
func (b *Builder) Build(ctx context.Context) (*Pipeline, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if b.catalog == nil {
		return nil, fmt.Errorf("%w: catalog must not be nil", ErrInvalidInput)
	}
	if b.factory == nil {
		return nil, fmt.Errorf("%w: factory must not be nil", ErrInvalidInput)
	}
	if len(b.bindings) == 0 && b.nilCount == 0 {
		return nil, fmt.Errorf("%w: pipeline %q has no nodes", ErrInvalidInput, b.name)
	}

	ctx, span := tracer.Start(ctx, "dag.Builder.Build",
		trace.WithAttributes(
			attribute.String("dag.pipeline", b.name),
			attribute.Int("dag.binding_count", len(b.bindings)+b.nilCount),
		),
	)
	defer span.End()

	logger := b.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	logger = logger.With("pipeline", b.name)

	var result validation.Result
	for i := 0; i < b.nilCount; i++ {
		result.Add(&validation.Error{Kind: validation.InvalidNode, Message: "nil binding"})
	}

	p := &Pipeline{
		name:    b.name,
		catalog: b.catalog,
		byID:    make(map[string]int, len(b.bindings)),
	}
	writers := make(map[string]int)

	for _, bd := range b.bindings {
		if _, dup := p.byID[bd.nodeID]; dup {
			result.Add(validation.BindingError(validation.DuplicateNode, bd.nodeID,
				"node ID used by more than one binding"))
			continue
		}

		result.Merge(bd.problems)
		result.Add(bd.unmapped()...)

		idx := len(p.steps)
		st := &step{id: bd.nodeID, binding: bd, desc: bd.desc}

		for _, ob := range bd.obl {
			entry, err := b.catalog.Resolve(ob.key)
			if err != nil {
				result.Add(validation.KeyError(validation.UnknownKey, ob.key,
					"mapped to %s slot %q of %q but not registered in catalog", ob.dir, ob.slot, bd.nodeID))
				continue
			}
			if got := entry.ElementType(); got != ob.want {
				result.Add(validation.KeyError(validation.TypeMismatch, ob.key,
					"holds []%s but %s slot %q of %q expects []%s", got, ob.dir, ob.slot, bd.nodeID, ob.want))
				continue
			}
			pt := port{slot: ob.slot, key: ob.key}
			if ob.dir == dirInput {
				st.inputs = append(st.inputs, pt)
				continue
			}
			if w, taken := writers[ob.key]; taken {
				result.Add(validation.KeyError(validation.DuplicateKey, ob.key,
					"written by both %q and %q", p.steps[w].id, bd.nodeID))
				continue
			}
			writers[ob.key] = idx
			st.outputs = append(st.outputs, pt)
		}

		node, err := b.factory.Create(bd.desc.TypeID, Env{
			NodeID: bd.nodeID,
			Params: bd.desc.Params,
			Logger: logger.With("node", bd.nodeID),
		})
		if err != nil {
			result.Add(constructionError(bd.nodeID, err))
		} else if bd.timeout > 0 {
			node = WithDeadline(node, bd.timeout)
		}
		st.node = node

		p.byID[bd.nodeID] = idx
		p.steps = append(p.steps, st)
	}

	p.link(writers)
	if cyc := p.sort(); cyc != nil {
		result.Add(cyc)
	}

	if !result.Valid() {
		err := result.Err(fmt.Sprintf("pipeline %q", b.name))
		span.SetAttributes(attribute.Int("dag.validation_errors", result.Len()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		logger.Warn("pipeline rejected", slog.Int("errors", result.Len()))
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	logger.Debug("pipeline built", slog.Int("nodes", len(p.steps)), slog.Int("edges", p.edgeCount()))
	return p, nil
}

func constructionError(nodeID string, err error) *validation.Error {
	kind := validation.InvalidNode
	if errors.Is(err, validation.UnknownNodeType) {
		kind = validation.UnknownNodeType
	}
	msg, cause := "cannot create node", err
	var ve *validation.Error
	if errors.As(err, &ve) {
		msg, cause = ve.Message, ve.Cause
	}
	return &validation.Error{Binding: nodeID, Kind: kind, Message: msg, Cause: cause}
}
