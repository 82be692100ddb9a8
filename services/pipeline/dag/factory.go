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
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

// NodeType declares one kind of node a Factory can create.
type NodeType struct {
	// ID uniquely names the type within a factory.
	ID string

	// Input and Output are the shapes every instance declares.
	Input  Shape
	Output Shape

	// Setup runs once, before the first instance is created. Optional.
	// A failed Setup is retried on the next Create.
	Setup func() error

	// New constructs an instance for one binding. Required.
	New func(env Env) (Node, error)
}

type typeEntry struct {
	typ   NodeType
	ready atomic.Bool
}

// Factory registers node types and creates node instances.
//
// Description:
//
//	The first Create for a type runs its Setup. Concurrent first calls share
//	a single Setup execution; later calls skip it entirely.
//
// Thread Safety: Safe for concurrent use.
type Factory struct {
	types sync.Map // string -> *typeEntry
	setup singleflight.Group
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Register adds a node type.
//
// Outputs:
//
//	error - ErrInvalidInput for a malformed type, ErrDuplicateNodeType if
//	        the ID is taken.
func (f *Factory) Register(t NodeType) error {
	if t.ID == "" {
		return fmt.Errorf("%w: node type ID must not be empty", ErrInvalidInput)
	}
	if t.New == nil {
		return fmt.Errorf("%w: node type %q has no constructor", ErrInvalidInput, t.ID)
	}
	if err := t.Input.validate(); err != nil {
		return fmt.Errorf("node type %q input: %w", t.ID, err)
	}
	if err := t.Output.validate(); err != nil {
		return fmt.Errorf("node type %q output: %w", t.ID, err)
	}
	if _, loaded := f.types.LoadOrStore(t.ID, &typeEntry{typ: t}); loaded {
		return fmt.Errorf("%w: %q", ErrDuplicateNodeType, t.ID)
	}
	return nil
}

// MustRegister registers every type and panics on the first error.
func (f *Factory) MustRegister(types ...NodeType) {
	for _, t := range types {
		if err := f.Register(t); err != nil {
			panic(fmt.Sprintf("dag: %v", err))
		}
	}
}

// RegisterFunc registers a stateless node type whose every instance runs fn.
func (f *Factory) RegisterFunc(id string, input, output Shape, fn NodeFunc) error {
	if fn == nil {
		return fmt.Errorf("%w: node type %q has nil func", ErrInvalidInput, id)
	}
	return f.Register(NodeType{
		ID:     id,
		Input:  input,
		Output: output,
		New:    func(Env) (Node, error) { return fn, nil },
	})
}

// Describe returns the descriptor used to bind an instance of typeID.
func (f *Factory) Describe(typeID string, params any) (Descriptor, error) {
	e, err := f.lookup(typeID)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		TypeID: typeID,
		Input:  e.typ.Input,
		Output: e.typ.Output,
		Params: params,
	}, nil
}

// MustDescribe is Describe that panics on error.
func (f *Factory) MustDescribe(typeID string, params any) Descriptor {
	d, err := f.Describe(typeID, params)
	if err != nil {
		panic(fmt.Sprintf("dag: %v", err))
	}
	return d
}

// Create constructs an instance of typeID.
//
// Outputs:
//
//	Node  - The instance.
//	error - UnknownNodeType if typeID is not registered, InvalidNode if
//	        Setup or the constructor fails.
func (f *Factory) Create(typeID string, env Env) (Node, error) {
	e, err := f.lookup(typeID)
	if err != nil {
		return nil, err
	}

	if err := f.prepare(typeID, e); err != nil {
		return nil, err
	}

	node, err := e.typ.New(env)
	if err != nil {
		return nil, validation.Wrap(validation.InvalidNode, "", err, "constructing node type %q", typeID)
	}
	if node == nil {
		return nil, &validation.Error{Kind: validation.InvalidNode,
			Message: fmt.Sprintf("constructor of node type %q returned nil", typeID)}
	}
	return node, nil
}

// Has reports whether typeID is registered.
func (f *Factory) Has(typeID string) bool {
	_, ok := f.types.Load(typeID)
	return ok
}

// Types returns the registered type IDs in sorted order.
func (f *Factory) Types() []string {
	var ids []string
	f.types.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Warm runs Setup for every registered type that has not run it yet and
// returns the first failure.
func (f *Factory) Warm(ctx context.Context) error {
	for _, id := range f.Types() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := f.lookup(id)
		if err != nil {
			return err
		}
		if err := f.prepare(id, e); err != nil {
			return err
		}
	}
	return nil
}

// ClearCache forgets every completed Setup so the next Create of each type
// runs it again. Registrations are kept.
func (f *Factory) ClearCache() {
	f.types.Range(func(_, v any) bool {
		v.(*typeEntry).ready.Store(false)
		return true
	})
}

func (f *Factory) prepare(typeID string, e *typeEntry) error {
	if e.ready.Load() {
		return nil
	}
	_, err, _ := f.setup.Do(typeID, func() (any, error) {
		if e.ready.Load() {
			return nil, nil
		}
		if e.typ.Setup != nil {
			if err := e.typ.Setup(); err != nil {
				return nil, err
			}
		}
		e.ready.Store(true)
		return nil, nil
	})
	if err != nil {
		return validation.Wrap(validation.InvalidNode, "", err, "setup of node type %q failed", typeID)
	}
	return nil
}

func (f *Factory) lookup(typeID string) (*typeEntry, error) {
	v, ok := f.types.Load(typeID)
	if !ok {
		return nil, &validation.Error{Kind: validation.UnknownNodeType,
			Message: fmt.Sprintf("node type %q is not registered", typeID)}
	}
	return v.(*typeEntry), nil
}
