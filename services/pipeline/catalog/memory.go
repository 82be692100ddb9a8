// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

// MemoryEntry keeps a collection of T in process memory.
//
// Description:
//
//	Save copies the incoming slice and publishes it with a single atomic
//	pointer swap. Load returns a copy of the published slice. Elements are
//	copied with their Clone method when T has one (as nodes.Row does);
//	otherwise they are copied shallowly, so maps, slices and pointers inside
//	elements are shared between readers and must be treated as read-only.
//
// Thread Safety: Safe for concurrent use.
type MemoryEntry[T any] struct {
	key     string
	data    atomic.Pointer[[]T]
	version atomic.Uint64
}

// NewMemory creates an in-memory entry holding initial.
// The entry starts at version 0 regardless of initial contents.
func NewMemory[T any](key string, initial ...T) *MemoryEntry[T] {
	e := &MemoryEntry[T]{key: key}
	items := cloneItems(initial)
	if items == nil {
		items = []T{}
	}
	e.data.Store(&items)
	return e
}

// Key returns the entry key.
func (e *MemoryEntry[T]) Key() string { return e.key }

// ElementType returns the tag of T.
func (e *MemoryEntry[T]) ElementType() TypeTag { return TypeOf[T]() }

// Load returns a copy of the current collection.
func (e *MemoryEntry[T]) Load(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, IOError(e.key, "load", err)
	}
	return e.Items(), nil
}

// Save replaces the collection. data must be a []T.
func (e *MemoryEntry[T]) Save(ctx context.Context, data any) error {
	if err := ctx.Err(); err != nil {
		return IOError(e.key, "save", err)
	}
	items, ok := data.([]T)
	if !ok {
		return validation.KeyError(validation.TypeMismatch, e.key,
			"cannot save %T into entry of []%s", data, TypeOf[T]())
	}
	cp := cloneItems(items)
	if cp == nil {
		cp = []T{}
	}
	e.data.Store(&cp)
	e.version.Add(1)
	return nil
}

// Items returns a typed copy of the current collection.
func (e *MemoryEntry[T]) Items() []T {
	p := e.data.Load()
	out := cloneItems(*p)
	if out == nil {
		out = []T{}
	}
	return out
}

// cloner is implemented by element types that own reference data.
type cloner[T any] interface {
	Clone() T
}

func cloneItems[T any](items []T) []T {
	out := slices.Clone(items)
	for i := range out {
		if c, ok := any(out[i]).(cloner[T]); ok {
			out[i] = c.Clone()
		}
	}
	return out
}

// Version returns how many successful saves the entry has seen.
func (e *MemoryEntry[T]) Version() uint64 {
	return e.version.Load()
}
