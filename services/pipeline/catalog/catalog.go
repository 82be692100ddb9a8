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
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

// TypeTag identifies the element type of a collection at runtime.
//
// Tags are compared for equality by the pipeline builder; two tags match only
// when they were produced from the same Go type.
type TypeTag string

// TypeOf returns the TypeTag of T.
//
// Named types are tagged with their full package path, so two types with
// the same name in different packages never collide.
func TypeOf[T any]() TypeTag {
	return tagOf(reflect.TypeFor[T]())
}

func tagOf(t reflect.Type) TypeTag {
	if t.Name() != "" && t.PkgPath() != "" {
		return TypeTag(t.PkgPath() + "." + t.Name())
	}
	return TypeTag(t.String())
}

// Entry is a named, typed handle to one dataset.
//
// Description:
//
//	Load returns the current materialized collection as a []T where T is
//	the type identified by ElementType. Save replaces the stored collection
//	with data, which must be a []T. Key and ElementType never change.
//
// Thread Safety:
//
//	Implementations must allow concurrent Load calls and must make Save
//	atomic with respect to Load.
type Entry interface {
	Key() string
	ElementType() TypeTag
	Load(ctx context.Context) (any, error)
	Save(ctx context.Context, data any) error
}

// Catalog is a registry of entries keyed by logical name.
//
// Thread Safety: Safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{entries: make(map[string]Entry)}
}

// Register adds an entry under its key.
//
// Outputs:
//
//	error - A validation error of kind DuplicateKey if the key is taken.
func (c *Catalog) Register(entry Entry) error {
	if entry == nil {
		return ErrNilEntry
	}
	key := entry.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		return validation.KeyError(validation.DuplicateKey, key,
			"already registered with element type %s", existing.ElementType())
	}
	c.entries[key] = entry
	return nil
}

// MustRegister registers every entry and panics on the first error.
// Intended for catalog assembly at startup.
func (c *Catalog) MustRegister(entries ...Entry) {
	for _, e := range entries {
		if err := c.Register(e); err != nil {
			panic(fmt.Sprintf("catalog: %v", err))
		}
	}
}

// Resolve returns the entry registered under key.
//
// Outputs:
//
//	Entry - The entry.
//	error - A validation error of kind UnknownKey if no entry exists.
func (c *Catalog) Resolve(key string) (Entry, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, validation.KeyError(validation.UnknownKey, key, "not registered in catalog")
	}
	return e, nil
}

// Has reports whether key is registered.
func (c *Catalog) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Keys returns every registered key in sorted order.
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// InspectFunc examines one entry and reports content defects.
type InspectFunc func(ctx context.Context, entry Entry) validation.Result

// Inspect runs inspect against each named entry and merges the results in
// key order. Unknown keys are reported as UnknownKey rather than skipped.
func (c *Catalog) Inspect(ctx context.Context, inspect InspectFunc, keys ...string) validation.Result {
	var result validation.Result
	for _, key := range keys {
		entry, err := c.Resolve(key)
		if err != nil {
			var ve *validation.Error
			if errors.As(err, &ve) {
				result.Add(ve)
			}
			continue
		}
		result.Merge(inspect(ctx, entry))
	}
	return result
}

// LoadAs loads entry and asserts the collection is a []T.
func LoadAs[T any](ctx context.Context, entry Entry) ([]T, error) {
	data, err := entry.Load(ctx)
	if err != nil {
		return nil, err
	}
	items, ok := data.([]T)
	if !ok {
		return nil, validation.KeyError(validation.TypeMismatch, entry.Key(),
			"loaded %T, want []%s", data, TypeOf[T]())
	}
	return items, nil
}

// SaveAs saves items into entry.
func SaveAs[T any](ctx context.Context, entry Entry, items []T) error {
	return entry.Save(ctx, items)
}

// IOError wraps a storage failure as an InspectionFailure for key.
// Errors that already carry the InspectionFailure kind are returned as is.
func IOError(key, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, validation.InspectionFailure) {
		return err
	}
	return validation.Wrap(validation.InspectionFailure, key, err, "%s failed", op)
}
