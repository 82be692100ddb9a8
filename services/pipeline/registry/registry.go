// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry maps pipeline names to parameterized pipeline factories.
//
// Demo and application packages register their pipelines at startup;
// cmd/datapipe and the HTTP API look them up by name and build them against
// a catalog.
//
// Thread Safety: Registry is safe for concurrent use.
package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/config"
	"github.com/AleutianAI/datapipe/services/pipeline/dag"
	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

var (
	// ErrSealed is returned by Register after Seal.
	ErrSealed = errors.New("registry is sealed")

	// ErrInvalidRegistration is returned for an empty name or nil factory.
	ErrInvalidRegistration = errors.New("invalid registration")

	// ErrNilContext is returned by Build when ctx is nil.
	ErrNilContext = errors.New("context must not be nil")
)

var tracer = otel.Tracer("datapipe.registry")

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "datapipe_registry_lookups_total",
	Help: "Pipeline registry lookups by outcome",
}, []string{"outcome"})

// Factory builds a pipeline against cat using params.
type Factory func(ctx context.Context, cat *catalog.Catalog, params config.Params) (*dag.Pipeline, error)

// Registration is one named pipeline. It is immutable once registered.
type Registration struct {
	Name        string
	Factory     Factory
	Description string
	Tags        []string
}

// HasTag reports whether the registration carries tag.
func (r Registration) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}

// TagFilter selects registrations in List. A nil filter selects all.
type TagFilter func(Registration) bool

// HasTag selects registrations carrying tag.
func HasTag(tag string) TagFilter {
	return func(r Registration) bool { return r.HasTag(tag) }
}

// AnyTag selects registrations carrying at least one of tags.
func AnyTag(tags ...string) TagFilter {
	return func(r Registration) bool {
		return slices.ContainsFunc(tags, r.HasTag)
	}
}

// Registry holds named pipeline factories.
//
// Description:
//
//	Names are unique. After Seal no further registrations are accepted,
//	which lets a process freeze its pipeline set once startup is done.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
	sealed  bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register adds a pipeline under name.
//
// Outputs:
//   - error: ErrInvalidRegistration for an empty name or nil factory,
//     ErrSealed after Seal, a DuplicateName *validation.Error when name is
//     taken.
func (r *Registry) Register(name string, factory Factory, description string, tags ...string) error {
	if name == "" || factory == nil {
		return fmt.Errorf("%w: name and factory are required", ErrInvalidRegistration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrSealed, name)
	}
	if _, exists := r.entries[name]; exists {
		return &validation.Error{
			Kind:    validation.DuplicateName,
			Message: fmt.Sprintf("pipeline %q is already registered", name),
		}
	}
	r.entries[name] = Registration{
		Name:        name,
		Factory:     factory,
		Description: description,
		Tags:        slices.Clone(tags),
	}
	return nil
}

// MustRegister registers a pipeline and panics on error.
//
// Should only be used during startup, not at runtime.
func (r *Registry) MustRegister(name string, factory Factory, description string, tags ...string) {
	if err := r.Register(name, factory, description, tags...); err != nil {
		panic(fmt.Sprintf("registry: failed to register %s: %v", name, err))
	}
}

// Get returns the factory registered under name.
func (r *Registry) Get(name string) (Factory, error) {
	reg, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return reg.Factory, nil
}

// Lookup returns the registration under name, or an UnknownPipeline
// *validation.Error.
func (r *Registry) Lookup(name string) (Registration, error) {
	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		lookups.WithLabelValues("miss").Inc()
		return Registration{}, &validation.Error{
			Kind:    validation.UnknownPipeline,
			Message: fmt.Sprintf("no pipeline named %q", name),
		}
	}
	lookups.WithLabelValues("hit").Inc()
	reg.Tags = slices.Clone(reg.Tags)
	return reg, nil
}

// List yields registrations accepted by filter, sorted by name.
//
// Description:
//
//	The sequence snapshots the registry each time it is iterated, so it
//	may be ranged over more than once and reflects later registrations.
func (r *Registry) List(filter TagFilter) iter.Seq[Registration] {
	return func(yield func(Registration) bool) {
		for _, reg := range r.snapshot() {
			if filter != nil && !filter(reg) {
				continue
			}
			if !yield(reg) {
				return
			}
		}
	}
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Seal stops further registrations.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Build resolves name and calls its factory.
//
// Inputs:
//   - ctx: Passed to the factory. Must not be nil.
//   - name: Registered pipeline name.
//   - cat: Catalog the pipeline is wired against.
//   - params: Pipeline parameters; nil is treated as empty.
//
// Outputs:
//   - *dag.Pipeline: Ready to execute.
//   - error: UnknownPipeline, or the factory's error wrapped with the name.
func (r *Registry) Build(ctx context.Context, name string, cat *catalog.Catalog, params config.Params) (*dag.Pipeline, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	ctx, span := tracer.Start(ctx, "registry.Build",
		trace.WithAttributes(attribute.String("pipeline.name", name)))
	defer span.End()

	factory, err := r.Get(name)
	if err != nil {
		span.SetStatus(codes.Error, "unknown pipeline")
		return nil, err
	}
	if params == nil {
		params = config.Params{}
	}
	p, err := factory(ctx, cat, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "factory failed")
		return nil, fmt.Errorf("build pipeline %q: %w", name, err)
	}
	return p, nil
}

func (r *Registry) snapshot() []Registration {
	r.mu.RLock()
	regs := make([]Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		reg.Tags = slices.Clone(reg.Tags)
		regs = append(regs, reg)
	}
	r.mu.RUnlock()

	sort.Slice(regs, func(i, j int) bool { return regs[i].Name < regs[j].Name })
	return regs
}
