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

	"github.com/AleutianAI/datapipe/pkg/logging"
	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

type port struct {
	slot string
	key  string
}

type step struct {
	id         string
	binding    *Binding
	desc       Descriptor
	node       Node
	inputs     []port
	outputs    []port
	deps       []int
	dependents []int
}

// Edge is a dependency: To reads a key that From writes.
type Edge struct {
	From string
	To   string
	Key  string
}

// Pipeline is a validated, immutable DAG of bound nodes.
//
// Thread Safety: Safe for concurrent reads. Running the same pipeline
// concurrently from two executors is allowed but both write the same keys.
type Pipeline struct {
	name    string
	catalog *catalog.Catalog
	steps   []*step
	byID    map[string]int
	order   []int
}

// link derives edges from writer key to reader key. Multiple shared keys
// between the same pair collapse into one dependency.
func (p *Pipeline) link(writers map[string]int) {
	for i, st := range p.steps {
		seen := make(map[int]bool)
		for _, in := range st.inputs {
			w, ok := writers[in.key]
			if !ok || seen[w] {
				continue
			}
			seen[w] = true
			st.deps = append(st.deps, w)
			p.steps[w].dependents = append(p.steps[w].dependents, i)
		}
	}
	for _, st := range p.steps {
		sort.Ints(st.deps)
		sort.Ints(st.dependents)
	}
}

// sort runs Kahn's algorithm with insertion order breaking ties. Every node
// left unplaced is reported as part of a cycle.
func (p *Pipeline) sort() *validation.Error {
	indeg := make([]int, len(p.steps))
	var queue []int
	for i, st := range p.steps {
		indeg[i] = len(st.deps)
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, len(p.steps))
	for len(queue) > 0 {
		// Pick the lowest insertion index among ready nodes.
		best := 0
		for j := range queue {
			if queue[j] < queue[best] {
				best = j
			}
		}
		cur := queue[best]
		queue = append(queue[:best], queue[best+1:]...)
		order = append(order, cur)

		for _, d := range p.steps[cur].dependents {
			indeg[d]--
			if indeg[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	p.order = order

	if len(order) == len(p.steps) {
		return nil
	}
	var stuck []string
	for i, st := range p.steps {
		if indeg[i] > 0 {
			stuck = append(stuck, st.id)
		}
	}
	return &validation.Error{
		Kind:    validation.CyclicDependency,
		Message: fmt.Sprintf("%d nodes cannot be ordered", len(stuck)),
		Details: stuck,
	}
}

func (p *Pipeline) edgeCount() int {
	n := 0
	for _, st := range p.steps {
		n += len(st.deps)
	}
	return n
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Catalog returns the catalog the pipeline was validated against.
func (p *Pipeline) Catalog() *catalog.Catalog { return p.catalog }

// Len returns the number of nodes.
func (p *Pipeline) Len() int { return len(p.steps) }

// Nodes returns node IDs in insertion order.
func (p *Pipeline) Nodes() []string {
	ids := make([]string, len(p.steps))
	for i, st := range p.steps {
		ids[i] = st.id
	}
	return ids
}

// Order returns node IDs in execution order.
func (p *Pipeline) Order() []string {
	return p.ids(p.order)
}

// Binding returns the binding of nodeID.
func (p *Pipeline) Binding(nodeID string) (*Binding, bool) {
	i, ok := p.byID[nodeID]
	if !ok {
		return nil, false
	}
	return p.steps[i].binding, true
}

// Dependencies returns the IDs of nodes that nodeID reads from.
func (p *Pipeline) Dependencies(nodeID string) []string {
	i, ok := p.byID[nodeID]
	if !ok {
		return nil
	}
	return p.ids(p.steps[i].deps)
}

// Dependents returns the IDs of nodes reading from nodeID.
func (p *Pipeline) Dependents(nodeID string) []string {
	i, ok := p.byID[nodeID]
	if !ok {
		return nil
	}
	return p.ids(p.steps[i].dependents)
}

// Edges returns every writer to reader edge, one per shared key, ordered by
// reader in execution order.
func (p *Pipeline) Edges() []Edge {
	writer := make(map[string]string)
	for _, st := range p.steps {
		for _, out := range st.outputs {
			writer[out.key] = st.id
		}
	}
	var edges []Edge
	for _, i := range p.order {
		st := p.steps[i]
		for _, in := range st.inputs {
			if from, ok := writer[in.key]; ok {
				edges = append(edges, Edge{From: from, To: st.id, Key: in.key})
			}
		}
	}
	return edges
}

// SourceKeys returns catalog keys read by the pipeline but written by no node.
func (p *Pipeline) SourceKeys() []string {
	written := make(map[string]bool)
	for _, st := range p.steps {
		for _, out := range st.outputs {
			written[out.key] = true
		}
	}
	seen := make(map[string]bool)
	var keys []string
	for _, st := range p.steps {
		for _, in := range st.inputs {
			if !written[in.key] && !seen[in.key] {
				seen[in.key] = true
				keys = append(keys, in.key)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// Execute runs the pipeline once with a fresh Executor, logging through the
// logger carried by ctx.
func (p *Pipeline) Execute(ctx context.Context, opts ...Option) (*RunResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	exec, err := NewExecutor(p, logging.FromContext(ctx), opts...)
	if err != nil {
		return nil, err
	}
	return exec.Run(ctx)
}

func (p *Pipeline) ids(idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = p.steps[j].id
	}
	return out
}
