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
	"time"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

type direction int

const (
	dirInput direction = iota
	dirOutput
)

func (d direction) String() string {
	if d == dirInput {
		return "input"
	}
	return "output"
}

// obligation records that slot must be wired to key, and that key's element
// type must equal the slot type.
type obligation struct {
	dir  direction
	slot string
	key  string
	want catalog.TypeTag
}

// Binding maps the slots of one node instance onto catalog keys.
//
// Description:
//
//	Mapping mistakes such as unknown or repeated slots are recorded rather
//	than returned, so a caller can chain every call and see all of them when
//	the pipeline is built. Keys are only resolved against the catalog by the
//	Builder.
//
// Thread Safety: NOT safe for concurrent use.
type Binding struct {
	nodeID   string
	desc     Descriptor
	timeout  time.Duration
	inputs   map[string]string
	outputs  map[string]string
	obl      []obligation
	problems validation.Result
}

// Bind starts a binding for a node instance described by desc.
func Bind(nodeID string, desc Descriptor) *Binding {
	b := &Binding{
		nodeID:  nodeID,
		desc:    desc,
		inputs:  make(map[string]string),
		outputs: make(map[string]string),
	}
	if nodeID == "" {
		b.problems.Add(validation.BindingError(validation.InvalidNode, nodeID,
			"node ID must not be empty"))
	}
	return b
}

// MapInput wires an input slot to a catalog key.
func (b *Binding) MapInput(slot, key string) *Binding {
	b.mapSlot(dirInput, slot, key)
	return b
}

// MapOutput wires an output slot to a catalog key.
func (b *Binding) MapOutput(slot, key string) *Binding {
	b.mapSlot(dirOutput, slot, key)
	return b
}

// Input wires the single input slot to key.
func (b *Binding) Input(key string) *Binding {
	return b.MapInput(SingleSlot, key)
}

// Output wires the single output slot to key.
func (b *Binding) Output(key string) *Binding {
	return b.MapOutput(SingleSlot, key)
}

// Timeout bounds each execution of the node. Zero means no bound.
func (b *Binding) Timeout(d time.Duration) *Binding {
	b.timeout = d
	return b
}

func (b *Binding) mapSlot(dir direction, slot, key string) {
	shape, mapped := b.desc.Input, b.inputs
	if dir == dirOutput {
		shape, mapped = b.desc.Output, b.outputs
	}

	if shape.IsNoData() {
		b.problems.Add(validation.BindingError(validation.UnknownSlot, b.nodeID,
			"node type %q has no %s, cannot map slot %q", b.desc.TypeID, dir, slot))
		return
	}
	sl, ok := shape.Slot(slot)
	if !ok {
		b.problems.Add(validation.BindingError(validation.UnknownSlot, b.nodeID,
			"node type %q has no %s slot %q (shape %s)", b.desc.TypeID, dir, slot, shape))
		return
	}
	if prev, dup := mapped[slot]; dup {
		b.problems.Add(validation.BindingError(validation.DuplicateSlot, b.nodeID,
			"%s slot %q mapped twice (%q, then %q)", dir, slot, prev, key))
		return
	}
	mapped[slot] = key
	b.obl = append(b.obl, obligation{dir: dir, slot: slot, key: key, want: sl.Type})
}

// unmapped reports every declared slot that was never wired.
func (b *Binding) unmapped() []*validation.Error {
	var errs []*validation.Error
	check := func(dir direction, shape Shape, mapped map[string]string) {
		for _, sl := range shape.slots {
			if _, ok := mapped[sl.Name]; !ok {
				errs = append(errs, validation.BindingError(validation.MissingBinding, b.nodeID,
					"%s slot %q of type []%s is not mapped", dir, sl.Name, sl.Type))
			}
		}
	}
	check(dirInput, b.desc.Input, b.inputs)
	check(dirOutput, b.desc.Output, b.outputs)
	return errs
}

// NodeID returns the node instance ID.
func (b *Binding) NodeID() string { return b.nodeID }

// Descriptor returns the descriptor the binding was created from.
func (b *Binding) Descriptor() Descriptor { return b.desc }

// Inputs returns a copy of the input slot to key mapping.
func (b *Binding) Inputs() map[string]string { return cloneMap(b.inputs) }

// Outputs returns a copy of the output slot to key mapping.
func (b *Binding) Outputs() map[string]string { return cloneMap(b.outputs) }

// Problems returns the mapping defects recorded so far.
func (b *Binding) Problems() validation.Result {
	var r validation.Result
	r.Merge(b.problems)
	return r
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
