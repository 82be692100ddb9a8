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
	"strings"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
)

// SingleSlot is the slot name used by Single shapes.
const SingleSlot = "data"

// ShapeKind distinguishes the three kinds of Shape.
type ShapeKind int

const (
	// ShapeNoData means the node consumes or produces nothing. For inputs the
	// executor passes an empty Inputs; for outputs the returned value is
	// discarded.
	ShapeNoData ShapeKind = iota

	// ShapeSingle is one typed collection in slot SingleSlot.
	ShapeSingle

	// ShapeRecord is a set of named, typed slots.
	ShapeRecord
)

// String returns the lowercase kind name.
func (k ShapeKind) String() string {
	switch k {
	case ShapeNoData:
		return "nodata"
	case ShapeSingle:
		return "single"
	case ShapeRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Slot is one named, typed port of a Shape.
type Slot struct {
	Name string
	Type catalog.TypeTag
}

// SlotOf declares a slot carrying collections of T.
func SlotOf[T any](name string) Slot {
	return Slot{Name: name, Type: catalog.TypeOf[T]()}
}

// Shape describes a node's input or output.
//
// The zero value is NoData.
type Shape struct {
	kind  ShapeKind
	slots []Slot
}

// NoData returns the shape of a node that consumes or produces nothing.
func NoData() Shape {
	return Shape{kind: ShapeNoData}
}

// Single returns a one-slot shape carrying collections of T.
func Single[T any]() Shape {
	return Shape{kind: ShapeSingle, slots: []Slot{SlotOf[T](SingleSlot)}}
}

// Record returns a multi-slot shape. Slot names must be unique and
// non-empty; Factory.Register rejects shapes that are not.
func Record(slots ...Slot) Shape {
	cp := make([]Slot, len(slots))
	copy(cp, slots)
	return Shape{kind: ShapeRecord, slots: cp}
}

// Kind returns the shape kind.
func (s Shape) Kind() ShapeKind { return s.kind }

// IsNoData reports whether the shape is NoData.
func (s Shape) IsNoData() bool { return s.kind == ShapeNoData }

// Slots returns a copy of the declared slots in declaration order.
func (s Shape) Slots() []Slot {
	out := make([]Slot, len(s.slots))
	copy(out, s.slots)
	return out
}

// Slot looks up a slot by name.
func (s Shape) Slot(name string) (Slot, bool) {
	for _, sl := range s.slots {
		if sl.Name == name {
			return sl, true
		}
	}
	return Slot{}, false
}

// String renders the shape, e.g. "record{train:[]T, test:[]T}".
func (s Shape) String() string {
	if s.kind == ShapeNoData {
		return "nodata"
	}
	parts := make([]string, len(s.slots))
	for i, sl := range s.slots {
		parts[i] = fmt.Sprintf("%s:[]%s", sl.Name, sl.Type)
	}
	return s.kind.String() + "{" + strings.Join(parts, ", ") + "}"
}

// validate checks the structural rules for a declared shape.
func (s Shape) validate() error {
	switch s.kind {
	case ShapeNoData:
		if len(s.slots) != 0 {
			return fmt.Errorf("%w: nodata shape has slots", ErrInvalidInput)
		}
	case ShapeSingle:
		if len(s.slots) != 1 || s.slots[0].Name != SingleSlot {
			return fmt.Errorf("%w: malformed single shape", ErrInvalidInput)
		}
	case ShapeRecord:
		if len(s.slots) == 0 {
			return fmt.Errorf("%w: record shape needs at least one slot, use NoData", ErrInvalidInput)
		}
		seen := make(map[string]bool, len(s.slots))
		for _, sl := range s.slots {
			if sl.Name == "" {
				return fmt.Errorf("%w: record slot with empty name", ErrInvalidInput)
			}
			if seen[sl.Name] {
				return fmt.Errorf("%w: duplicate record slot %q", ErrInvalidInput, sl.Name)
			}
			seen[sl.Name] = true
		}
	default:
		return fmt.Errorf("%w: unknown shape kind %d", ErrInvalidInput, s.kind)
	}
	return nil
}
