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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
)

// testFactory returns a factory with the node types used across tests:
//
//	emit    nodata      -> single[int]  outputs Params.([]int)
//	double  single[int] -> single[int]
//	sum     record{left,right int} -> single[int]
//	drop    single[int] -> nodata
//	format  single[int] -> single[string]
func testFactory(t *testing.T) *Factory {
	t.Helper()
	f := NewFactory()
	f.MustRegister(
		NodeType{
			ID:     "emit",
			Input:  NoData(),
			Output: Single[int](),
			New: func(env Env) (Node, error) {
				items, _ := env.Params.([]int)
				return NodeFunc(func(context.Context, Inputs) (Outputs, error) {
					return SingleOutput(append([]int(nil), items...)), nil
				}), nil
			},
		},
		NodeType{
			ID:     "double",
			Input:  Single[int](),
			Output: Single[int](),
			New: func(Env) (Node, error) {
				return NodeFunc(func(_ context.Context, in Inputs) (Outputs, error) {
					items, err := SingleInput[int](in)
					if err != nil {
						return nil, err
					}
					out := make([]int, len(items))
					for i, v := range items {
						out[i] = v * 2
					}
					return SingleOutput(out), nil
				}), nil
			},
		},
		NodeType{
			ID:     "sum",
			Input:  Record(SlotOf[int]("left"), SlotOf[int]("right")),
			Output: Single[int](),
			New: func(Env) (Node, error) {
				return NodeFunc(func(_ context.Context, in Inputs) (Outputs, error) {
					left, err := In[int](in, "left")
					if err != nil {
						return nil, err
					}
					right, err := In[int](in, "right")
					if err != nil {
						return nil, err
					}
					total := 0
					for _, v := range append(left, right...) {
						total += v
					}
					return SingleOutput([]int{total}), nil
				}), nil
			},
		},
		NodeType{
			ID:     "drop",
			Input:  Single[int](),
			Output: NoData(),
			New: func(Env) (Node, error) {
				return NodeFunc(func(context.Context, Inputs) (Outputs, error) {
					return nil, nil
				}), nil
			},
		},
		NodeType{
			ID:     "format",
			Input:  Single[int](),
			Output: Single[string](),
			New: func(Env) (Node, error) {
				return NodeFunc(func(context.Context, Inputs) (Outputs, error) {
					return SingleOutput([]string{"x"}), nil
				}), nil
			},
		},
	)
	return f
}

// registerFunc registers a one-off node type and returns its descriptor.
func registerFunc(t *testing.T, f *Factory, id string, in, out Shape, fn NodeFunc) Descriptor {
	t.Helper()
	require.NoError(t, f.RegisterFunc(id, in, out, fn))
	return f.MustDescribe(id, nil)
}

// intEntries registers empty int entries for keys and returns them by key.
func intEntries(cat *catalog.Catalog, keys ...string) map[string]*catalog.MemoryEntry[int] {
	out := make(map[string]*catalog.MemoryEntry[int], len(keys))
	for _, k := range keys {
		e := catalog.NewMemory[int](k)
		cat.MustRegister(e)
		out[k] = e
	}
	return out
}

var errBoom = errors.New("boom")

// sleepThen returns a node that waits d, then emits items.
func sleepThen(d time.Duration, items ...int) NodeFunc {
	return func(ctx context.Context, _ Inputs) (Outputs, error) {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return SingleOutput(items), nil
	}
}

// counter counts Transform calls.
type counter struct{ n atomic.Int32 }

func (c *counter) wrap(fn NodeFunc) NodeFunc {
	return func(ctx context.Context, in Inputs) (Outputs, error) {
		c.n.Add(1)
		return fn(ctx, in)
	}
}
