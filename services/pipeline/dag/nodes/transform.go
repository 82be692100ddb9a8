// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nodes

import (
	"context"
	"fmt"

	"github.com/AleutianAI/datapipe/services/pipeline/dag"
)

// Map returns a node type applying fn to every element of its input.
// The first error stops the node.
func Map[T, U any](id string, fn func(T) (U, error)) dag.NodeType {
	return dag.NodeType{
		ID:     id,
		Input:  dag.Single[T](),
		Output: dag.Single[U](),
		New: func(dag.Env) (dag.Node, error) {
			if fn == nil {
				return nil, fmt.Errorf("%w: nil map function", dag.ErrInvalidInput)
			}
			return dag.NodeFunc(func(ctx context.Context, in dag.Inputs) (dag.Outputs, error) {
				items, err := dag.SingleInput[T](in)
				if err != nil {
					return nil, err
				}
				out := make([]U, len(items))
				for i, item := range items {
					if i%1024 == 0 {
						if err := ctx.Err(); err != nil {
							return nil, err
						}
					}
					if out[i], err = fn(item); err != nil {
						return nil, fmt.Errorf("element %d: %w", i, err)
					}
				}
				return dag.SingleOutput(out), nil
			}), nil
		},
	}
}

// Filter returns a node type keeping the elements for which keep is true.
func Filter[T any](id string, keep func(T) bool) dag.NodeType {
	return dag.NodeType{
		ID:     id,
		Input:  dag.Single[T](),
		Output: dag.Single[T](),
		New: func(dag.Env) (dag.Node, error) {
			if keep == nil {
				return nil, fmt.Errorf("%w: nil filter predicate", dag.ErrInvalidInput)
			}
			return dag.NodeFunc(func(_ context.Context, in dag.Inputs) (dag.Outputs, error) {
				items, err := dag.SingleInput[T](in)
				if err != nil {
					return nil, err
				}
				out := make([]T, 0, len(items))
				for _, item := range items {
					if keep(item) {
						out = append(out, item)
					}
				}
				return dag.SingleOutput(out), nil
			}), nil
		},
	}
}
