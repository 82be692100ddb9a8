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
	"math"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/dag"
	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

// InspectRowsType is the node type ID of the row inspector.
const InspectRowsType = "inspect_rows"

// Check examines a collection and records every problem it finds in r.
// subject names what is being checked: a catalog key or a node ID.
type Check[T any] func(subject string, items []T, r *validation.Result)

// Inspect returns a sink node type that runs checks over its input. Any
// recorded problem fails the node with an InspectionFailure carrying all
// of them.
func Inspect[T any](id string, checks ...Check[T]) dag.NodeType {
	return dag.NodeType{
		ID:     id,
		Input:  dag.Single[T](),
		Output: dag.NoData(),
		New: func(env dag.Env) (dag.Node, error) {
			return dag.NodeFunc(func(_ context.Context, in dag.Inputs) (dag.Outputs, error) {
				items, err := dag.SingleInput[T](in)
				if err != nil {
					return nil, err
				}
				var r validation.Result
				for _, check := range checks {
					check(env.NodeID, items, &r)
				}
				return nil, r.Err(fmt.Sprintf("inspect %q", env.NodeID))
			}), nil
		},
	}
}

// CatalogCheck adapts checks for use with catalog.Catalog.Inspect. An entry
// that is not of element type T, or cannot be loaded, is reported as well.
func CatalogCheck[T any](checks ...Check[T]) catalog.InspectFunc {
	return func(ctx context.Context, entry catalog.Entry) validation.Result {
		var r validation.Result
		items, err := catalog.LoadAs[T](ctx, entry)
		if err != nil {
			r.Add(validation.Wrap(validation.InspectionFailure, entry.Key(), err, "cannot load for inspection"))
			return r
		}
		for _, check := range checks {
			check(entry.Key(), items, &r)
		}
		return r
	}
}

// NotEmpty reports a collection with no elements.
func NotEmpty[T any]() Check[T] {
	return func(subject string, items []T, r *validation.Result) {
		if len(items) == 0 {
			r.Addf(validation.InspectionFailure, subject, "collection is empty")
		}
	}
}

// RequireColumns reports rows missing any of columns.
func RequireColumns(columns ...string) Check[Row] {
	return func(subject string, rows []Row, r *validation.Result) {
		for i, row := range rows {
			for _, col := range columns {
				if _, ok := row[col]; !ok {
					r.Addf(validation.InspectionFailure, subject, "row %d has no column %q", i, col)
				}
			}
		}
	}
}

// FiniteColumns reports values in columns that are not finite numbers.
func FiniteColumns(columns ...string) Check[Row] {
	return func(subject string, rows []Row, r *validation.Result) {
		for i, row := range rows {
			for _, col := range columns {
				if _, ok := row[col]; !ok {
					continue
				}
				v, err := row.Float(col)
				if err != nil {
					r.Addf(validation.InspectionFailure, subject, "row %d: %v", i, err)
					continue
				}
				if math.IsNaN(v) || math.IsInf(v, 0) {
					r.Addf(validation.InspectionFailure, subject, "row %d column %q is %v", i, col, v)
				}
			}
		}
	}
}

// InspectRowsConfig configures the row inspector.
type InspectRowsConfig struct {
	Required   []string `yaml:"required" validate:"dive,required"`
	Finite     []string `yaml:"finite" validate:"dive,required"`
	AllowEmpty bool     `yaml:"allow_empty"`
}

// InspectRows returns the configurable row inspector node type.
func InspectRows() dag.NodeType {
	t := Inspect[Row](InspectRowsType)
	t.New = func(env dag.Env) (dag.Node, error) {
		var cfg InspectRowsConfig
		if err := decodeParams(env.Params, &cfg); err != nil {
			return nil, err
		}
		checks := []Check[Row]{RequireColumns(cfg.Required...), FiniteColumns(cfg.Finite...)}
		if !cfg.AllowEmpty {
			checks = append(checks, NotEmpty[Row]())
		}
		return Inspect(InspectRowsType, checks...).New(env)
	}
	return t
}
