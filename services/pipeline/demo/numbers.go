// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package demo

import (
	"context"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/config"
	"github.com/AleutianAI/datapipe/services/pipeline/dag"
	"github.com/AleutianAI/datapipe/services/pipeline/dag/nodes"
)

// NumbersPipeline is the registered name of the numeric diamond.
const NumbersPipeline = "numbers"

// Catalog keys used by the numbers pipeline.
const (
	KeyNumbers = "numbers"
	KeySquares = "squares"
	KeyNegated = "negated"
	KeyTotals  = "totals"
)

// NumbersParams are the parameters accepted by the numbers pipeline.
type NumbersParams struct {
	Count int `yaml:"count" validate:"gte=0,lte=100000"`
}

const (
	rangeTypeID  = "int_range"
	squareTypeID = "square"
	negateTypeID = "negate"
	addTypeID    = "add_pairwise"
)

func numberTypes() []dag.NodeType {
	return []dag.NodeType{
		{
			ID:     rangeTypeID,
			Input:  dag.NoData(),
			Output: dag.Single[int](),
			New: func(env dag.Env) (dag.Node, error) {
				n, _ := env.Params.(int)
				return dag.NodeFunc(func(context.Context, dag.Inputs) (dag.Outputs, error) {
					out := make([]int, n)
					for i := range out {
						out[i] = i + 1
					}
					return dag.SingleOutput(out), nil
				}), nil
			},
		},
		nodes.Map(squareTypeID, func(v int) (int, error) { return v * v, nil }),
		nodes.Map(negateTypeID, func(v int) (int, error) { return -v, nil }),
		{
			ID:     addTypeID,
			Input:  dag.Record(dag.SlotOf[int]("left"), dag.SlotOf[int]("right")),
			Output: dag.Single[int](),
			New: func(dag.Env) (dag.Node, error) {
				return dag.NodeFunc(addPairwise), nil
			},
		},
	}
}

func addPairwise(_ context.Context, in dag.Inputs) (dag.Outputs, error) {
	left, err := dag.In[int](in, "left")
	if err != nil {
		return nil, err
	}
	right, err := dag.In[int](in, "right")
	if err != nil {
		return nil, err
	}
	n := min(len(left), len(right))
	out := make([]int, n)
	for i := range n {
		out[i] = left[i] + right[i]
	}
	return dag.SingleOutput(out), nil
}

func buildNumbers(ctx context.Context, cat *catalog.Catalog, params config.Params) (*dag.Pipeline, error) {
	p := NumbersParams{Count: 10}
	if err := params.Decode(&p); err != nil {
		return nil, err
	}
	f := nodeFactory()
	return dag.NewBuilder(NumbersPipeline, cat, f).Add(
		dag.Bind("range", f.MustDescribe(rangeTypeID, p.Count)).Output(KeyNumbers),
		dag.Bind("square", f.MustDescribe(squareTypeID, nil)).Input(KeyNumbers).Output(KeySquares),
		dag.Bind("negate", f.MustDescribe(negateTypeID, nil)).Input(KeyNumbers).Output(KeyNegated),
		dag.Bind("add", f.MustDescribe(addTypeID, nil)).
			MapInput("left", KeySquares).
			MapInput("right", KeyNegated).
			Output(KeyTotals),
	).Build(ctx)
}
