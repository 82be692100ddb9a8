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
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/AleutianAI/datapipe/services/pipeline/dag"
)

// SplitType is the node type ID of the train/test splitter.
const SplitType = "split"

// pcgStream fixes the PCG stream so a seed alone determines the partition.
const pcgStream = 0x9e3779b97f4a7c15

// SplitConfig configures the train/test splitter.
type SplitConfig struct {
	// TestFraction is the share of rows sent to the test output.
	TestFraction float64 `yaml:"test_fraction" validate:"gte=0,lte=1"`

	// RandomSeed determines the partition.
	RandomSeed int64 `yaml:"random_seed"`

	// FeatureNames are the columns kept in both outputs, in order.
	FeatureNames []string `yaml:"feature_names" validate:"required,min=1,dive,required"`

	// LabelColumn, when set, is kept alongside the features.
	LabelColumn string `yaml:"label_column"`
}

// Split returns the node type that partitions rows into train and test.
//
// Description:
//
//	Rows are shuffled with a PCG source seeded from RandomSeed and the first
//	round(n*TestFraction) go to the test slot. Each output keeps the input
//	order of its rows. Every row is projected onto FeatureNames plus
//	LabelColumn; a row missing one of them fails the node. The same seed
//	and input always produce the same partition.
func Split() dag.NodeType {
	return dag.NodeType{
		ID:     SplitType,
		Input:  dag.Single[Row](),
		Output: dag.Record(dag.SlotOf[Row]("train"), dag.SlotOf[Row]("test")),
		New: func(env dag.Env) (dag.Node, error) {
			var cfg SplitConfig
			if err := decodeParams(env.Params, &cfg); err != nil {
				return nil, err
			}
			return &splitNode{cfg: cfg, logger: env.Logger}, nil
		},
	}
}

type splitNode struct {
	cfg    SplitConfig
	logger *slog.Logger
}

func (n *splitNode) Transform(_ context.Context, in dag.Inputs) (dag.Outputs, error) {
	rows, err := dag.SingleInput[Row](in)
	if err != nil {
		return nil, err
	}
	train, test, err := n.partition(rows)
	if err != nil {
		return nil, err
	}
	if n.logger != nil {
		n.logger.Debug("split rows",
			slog.Int("rows", len(rows)),
			slog.Int("train", len(train)),
			slog.Int("test", len(test)),
		)
	}
	return dag.Outputs{"train": train, "test": test}, nil
}

func (n *splitNode) partition(rows []Row) (train, test []Row, err error) {
	columns := n.cfg.FeatureNames
	if n.cfg.LabelColumn != "" && !slices.Contains(columns, n.cfg.LabelColumn) {
		columns = append(slices.Clone(columns), n.cfg.LabelColumn)
	}

	rng := rand.New(rand.NewPCG(uint64(n.cfg.RandomSeed), pcgStream))
	perm := rng.Perm(len(rows))
	testCount := int(math.Round(float64(len(rows)) * n.cfg.TestFraction))

	inTest := make([]bool, len(rows))
	for _, idx := range perm[:testCount] {
		inTest[idx] = true
	}

	train = make([]Row, 0, len(rows)-testCount)
	test = make([]Row, 0, testCount)
	for i, row := range rows {
		projected, err := row.Project(columns...)
		if err != nil {
			return nil, nil, errorAtRow(i, err)
		}
		if inTest[i] {
			test = append(test, projected)
		} else {
			train = append(train, projected)
		}
	}
	return train, test, nil
}
