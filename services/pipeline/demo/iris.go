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
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/config"
	"github.com/AleutianAI/datapipe/services/pipeline/dag"
	"github.com/AleutianAI/datapipe/services/pipeline/dag/nodes"
)

// IrisPipeline is the registered name of the iris split pipeline.
const IrisPipeline = "iris_split"

// Catalog keys used by the iris pipeline.
const (
	KeyIrisRaw     = "iris_raw"
	KeyIrisTrain   = "iris_train"
	KeyIrisTest    = "iris_test"
	KeyIrisSummary = "iris_summary"
)

const summarizeTypeID = "summarize_species"

// IrisFeatures are the numeric iris columns.
var IrisFeatures = []string{"sepal_length", "sepal_width", "petal_length", "petal_width"}

//go:embed iris.csv
var irisCSV []byte

var irisRows = sync.OnceValues(func() ([]nodes.Row, error) {
	return nodes.ReadCSV(context.Background(), bytes.NewReader(irisCSV),
		nodes.CSVConfig{Numeric: IrisFeatures})
})

// IrisParams are the parameters accepted by the iris pipeline.
type IrisParams struct {
	TestFraction float64 `yaml:"test_fraction" validate:"gte=0,lte=1"`
	RandomSeed   int64   `yaml:"random_seed"`

	// CSVPath replaces the bundled measurements with a file in the same
	// column layout.
	CSVPath string `yaml:"csv_path"`
}

// DefaultIrisParams returns the parameters used when none are given.
func DefaultIrisParams() IrisParams {
	return IrisParams{TestFraction: 0.2, RandomSeed: 42}
}

// SpeciesSummary aggregates one species within one partition.
type SpeciesSummary struct {
	Partition       string  `json:"partition"`
	Species         string  `json:"species"`
	Count           int     `json:"count"`
	MeanPetalLength float64 `json:"mean_petal_length"`
}

func buildIris(ctx context.Context, cat *catalog.Catalog, params config.Params) (*dag.Pipeline, error) {
	p := DefaultIrisParams()
	if err := params.Decode(&p); err != nil {
		return nil, err
	}
	f := nodeFactory()

	var load *dag.Binding
	if p.CSVPath != "" {
		load = dag.Bind("load", f.MustDescribe(nodes.CSVSourceType, nodes.CSVConfig{
			Path:    p.CSVPath,
			Numeric: IrisFeatures,
		}))
	} else {
		rows, err := irisRows()
		if err != nil {
			return nil, fmt.Errorf("bundled iris data: %w", err)
		}
		load = dag.Bind("load", f.MustDescribe(nodes.ConstantRowsType, rows))
	}

	return dag.NewBuilder(IrisPipeline, cat, f).Add(
		load.Output(KeyIrisRaw),
		dag.Bind("inspect", f.MustDescribe(nodes.InspectRowsType, nodes.InspectRowsConfig{
			Required: append([]string{"species"}, IrisFeatures...),
			Finite:   IrisFeatures,
		})).Input(KeyIrisRaw),
		dag.Bind("split", f.MustDescribe(nodes.SplitType, nodes.SplitConfig{
			TestFraction: p.TestFraction,
			RandomSeed:   p.RandomSeed,
			FeatureNames: IrisFeatures,
			LabelColumn:  "species",
		})).
			Input(KeyIrisRaw).
			MapOutput("train", KeyIrisTrain).
			MapOutput("test", KeyIrisTest),
		dag.Bind("summarize", f.MustDescribe(summarizeTypeID, nil)).
			MapInput("train", KeyIrisTrain).
			MapInput("test", KeyIrisTest).
			Output(KeyIrisSummary),
	).Build(ctx)
}

func summarizeType() dag.NodeType {
	return dag.NodeType{
		ID:     summarizeTypeID,
		Input:  dag.Record(dag.SlotOf[nodes.Row]("train"), dag.SlotOf[nodes.Row]("test")),
		Output: dag.Single[SpeciesSummary](),
		New: func(dag.Env) (dag.Node, error) {
			return dag.NodeFunc(summarize), nil
		},
	}
}

func summarize(_ context.Context, in dag.Inputs) (dag.Outputs, error) {
	var out []SpeciesSummary
	for _, partition := range []string{"train", "test"} {
		rows, err := dag.In[nodes.Row](in, partition)
		if err != nil {
			return nil, err
		}
		groups := make(map[string]*SpeciesSummary)
		for i, row := range rows {
			species, _ := row["species"].(string)
			petal, err := row.Float("petal_length")
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", partition, i, err)
			}
			g, ok := groups[species]
			if !ok {
				g = &SpeciesSummary{Partition: partition, Species: species}
				groups[species] = g
			}
			g.Count++
			g.MeanPetalLength += petal
		}
		names := make([]string, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			g := groups[name]
			g.MeanPetalLength /= float64(g.Count)
			out = append(out, *g)
		}
	}
	return dag.SingleOutput(out), nil
}
