// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dag builds and executes pipelines of typed nodes wired through a
// catalog of datasets.
//
// The package provides:
//   - Shapes describing what a node consumes and produces (NoData, Single, Record)
//   - A Factory that registers node types and creates instances cheaply
//   - Bindings that map node slots onto catalog keys
//   - A Builder that validates the whole wiring at once and derives the DAG
//   - An Executor that runs ready nodes on a bounded worker pool
//   - Unified tracing and metrics via OpenTelemetry
//
// # Data Flow
//
// Nodes never touch the catalog. The executor loads every input entry,
// calls Transform, and saves every returned output. A node becomes ready only
// after every node producing one of its inputs has finished saving, so a node
// never observes a partially written dataset.
//
// # Thread Safety
//
// Factory, Pipeline, and Executor are safe for concurrent use. Builder and
// Binding are NOT; assemble them in a single goroutine.
//
// # Example
//
//	factory := dag.NewFactory()
//	factory.MustRegister(dag.NodeType{
//	    ID:     "double",
//	    Input:  dag.Single[int](),
//	    Output: dag.Single[int](),
//	    New:    newDoubleNode,
//	})
//
//	desc, _ := factory.Describe("double", nil)
//	pipeline, err := dag.NewBuilder("numbers", cat, factory).
//	    Add(dag.Bind("double_raw", desc).Input("raw").Output("doubled")).
//	    Build(ctx)
//
//	result, err := pipeline.Execute(ctx)
package dag
