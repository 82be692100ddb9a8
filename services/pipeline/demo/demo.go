// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package demo registers example pipelines that exercise the kernel end to
// end: a tabular train/test split over the iris measurements and a small
// numeric diamond.
package demo

import (
	"errors"
	"sync"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/dag"
	"github.com/AleutianAI/datapipe/services/pipeline/dag/nodes"
	"github.com/AleutianAI/datapipe/services/pipeline/registry"
	"github.com/AleutianAI/datapipe/services/pipeline/storage/badger"
)

// Tag marks every pipeline registered by this package.
const Tag = "demo"

// nodeFactory is shared by every demo pipeline so node setup runs once per
// process.
var nodeFactory = sync.OnceValue(func() *dag.Factory {
	f := dag.NewFactory()
	if err := nodes.RegisterBuiltins(f); err != nil {
		panic(err)
	}
	f.MustRegister(append(numberTypes(), summarizeType())...)
	return f
})

// Register adds the demo pipelines to r.
func Register(r *registry.Registry) error {
	return errors.Join(
		r.Register(IrisPipeline, buildIris,
			"Split the iris measurements into train and test sets and summarize each", Tag, "tabular"),
		r.Register(NumbersPipeline, buildNumbers,
			"Square and negate a number range, then add the branches back together", Tag, "numeric"),
	)
}

// MemoryCatalog returns a catalog holding in-memory entries for every key the
// demo pipelines use.
func MemoryCatalog() *catalog.Catalog {
	cat := catalog.New()
	cat.MustRegister(
		catalog.NewMemory[nodes.Row](KeyIrisRaw),
		catalog.NewMemory[nodes.Row](KeyIrisTrain),
		catalog.NewMemory[nodes.Row](KeyIrisTest),
		catalog.NewMemory[SpeciesSummary](KeyIrisSummary),
		catalog.NewMemory[int](KeyNumbers),
		catalog.NewMemory[int](KeySquares),
		catalog.NewMemory[int](KeyNegated),
		catalog.NewMemory[int](KeyTotals),
	)
	return cat
}

// BadgerCatalog returns a catalog whose entries persist in db.
func BadgerCatalog(db *badger.DB) *catalog.Catalog {
	cat := catalog.New()
	cat.MustRegister(
		badger.NewEntry[nodes.Row](db, KeyIrisRaw),
		badger.NewEntry[nodes.Row](db, KeyIrisTrain),
		badger.NewEntry[nodes.Row](db, KeyIrisTest),
		badger.NewEntry[SpeciesSummary](db, KeyIrisSummary),
		badger.NewEntry[int](db, KeyNumbers),
		badger.NewEntry[int](db, KeySquares),
		badger.NewEntry[int](db, KeyNegated),
		badger.NewEntry[int](db, KeyTotals),
	)
	return cat
}
