// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"iter"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/config"
	"github.com/AleutianAI/datapipe/services/pipeline/dag"
)

// Default is the process-wide registry used by the package-level functions.
var Default = New()

// Register adds a pipeline to Default.
func Register(name string, factory Factory, description string, tags ...string) error {
	return Default.Register(name, factory, description, tags...)
}

// MustRegister adds a pipeline to Default and panics on error.
func MustRegister(name string, factory Factory, description string, tags ...string) {
	Default.MustRegister(name, factory, description, tags...)
}

// Get returns a factory from Default.
func Get(name string) (Factory, error) {
	return Default.Get(name)
}

// List yields registrations from Default.
func List(filter TagFilter) iter.Seq[Registration] {
	return Default.List(filter)
}

// Build builds a pipeline from Default.
func Build(ctx context.Context, name string, cat *catalog.Catalog, params config.Params) (*dag.Pipeline, error) {
	return Default.Build(ctx, name, cat, params)
}
