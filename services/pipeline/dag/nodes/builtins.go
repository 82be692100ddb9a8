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
	"errors"

	"github.com/AleutianAI/datapipe/services/pipeline/dag"
)

// ConstantRowsType is the node type ID of the in-memory row source.
const ConstantRowsType = "constant_rows"

// Builtins returns the row-based node types shipped with the module.
func Builtins() []dag.NodeType {
	return []dag.NodeType{
		Constant[Row](ConstantRowsType),
		CSVSource(),
		InspectRows(),
		Split(),
	}
}

// RegisterBuiltins registers Builtins with f. Types already present are
// reported, and the remaining ones are still registered.
func RegisterBuiltins(f *dag.Factory) error {
	var errs []error
	for _, t := range Builtins() {
		if err := f.Register(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
