// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package nodes provides reusable node types for pipelines.
//
// Generic constructors (Constant, Map, Filter, Inspect) return a
// dag.NodeType for a caller-chosen element type. Row-based nodes (Split,
// CSVSource) work on tabular data and are registered by RegisterBuiltins.
package nodes

import (
	"fmt"

	"github.com/AleutianAI/datapipe/services/pipeline/config"
	"github.com/AleutianAI/datapipe/services/pipeline/dag"
)

// decodeParams fills out from a descriptor's Params, which may be a C, a *C,
// config.Params, or a plain map. Nil leaves out unchanged. The result is
// validated with its struct tags.
func decodeParams[C any](raw any, out *C) error {
	if raw == nil {
		return config.Validate(out)
	}
	if v, ok := raw.(C); ok {
		*out = v
		return config.Validate(out)
	}
	if v, ok := raw.(*C); ok && v != nil {
		*out = *v
		return config.Validate(out)
	}
	if v, ok := raw.(config.Params); ok {
		return v.Decode(out)
	}
	if v, ok := raw.(map[string]any); ok {
		return config.Params(v).Decode(out)
	}
	return fmt.Errorf("%w: unsupported params type %T", dag.ErrInvalidInput, raw)
}
