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
	"fmt"
	"maps"
	"strconv"
)

// Row is one record of tabular data keyed by column name.
type Row map[string]any

// Project returns a new Row holding only the named columns.
func (r Row) Project(columns ...string) (Row, error) {
	out := make(Row, len(columns))
	for _, c := range columns {
		v, ok := r[c]
		if !ok {
			return nil, fmt.Errorf("row has no column %q", c)
		}
		out[c] = v
	}
	return out, nil
}

// Float returns column as a float64, parsing strings when needed.
func (r Row) Float(column string) (float64, error) {
	switch v := r[column].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("column %q: %w", column, err)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("row has no column %q", column)
	default:
		return 0, fmt.Errorf("column %q holds %T, not a number", column, v)
	}
}

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	return maps.Clone(r)
}
