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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/AleutianAI/datapipe/services/pipeline/dag"
)

// CSVSourceType is the node type ID of the CSV reader.
const CSVSourceType = "csv_source"

// Constant returns a source node type that emits its Params, which must be
// a []T, on the single output slot.
func Constant[T any](id string) dag.NodeType {
	return dag.NodeType{
		ID:     id,
		Input:  dag.NoData(),
		Output: dag.Single[T](),
		New: func(env dag.Env) (dag.Node, error) {
			items, ok := env.Params.([]T)
			if !ok && env.Params != nil {
				return nil, fmt.Errorf("%w: params must be %T, got %T", dag.ErrInvalidInput, items, env.Params)
			}
			items = slices.Clone(items)
			return dag.NodeFunc(func(context.Context, dag.Inputs) (dag.Outputs, error) {
				return dag.SingleOutput(slices.Clone(items)), nil
			}), nil
		},
	}
}

// CSVConfig configures the CSV reader.
type CSVConfig struct {
	// Path is the file to read. The first record is the header.
	Path string `yaml:"path" validate:"required"`

	// Numeric lists columns parsed as float64. Other columns stay strings.
	Numeric []string `yaml:"numeric" validate:"dive,required"`

	// Comma is the field delimiter; a comma when empty.
	Comma string `yaml:"comma" validate:"omitempty,len=1"`
}

// CSVSource returns the node type that reads rows from a CSV file.
func CSVSource() dag.NodeType {
	return dag.NodeType{
		ID:     CSVSourceType,
		Input:  dag.NoData(),
		Output: dag.Single[Row](),
		New: func(env dag.Env) (dag.Node, error) {
			var cfg CSVConfig
			if err := decodeParams(env.Params, &cfg); err != nil {
				return nil, err
			}
			return dag.NodeFunc(func(ctx context.Context, _ dag.Inputs) (dag.Outputs, error) {
				rows, err := readCSVFile(ctx, cfg)
				if err != nil {
					return nil, err
				}
				return dag.SingleOutput(rows), nil
			}), nil
		},
	}
}

func readCSVFile(ctx context.Context, cfg CSVConfig) ([]Row, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(ctx, f, cfg)
}

// ReadCSV parses rows from r. The first record names the columns.
func ReadCSV(ctx context.Context, r io.Reader, cfg CSVConfig) ([]Row, error) {
	reader := csv.NewReader(r)
	if cfg.Comma != "" {
		reader.Comma = rune(cfg.Comma[0])
	}
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for _, col := range cfg.Numeric {
		if !slices.Contains(header, col) {
			return nil, fmt.Errorf("numeric column %q not in header", col)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if !slices.Contains(cfg.Numeric, col) {
				row[col] = record[i]
				continue
			}
			v, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d column %q: %w", line, col, err)
			}
			row[col] = v
		}
		rows = append(rows, row)
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

func errorAtRow(i int, err error) error {
	return fmt.Errorf("row %d: %w", i, err)
}
