// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/datapipe/pkg/ux"
	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/demo"
	"github.com/AleutianAI/datapipe/services/pipeline/registry"
	"github.com/AleutianAI/datapipe/services/pipeline/storage/badger"
)

// app holds what every command shares.
type app struct {
	out      io.Writer
	errOut   io.Writer
	registry *registry.Registry

	// memoryCatalog and badgerCatalog create the catalog a run is wired
	// against.
	memoryCatalog func() *catalog.Catalog
	badgerCatalog func(*badger.DB) *catalog.Catalog

	outputMode string
}

func newApp(out, errOut io.Writer, reg *registry.Registry) *app {
	return &app{
		out:           out,
		errOut:        errOut,
		registry:      reg,
		memoryCatalog: demo.MemoryCatalog,
		badgerCatalog: demo.BadgerCatalog,
	}
}

func (a *app) printer() *ux.Printer {
	mode, ok := ux.ParseMode(a.outputMode)
	if !ok {
		mode = ux.DetectMode(a.out)
	}
	return ux.NewPrinter(a.out, mode)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "datapipe",
		Short:         "Run typed data pipelines",
		Long:          "datapipe wires named datasets through registered pipelines and runs them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch a.outputMode {
			case "", "auto":
				return nil
			}
			if _, ok := ux.ParseMode(a.outputMode); !ok {
				return fmt.Errorf("unknown output mode %q (want auto, styled, plain, machine)", a.outputMode)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.outputMode, "output", "o", "auto", "output mode: auto, styled, plain, machine")

	root.AddCommand(
		newListCmd(a),
		newDescribeCmd(a),
		newRunCmd(a),
		newServeCmd(a),
	)
	return root
}
