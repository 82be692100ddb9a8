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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/datapipe/pkg/ux"
	"github.com/AleutianAI/datapipe/services/pipeline/api"
	"github.com/AleutianAI/datapipe/services/pipeline/registry"
)

func newListCmd(a *app) *cobra.Command {
	var tags []string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered pipelines",
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			var filter registry.TagFilter
			if len(tags) > 0 {
				filter = registry.AnyTag(tags...)
			}
			var rows [][]string
			for reg := range a.registry.List(filter) {
				rows = append(rows, []string{reg.Name, strings.Join(reg.Tags, ","), reg.Description})
			}
			p := a.printer()
			if len(rows) == 0 {
				p.Status(ux.IconBullet, "no pipelines registered")
				return nil
			}
			p.Table([]string{"NAME", "TAGS", "DESCRIPTION"}, rows)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "only list pipelines carrying one of these tags")
	return cmd
}

func newDescribeCmd(a *app) *cobra.Command {
	var rawParams []string
	cmd := &cobra.Command{
		Use:   "describe NAME",
		Short: "Show the nodes and dependencies of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(rawParams)
			if err != nil {
				return err
			}
			reg, err := a.registry.Lookup(args[0])
			if err != nil {
				return err
			}
			pipeline, err := a.registry.Build(cmd.Context(), args[0], a.memoryCatalog(), params)
			if err != nil {
				return err
			}
			renderPipeline(a.printer(), api.Describe(reg, pipeline))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&rawParams, "param", "p", nil, "pipeline parameter as key=value (repeatable)")
	return cmd
}
