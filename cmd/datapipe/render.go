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
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/datapipe/pkg/ux"
	"github.com/AleutianAI/datapipe/services/pipeline/api"
	"github.com/AleutianAI/datapipe/services/pipeline/dag"
)

func renderRun(p *ux.Printer, res *dag.RunResult) {
	p.Title(fmt.Sprintf("Run %s", res.Pipeline))
	p.KV(
		"run", res.RunID,
		"status", string(res.Status),
		"duration", res.Duration.Round(time.Millisecond).String(),
		"completed", fmt.Sprintf("%d/%d", len(res.Completed), len(res.Completed)+len(res.Failures)+len(res.NotRun)),
	)

	ids := make([]string, 0, len(res.NodeDurations))
	for id := range res.NodeDurations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		icon := ux.IconSuccess
		if _, failed := res.Failure(id); failed {
			icon = ux.IconError
		}
		p.Status(icon, fmt.Sprintf("%s (%s)", id, res.NodeDurations[id].Round(time.Microsecond)))
	}
	for _, id := range res.NotRun {
		p.Status(ux.IconPending, id+" (not run)")
	}

	switch res.Status {
	case dag.RunFailed:
		lines := make([]string, 0, len(res.Failures))
		for _, f := range res.Failures {
			lines = append(lines, fmt.Sprintf("%s: %v", f.NodeID, f.Err))
		}
		p.Box(fmt.Sprintf("%s: %s", res.Status, res.Cause), strings.Join(lines, "\n"), true)
	case dag.RunCancelled:
		p.Warning("run cancelled; running nodes were allowed to finish")
	default:
		p.Success(fmt.Sprintf("%s succeeded", res.Pipeline))
	}
}

func renderPipeline(p *ux.Printer, view api.PipelineView) {
	p.Title(view.Name)
	p.KV(
		"description", view.Description,
		"tags", strings.Join(view.Tags, ","),
		"sources", strings.Join(view.SourceKeys, ","),
	)

	rows := make([][]string, 0, len(view.Nodes))
	for _, n := range view.Nodes {
		rows = append(rows, []string{
			n.ID,
			n.Type,
			formatPorts(n.Inputs),
			formatPorts(n.Outputs),
			strings.Join(n.DependsOn, ","),
		})
	}
	p.Table([]string{"NODE", "TYPE", "INPUTS", "OUTPUTS", "AFTER"}, rows)
}

// formatPorts renders a slot to key map as "slot=key" pairs, sorted by slot.
// The single slot is shown as the bare key.
func formatPorts(ports map[string]string) string {
	if len(ports) == 0 {
		return "-"
	}
	if key, ok := ports[dag.SingleSlot]; ok && len(ports) == 1 {
		return key
	}
	slots := make([]string, 0, len(ports))
	for slot := range ports {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	parts := make([]string, len(slots))
	for i, slot := range slots {
		parts[i] = slot + "=" + ports[slot]
	}
	return strings.Join(parts, ",")
}
