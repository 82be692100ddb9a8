// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command datapipe lists, describes, runs, and serves registered pipelines.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/datapipe/services/pipeline/demo"
	"github.com/AleutianAI/datapipe/services/pipeline/registry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := demo.Register(registry.Default); err != nil {
		fmt.Fprintf(os.Stderr, "datapipe: %v\n", err)
		os.Exit(1)
	}
	registry.Default.Seal()

	root := newRootCmd(newApp(os.Stdout, os.Stderr, registry.Default))
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "datapipe: %v\n", err)
		os.Exit(1)
	}
}
