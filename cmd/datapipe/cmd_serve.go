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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/datapipe/services/pipeline/api"
	"github.com/AleutianAI/datapipe/services/pipeline/config"
	"github.com/AleutianAI/datapipe/services/pipeline/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr     string
		rps      float64
		burst    int
		workers  int
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline registry over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger, err := newLogger(config.LogConfig{Level: logLevel, Format: "json"}, a.errOut)
			if err != nil {
				return err
			}
			defer logger.Close()

			tcfg := telemetry.DefaultConfig()
			if tcfg.MetricExporter == "none" {
				tcfg.MetricExporter = "prometheus"
			}
			shutdownTelemetry, err := telemetry.Init(ctx, tcfg)
			if err != nil {
				return err
			}
			defer func() { _ = shutdownTelemetry(context.WithoutCancel(ctx)) }()

			srv, err := api.New(api.Config{
				Registry:      a.registry,
				Catalog:       a.memoryCatalog,
				Logger:        logger.Slog(),
				Workers:       workers,
				RunsPerSecond: rps,
				Burst:         burst,
				Metrics:       telemetry.MetricsHandler(),
			})
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serveUntilDone(ctx, httpServer, logger.Slog())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	flags.Float64Var(&rps, "rate", 5, "run submissions per second (0 = unlimited)")
	flags.IntVar(&burst, "burst", 10, "run submission burst")
	flags.IntVarP(&workers, "workers", "w", 0, "maximum concurrent nodes per run (0 = one per CPU)")
	flags.StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	return cmd
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down.
func serveUntilDone(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
