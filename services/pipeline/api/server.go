// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves the pipeline registry over HTTP.
//
// Routes:
//
//	GET  /health                      liveness
//	GET  /metrics                     Prometheus scrape endpoint, when configured
//	GET  /v1/pipelines?tag=<tag>      registered pipelines
//	GET  /v1/pipelines/:name          wiring of a pipeline built with defaults
//	POST /v1/pipelines/:name/runs     build and run a pipeline synchronously
//	GET  /v1/runs/:id                 a recent run result
//
// Run submissions are rate limited; wiring errors are returned as 422 with
// every defect listed.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/registry"
)

// ErrInvalidConfig is returned by New for an incomplete Config.
var ErrInvalidConfig = errors.New("invalid api config")

// DefaultHistory is the number of run results kept when Config.History is 0.
const DefaultHistory = 100

// Config configures a Server.
type Config struct {
	// Registry holds the servable pipelines. Required.
	Registry *registry.Registry

	// Catalog returns the catalog a run is wired against. Called once per
	// request. Required.
	Catalog func() *catalog.Catalog

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Workers is the default worker count per run; 0 uses GOMAXPROCS.
	Workers int

	// RunsPerSecond and Burst limit run submissions. Zero RunsPerSecond
	// disables limiting.
	RunsPerSecond float64
	Burst         int

	// History is the number of run results kept for GET /v1/runs/:id.
	History int

	// Metrics, when set, is served on /metrics.
	Metrics http.Handler

	// ServiceName names the otelgin spans. Defaults to "datapipe".
	ServiceName string
}

// Server handles the HTTP routes.
//
// Thread Safety: Safe for concurrent use.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	runs    map[string]RunView
	history []string
}

// New validates cfg and creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil || cfg.Catalog == nil {
		return nil, fmt.Errorf("%w: registry and catalog are required", ErrInvalidConfig)
	}
	if cfg.RunsPerSecond < 0 || cfg.Burst < 0 || cfg.Workers < 0 || cfg.History < 0 {
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidConfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.History == 0 {
		cfg.History = DefaultHistory
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "datapipe"
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RunsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RunsPerSecond), max(cfg.Burst, 1))
	}
	return &Server{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "api"),
		limiter: limiter,
		runs:    make(map[string]RunView),
	}, nil
}

// Router returns a gin engine with recovery, tracing, and every route.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(s.cfg.ServiceName))
	s.SetupRoutes(router)
	return router
}

// SetupRoutes registers the routes on router.
func (s *Server) SetupRoutes(router gin.IRouter) {
	router.GET("/health", s.health)
	if s.cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(s.cfg.Metrics))
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/pipelines", s.listPipelines)
		v1.GET("/pipelines/:name", s.describePipeline)
		v1.POST("/pipelines/:name/runs", s.submitRun)
		v1.GET("/runs/:id", s.getRun)
	}
}

// remember stores view, evicting the oldest result past the history limit.
func (s *Server) remember(view RunView) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[view.RunID] = view
	s.history = append(s.history, view.RunID)
	for len(s.history) > s.cfg.History {
		delete(s.runs, s.history[0])
		s.history = s.history[1:]
	}
}

func (s *Server) recall(id string) (RunView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := s.runs[id]
	return view, ok
}
