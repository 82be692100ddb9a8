// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/datapipe/pkg/logging"
	"github.com/AleutianAI/datapipe/services/pipeline/config"
	"github.com/AleutianAI/datapipe/services/pipeline/dag"
	"github.com/AleutianAI/datapipe/services/pipeline/registry"
	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "pipelines": s.cfg.Registry.Len()})
}

func (s *Server) listPipelines(c *gin.Context) {
	var filter registry.TagFilter
	if tags := c.QueryArray("tag"); len(tags) > 0 {
		filter = registry.AnyTag(tags...)
	}
	out := []PipelineSummary{}
	for reg := range s.cfg.Registry.List(filter) {
		out = append(out, Summarize(reg))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) describePipeline(c *gin.Context) {
	name := c.Param("name")
	reg, err := s.cfg.Registry.Lookup(name)
	if err != nil {
		s.fail(c, err)
		return
	}
	p, err := s.cfg.Registry.Build(c.Request.Context(), name, s.cfg.Catalog(), nil)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Describe(reg, p))
}

func (s *Server) submitRun(c *gin.Context) {
	if !s.limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "run rate limit exceeded"})
		return
	}

	var req RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	name := c.Param("name")
	logger := s.logger.With(slog.String("pipeline", name))
	ctx := logging.WithContext(c.Request.Context(), logger)

	p, err := s.cfg.Registry.Build(ctx, name, s.cfg.Catalog(), config.Params(req.Params))
	if err != nil {
		s.fail(c, err)
		return
	}

	workers := req.Workers
	if workers == 0 {
		workers = s.cfg.Workers
	}
	var opts []dag.Option
	if workers > 0 {
		opts = append(opts, dag.WithWorkers(workers))
	}

	res, err := p.Execute(ctx, opts...)
	if res == nil {
		s.fail(c, err)
		return
	}
	view := ViewRun(res)
	s.remember(view)

	status := http.StatusOK
	if res.Status == dag.RunFailed {
		status = http.StatusUnprocessableEntity
		logger.Warn("run failed", slog.String("run_id", res.RunID), slog.String("error", err.Error()))
	}
	c.JSON(status, view)
}

func (s *Server) getRun(c *gin.Context) {
	view, ok := s.recall(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// fail writes err with a status derived from its kind.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, validation.UnknownPipeline):
		status = http.StatusNotFound
	case errors.Is(err, config.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.As(err, new(*validation.AggregateError)):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Errors: viewErrors(err)})
}
